/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the attendance engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Records:
    POST   /api/attendance/check-in                 Open today's record
    POST   /api/attendance/{id}/check-out           Settle the day
    POST   /api/attendance/{id}/cancel-checkout     Undo a checkout (windowed)
    POST   /api/attendance/{id}/rest                Start a rest period
    POST   /api/attendance/{id}/resume              Resume working
    GET    /api/attendance/{id}                     Record details
    GET    /api/attendance/{id}/events              Timer event stream
    GET    /api/attendance/{id}/stats               Derived durations + live view
    GET    /api/attendance/{id}/logs                Audit trail (newest first)
    GET    /api/attendance/today                    Caller's record for today

  Events:
    PUT    /api/events/{id}/memo                    Edit an event memo

  Approval:
    POST   /api/attendance/{id}/approve             Approve (admin)
    POST   /api/attendance/{id}/reject              Reject with reason (admin)

  Corrections:
    POST   /api/attendance/{id}/corrections         Request a field change
    GET    /api/corrections/pending                 Pending queue (admin)
    POST   /api/corrections/{id}/resolve            Approve or reject (admin)

IDENTITY:
  The caller's identity arrives in headers set by the gateway:
    X-Employee-ID  required on every mutating request
    X-Admin        "true" marks the caller as an administrator
  IP address and User-Agent are captured for the audit trail.

ERROR HANDLING:
  Domain errors map to HTTP statuses via the error-kind predicates:
  - 400: Validation and policy errors (lengths, windows, limits)
  - 403: Actor does not own the record and is not an admin
  - 404: Record, event, or correction not found
  - 409: Invalid state transitions and lost CAS races
  - 500: Everything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - attendance/record.go, attendance/approval.go: Domain logic
*/
package api

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Records  *attendance.Service
	Approval *attendance.ApprovalService

	clock attendance.Clock
	log   *logrus.Logger
}

// NewHandler creates a handler over the given store. A nil clock means
// system time; a nil logger means the logrus standard logger.
func NewHandler(store attendance.TxStore, clock attendance.Clock, log *logrus.Logger) *Handler {
	if clock == nil {
		clock = attendance.SystemClock()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		Records:  attendance.NewService(store, clock),
		Approval: attendance.NewApprovalService(store, clock),
		clock:    clock,
		log:      log,
	}
}

// actorFrom builds the acting identity from gateway headers and the
// connection. An empty employee ID is legal here; handlers that require
// identity reject it.
func actorFrom(r *http.Request) attendance.Actor {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return attendance.Actor{
		EmployeeID: attendance.EmployeeID(r.Header.Get("X-Employee-ID")),
		Admin:      r.Header.Get("X-Admin") == "true",
		IPAddress:  host,
		UserAgent:  r.UserAgent(),
	}
}

// =============================================================================
// RECORD HANDLERS
// =============================================================================

// CheckIn opens a new attendance record for the calling employee.
// POST /api/attendance/check-in
func (h *Handler) CheckIn(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "X-Employee-ID header is required", nil)
		return
	}

	var req CheckInRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	day := attendance.Day(req.Day)
	if day == "" {
		day = attendance.DayOf(h.clock.Now())
	}

	rec, err := h.Records.CheckIn(r.Context(), actor, day)
	if err != nil {
		h.writeDomainError(w, "Check-in failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// CheckOut settles the caller's day: closes open rests, freezes worked
// minutes and marks the record completed.
// POST /api/attendance/{id}/check-out
func (h *Handler) CheckOut(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	rec, err := h.Records.CheckOut(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, "Check-out failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// CancelCheckout reopens a freshly checked-out day.
// POST /api/attendance/{id}/cancel-checkout
func (h *Handler) CancelCheckout(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	rec, err := h.Records.CancelCheckout(r.Context(), actor, id)
	if err != nil {
		h.writeDomainError(w, "Cancel failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// StartRest begins a rest period on an in-progress record.
// POST /api/attendance/{id}/rest
func (h *Handler) StartRest(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	if err := h.Records.StartRest(r.Context(), actor, id); err != nil {
		h.writeDomainError(w, "Rest failed", err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// ResumeWork closes any open rest and resumes working time.
// POST /api/attendance/{id}/resume
func (h *Handler) ResumeWork(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	if err := h.Records.ResumeWork(r.Context(), actor, id); err != nil {
		h.writeDomainError(w, "Resume failed", err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// GetRecord returns a single attendance record.
// GET /api/attendance/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id := attendance.RecordID(chi.URLParam(r, "id"))

	rec, err := h.Records.GetRecord(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get record", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// GetToday returns the caller's record for the current day.
// GET /api/attendance/today
func (h *Handler) GetToday(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	if actor.EmployeeID == "" {
		writeError(w, http.StatusBadRequest, "X-Employee-ID header is required", nil)
		return
	}

	rec, err := h.Records.GetRecordByDay(r.Context(), actor.EmployeeID, attendance.DayOf(h.clock.Now()))
	if err != nil {
		h.writeDomainError(w, "Failed to get record", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// GetEvents returns the record's timer events in chronological order.
// GET /api/attendance/{id}/events
func (h *Handler) GetEvents(w http.ResponseWriter, r *http.Request) {
	id := attendance.RecordID(chi.URLParam(r, "id"))

	events, err := h.Records.Events(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get events", err)
		return
	}

	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetStats returns derived work/rest durations plus the live view.
// GET /api/attendance/{id}/stats
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	id := attendance.RecordID(chi.URLParam(r, "id"))

	stats, live, err := h.Records.Stats(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get stats", err)
		return
	}

	writeJSON(w, http.StatusOK, toStatsDTO(stats, live))
}

// GetLogs returns the record's audit trail, newest first.
// GET /api/attendance/{id}/logs
func (h *Handler) GetLogs(w http.ResponseWriter, r *http.Request) {
	id := attendance.RecordID(chi.URLParam(r, "id"))

	logs, err := h.Records.Logs(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get logs", err)
		return
	}

	dtos := make([]LogDTO, len(logs))
	for i, entry := range logs {
		dtos[i] = toLogDTO(entry)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// UpdateMemo edits a timer event's memo text.
// PUT /api/events/{id}/memo
func (h *Handler) UpdateMemo(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.EventID(chi.URLParam(r, "id"))

	var req MemoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if err := h.Records.UpdateMemo(r.Context(), actor, id, req.Memo); err != nil {
		h.writeDomainError(w, "Memo update failed", err)
		return
	}

	writeJSON(w, http.StatusNoContent, nil)
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// ApproveRecord finalizes a completed record. Admin only.
// POST /api/attendance/{id}/approve
func (h *Handler) ApproveRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	var req ApproveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}

	rec, err := h.Approval.Approve(r.Context(), actor, id, req.Comment)
	if err != nil {
		h.writeDomainError(w, "Approval failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// RejectRecord sends a record back to the employee. Admin only.
// POST /api/attendance/{id}/reject
func (h *Handler) RejectRecord(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	var req RejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	rec, err := h.Approval.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Rejection failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toRecordDTO(rec))
}

// =============================================================================
// CORRECTION HANDLERS
// =============================================================================

// RequestCorrection files a correction request against a record.
// POST /api/attendance/{id}/corrections
func (h *Handler) RequestCorrection(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.RecordID(chi.URLParam(r, "id"))

	var req CorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	corr, err := h.Records.RequestCorrection(r.Context(), actor, id,
		attendance.CorrectionField(req.Field), req.AfterValue, req.Reason)
	if err != nil {
		h.writeDomainError(w, "Correction request failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, toCorrectionDTO(corr))
}

// ListPendingCorrections returns the admin review queue.
// GET /api/corrections/pending
func (h *Handler) ListPendingCorrections(w http.ResponseWriter, r *http.Request) {
	corrections, err := h.Approval.PendingCorrections(r.Context())
	if err != nil {
		h.writeDomainError(w, "Failed to list corrections", err)
		return
	}

	dtos := make([]CorrectionDTO, len(corrections))
	for i := range corrections {
		dtos[i] = toCorrectionDTO(&corrections[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ResolveCorrection applies an admin verdict to a pending correction.
// POST /api/corrections/{id}/resolve
func (h *Handler) ResolveCorrection(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	id := attendance.CorrectionID(chi.URLParam(r, "id"))

	var req ResolveCorrectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	corr, err := h.Approval.ResolveCorrection(r.Context(), actor, id,
		attendance.Decision(req.Decision), req.Reason)
	if err != nil {
		h.writeDomainError(w, "Resolve failed", err)
		return
	}

	writeJSON(w, http.StatusOK, toCorrectionDTO(corr))
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

// writeDomainError translates domain errors into HTTP statuses. Unknown
// errors become 500 and are logged with their cause.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case attendance.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, attendance.ErrForbidden):
		writeError(w, http.StatusForbidden, message, err)
	case attendance.IsConflict(err), attendance.IsInvalidState(err):
		writeError(w, http.StatusConflict, message, err)
	case attendance.IsPolicyViolation(err), attendance.IsValidation(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.log.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent || data == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
