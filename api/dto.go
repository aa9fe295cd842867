/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Records:
    RecordDTO, CheckInRequest

  Events:
    EventDTO, MemoRequest

  Stats:
    StatsDTO

  Approval:
    ApproveRequest, RejectRequest

  Corrections:
    CorrectionDTO, CorrectionRequest, ResolveCorrectionRequest

  Audit:
    LogDTO

VALIDATION:
  Structural validation (required fields, JSON shape) happens in handlers.
  Domain validation (lengths, windows, state) happens in the services -
  handlers translate domain errors into HTTP statuses, they never
  duplicate the rules.

SEE ALSO:
  - handlers.go: Uses these types
  - attendance/types.go: Domain model these map from
*/
package api

import (
	"github.com/warp/attendance-engine/attendance"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// RecordDTO represents an attendance record in API responses.
type RecordDTO struct {
	ID               string `json:"id"`
	EmployeeID       string `json:"employee_id"`
	Day              string `json:"day"`
	CheckInTime      int64  `json:"check_in_time"`
	CheckOutTime     *int64 `json:"check_out_time,omitempty"`
	TotalWorkMinutes int    `json:"total_work_minutes"`
	Status           string `json:"status"`
	ApprovalStatus   string `json:"approval_status"`
	ApprovedBy       string `json:"approved_by,omitempty"`
	ApprovedAt       *int64 `json:"approved_at,omitempty"`
	ApprovalComment  string `json:"approval_comment,omitempty"`
	RejectionReason  string `json:"rejection_reason,omitempty"`
	Notes            string `json:"notes,omitempty"`
	CreatedAt        int64  `json:"created_at"`
}

func toRecordDTO(rec *attendance.AttendanceRecord) RecordDTO {
	return RecordDTO{
		ID:               string(rec.ID),
		EmployeeID:       string(rec.EmployeeID),
		Day:              string(rec.Day),
		CheckInTime:      rec.CheckInTime,
		CheckOutTime:     rec.CheckOutTime,
		TotalWorkMinutes: rec.TotalWorkMinutes,
		Status:           string(rec.Status),
		ApprovalStatus:   string(rec.ApprovalStatus),
		ApprovedBy:       rec.ApprovedBy,
		ApprovedAt:       rec.ApprovedAt,
		ApprovalComment:  rec.ApprovalComment,
		RejectionReason:  rec.RejectionReason,
		Notes:            rec.Notes,
		CreatedAt:        rec.CreatedAt,
	}
}

// CheckInRequest opens a working day. Day defaults to today (UTC) when
// omitted.
type CheckInRequest struct {
	Day string `json:"day,omitempty"`
}

// EventDTO represents a timer event in API responses.
type EventDTO struct {
	ID           string `json:"id"`
	RecordID     string `json:"record_id"`
	Type         string `json:"type"`
	Timestamp    int64  `json:"timestamp"`
	EndTimestamp *int64 `json:"end_timestamp,omitempty"`
	Memo         string `json:"memo,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

func toEventDTO(ev attendance.TimerEvent) EventDTO {
	return EventDTO{
		ID:           string(ev.ID),
		RecordID:     string(ev.RecordID),
		Type:         string(ev.Type),
		Timestamp:    ev.Timestamp,
		EndTimestamp: ev.EndTimestamp,
		Memo:         ev.Memo,
		Notes:        ev.Notes,
	}
}

// MemoRequest replaces an event's memo text.
type MemoRequest struct {
	Memo string `json:"memo"`
}

// StatsDTO carries derived durations plus the live in-progress view.
// Hours are decimal strings rounded to two places for display.
type StatsDTO struct {
	TotalWorkSeconds int64  `json:"total_work_seconds"`
	TotalRestSeconds int64  `json:"total_rest_seconds"`
	WorkMinutes      int    `json:"work_minutes"`
	RestMinutes      int    `json:"rest_minutes"`
	WorkHours        string `json:"work_hours"`
	RestHours        string `json:"rest_hours"`
	WorkPeriods      int    `json:"work_periods"`
	RestPeriods      int    `json:"rest_periods"`

	Working         bool  `json:"working"`
	Resting         bool  `json:"resting"`
	LiveWorkSeconds int64 `json:"live_work_seconds"`
	LiveRestSeconds int64 `json:"live_rest_seconds"`
}

func toStatsDTO(stats attendance.DayStats, live attendance.LiveStatus) StatsDTO {
	return StatsDTO{
		TotalWorkSeconds: stats.TotalWorkSeconds,
		TotalRestSeconds: stats.TotalRestSeconds,
		WorkMinutes:      stats.WorkMinutes(),
		RestMinutes:      stats.RestMinutes(),
		WorkHours:        stats.WorkHours().String(),
		RestHours:        stats.RestHours().String(),
		WorkPeriods:      stats.WorkPeriods,
		RestPeriods:      stats.RestPeriods,
		Working:          live.Working,
		Resting:          live.Resting,
		LiveWorkSeconds:  live.WorkSeconds,
		LiveRestSeconds:  live.RestSeconds,
	}
}

// ApproveRequest finalizes a completed record. Comment is optional.
type ApproveRequest struct {
	Comment string `json:"comment,omitempty"`
}

// RejectRequest sends a record back with a mandatory reason.
type RejectRequest struct {
	Reason string `json:"reason"`
}

// CorrectionRequest asks for a field change on a record.
type CorrectionRequest struct {
	Field      string `json:"field"`
	AfterValue string `json:"after_value"`
	Reason     string `json:"reason"`
}

// ResolveCorrectionRequest is an admin verdict on a pending correction.
type ResolveCorrectionRequest struct {
	Decision string `json:"decision"`
	Reason   string `json:"reason,omitempty"`
}

// CorrectionDTO represents a correction request in API responses.
type CorrectionDTO struct {
	ID             string `json:"id"`
	RecordID       string `json:"record_id"`
	Field          string `json:"field"`
	BeforeValue    string `json:"before_value"`
	AfterValue     string `json:"after_value"`
	ApprovalStatus string `json:"approval_status"`
	Reason         string `json:"reason"`
	RequestedBy    string `json:"requested_by"`
	CreatedAt      int64  `json:"created_at"`
	ResolvedBy     string `json:"resolved_by,omitempty"`
	ResolvedAt     *int64 `json:"resolved_at,omitempty"`
}

func toCorrectionDTO(c *attendance.TimeCorrection) CorrectionDTO {
	return CorrectionDTO{
		ID:             string(c.ID),
		RecordID:       string(c.RecordID),
		Field:          string(c.Field),
		BeforeValue:    c.BeforeValue,
		AfterValue:     c.AfterValue,
		ApprovalStatus: string(c.ApprovalStatus),
		Reason:         c.Reason,
		RequestedBy:    string(c.RequestedBy),
		CreatedAt:      c.CreatedAt,
		ResolvedBy:     c.ResolvedBy,
		ResolvedAt:     c.ResolvedAt,
	}
}

// LogDTO represents an audit trail entry in API responses. Delta keeps
// the action-specific shape the domain recorded.
type LogDTO struct {
	ID        string           `json:"id"`
	RecordID  string           `json:"record_id"`
	ActorID   string           `json:"actor_id"`
	Action    string           `json:"action"`
	Delta     attendance.Delta `json:"delta,omitempty"`
	IPAddress string           `json:"ip_address,omitempty"`
	UserAgent string           `json:"user_agent,omitempty"`
	Timestamp int64            `json:"timestamp"`
	Reason    string           `json:"reason,omitempty"`
}

func toLogDTO(entry attendance.OperationLog) LogDTO {
	return LogDTO{
		ID:        string(entry.ID),
		RecordID:  string(entry.RecordID),
		ActorID:   entry.ActorID,
		Action:    string(entry.Action),
		Delta:     entry.Delta,
		IPAddress: entry.IPAddress,
		UserAgent: entry.UserAgent,
		Timestamp: entry.Timestamp,
		Reason:    entry.Reason,
	}
}

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
