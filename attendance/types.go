/*
Package attendance provides the core attendance-tracking engine.

PURPOSE:
  This package contains the domain types and algorithms for tracking
  employee working time. A day's work is recorded as an ordered stream of
  timer events (work, rest, end); the engine derives authoritative work and
  rest durations from that stream and carries each day's record through an
  approval workflow with full auditability.

KEY CONCEPTS IN THIS FILE (types.go):
  - AttendanceRecord: One record per (employee, calendar day)
  - TimerEvent: An ordered, append-only event owned by exactly one record
  - TimeCorrection: A proposed change to one field of one record
  - Actor: The identity invoking a command (ownership checks only;
    authentication itself happens upstream)

DESIGN PRINCIPLES:
  1. Append-only events: Timer events are never reordered or deleted, only
     appended or memo-edited. Ordering by timestamp is the sole source of
     truth for duration derivation.
  2. Integer time: All timestamps are epoch seconds. No floating-point
     duration drift, and audit-log comparison stays trivial.
  3. Immutability after approval: Once a record is approved, neither the
     record nor its events may change except via a new, independently
     approved correction cycle.
  4. Auditability: Every successful mutation produces exactly one
     OperationLog entry, written in the same transaction.

SEE ALSO:
  - ledger.go: Derives work/rest statistics from the event stream
  - record.go: Check-in/out, cancellation, memo and correction requests
  - approval.go: Approve/reject records, resolve corrections
  - audit.go: OperationLog and the typed audit deltas
  - store.go: Persistence contract with conditional (CAS) writes
*/
package attendance

import (
	"strconv"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RecordID string
type EventID string
type CorrectionID string
type LogID string
type EmployeeID string

// Day identifies a calendar date in YYYY-MM-DD form. Together with an
// EmployeeID it keys exactly one AttendanceRecord.
type Day string

// DayOf returns the UTC calendar day containing the given instant.
func DayOf(epochSeconds int64) Day {
	return Day(time.Unix(epochSeconds, 0).UTC().Format("2006-01-02"))
}

// Valid reports whether d parses as a YYYY-MM-DD date.
func (d Day) Valid() bool {
	_, err := time.Parse("2006-01-02", string(d))
	return err == nil
}

// =============================================================================
// BUSINESS RULES - Fixed policy limits
// =============================================================================

const (
	// CancellationWindowSeconds is how long after check-out the employee may
	// still cancel it.
	CancellationWindowSeconds = 300

	// CancellationLimit caps successful checkout cancellations per record.
	// One record per day means the counter resets daily.
	CancellationLimit = 3

	// MemoMaxChars bounds event memo text (characters, not bytes).
	MemoMaxChars = 500

	// ReasonMinChars / ReasonMaxChars bound rejection and correction reasons.
	ReasonMinChars = 10
	ReasonMaxChars = 500
)

// =============================================================================
// ATTENDANCE RECORD - One per (employee, calendar day)
// =============================================================================

type RecordStatus string

const (
	StatusInProgress RecordStatus = "in_progress"
	StatusCompleted  RecordStatus = "completed"
	StatusCorrected  RecordStatus = "corrected"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// AttendanceRecord is the unit of consistency: operations on different
// records never contend, operations on the same record are serialized by
// the store's conditional writes.
//
// INVARIANT: CheckOutTime is set if and only if Status is completed or
// corrected.
type AttendanceRecord struct {
	ID         RecordID
	EmployeeID EmployeeID
	Day        Day

	CheckInTime      int64  // epoch seconds
	CheckOutTime     *int64 // nil while in progress
	TotalWorkMinutes int    // settled at check-out, never live

	Status         RecordStatus
	ApprovalStatus ApprovalStatus

	ApprovedBy      string
	ApprovedAt      *int64
	ApprovalComment string
	RejectionReason string

	Notes     string
	CreatedAt int64
}

// CheckedOut reports whether the day has been closed by a check-out.
func (r *AttendanceRecord) CheckedOut() bool { return r.CheckOutTime != nil }

// Approved reports whether the record has reached its immutable state.
func (r *AttendanceRecord) Approved() bool { return r.ApprovalStatus == ApprovalApproved }

// =============================================================================
// TIMER EVENT - Ordered, append-only, owned by one record
// =============================================================================

type EventType string

const (
	EventWork EventType = "work"
	EventRest EventType = "rest"
	EventEnd  EventType = "end"
)

// TimerEvent marks a transition in the day's timer state machine. Events
// are appended in timestamp order and never deleted; the only mutation
// ever applied is a memo edit (pre-approval) or closing an open rest span.
type TimerEvent struct {
	ID       EventID
	RecordID RecordID
	Type     EventType

	Timestamp    int64  // epoch seconds
	EndTimestamp *int64 // closes an open rest span, nil while open

	Memo  string // free text, employee-editable until the record is approved
	Notes string // system-set, immutable
}

// Open reports whether a rest event has not yet been closed.
func (e *TimerEvent) Open() bool { return e.Type == EventRest && e.EndTimestamp == nil }

// =============================================================================
// TIME CORRECTION - Proposed change to one field of one record
// =============================================================================

// CorrectionField names the record fields a correction may target.
type CorrectionField string

const (
	FieldCheckInTime      CorrectionField = "check_in_time"
	FieldCheckOutTime     CorrectionField = "check_out_time"
	FieldTotalWorkMinutes CorrectionField = "total_work_minutes"
	FieldNotes            CorrectionField = "notes"
)

// NumericField reports whether the field's value must parse as an integer.
func (f CorrectionField) NumericField() bool {
	switch f {
	case FieldCheckInTime, FieldCheckOutTime, FieldTotalWorkMinutes:
		return true
	}
	return false
}

// Known reports whether f is one of the correctable fields.
func (f CorrectionField) Known() bool {
	switch f {
	case FieldCheckInTime, FieldCheckOutTime, FieldTotalWorkMinutes, FieldNotes:
		return true
	}
	return false
}

// TimeCorrection is resolved exactly once: an admin either applies
// AfterValue to the target record (approved) or leaves the record untouched
// while annotating the correction (rejected). Terminal once resolved.
type TimeCorrection struct {
	ID       CorrectionID
	RecordID RecordID

	Field       CorrectionField
	BeforeValue string
	AfterValue  string

	ApprovalStatus ApprovalStatus
	Reason         string

	RequestedBy EmployeeID
	CreatedAt   int64
	ResolvedBy  string
	ResolvedAt  *int64
}

// Decision is an admin's verdict on a pending correction.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// FieldSnapshot renders the current value of a correctable field the way
// corrections and audit deltas store it.
func FieldSnapshot(r *AttendanceRecord, field CorrectionField) string {
	switch field {
	case FieldCheckInTime:
		return strconv.FormatInt(r.CheckInTime, 10)
	case FieldCheckOutTime:
		if r.CheckOutTime == nil {
			return ""
		}
		return strconv.FormatInt(*r.CheckOutTime, 10)
	case FieldTotalWorkMinutes:
		return strconv.Itoa(r.TotalWorkMinutes)
	case FieldNotes:
		return r.Notes
	}
	return ""
}

// =============================================================================
// ACTOR - Who is invoking a command
// =============================================================================

// Actor carries the pre-verified identity attached to a command. The core
// performs ownership checks only; session handling and role verification
// belong to the caller's auth layer.
type Actor struct {
	EmployeeID EmployeeID
	Admin      bool

	// Captured into the audit trail.
	IPAddress string
	UserAgent string
}

// Owns reports whether the actor is the record's owner.
func (a Actor) Owns(r *AttendanceRecord) bool { return a.EmployeeID == r.EmployeeID }
