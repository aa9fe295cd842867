/*
record.go - Attendance record lifecycle manager

PURPOSE:
  Owns one record per employee per calendar day. Applies check-in/out,
  checkout cancellation, rest/resume, memo edits and correction requests,
  enforcing the day-level invariants:

  - CheckOutTime set  <=>  Status in {completed, corrected}
  - Approved records are immutable outside an approved correction cycle
  - Every successful mutation appends exactly one OperationLog entry,
    in the same transaction as the state change

OWNERSHIP:
  Every operation is scoped to the record owner. Non-owners fail with
  ErrForbidden before anything else is evaluated. (Role verification is the
  caller's auth layer; the core only checks the ownership precondition.)

CONCURRENCY:
  Each flow runs inside TxStore.WithTx: preconditions are re-checked on the
  transactional read, and the actual transition is a conditional write, so
  two racing checkouts (or a checkout racing a cancellation) settle to
  exactly one winner; the loser sees ErrConflict and re-reads.

SEE ALSO:
  - ledger.go: Rest arithmetic used at check-out
  - approval.go: The admin side of the workflow
*/
package attendance

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Service is the attendance record lifecycle manager.
type Service struct {
	store TxStore
	clock Clock
}

// NewService creates a lifecycle manager. A nil clock means wall time.
func NewService(store TxStore, clock Clock) *Service {
	if clock == nil {
		clock = SystemClock()
	}
	return &Service{store: store, clock: clock}
}

// =============================================================================
// CHECK-IN
// =============================================================================

// CheckIn creates the day's record and opens its first work span. Fails
// with DuplicateRecordError when a record for (actor, day) already exists.
// An empty day means "the day containing now".
func (s *Service) CheckIn(ctx context.Context, actor Actor, day Day) (*AttendanceRecord, error) {
	now := s.clock.Now()
	if day == "" {
		day = DayOf(now)
	}
	if !day.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDay, day)
	}

	rec := &AttendanceRecord{
		ID:             RecordID(uuid.NewString()),
		EmployeeID:     actor.EmployeeID,
		Day:            day,
		CheckInTime:    now,
		Status:         StatusInProgress,
		ApprovalStatus: ApprovalPending,
		CreatedAt:      now,
	}

	err := s.store.WithTx(ctx, func(st Store) error {
		if err := st.CreateRecord(ctx, rec); err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, &TimerEvent{
			ID:        EventID(uuid.NewString()),
			RecordID:  rec.ID,
			Type:      EventWork,
			Timestamp: now,
			Notes:     "checked in",
		}); err != nil {
			return err
		}
		return st.AppendLog(ctx, s.logEntry(actor, rec.ID, CheckInDelta{CheckInTime: now}, ""))
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// =============================================================================
// CHECK-OUT
// =============================================================================

// CheckOut settles the day: closes any open rest span, appends the END
// event, and writes TotalWorkMinutes = floor((now-checkIn)/60) minus the
// settled rest minutes. A negative result is clamped to zero; that only
// happens on malformed rest data and is preserved behavior rather than a
// rejection.
func (s *Service) CheckOut(ctx context.Context, actor Actor, id RecordID) (*AttendanceRecord, error) {
	var out *AttendanceRecord

	err := s.store.WithTx(ctx, func(st Store) error {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Owns(rec) {
			return ErrForbidden
		}
		if rec.CheckedOut() {
			return ErrAlreadyCheckedOut
		}

		now := s.clock.Now()

		events, err := st.EventsForRecord(ctx, id)
		if err != nil {
			return err
		}
		if _, err := st.CloseOpenRests(ctx, id, now); err != nil {
			return err
		}
		// Mirror the close locally so the arithmetic sees it without a
		// second read.
		for i := range events {
			if events[i].Open() {
				end := now
				events[i].EndTimestamp = &end
			}
		}

		restMinutes := MinutesFloor(ClosedRestSeconds(events))
		minutes := MinutesFloor(SecondsBetween(rec.CheckInTime, now)) - restMinutes
		if minutes < 0 {
			minutes = 0
		}

		if err := st.SetCheckedOut(ctx, id, now, minutes); err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, &TimerEvent{
			ID:        EventID(uuid.NewString()),
			RecordID:  id,
			Type:      EventEnd,
			Timestamp: now,
			Notes:     "checked out",
		}); err != nil {
			return err
		}

		delta := CheckOutDelta{
			OldCheckOutTime: rec.CheckOutTime,
			NewCheckOutTime: now,
			OldWorkMinutes:  rec.TotalWorkMinutes,
			NewWorkMinutes:  minutes,
		}
		if err := st.AppendLog(ctx, s.logEntry(actor, id, delta, "")); err != nil {
			return err
		}

		settled := *rec
		settled.CheckOutTime = &now
		settled.TotalWorkMinutes = minutes
		settled.Status = StatusCompleted
		out = &settled
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// CANCEL CHECK-OUT
// =============================================================================

// CancelCheckout undoes a checkout within the five-minute window, at most
// three times per record. The END event stays in the stream; a fresh WORK
// event reopens the day so live elapsed time keeps counting.
func (s *Service) CancelCheckout(ctx context.Context, actor Actor, id RecordID) (*AttendanceRecord, error) {
	var out *AttendanceRecord

	err := s.store.WithTx(ctx, func(st Store) error {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Owns(rec) {
			return ErrForbidden
		}
		if rec.Approved() {
			return ErrRecordApproved
		}
		if !rec.CheckedOut() {
			return ErrNothingToCancel
		}

		now := s.clock.Now()
		if SecondsBetween(*rec.CheckOutTime, now) > CancellationWindowSeconds {
			return &CancellationWindowError{CheckOutTime: *rec.CheckOutTime, Now: now}
		}

		prior, err := st.CountLogs(ctx, id, ActionCancelCheckout)
		if err != nil {
			return err
		}
		if prior >= CancellationLimit {
			return ErrCancellationLimitReached
		}

		if err := st.ClearCheckout(ctx, id); err != nil {
			return err
		}
		if err := st.AppendEvent(ctx, &TimerEvent{
			ID:        EventID(uuid.NewString()),
			RecordID:  id,
			Type:      EventWork,
			Timestamp: now,
			Notes:     "checkout cancelled",
		}); err != nil {
			return err
		}

		delta := CancelCheckoutDelta{
			OldCheckOutTime: *rec.CheckOutTime,
			OldWorkMinutes:  rec.TotalWorkMinutes,
		}
		if err := st.AppendLog(ctx, s.logEntry(actor, id, delta, "")); err != nil {
			return err
		}

		reopened := *rec
		reopened.CheckOutTime = nil
		reopened.TotalWorkMinutes = 0
		reopened.Status = StatusInProgress
		out = &reopened
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// REST / RESUME
// =============================================================================

// StartRest appends a rest event to an in-progress day. A second rest
// while one is already open is harmless; the ledger's idempotence rule
// absorbs it.
func (s *Service) StartRest(ctx context.Context, actor Actor, id RecordID) error {
	return s.appendTimer(ctx, actor, id, EventRest, false)
}

// ResumeWork closes any open rest span and appends a work event.
func (s *Service) ResumeWork(ctx context.Context, actor Actor, id RecordID) error {
	return s.appendTimer(ctx, actor, id, EventWork, true)
}

func (s *Service) appendTimer(ctx context.Context, actor Actor, id RecordID, et EventType, closeRests bool) error {
	return s.store.WithTx(ctx, func(st Store) error {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Owns(rec) {
			return ErrForbidden
		}
		if rec.Approved() {
			return ErrRecordApproved
		}
		if rec.CheckedOut() {
			return ErrAlreadyCheckedOut
		}

		now := s.clock.Now()
		if closeRests {
			if _, err := st.CloseOpenRests(ctx, id, now); err != nil {
				return err
			}
		}
		if err := st.AppendEvent(ctx, &TimerEvent{
			ID:        EventID(uuid.NewString()),
			RecordID:  id,
			Type:      et,
			Timestamp: now,
		}); err != nil {
			return err
		}
		return st.AppendLog(ctx, s.logEntry(actor, id, TimerDelta{EventType: et, At: now}, ""))
	})
}

// =============================================================================
// MEMO
// =============================================================================

// UpdateMemo edits an event's memo. Approved records are immutable down to
// the event-memo level, regardless of actor.
func (s *Service) UpdateMemo(ctx context.Context, actor Actor, eventID EventID, memo string) error {
	if n := utf8.RuneCountInString(memo); n > MemoMaxChars {
		return &TextLengthError{Field: "memo", Length: n, Min: 0, Max: MemoMaxChars, kind: ErrMemoTooLong}
	}

	return s.store.WithTx(ctx, func(st Store) error {
		ev, err := st.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		rec, err := st.GetRecord(ctx, ev.RecordID)
		if err != nil {
			return err
		}
		if rec.Approved() {
			return ErrRecordApproved
		}
		if !actor.Owns(rec) {
			return ErrForbidden
		}

		if err := st.SetEventMemo(ctx, eventID, memo); err != nil {
			return err
		}
		delta := MemoDelta{EventID: eventID, OldMemo: ev.Memo, NewMemo: memo}
		return st.AppendLog(ctx, s.logEntry(actor, ev.RecordID, delta, ""))
	})
}

// =============================================================================
// CORRECTION REQUESTS
// =============================================================================

// RequestCorrection files a pending correction against one field of a
// settled record; in-progress records have nothing final to correct.
// The before-value snapshot is taken here so the admin reviews the
// state the requester saw. Admins may file on behalf of any employee.
func (s *Service) RequestCorrection(ctx context.Context, actor Actor, id RecordID, field CorrectionField, afterValue, reason string) (*TimeCorrection, error) {
	if !field.Known() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	if field.NumericField() {
		if !numeric(afterValue) {
			return nil, fmt.Errorf("%w: %s wants an integer, got %q", ErrBadFieldValue, field, afterValue)
		}
	}
	if err := validateReason(reason); err != nil {
		return nil, err
	}

	var out *TimeCorrection
	err := s.store.WithTx(ctx, func(st Store) error {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Owns(rec) && !actor.Admin {
			return ErrForbidden
		}
		if !rec.CheckedOut() {
			return ErrNotCompleted
		}

		c := &TimeCorrection{
			ID:             CorrectionID(uuid.NewString()),
			RecordID:       id,
			Field:          field,
			BeforeValue:    FieldSnapshot(rec, field),
			AfterValue:     afterValue,
			ApprovalStatus: ApprovalPending,
			Reason:         reason,
			RequestedBy:    actor.EmployeeID,
			CreatedAt:      s.clock.Now(),
		}
		if err := st.CreateCorrection(ctx, c); err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// GetRecord returns one record.
func (s *Service) GetRecord(ctx context.Context, id RecordID) (*AttendanceRecord, error) {
	return s.store.GetRecord(ctx, id)
}

// GetRecordByDay returns the record keyed by (employee, day), or
// ErrRecordNotFound.
func (s *Service) GetRecordByDay(ctx context.Context, employee EmployeeID, day Day) (*AttendanceRecord, error) {
	return s.store.GetRecordByDay(ctx, employee, day)
}

// Events returns the record's events ascending by timestamp.
func (s *Service) Events(ctx context.Context, id RecordID) ([]TimerEvent, error) {
	if _, err := s.store.GetRecord(ctx, id); err != nil {
		return nil, err
	}
	return s.store.EventsForRecord(ctx, id)
}

// Stats returns the settled statistics plus the live view for in-progress
// days. Live figures are display-only and never persisted.
func (s *Service) Stats(ctx context.Context, id RecordID) (DayStats, LiveStatus, error) {
	if _, err := s.store.GetRecord(ctx, id); err != nil {
		return DayStats{}, LiveStatus{}, err
	}
	events, err := s.store.EventsForRecord(ctx, id)
	if err != nil {
		return DayStats{}, LiveStatus{}, err
	}
	stats, live := ComputeLive(events, s.clock.Now())
	return stats, live, nil
}

// Logs returns the record's audit entries, newest first.
func (s *Service) Logs(ctx context.Context, id RecordID) ([]OperationLog, error) {
	if _, err := s.store.GetRecord(ctx, id); err != nil {
		return nil, err
	}
	return s.store.LogsForRecord(ctx, id)
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *Service) logEntry(actor Actor, id RecordID, delta Delta, reason string) *OperationLog {
	return &OperationLog{
		ID:        LogID(uuid.NewString()),
		RecordID:  id,
		ActorID:   string(actor.EmployeeID),
		Action:    delta.DeltaAction(),
		Delta:     delta,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Timestamp: s.clock.Now(),
		Reason:    reason,
	}
}

func validateReason(reason string) error {
	n := utf8.RuneCountInString(reason)
	if n < ReasonMinChars {
		return &TextLengthError{Field: "reason", Length: n, Min: ReasonMinChars, Max: ReasonMaxChars, kind: ErrReasonTooShort}
	}
	if n > ReasonMaxChars {
		return &TextLengthError{Field: "reason", Length: n, Min: ReasonMinChars, Max: ReasonMaxChars, kind: ErrReasonTooLong}
	}
	return nil
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '-' && i == 0 && len(s) > 1 {
			continue
		}
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
