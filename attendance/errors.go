/*
errors.go - Centralized error taxonomy for the attendance core

PURPOSE:
  All error values in one place for consistency and discoverability.
  Errors are kinds, not exceptions: every one of them is local and
  recoverable, reported back to the caller verbatim.

ERROR CATEGORIES:
  1. Not found     - record/event/correction absent
  2. Forbidden     - ownership/role precondition failed (auth is upstream)
  3. Invalid state - operation attempted outside its legal state
  4. Policy        - business-rule limits (window, counts, text lengths)
  5. Conflict      - lost the compare-and-swap race on a concurrent
                     transition; re-read and re-evaluate, don't blindly retry

A failed precondition never produces an OperationLog entry. Logs record
what happened, not what was attempted.

USAGE:
  if attendance.IsInvalidState(err) { ... }
  if errors.Is(err, attendance.ErrAlreadyCheckedOut) { ... }
*/
package attendance

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// Not found.
	ErrRecordNotFound     = errors.New("attendance record not found")
	ErrEventNotFound      = errors.New("timer event not found")
	ErrCorrectionNotFound = errors.New("time correction not found")

	// ErrForbidden is returned when the actor is neither the record owner
	// nor privileged for the operation.
	ErrForbidden = errors.New("actor not permitted for this record")

	// Invalid state.
	ErrDuplicateRecord   = errors.New("record already exists for this employee and day")
	ErrAlreadyCheckedOut = errors.New("record already checked out")
	ErrNothingToCancel   = errors.New("record is not checked out")
	ErrNotPending        = errors.New("approval status is not pending")
	ErrNotCompleted      = errors.New("record is not completed")
	ErrRecordApproved    = errors.New("record is approved and immutable")

	// Policy violations.
	ErrCancellationWindowExpired = errors.New("checkout cancellation window expired")
	ErrCancellationLimitReached  = errors.New("checkout cancellation limit reached")
	ErrMemoTooLong               = errors.New("memo exceeds maximum length")
	ErrReasonTooShort            = errors.New("reason below minimum length")
	ErrReasonTooLong             = errors.New("reason exceeds maximum length")

	// Input validation.
	ErrUnknownField  = errors.New("unknown correction field")
	ErrBadFieldValue = errors.New("correction value does not fit the field")
	ErrBadDecision   = errors.New("decision must be approve or reject")
	ErrInvalidDay    = errors.New("day is not a valid calendar date")

	// ErrConflict is returned when a conditional write matched zero rows
	// because the observed precondition no longer held.
	ErrConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DuplicateRecordError reports which (employee, day) pair collided.
type DuplicateRecordError struct {
	EmployeeID EmployeeID
	Day        Day
	ExistingID RecordID
}

func (e *DuplicateRecordError) Error() string {
	return fmt.Sprintf("record already exists for %s on %s (record: %s)",
		e.EmployeeID, e.Day, e.ExistingID)
}

func (e *DuplicateRecordError) Unwrap() error { return ErrDuplicateRecord }

// CancellationWindowError reports how late the cancellation attempt was.
type CancellationWindowError struct {
	CheckOutTime int64
	Now          int64
}

func (e *CancellationWindowError) Error() string {
	return fmt.Sprintf("cancellation window expired: checked out %ds ago, limit %ds",
		e.Now-e.CheckOutTime, CancellationWindowSeconds)
}

func (e *CancellationWindowError) Unwrap() error { return ErrCancellationWindowExpired }

// TextLengthError reports a memo or reason length violation.
type TextLengthError struct {
	Field  string
	Length int
	Min    int
	Max    int
	kind   error
}

func (e *TextLengthError) Error() string {
	return fmt.Sprintf("%s length %d outside [%d, %d]", e.Field, e.Length, e.Min, e.Max)
}

func (e *TextLengthError) Unwrap() error { return e.kind }

// =============================================================================
// KIND PREDICATES
// =============================================================================

// IsNotFound reports whether the error indicates a missing aggregate.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound) ||
		errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrCorrectionNotFound)
}

// IsInvalidState reports whether the operation was attempted outside its
// legal state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrDuplicateRecord) ||
		errors.Is(err, ErrAlreadyCheckedOut) ||
		errors.Is(err, ErrNothingToCancel) ||
		errors.Is(err, ErrNotPending) ||
		errors.Is(err, ErrNotCompleted) ||
		errors.Is(err, ErrRecordApproved)
}

// IsPolicyViolation reports whether a business-rule limit was hit.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrCancellationWindowExpired) ||
		errors.Is(err, ErrCancellationLimitReached) ||
		errors.Is(err, ErrMemoTooLong) ||
		errors.Is(err, ErrReasonTooShort) ||
		errors.Is(err, ErrReasonTooLong)
}

// IsValidation reports whether the input itself was malformed.
func IsValidation(err error) bool {
	return errors.Is(err, ErrUnknownField) ||
		errors.Is(err, ErrBadFieldValue) ||
		errors.Is(err, ErrBadDecision) ||
		errors.Is(err, ErrInvalidDay)
}

// IsConflict reports whether a conditional write lost its race.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsRetryable reports whether re-reading and re-evaluating might succeed.
// Only conflicts qualify; state and policy failures are deterministic.
func IsRetryable(err error) bool { return IsConflict(err) }

// IsClientError reports whether the failure is attributable to the caller
// rather than the system.
func IsClientError(err error) bool {
	return IsNotFound(err) ||
		IsInvalidState(err) ||
		IsPolicyViolation(err) ||
		IsValidation(err) ||
		errors.Is(err, ErrForbidden)
}
