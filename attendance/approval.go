/*
approval.go - Approval workflow for records and corrections

PURPOSE:
  Gates the pending -> {approved, rejected} transitions and enforces record
  immutability once approved. Also resolves time corrections: the only path
  by which an approved record may ever change again.

STATE MACHINE:
  pending (initial) -> approved | rejected (terminal)
  A record is eligible for approval only once its day is settled
  (completed or corrected, never in progress).

ATOMICITY:
  Every transition here is check-then-set in one logical operation: the
  precondition is re-read inside the transaction and the write itself is
  conditional on it. Two concurrent approvals cannot both observe pending
  and both succeed; the loser gets ErrConflict.

SEE ALSO:
  - record.go: Produces the records and correction requests
  - store.go: The conditional-write contract this relies on
*/
package attendance

import (
	"context"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ApprovalService gates record approval and correction resolution. All
// operations require an admin actor; non-admins fail with ErrForbidden.
type ApprovalService struct {
	store TxStore
	clock Clock
}

// NewApprovalService creates the workflow gate. A nil clock means wall time.
func NewApprovalService(store TxStore, clock Clock) *ApprovalService {
	if clock == nil {
		clock = SystemClock()
	}
	return &ApprovalService{store: store, clock: clock}
}

// =============================================================================
// RECORD APPROVAL
// =============================================================================

// Approve moves a pending, settled record to approved. From then on the
// record and its events are immutable outside an approved correction.
func (s *ApprovalService) Approve(ctx context.Context, actor Actor, id RecordID, comment string) (*AttendanceRecord, error) {
	var out *AttendanceRecord

	err := s.store.WithTx(ctx, func(st Store) error {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Admin {
			return ErrForbidden
		}
		if rec.ApprovalStatus != ApprovalPending {
			return ErrNotPending
		}
		if rec.Status == StatusInProgress {
			return ErrNotCompleted
		}

		now := s.clock.Now()
		by := string(actor.EmployeeID)

		if err := st.SetApproved(ctx, id, by, now, comment); err != nil {
			return err
		}
		delta := ApproveDelta{ApprovedBy: by, ApprovedAt: now, Comment: comment}
		if err := st.AppendLog(ctx, s.logEntry(actor, id, delta, "")); err != nil {
			return err
		}

		approved := *rec
		approved.ApprovalStatus = ApprovalApproved
		approved.ApprovedBy = by
		approved.ApprovedAt = &now
		approved.ApprovalComment = comment
		out = &approved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reject moves a pending record to rejected. The reason is validated
// before any state is read and duplicated into the log's own reason field
// so the trail is independently auditable.
func (s *ApprovalService) Reject(ctx context.Context, actor Actor, id RecordID, reason string) (*AttendanceRecord, error) {
	if err := validateReason(reason); err != nil {
		return nil, err
	}

	var out *AttendanceRecord
	err := s.store.WithTx(ctx, func(st Store) error {
		rec, err := st.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Admin {
			return ErrForbidden
		}
		if rec.ApprovalStatus != ApprovalPending {
			return ErrNotPending
		}

		if err := st.SetRejected(ctx, id, reason); err != nil {
			return err
		}
		if err := st.AppendLog(ctx, s.logEntry(actor, id, RejectDelta{Reason: reason}, reason)); err != nil {
			return err
		}

		rejected := *rec
		rejected.ApprovalStatus = ApprovalRejected
		rejected.RejectionReason = reason
		out = &rejected
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// =============================================================================
// CORRECTION RESOLUTION
// =============================================================================

// ResolveCorrection settles a pending correction exactly once.
//
// On approve: the correction's after-value is written to the named field
// of the target record and the record becomes corrected. On reject: the
// record is untouched, byte for byte; the admin's reason is appended to
// the correction's stored reason (never overwritten) to preserve the
// original request context. Both branches log EDIT_TIME with the field's
// before/after pair.
func (s *ApprovalService) ResolveCorrection(ctx context.Context, actor Actor, id CorrectionID, decision Decision, adminReason string) (*TimeCorrection, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, ErrBadDecision
	}
	if n := utf8.RuneCountInString(adminReason); n > ReasonMaxChars {
		return nil, &TextLengthError{Field: "reason", Length: n, Min: 0, Max: ReasonMaxChars, kind: ErrReasonTooLong}
	}

	var out *TimeCorrection
	err := s.store.WithTx(ctx, func(st Store) error {
		corr, err := st.GetCorrection(ctx, id)
		if err != nil {
			return err
		}
		if !actor.Admin {
			return ErrForbidden
		}
		if corr.ApprovalStatus != ApprovalPending {
			return ErrNotPending
		}

		rec, err := st.GetRecord(ctx, corr.RecordID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		by := string(actor.EmployeeID)
		before := FieldSnapshot(rec, corr.Field)
		resolved := *corr
		resolved.ResolvedBy = by
		resolved.ResolvedAt = &now

		var delta CorrectionDelta
		switch decision {
		case DecisionApprove:
			// A cancelled checkout can reopen the record after the
			// correction was filed; CORRECTED requires a checkout.
			if !rec.CheckedOut() {
				return ErrNotCompleted
			}
			if err := st.ApplyCorrection(ctx, rec.ID, corr.Field, corr.AfterValue); err != nil {
				return err
			}
			if err := st.SetCorrectionResolved(ctx, id, ApprovalApproved, by, now, corr.Reason); err != nil {
				return err
			}
			resolved.ApprovalStatus = ApprovalApproved
			delta = CorrectionDelta{
				CorrectionID: id,
				Field:        corr.Field,
				Before:       before,
				After:        corr.AfterValue,
				Decision:     DecisionApprove,
			}

		case DecisionReject:
			annotated := corr.Reason
			if adminReason != "" {
				annotated += "\n[rejected] " + adminReason
			}
			if err := st.SetCorrectionResolved(ctx, id, ApprovalRejected, by, now, annotated); err != nil {
				return err
			}
			resolved.ApprovalStatus = ApprovalRejected
			resolved.Reason = annotated
			delta = CorrectionDelta{
				CorrectionID: id,
				Field:        corr.Field,
				Before:       before,
				After:        before,
				Decision:     DecisionReject,
			}
		}

		if err := st.AppendLog(ctx, s.logEntry(actor, corr.RecordID, delta, adminReason)); err != nil {
			return err
		}
		out = &resolved
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

// PendingCorrections lists corrections awaiting an admin decision.
func (s *ApprovalService) PendingCorrections(ctx context.Context) ([]TimeCorrection, error) {
	return s.store.PendingCorrections(ctx)
}

func (s *ApprovalService) logEntry(actor Actor, id RecordID, delta Delta, reason string) *OperationLog {
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
