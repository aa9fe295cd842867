/*
audit.go - Operation log and the typed audit deltas

PURPOSE:
  Every successful mutating operation across the engine appends exactly one
  OperationLog entry in the same transaction as the state change. Entries
  are never edited or deleted; they are the sole evidence trail for
  compliance review ("who changed what, when, from where").

DELTAS AS A TAGGED UNION:
  Each action kind carries its own delta type (CheckOutDelta, MemoDelta,
  ...) instead of a loose before/after map. The compiler then covers what
  every action logs, and a review UI can decode each entry by its action.

CRITICAL INVARIANTS:
  1. One entry per successful mutation, zero for failed preconditions.
  2. Append-only: no update, no delete.
  3. Written transactionally with the state change it describes.

SEE ALSO:
  - store.go: AuditTrail persistence contract
  - record.go, approval.go: The producers
*/
package attendance

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// ACTIONS
// =============================================================================

type Action string

const (
	ActionCheckIn           Action = "CHECK_IN"
	ActionCheckOut          Action = "CHECK_OUT"
	ActionCancelCheckout    Action = "CANCEL_CHECKOUT"
	ActionApproveAttendance Action = "APPROVE_ATTENDANCE"
	ActionRejectAttendance  Action = "REJECT_ATTENDANCE"
	ActionEditTime          Action = "EDIT_TIME"
	ActionEditStatus        Action = "EDIT_STATUS"
	ActionMemoUpdate        Action = "MEMO_UPDATE"
)

// =============================================================================
// OPERATION LOG
// =============================================================================

// OperationLog is one append-only audit entry.
type OperationLog struct {
	ID       LogID
	RecordID RecordID
	ActorID  string
	Action   Action

	// Delta is the action-specific before/after payload.
	Delta Delta

	IPAddress string
	UserAgent string
	Timestamp int64
	Reason    string // set where the operation itself carries a reason
}

// =============================================================================
// DELTAS - One concrete type per action kind
// =============================================================================

// Delta is the tagged union of audit payloads.
type Delta interface {
	DeltaAction() Action
}

// CheckInDelta records the creation of the day's record.
type CheckInDelta struct {
	CheckInTime int64 `json:"check_in_time"`
}

func (CheckInDelta) DeltaAction() Action { return ActionCheckIn }

// CheckOutDelta captures the before/after checkout time and settled minutes.
type CheckOutDelta struct {
	OldCheckOutTime *int64 `json:"old_check_out_time"`
	NewCheckOutTime int64  `json:"new_check_out_time"`
	OldWorkMinutes  int    `json:"old_work_minutes"`
	NewWorkMinutes  int    `json:"new_work_minutes"`
}

func (CheckOutDelta) DeltaAction() Action { return ActionCheckOut }

// CancelCheckoutDelta captures the checkout being undone.
type CancelCheckoutDelta struct {
	OldCheckOutTime int64 `json:"old_check_out_time"`
	OldWorkMinutes  int   `json:"old_work_minutes"`
}

func (CancelCheckoutDelta) DeltaAction() Action { return ActionCancelCheckout }

// ApproveDelta captures the pending-to-approved transition.
type ApproveDelta struct {
	ApprovedBy string `json:"approved_by"`
	ApprovedAt int64  `json:"approved_at"`
	Comment    string `json:"comment,omitempty"`
}

func (ApproveDelta) DeltaAction() Action { return ActionApproveAttendance }

// RejectDelta captures the pending-to-rejected transition. The reason is
// also duplicated into the log's own Reason field so the trail stands on
// its own.
type RejectDelta struct {
	Reason string `json:"reason"`
}

func (RejectDelta) DeltaAction() Action { return ActionRejectAttendance }

// CorrectionDelta captures the resolution of a time correction. On a
// rejection Before equals After: the record is provably untouched.
type CorrectionDelta struct {
	CorrectionID CorrectionID    `json:"correction_id"`
	Field        CorrectionField `json:"field"`
	Before       string          `json:"before"`
	After        string          `json:"after"`
	Decision     Decision        `json:"decision"`
}

func (CorrectionDelta) DeltaAction() Action { return ActionEditTime }

// TimerDelta captures a rest/resume transition on an in-progress day.
type TimerDelta struct {
	EventType EventType `json:"event_type"`
	At        int64     `json:"at"`
}

func (TimerDelta) DeltaAction() Action { return ActionEditStatus }

// MemoDelta captures an event memo edit.
type MemoDelta struct {
	EventID EventID `json:"event_id"`
	OldMemo string  `json:"old_memo"`
	NewMemo string  `json:"new_memo"`
}

func (MemoDelta) DeltaAction() Action { return ActionMemoUpdate }

// =============================================================================
// CODEC - Shared by the store implementations
// =============================================================================

// EncodeDelta serializes a delta for storage. The action column carries
// the tag; the payload is plain JSON.
func EncodeDelta(d Delta) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// DecodeDelta reconstructs the concrete delta type from its action tag.
func DecodeDelta(action Action, data []byte) (Delta, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var d Delta
	switch action {
	case ActionCheckIn:
		d = &CheckInDelta{}
	case ActionCheckOut:
		d = &CheckOutDelta{}
	case ActionCancelCheckout:
		d = &CancelCheckoutDelta{}
	case ActionApproveAttendance:
		d = &ApproveDelta{}
	case ActionRejectAttendance:
		d = &RejectDelta{}
	case ActionEditTime:
		d = &CorrectionDelta{}
	case ActionEditStatus:
		d = &TimerDelta{}
	case ActionMemoUpdate:
		d = &MemoDelta{}
	default:
		return nil, fmt.Errorf("unknown audit action %q", action)
	}

	if err := json.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("decode %s delta: %w", action, err)
	}
	return deref(d), nil
}

// deref returns the value type so decoded deltas compare equal to the
// originals appended by the services.
func deref(d Delta) Delta {
	switch v := d.(type) {
	case *CheckInDelta:
		return *v
	case *CheckOutDelta:
		return *v
	case *CancelCheckoutDelta:
		return *v
	case *ApproveDelta:
		return *v
	case *RejectDelta:
		return *v
	case *CorrectionDelta:
		return *v
	case *TimerDelta:
		return *v
	case *MemoDelta:
		return *v
	}
	return d
}
