/*
store.go - Persistence contract with conditional (CAS) writes

PURPOSE:
  Defines the interface between the domain services and the database.
  Different implementations back it with SQLite or in-memory storage.

CAS CONTRACT:
  Every state transition on a record or correction is a conditional write:
  the precondition is part of the statement (a WHERE clause, or the
  equivalent in-memory check), and a write that matches nothing because the
  precondition no longer holds fails with ErrConflict. Services still
  validate preconditions on their own read to produce the precise domain
  error; the conditional write is the authoritative guard that closes the
  read-then-write race (two concurrent approvals both observing pending).

APPEND-ONLY TABLES:
  Timer events and operation logs have no update or delete paths, with two
  narrow exceptions on events: closing an open rest span and editing a memo
  pre-approval. Both are conditional writes.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view. Services use
  it so the state change and its audit entry commit or roll back together.

SEE ALSO:
  - store/memory.go: In-memory implementation for tests/dev
  - store/sqlite (module root): Production SQLite implementation
*/
package attendance

import "context"

// =============================================================================
// STORE
// =============================================================================

// Store is the persistence contract for the attendance engine.
type Store interface {
	RecordStore
	EventStore
	CorrectionStore
	AuditTrail
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction rolls back, otherwise it commits.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// RECORDS
// =============================================================================

// RecordStore persists attendance records. The mutating methods are
// conditional: each names its precondition and fails with ErrConflict when
// the stored state no longer satisfies it, or with ErrRecordNotFound when
// the record is absent.
type RecordStore interface {
	// CreateRecord inserts a new record. Fails with DuplicateRecordError
	// when a record for the same (employee, day) already exists.
	CreateRecord(ctx context.Context, rec *AttendanceRecord) error

	GetRecord(ctx context.Context, id RecordID) (*AttendanceRecord, error)
	GetRecordByDay(ctx context.Context, employee EmployeeID, day Day) (*AttendanceRecord, error)
	ListRecords(ctx context.Context, employee EmployeeID) ([]AttendanceRecord, error)

	// SetCheckedOut settles the day. Precondition: not checked out.
	SetCheckedOut(ctx context.Context, id RecordID, at int64, workMinutes int) error

	// ClearCheckout reopens the day. Precondition: checked out, not approved.
	ClearCheckout(ctx context.Context, id RecordID) error

	// SetApproved finishes the approval. Precondition: approval pending and
	// the record is not in progress.
	SetApproved(ctx context.Context, id RecordID, by string, at int64, comment string) error

	// SetRejected finishes the rejection. Precondition: approval pending.
	SetRejected(ctx context.Context, id RecordID, reason string) error

	// ApplyCorrection writes an approved correction value to the named
	// field and marks the record corrected. This is the only write allowed
	// to touch an approved record.
	ApplyCorrection(ctx context.Context, id RecordID, field CorrectionField, value string) error
}

// =============================================================================
// EVENTS
// =============================================================================

// EventStore persists timer events. Events are append-only; the only
// mutations are closing an open rest span and editing a memo.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *TimerEvent) error
	GetEvent(ctx context.Context, id EventID) (*TimerEvent, error)

	// EventsForRecord returns the record's events ascending by timestamp.
	EventsForRecord(ctx context.Context, id RecordID) ([]TimerEvent, error)

	// CloseOpenRests closes every open rest event of the record at end.
	// Returns how many were closed; zero is not an error.
	CloseOpenRests(ctx context.Context, id RecordID, end int64) (int, error)

	// SetEventMemo edits a memo. Precondition: the owning record is not
	// approved.
	SetEventMemo(ctx context.Context, id EventID, memo string) error
}

// =============================================================================
// CORRECTIONS
// =============================================================================

// CorrectionStore persists time corrections. A correction is resolved at
// most once; resolution is a conditional write on pending status.
type CorrectionStore interface {
	CreateCorrection(ctx context.Context, c *TimeCorrection) error
	GetCorrection(ctx context.Context, id CorrectionID) (*TimeCorrection, error)
	PendingCorrections(ctx context.Context) ([]TimeCorrection, error)

	// SetCorrectionResolved moves a pending correction to its terminal
	// status. The reason replaces the stored text; the service passes the
	// concatenated value on rejection so the original request context is
	// preserved.
	SetCorrectionResolved(ctx context.Context, id CorrectionID, status ApprovalStatus, by string, at int64, reason string) error
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

// AuditTrail stores operation logs. Append-only, ordered retrieval
// descending by timestamp for review UIs.
type AuditTrail interface {
	AppendLog(ctx context.Context, entry *OperationLog) error
	LogsForRecord(ctx context.Context, id RecordID) ([]OperationLog, error)
	CountLogs(ctx context.Context, id RecordID, action Action) (int, error)
}
