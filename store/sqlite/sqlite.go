/*
Package sqlite provides a SQLite-backed implementation of the attendance
storage contract.

PURPOSE:
  Implements attendance.TxStore using SQLite. In production, the same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

CAS ENFORCEMENT:
  Every state transition is a conditional UPDATE whose WHERE clause carries
  the precondition. Zero rows affected means the precondition no longer
  held: the store re-reads to distinguish "row gone" (not found) from
  "state moved" (conflict). This closes the read-then-write race even when
  two callers validated the same precondition concurrently.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements on operation_logs, ever
  - timer_events allows exactly two mutations: closing open rest spans
    and pre-approval memo edits. Both are conditional.

KEY TABLES:
  attendance_records: One row per (employee, day), UNIQUE-enforced
  timer_events:       Append-only event stream per record
  operation_logs:     Immutable audit trail
  time_corrections:   Pending/resolved correction requests

CONCURRENCY:
  Uses sync.Mutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - attendance/store.go: Interface definitions
  - attendance/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/attendance-engine/attendance"
)

// Store implements attendance.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer connection. SQLite serializes writers anyway, and a single
	// conn keeps ":memory:" databases coherent across the pool.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS attendance_records (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		day TEXT NOT NULL,
		check_in_time INTEGER NOT NULL,
		check_out_time INTEGER,
		total_work_minutes INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		approval_status TEXT NOT NULL DEFAULT 'pending',
		approved_by TEXT NOT NULL DEFAULT '',
		approved_at INTEGER,
		approval_comment TEXT NOT NULL DEFAULT '',
		rejection_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	-- CRITICAL: one record per employee per calendar day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_records_employee_day
		ON attendance_records(employee_id, day);
	CREATE INDEX IF NOT EXISTS idx_records_approval_status
		ON attendance_records(approval_status);

	-- Append-only event stream; timestamp ordering is the sole source of
	-- truth for duration derivation
	CREATE TABLE IF NOT EXISTS timer_events (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES attendance_records(id),
		event_type TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		end_timestamp INTEGER,
		memo TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_events_record_time
		ON timer_events(record_id, timestamp);

	-- Immutable audit trail: no UPDATE, no DELETE, ever
	CREATE TABLE IF NOT EXISTS operation_logs (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		delta_json TEXT,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_logs_record_time
		ON operation_logs(record_id, timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_logs_record_action
		ON operation_logs(record_id, action);

	CREATE TABLE IF NOT EXISTS time_corrections (
		id TEXT PRIMARY KEY,
		record_id TEXT NOT NULL REFERENCES attendance_records(id),
		field_name TEXT NOT NULL,
		before_value TEXT NOT NULL DEFAULT '',
		after_value TEXT NOT NULL DEFAULT '',
		approval_status TEXT NOT NULL DEFAULT 'pending',
		reason TEXT NOT NULL DEFAULT '',
		requested_by TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		resolved_by TEXT NOT NULL DEFAULT '',
		resolved_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_corrections_status
		ON time_corrections(approval_status);
	CREATE INDEX IF NOT EXISTS idx_corrections_record
		ON time_corrections(record_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is satisfied by both *sql.DB and *sql.Tx so the unexported helpers
// run inside and outside transactions without re-locking.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

// =============================================================================
// RECORDS
// =============================================================================

func (s *Store) CreateRecord(ctx context.Context, rec *attendance.AttendanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createRecord(ctx, s.db, rec)
}

func createRecord(ctx context.Context, db dbtx, rec *attendance.AttendanceRecord) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO attendance_records
		(id, employee_id, day, check_in_time, check_out_time, total_work_minutes,
		 status, approval_status, approved_by, approved_at, approval_comment,
		 rejection_reason, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.EmployeeID, rec.Day, rec.CheckInTime, rec.CheckOutTime,
		rec.TotalWorkMinutes, rec.Status, rec.ApprovalStatus, rec.ApprovedBy,
		rec.ApprovedAt, rec.ApprovalComment, rec.RejectionReason, rec.Notes,
		rec.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			dup := &attendance.DuplicateRecordError{EmployeeID: rec.EmployeeID, Day: rec.Day}
			if existing, lookupErr := getRecordByDay(ctx, db, rec.EmployeeID, rec.Day); lookupErr == nil {
				dup.ExistingID = existing.ID
			}
			return dup
		}
		return fmt.Errorf("failed to create record: %w", err)
	}
	return nil
}

const recordColumns = `id, employee_id, day, check_in_time, check_out_time,
	total_work_minutes, status, approval_status, approved_by, approved_at,
	approval_comment, rejection_reason, notes, created_at`

func (s *Store) GetRecord(ctx context.Context, id attendance.RecordID) (*attendance.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getRecord(ctx, s.db, id)
}

func getRecord(ctx context.Context, db dbtx, id attendance.RecordID) (*attendance.AttendanceRecord, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE id = ?", id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

func (s *Store) GetRecordByDay(ctx context.Context, employee attendance.EmployeeID, day attendance.Day) (*attendance.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getRecordByDay(ctx, s.db, employee, day)
}

func getRecordByDay(ctx context.Context, db dbtx, employee attendance.EmployeeID, day attendance.Day) (*attendance.AttendanceRecord, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE employee_id = ? AND day = ?",
		employee, day)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan record: %w", err)
	}
	return rec, nil
}

func (s *Store) ListRecords(ctx context.Context, employee attendance.EmployeeID) ([]attendance.AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listRecords(ctx, s.db, employee)
}

func listRecords(ctx context.Context, db dbtx, employee attendance.EmployeeID) ([]attendance.AttendanceRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM attendance_records WHERE employee_id = ? ORDER BY day ASC",
		employee)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	defer rows.Close()

	var out []attendance.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(sc rowScanner) (*attendance.AttendanceRecord, error) {
	var (
		rec        attendance.AttendanceRecord
		checkOut   sql.NullInt64
		approvedAt sql.NullInt64
	)
	err := sc.Scan(
		&rec.ID, &rec.EmployeeID, &rec.Day, &rec.CheckInTime, &checkOut,
		&rec.TotalWorkMinutes, &rec.Status, &rec.ApprovalStatus, &rec.ApprovedBy,
		&approvedAt, &rec.ApprovalComment, &rec.RejectionReason, &rec.Notes,
		&rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if checkOut.Valid {
		v := checkOut.Int64
		rec.CheckOutTime = &v
	}
	if approvedAt.Valid {
		v := approvedAt.Int64
		rec.ApprovedAt = &v
	}
	return &rec, nil
}

// conditionalRecordUpdate runs a CAS-style UPDATE and resolves a zero-row
// result into not-found vs conflict.
func conditionalRecordUpdate(ctx context.Context, db dbtx, id attendance.RecordID, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := getRecord(ctx, db, id); err != nil {
		return err
	}
	return attendance.ErrConflict
}

func (s *Store) SetCheckedOut(ctx context.Context, id attendance.RecordID, at int64, workMinutes int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setCheckedOut(ctx, s.db, id, at, workMinutes)
}

func setCheckedOut(ctx context.Context, db dbtx, id attendance.RecordID, at int64, workMinutes int) error {
	return conditionalRecordUpdate(ctx, db, id, `
		UPDATE attendance_records
		SET check_out_time = ?, total_work_minutes = ?, status = ?
		WHERE id = ? AND check_out_time IS NULL`,
		at, workMinutes, attendance.StatusCompleted, id)
}

func (s *Store) ClearCheckout(ctx context.Context, id attendance.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clearCheckout(ctx, s.db, id)
}

func clearCheckout(ctx context.Context, db dbtx, id attendance.RecordID) error {
	return conditionalRecordUpdate(ctx, db, id, `
		UPDATE attendance_records
		SET check_out_time = NULL, total_work_minutes = 0, status = ?
		WHERE id = ? AND check_out_time IS NOT NULL AND approval_status != ?`,
		attendance.StatusInProgress, id, attendance.ApprovalApproved)
}

func (s *Store) SetApproved(ctx context.Context, id attendance.RecordID, by string, at int64, comment string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setApproved(ctx, s.db, id, by, at, comment)
}

func setApproved(ctx context.Context, db dbtx, id attendance.RecordID, by string, at int64, comment string) error {
	return conditionalRecordUpdate(ctx, db, id, `
		UPDATE attendance_records
		SET approval_status = ?, approved_by = ?, approved_at = ?, approval_comment = ?
		WHERE id = ? AND approval_status = ? AND status != ?`,
		attendance.ApprovalApproved, by, at, comment,
		id, attendance.ApprovalPending, attendance.StatusInProgress)
}

func (s *Store) SetRejected(ctx context.Context, id attendance.RecordID, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setRejected(ctx, s.db, id, reason)
}

func setRejected(ctx context.Context, db dbtx, id attendance.RecordID, reason string) error {
	return conditionalRecordUpdate(ctx, db, id, `
		UPDATE attendance_records
		SET approval_status = ?, rejection_reason = ?
		WHERE id = ? AND approval_status = ?`,
		attendance.ApprovalRejected, reason, id, attendance.ApprovalPending)
}

func (s *Store) ApplyCorrection(ctx context.Context, id attendance.RecordID, field attendance.CorrectionField, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return applyCorrection(ctx, s.db, id, field, value)
}

func applyCorrection(ctx context.Context, db dbtx, id attendance.RecordID, field attendance.CorrectionField, value string) error {
	var column string
	var arg any

	switch field {
	case attendance.FieldCheckInTime, attendance.FieldCheckOutTime, attendance.FieldTotalWorkMinutes:
		v, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return attendance.ErrBadFieldValue
		}
		column, arg = string(field), v
	case attendance.FieldNotes:
		column, arg = "notes", value
	default:
		return attendance.ErrUnknownField
	}

	// Column name comes from the validated enum above, never from input.
	return conditionalRecordUpdate(ctx, db, id, `
		UPDATE attendance_records
		SET `+column+` = ?, status = ?
		WHERE id = ?`,
		arg, attendance.StatusCorrected, id)
}

// =============================================================================
// EVENTS
// =============================================================================

const eventColumns = `id, record_id, event_type, timestamp, end_timestamp, memo, notes`

func (s *Store) AppendEvent(ctx context.Context, ev *attendance.TimerEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvent(ctx, s.db, ev)
}

func appendEvent(ctx context.Context, db dbtx, ev *attendance.TimerEvent) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO timer_events (id, record_id, event_type, timestamp, end_timestamp, memo, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.RecordID, ev.Type, ev.Timestamp, ev.EndTimestamp, ev.Memo, ev.Notes,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return attendance.ErrRecordNotFound
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, id attendance.EventID) (*attendance.TimerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getEvent(ctx, s.db, id)
}

func getEvent(ctx context.Context, db dbtx, id attendance.EventID) (*attendance.TimerEvent, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM timer_events WHERE id = ?", id)

	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan event: %w", err)
	}
	return ev, nil
}

func scanEvent(sc rowScanner) (*attendance.TimerEvent, error) {
	var (
		ev  attendance.TimerEvent
		end sql.NullInt64
	)
	err := sc.Scan(&ev.ID, &ev.RecordID, &ev.Type, &ev.Timestamp, &end, &ev.Memo, &ev.Notes)
	if err != nil {
		return nil, err
	}
	if end.Valid {
		v := end.Int64
		ev.EndTimestamp = &v
	}
	return &ev, nil
}

func (s *Store) EventsForRecord(ctx context.Context, id attendance.RecordID) ([]attendance.TimerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return eventsForRecord(ctx, s.db, id)
}

func eventsForRecord(ctx context.Context, db dbtx, id attendance.RecordID) ([]attendance.TimerEvent, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM timer_events WHERE record_id = ? ORDER BY timestamp ASC, rowid ASC",
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []attendance.TimerEvent
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}

func (s *Store) CloseOpenRests(ctx context.Context, id attendance.RecordID, end int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return closeOpenRests(ctx, s.db, id, end)
}

func closeOpenRests(ctx context.Context, db dbtx, id attendance.RecordID, end int64) (int, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE timer_events
		SET end_timestamp = ?
		WHERE record_id = ? AND event_type = ? AND end_timestamp IS NULL`,
		end, id, attendance.EventRest)
	if err != nil {
		return 0, fmt.Errorf("failed to close rest events: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) SetEventMemo(ctx context.Context, id attendance.EventID, memo string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setEventMemo(ctx, s.db, id, memo)
}

func setEventMemo(ctx context.Context, db dbtx, id attendance.EventID, memo string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE timer_events
		SET memo = ?
		WHERE id = ? AND (
			SELECT approval_status FROM attendance_records
			WHERE id = timer_events.record_id
		) != ?`,
		memo, id, attendance.ApprovalApproved)
	if err != nil {
		return fmt.Errorf("failed to update memo: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := getEvent(ctx, db, id); err != nil {
		return err
	}
	return attendance.ErrConflict
}

// =============================================================================
// CORRECTIONS
// =============================================================================

const correctionColumns = `id, record_id, field_name, before_value, after_value,
	approval_status, reason, requested_by, created_at, resolved_by, resolved_at`

func (s *Store) CreateCorrection(ctx context.Context, c *attendance.TimeCorrection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return createCorrection(ctx, s.db, c)
}

func createCorrection(ctx context.Context, db dbtx, c *attendance.TimeCorrection) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO time_corrections
		(id, record_id, field_name, before_value, after_value, approval_status,
		 reason, requested_by, created_at, resolved_by, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.RecordID, c.Field, c.BeforeValue, c.AfterValue, c.ApprovalStatus,
		c.Reason, c.RequestedBy, c.CreatedAt, c.ResolvedBy, c.ResolvedAt,
	)
	if err != nil {
		if isForeignKeyError(err) {
			return attendance.ErrRecordNotFound
		}
		return fmt.Errorf("failed to create correction: %w", err)
	}
	return nil
}

func (s *Store) GetCorrection(ctx context.Context, id attendance.CorrectionID) (*attendance.TimeCorrection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getCorrection(ctx, s.db, id)
}

func getCorrection(ctx context.Context, db dbtx, id attendance.CorrectionID) (*attendance.TimeCorrection, error) {
	row := db.QueryRowContext(ctx,
		"SELECT "+correctionColumns+" FROM time_corrections WHERE id = ?", id)

	c, err := scanCorrection(row)
	if err == sql.ErrNoRows {
		return nil, attendance.ErrCorrectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan correction: %w", err)
	}
	return c, nil
}

func scanCorrection(sc rowScanner) (*attendance.TimeCorrection, error) {
	var (
		c          attendance.TimeCorrection
		resolvedAt sql.NullInt64
	)
	err := sc.Scan(
		&c.ID, &c.RecordID, &c.Field, &c.BeforeValue, &c.AfterValue,
		&c.ApprovalStatus, &c.Reason, &c.RequestedBy, &c.CreatedAt,
		&c.ResolvedBy, &resolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if resolvedAt.Valid {
		v := resolvedAt.Int64
		c.ResolvedAt = &v
	}
	return &c, nil
}

func (s *Store) PendingCorrections(ctx context.Context) ([]attendance.TimeCorrection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pendingCorrections(ctx, s.db)
}

func pendingCorrections(ctx context.Context, db dbtx) ([]attendance.TimeCorrection, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT "+correctionColumns+" FROM time_corrections WHERE approval_status = ? ORDER BY created_at ASC",
		attendance.ApprovalPending)
	if err != nil {
		return nil, fmt.Errorf("failed to query corrections: %w", err)
	}
	defer rows.Close()

	var out []attendance.TimeCorrection
	for rows.Next() {
		c, err := scanCorrection(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan correction: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (s *Store) SetCorrectionResolved(ctx context.Context, id attendance.CorrectionID, status attendance.ApprovalStatus, by string, at int64, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return setCorrectionResolved(ctx, s.db, id, status, by, at, reason)
}

func setCorrectionResolved(ctx context.Context, db dbtx, id attendance.CorrectionID, status attendance.ApprovalStatus, by string, at int64, reason string) error {
	res, err := db.ExecContext(ctx, `
		UPDATE time_corrections
		SET approval_status = ?, resolved_by = ?, resolved_at = ?, reason = ?
		WHERE id = ? AND approval_status = ?`,
		status, by, at, reason, id, attendance.ApprovalPending)
	if err != nil {
		return fmt.Errorf("failed to resolve correction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := getCorrection(ctx, db, id); err != nil {
		return err
	}
	return attendance.ErrConflict
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func (s *Store) AppendLog(ctx context.Context, entry *attendance.OperationLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendLog(ctx, s.db, entry)
}

func appendLog(ctx context.Context, db dbtx, entry *attendance.OperationLog) error {
	delta, err := attendance.EncodeDelta(entry.Delta)
	if err != nil {
		return fmt.Errorf("failed to encode delta: %w", err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO operation_logs
		(id, record_id, actor_id, action, delta_json, ip_address, user_agent, timestamp, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RecordID, entry.ActorID, entry.Action, nullString(delta),
		entry.IPAddress, entry.UserAgent, entry.Timestamp, entry.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

func (s *Store) LogsForRecord(ctx context.Context, id attendance.RecordID) ([]attendance.OperationLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return logsForRecord(ctx, s.db, id)
}

func logsForRecord(ctx context.Context, db dbtx, id attendance.RecordID) ([]attendance.OperationLog, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, record_id, actor_id, action, delta_json, ip_address, user_agent, timestamp, reason
		FROM operation_logs
		WHERE record_id = ?
		ORDER BY timestamp DESC, rowid DESC`,
		id)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	var out []attendance.OperationLog
	for rows.Next() {
		var (
			entry attendance.OperationLog
			delta sql.NullString
		)
		err := rows.Scan(
			&entry.ID, &entry.RecordID, &entry.ActorID, &entry.Action, &delta,
			&entry.IPAddress, &entry.UserAgent, &entry.Timestamp, &entry.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		if delta.Valid && delta.String != "" {
			d, err := attendance.DecodeDelta(entry.Action, []byte(delta.String))
			if err != nil {
				return nil, fmt.Errorf("failed to decode delta: %w", err)
			}
			entry.Delta = d
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) CountLogs(ctx context.Context, id attendance.RecordID, action attendance.Action) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return countLogs(ctx, s.db, id, action)
}

func countLogs(ctx context.Context, db dbtx, id attendance.RecordID, action attendance.Action) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM operation_logs WHERE record_id = ? AND action = ?",
		id, action,
	).Scan(&n)
	return n, err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx executes fn within a database transaction. The store lock is held
// for the duration so transactional reads observe a stable state.
func (s *Store) WithTx(ctx context.Context, fn func(attendance.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore routes every call through the transaction handle. No locking:
// the parent holds the store lock for the whole WithTx.
type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) CreateRecord(ctx context.Context, rec *attendance.AttendanceRecord) error {
	return createRecord(ctx, ts.tx, rec)
}

func (ts *txStore) GetRecord(ctx context.Context, id attendance.RecordID) (*attendance.AttendanceRecord, error) {
	return getRecord(ctx, ts.tx, id)
}

func (ts *txStore) GetRecordByDay(ctx context.Context, employee attendance.EmployeeID, day attendance.Day) (*attendance.AttendanceRecord, error) {
	return getRecordByDay(ctx, ts.tx, employee, day)
}

func (ts *txStore) ListRecords(ctx context.Context, employee attendance.EmployeeID) ([]attendance.AttendanceRecord, error) {
	return listRecords(ctx, ts.tx, employee)
}

func (ts *txStore) SetCheckedOut(ctx context.Context, id attendance.RecordID, at int64, workMinutes int) error {
	return setCheckedOut(ctx, ts.tx, id, at, workMinutes)
}

func (ts *txStore) ClearCheckout(ctx context.Context, id attendance.RecordID) error {
	return clearCheckout(ctx, ts.tx, id)
}

func (ts *txStore) SetApproved(ctx context.Context, id attendance.RecordID, by string, at int64, comment string) error {
	return setApproved(ctx, ts.tx, id, by, at, comment)
}

func (ts *txStore) SetRejected(ctx context.Context, id attendance.RecordID, reason string) error {
	return setRejected(ctx, ts.tx, id, reason)
}

func (ts *txStore) ApplyCorrection(ctx context.Context, id attendance.RecordID, field attendance.CorrectionField, value string) error {
	return applyCorrection(ctx, ts.tx, id, field, value)
}

func (ts *txStore) AppendEvent(ctx context.Context, ev *attendance.TimerEvent) error {
	return appendEvent(ctx, ts.tx, ev)
}

func (ts *txStore) GetEvent(ctx context.Context, id attendance.EventID) (*attendance.TimerEvent, error) {
	return getEvent(ctx, ts.tx, id)
}

func (ts *txStore) EventsForRecord(ctx context.Context, id attendance.RecordID) ([]attendance.TimerEvent, error) {
	return eventsForRecord(ctx, ts.tx, id)
}

func (ts *txStore) CloseOpenRests(ctx context.Context, id attendance.RecordID, end int64) (int, error) {
	return closeOpenRests(ctx, ts.tx, id, end)
}

func (ts *txStore) SetEventMemo(ctx context.Context, id attendance.EventID, memo string) error {
	return setEventMemo(ctx, ts.tx, id, memo)
}

func (ts *txStore) CreateCorrection(ctx context.Context, c *attendance.TimeCorrection) error {
	return createCorrection(ctx, ts.tx, c)
}

func (ts *txStore) GetCorrection(ctx context.Context, id attendance.CorrectionID) (*attendance.TimeCorrection, error) {
	return getCorrection(ctx, ts.tx, id)
}

func (ts *txStore) PendingCorrections(ctx context.Context) ([]attendance.TimeCorrection, error) {
	return pendingCorrections(ctx, ts.tx)
}

func (ts *txStore) SetCorrectionResolved(ctx context.Context, id attendance.CorrectionID, status attendance.ApprovalStatus, by string, at int64, reason string) error {
	return setCorrectionResolved(ctx, ts.tx, id, status, by, at, reason)
}

func (ts *txStore) AppendLog(ctx context.Context, entry *attendance.OperationLog) error {
	return appendLog(ctx, ts.tx, entry)
}

func (ts *txStore) LogsForRecord(ctx context.Context, id attendance.RecordID) ([]attendance.OperationLog, error) {
	return logsForRecord(ctx, ts.tx, id)
}

func (ts *txStore) CountLogs(ctx context.Context, id attendance.RecordID, action attendance.Action) (int, error) {
	return countLogs(ctx, ts.tx, id, action)
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
