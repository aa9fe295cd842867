package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedRecord(t *testing.T, store *sqlite.Store, id, employee string) *attendance.AttendanceRecord {
	t.Helper()
	rec := &attendance.AttendanceRecord{
		ID:             attendance.RecordID(id),
		EmployeeID:     attendance.EmployeeID(employee),
		Day:            "2026-03-10",
		CheckInTime:    1773136800,
		Status:         attendance.StatusInProgress,
		ApprovalStatus: attendance.ApprovalPending,
		CreatedAt:      1773136800,
	}
	require.NoError(t, store.CreateRecord(context.Background(), rec))
	return rec
}

// =============================================================================
// RECORD TESTS
// =============================================================================

func TestSQLite_CreateRecord_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := seedRecord(t, store, "rec-1", "alice")

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	byDay, err := store.GetRecordByDay(ctx, "alice", "2026-03-10")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, byDay.ID)
}

func TestSQLite_CreateRecord_DuplicateDay(t *testing.T) {
	// GIVEN: Alice has a record for March 10
	// WHEN: Inserting a second record for the same (employee, day)
	// THEN: The UNIQUE index rejects it with the existing record named

	store := newTestStore(t)
	ctx := context.Background()

	first := seedRecord(t, store, "rec-1", "alice")

	second := *first
	second.ID = "rec-2"
	err := store.CreateRecord(ctx, &second)

	var dup *attendance.DuplicateRecordError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
}

func TestSQLite_GetRecord_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.GetRecord(context.Background(), "nope")
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

// =============================================================================
// CONDITIONAL WRITE (CAS) TESTS
// =============================================================================

func TestSQLite_SetCheckedOut_SecondWriteConflicts(t *testing.T) {
	// GIVEN: A record already checked out
	// WHEN: A second conditional checkout lands
	// THEN: Zero rows match the WHERE clause and the caller sees ErrConflict

	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	require.NoError(t, store.SetCheckedOut(ctx, rec.ID, 1773165600, 480))

	err := store.SetCheckedOut(ctx, rec.ID, 1773165700, 481)
	assert.ErrorIs(t, err, attendance.ErrConflict)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 480, got.TotalWorkMinutes, "the loser must not overwrite")
	assert.Equal(t, attendance.StatusCompleted, got.Status)
}

func TestSQLite_SetApproved_DoubleApprovalConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	require.NoError(t, store.SetCheckedOut(ctx, rec.ID, 1773165600, 480))
	require.NoError(t, store.SetApproved(ctx, rec.ID, "hr-one", 1773170000, ""))

	err := store.SetApproved(ctx, rec.ID, "hr-two", 1773170001, "")
	assert.ErrorIs(t, err, attendance.ErrConflict)

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "hr-one", got.ApprovedBy)
}

func TestSQLite_SetApproved_InProgressConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	err := store.SetApproved(ctx, rec.ID, "hr-one", 1773170000, "")
	assert.ErrorIs(t, err, attendance.ErrConflict, "in-progress records are not approvable")
}

func TestSQLite_ClearCheckout_ApprovedRecordConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	require.NoError(t, store.SetCheckedOut(ctx, rec.ID, 1773165600, 480))
	require.NoError(t, store.SetApproved(ctx, rec.ID, "hr-one", 1773170000, ""))

	err := store.ClearCheckout(ctx, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrConflict)
}

func TestSQLite_ConditionalUpdate_MissingRecordIsNotFound(t *testing.T) {
	store := newTestStore(t)

	err := store.SetCheckedOut(context.Background(), "nope", 1773165600, 480)
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

// =============================================================================
// EVENT TESTS
// =============================================================================

func TestSQLite_Events_OrderAndClose(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	for _, e := range []attendance.TimerEvent{
		{ID: "ev-1", RecordID: rec.ID, Type: attendance.EventWork, Timestamp: 1773136800},
		{ID: "ev-2", RecordID: rec.ID, Type: attendance.EventRest, Timestamp: 1773140400},
	} {
		e := e
		require.NoError(t, store.AppendEvent(ctx, &e))
	}

	n, err := store.CloseOpenRests(ctx, rec.ID, 1773140700)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events, err := store.EventsForRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, attendance.EventID("ev-1"), events[0].ID, "ascending by timestamp")
	require.NotNil(t, events[1].EndTimestamp)
	assert.Equal(t, int64(1773140700), *events[1].EndTimestamp)

	// Second close is a no-op.
	n, err = store.CloseOpenRests(ctx, rec.ID, 1773141000)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSQLite_AppendEvent_OrphanRejected(t *testing.T) {
	store := newTestStore(t)

	err := store.AppendEvent(context.Background(), &attendance.TimerEvent{
		ID: "ev-1", RecordID: "nope", Type: attendance.EventWork, Timestamp: 1773136800,
	})
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestSQLite_SetEventMemo_ApprovedRecordConflicts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	ev := &attendance.TimerEvent{ID: "ev-1", RecordID: rec.ID, Type: attendance.EventWork, Timestamp: 1773136800}
	require.NoError(t, store.AppendEvent(ctx, ev))

	require.NoError(t, store.SetEventMemo(ctx, ev.ID, "standup ran long"))

	require.NoError(t, store.SetCheckedOut(ctx, rec.ID, 1773165600, 480))
	require.NoError(t, store.SetApproved(ctx, rec.ID, "hr-one", 1773170000, ""))

	err := store.SetEventMemo(ctx, ev.ID, "late edit")
	assert.ErrorIs(t, err, attendance.ErrConflict)

	got, err := store.GetEvent(ctx, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "standup ran long", got.Memo)
}

// =============================================================================
// AUDIT TRAIL TESTS
// =============================================================================

func TestSQLite_Logs_DeltaRoundTripAndOrder(t *testing.T) {
	// GIVEN: Typed deltas written for several actions
	// WHEN: Reading the trail back
	// THEN: Entries come newest first with their concrete delta types intact

	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	out := int64(1773165600)
	entries := []*attendance.OperationLog{
		{
			ID: "log-1", RecordID: rec.ID, ActorID: "alice",
			Action:    attendance.ActionCheckIn,
			Delta:     attendance.CheckInDelta{CheckInTime: 1773136800},
			Timestamp: 1773136800,
		},
		{
			ID: "log-2", RecordID: rec.ID, ActorID: "alice",
			Action:    attendance.ActionCheckOut,
			Delta:     attendance.CheckOutDelta{NewCheckOutTime: out, NewWorkMinutes: 480},
			Timestamp: out,
		},
	}
	for _, e := range entries {
		require.NoError(t, store.AppendLog(ctx, e))
	}

	logs, err := store.LogsForRecord(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	assert.Equal(t, attendance.LogID("log-2"), logs[0].ID, "newest first")
	checkout, ok := logs[0].Delta.(attendance.CheckOutDelta)
	require.True(t, ok)
	assert.Equal(t, out, checkout.NewCheckOutTime)
	assert.Equal(t, 480, checkout.NewWorkMinutes)

	checkin, ok := logs[1].Delta.(attendance.CheckInDelta)
	require.True(t, ok)
	assert.Equal(t, int64(1773136800), checkin.CheckInTime)

	n, err := store.CountLogs(ctx, rec.ID, attendance.ActionCheckOut)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// TRANSACTION TESTS
// =============================================================================

func TestSQLite_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a record then fails
	// WHEN: The function returns an error
	// THEN: Nothing is visible afterwards

	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(st attendance.Store) error {
		if err := st.CreateRecord(ctx, &attendance.AttendanceRecord{
			ID: "rec-tx", EmployeeID: "alice", Day: "2026-03-10",
			CheckInTime: 1773136800, Status: attendance.StatusInProgress,
			ApprovalStatus: attendance.ApprovalPending, CreatedAt: 1773136800,
		}); err != nil {
			return err
		}
		return attendance.ErrConflict // force rollback
	})
	require.Error(t, err)

	_, err = store.GetRecord(ctx, "rec-tx")
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
}

func TestSQLite_WithTx_CommitsRecordAndLogTogether(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(st attendance.Store) error {
		if err := st.CreateRecord(ctx, &attendance.AttendanceRecord{
			ID: "rec-tx", EmployeeID: "alice", Day: "2026-03-10",
			CheckInTime: 1773136800, Status: attendance.StatusInProgress,
			ApprovalStatus: attendance.ApprovalPending, CreatedAt: 1773136800,
		}); err != nil {
			return err
		}
		return st.AppendLog(ctx, &attendance.OperationLog{
			ID: "log-tx", RecordID: "rec-tx", ActorID: "alice",
			Action:    attendance.ActionCheckIn,
			Delta:     attendance.CheckInDelta{CheckInTime: 1773136800},
			Timestamp: 1773136800,
		})
	})
	require.NoError(t, err)

	_, err = store.GetRecord(ctx, "rec-tx")
	require.NoError(t, err)
	n, err := store.CountLogs(ctx, "rec-tx", attendance.ActionCheckIn)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// =============================================================================
// CORRECTION TESTS
// =============================================================================

func TestSQLite_Corrections_ResolveOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	corr := &attendance.TimeCorrection{
		ID: "corr-1", RecordID: rec.ID,
		Field:          attendance.FieldNotes,
		BeforeValue:    "",
		AfterValue:     "remote day",
		ApprovalStatus: attendance.ApprovalPending,
		Reason:         "worked from home that day",
		RequestedBy:    "alice",
		CreatedAt:      1773136800,
	}
	require.NoError(t, store.CreateCorrection(ctx, corr))

	pending, err := store.PendingCorrections(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, store.SetCorrectionResolved(ctx, corr.ID,
		attendance.ApprovalApproved, "hr-one", 1773170000, corr.Reason))

	err = store.SetCorrectionResolved(ctx, corr.ID,
		attendance.ApprovalRejected, "hr-two", 1773170001, corr.Reason)
	assert.ErrorIs(t, err, attendance.ErrConflict)

	pending, err = store.PendingCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestSQLite_ApplyCorrection_WritesFieldAndStatus(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	rec := seedRecord(t, store, "rec-1", "alice")

	require.NoError(t, store.ApplyCorrection(ctx, rec.ID, attendance.FieldTotalWorkMinutes, "480"))

	got, err := store.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 480, got.TotalWorkMinutes)
	assert.Equal(t, attendance.StatusCorrected, got.Status)
}
