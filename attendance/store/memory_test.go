package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

func seedRecord(t *testing.T, mem *store.Memory, id, employee string) *attendance.AttendanceRecord {
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
	require.NoError(t, mem.CreateRecord(context.Background(), rec))
	return rec
}

func TestMemory_WithTx_RollsBackOnError(t *testing.T) {
	// GIVEN: A transaction that creates a record and appends a log
	// WHEN: The function fails afterwards
	// THEN: The snapshot restores; neither write is visible

	mem := store.NewMemory()
	ctx := context.Background()

	err := mem.WithTx(ctx, func(st attendance.Store) error {
		if err := st.CreateRecord(ctx, &attendance.AttendanceRecord{
			ID: "rec-tx", EmployeeID: "alice", Day: "2026-03-10",
			CheckInTime: 1773136800, Status: attendance.StatusInProgress,
			ApprovalStatus: attendance.ApprovalPending, CreatedAt: 1773136800,
		}); err != nil {
			return err
		}
		if err := st.AppendLog(ctx, &attendance.OperationLog{
			ID: "log-tx", RecordID: "rec-tx", ActorID: "alice",
			Action: attendance.ActionCheckIn,
			Delta:  attendance.CheckInDelta{CheckInTime: 1773136800},
		}); err != nil {
			return err
		}
		return attendance.ErrConflict // force rollback
	})
	require.Error(t, err)

	_, err = mem.GetRecord(ctx, "rec-tx")
	assert.ErrorIs(t, err, attendance.ErrRecordNotFound)
	n, err := mem.CountLogs(ctx, "rec-tx", attendance.ActionCheckIn)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemory_ConditionalWrites_MirrorSQLSemantics(t *testing.T) {
	// GIVEN: A record already checked out
	// WHEN: A second conditional checkout or a premature approval lands
	// THEN: The precondition failure surfaces as ErrConflict, like the SQL store

	mem := store.NewMemory()
	ctx := context.Background()
	rec := seedRecord(t, mem, "rec-1", "alice")

	err := mem.SetApproved(ctx, rec.ID, "hr-one", 1773170000, "")
	assert.ErrorIs(t, err, attendance.ErrConflict, "in-progress records are not approvable")

	require.NoError(t, mem.SetCheckedOut(ctx, rec.ID, 1773165600, 480))
	err = mem.SetCheckedOut(ctx, rec.ID, 1773165700, 481)
	assert.ErrorIs(t, err, attendance.ErrConflict)

	got, err := mem.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 480, got.TotalWorkMinutes)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	// GIVEN: A stored record
	// WHEN: A caller mutates the returned value
	// THEN: The store's copy is unaffected

	mem := store.NewMemory()
	ctx := context.Background()
	rec := seedRecord(t, mem, "rec-1", "alice")

	got, err := mem.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	got.TotalWorkMinutes = 999

	again, err := mem.GetRecord(ctx, rec.ID)
	require.NoError(t, err)
	assert.Zero(t, again.TotalWorkMinutes)
}

func TestMemory_DuplicateDay(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	first := seedRecord(t, mem, "rec-1", "alice")

	second := *first
	second.ID = "rec-2"
	err := mem.CreateRecord(ctx, &second)

	var dup *attendance.DuplicateRecordError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
}
