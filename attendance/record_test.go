package attendance_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

const dayStart = int64(1773100800) // 2026-03-10 00:00:00 UTC

func newTestService(t *testing.T) (*attendance.Service, *attendance.FixedClock, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	clock := &attendance.FixedClock{Instant: dayStart}
	return attendance.NewService(mem, clock), clock, mem
}

func employee(id string) attendance.Actor {
	return attendance.Actor{
		EmployeeID: attendance.EmployeeID(id),
		IPAddress:  "10.0.0.1",
		UserAgent:  "test-agent",
	}
}

func admin(id string) attendance.Actor {
	a := employee(id)
	a.Admin = true
	return a
}

func checkIn(t *testing.T, svc *attendance.Service, actor attendance.Actor) *attendance.AttendanceRecord {
	t.Helper()
	rec, err := svc.CheckIn(context.Background(), actor, "")
	require.NoError(t, err)
	return rec
}

func countAction(t *testing.T, svc *attendance.Service, id attendance.RecordID, action attendance.Action) int {
	t.Helper()
	logs, err := svc.Logs(context.Background(), id)
	require.NoError(t, err)
	n := 0
	for _, l := range logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

// =============================================================================
// CHECK-IN TESTS
// =============================================================================

func TestCheckIn_CreatesRecordEventAndLog(t *testing.T) {
	// GIVEN: No record for today
	// WHEN: The employee checks in
	// THEN: Record opens in progress with a WORK event and a CHECK_IN entry

	svc, _, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)

	assert.Equal(t, attendance.Day("2026-03-10"), rec.Day)
	assert.Equal(t, dayStart, rec.CheckInTime)
	assert.Equal(t, attendance.StatusInProgress, rec.Status)
	assert.Equal(t, attendance.ApprovalPending, rec.ApprovalStatus)
	assert.Nil(t, rec.CheckOutTime)

	events, err := svc.Events(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, attendance.EventWork, events[0].Type)
	assert.Equal(t, dayStart, events[0].Timestamp)

	logs, err := svc.Logs(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, attendance.ActionCheckIn, logs[0].Action)
	assert.Equal(t, "alice", logs[0].ActorID)
	assert.Equal(t, "10.0.0.1", logs[0].IPAddress)
}

func TestCheckIn_SameDayTwice_Rejected(t *testing.T) {
	// GIVEN: Alice already checked in today
	// WHEN: She checks in again
	// THEN: DuplicateRecordError naming the existing record; nothing written

	svc, _, _ := newTestService(t)
	alice := employee("alice")

	first := checkIn(t, svc, alice)

	_, err := svc.CheckIn(context.Background(), alice, "")
	assert.Error(t, err)

	var dup *attendance.DuplicateRecordError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
	assert.True(t, attendance.IsInvalidState(err))

	assert.Equal(t, 1, countAction(t, svc, first.ID, attendance.ActionCheckIn),
		"failed attempt must not log")
}

func TestCheckIn_DifferentEmployeesSameDay(t *testing.T) {
	svc, _, _ := newTestService(t)

	a := checkIn(t, svc, employee("alice"))
	b := checkIn(t, svc, employee("bob"))

	assert.NotEqual(t, a.ID, b.ID)
}

func TestCheckIn_InvalidDay_Rejected(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CheckIn(context.Background(), employee("alice"), "10-03-2026")
	assert.ErrorIs(t, err, attendance.ErrInvalidDay)
}

// =============================================================================
// CHECK-OUT TESTS
// =============================================================================

func TestCheckOut_SettlesWorkMinutes(t *testing.T) {
	// GIVEN: Check in, work an hour, rest five minutes, work half an hour
	// WHEN: Checking out
	// THEN: TotalWorkMinutes = floor(elapsed/60) - floor(rest/60) = 95-5 = 90

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)

	clock.Advance(3600)
	require.NoError(t, svc.StartRest(ctx, alice, rec.ID))
	clock.Advance(300)
	require.NoError(t, svc.ResumeWork(ctx, alice, rec.ID))
	clock.Advance(1800)

	out, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	assert.Equal(t, 90, out.TotalWorkMinutes)
	assert.Equal(t, attendance.StatusCompleted, out.Status)
	require.NotNil(t, out.CheckOutTime)
	assert.Equal(t, dayStart+5700, *out.CheckOutTime)

	// The END event lands in the stream and the rest span is closed.
	events, err := svc.Events(ctx, rec.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, attendance.EventEnd, last.Type)
	for _, e := range events {
		if e.Type == attendance.EventRest {
			assert.NotNil(t, e.EndTimestamp, "checkout must close open rests")
		}
	}
}

func TestCheckOut_OpenRestAtCheckout_Closed(t *testing.T) {
	// GIVEN: The employee checks out while still resting
	// WHEN: Settling
	// THEN: The rest span closes at checkout time and counts against work

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)
	require.NoError(t, svc.StartRest(ctx, alice, rec.ID))
	clock.Advance(600)

	out, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	// elapsed 4200s = 70min, rest 600s = 10min
	assert.Equal(t, 60, out.TotalWorkMinutes)
}

func TestCheckOut_Twice_Rejected(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)

	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	before := countAction(t, svc, rec.ID, attendance.ActionCheckOut)

	_, err = svc.CheckOut(ctx, alice, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedOut)
	assert.True(t, attendance.IsInvalidState(err))

	assert.Equal(t, before, countAction(t, svc, rec.ID, attendance.ActionCheckOut),
		"failed attempt must not log")
}

func TestCheckOut_FullRestDay_ClampsToZero(t *testing.T) {
	// GIVEN: A day spent entirely resting
	// WHEN: Checking out
	// THEN: Work minutes settle to zero, never negative

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	require.NoError(t, svc.StartRest(ctx, alice, rec.ID))
	clock.Advance(3600)

	out, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, out.TotalWorkMinutes)
}

func TestCheckOut_NotOwner_Forbidden(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec := checkIn(t, svc, employee("alice"))

	_, err := svc.CheckOut(context.Background(), employee("mallory"), rec.ID)
	assert.ErrorIs(t, err, attendance.ErrForbidden)
}

// =============================================================================
// CANCEL CHECK-OUT TESTS
// =============================================================================

func TestCancelCheckout_WithinWindow_Reopens(t *testing.T) {
	// GIVEN: A checkout 4 minutes ago
	// WHEN: Cancelling
	// THEN: The record reopens; the END event stays and a fresh WORK
	//       event resumes live counting

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)
	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	clock.Advance(240)
	out, err := svc.CancelCheckout(ctx, alice, rec.ID)
	require.NoError(t, err)

	assert.Nil(t, out.CheckOutTime)
	assert.Equal(t, 0, out.TotalWorkMinutes)
	assert.Equal(t, attendance.StatusInProgress, out.Status)

	events, err := svc.Events(ctx, rec.ID)
	require.NoError(t, err)
	var ends, reopens int
	for _, e := range events {
		switch {
		case e.Type == attendance.EventEnd:
			ends++
		case e.Type == attendance.EventWork && e.Timestamp == clock.Now():
			reopens++
		}
	}
	assert.Equal(t, 1, ends, "END is never deleted")
	assert.Equal(t, 1, reopens, "a fresh WORK event reopens the day")

	_, live, err := svc.Stats(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, live.Working)
}

func TestCancelCheckout_AtWindowBoundary_Allowed(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)
	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	clock.Advance(attendance.CancellationWindowSeconds) // exactly 300s
	_, err = svc.CancelCheckout(ctx, alice, rec.ID)
	assert.NoError(t, err, "the boundary second is inside the window")
}

func TestCancelCheckout_WindowExpired_Rejected(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)
	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	clock.Advance(attendance.CancellationWindowSeconds + 1)
	_, err = svc.CancelCheckout(ctx, alice, rec.ID)

	var winErr *attendance.CancellationWindowError
	require.ErrorAs(t, err, &winErr)
	assert.ErrorIs(t, err, attendance.ErrCancellationWindowExpired)
	assert.True(t, attendance.IsPolicyViolation(err))
}

func TestCancelCheckout_FourthAttempt_RejectedByLimit(t *testing.T) {
	// GIVEN: Three checkout/cancel cycles already on the record
	// WHEN: Cancelling a fourth checkout
	// THEN: The per-record limit rejects it even inside the window

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)

	for i := 0; i < attendance.CancellationLimit; i++ {
		clock.Advance(600)
		_, err := svc.CheckOut(ctx, alice, rec.ID)
		require.NoError(t, err)
		clock.Advance(60)
		_, err = svc.CancelCheckout(ctx, alice, rec.ID)
		require.NoError(t, err)
	}

	clock.Advance(600)
	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)
	clock.Advance(60)

	_, err = svc.CancelCheckout(ctx, alice, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrCancellationLimitReached)
	assert.Equal(t, attendance.CancellationLimit,
		countAction(t, svc, rec.ID, attendance.ActionCancelCheckout))
}

func TestCancelCheckout_NothingToCancel(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := employee("alice")

	rec := checkIn(t, svc, alice)

	_, err := svc.CancelCheckout(context.Background(), alice, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrNothingToCancel)
}

// =============================================================================
// REST / RESUME TESTS
// =============================================================================

func TestStartRest_AfterCheckout_Rejected(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)
	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	err = svc.StartRest(ctx, alice, rec.ID)
	assert.ErrorIs(t, err, attendance.ErrAlreadyCheckedOut)
}

func TestRestResume_AppendTimerLogs(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(600)
	require.NoError(t, svc.StartRest(ctx, alice, rec.ID))
	clock.Advance(300)
	require.NoError(t, svc.ResumeWork(ctx, alice, rec.ID))

	logs, err := svc.Logs(ctx, rec.ID)
	require.NoError(t, err)
	assert.Len(t, logs, 3, "check-in + rest + resume")
	// Newest first.
	assert.Equal(t, attendance.ActionEditStatus, logs[0].Action)
	assert.Equal(t, attendance.ActionEditStatus, logs[1].Action)
	assert.Equal(t, attendance.ActionCheckIn, logs[2].Action)
}

// =============================================================================
// MEMO TESTS
// =============================================================================

func TestUpdateMemo_WithinLimit(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	events, err := svc.Events(ctx, rec.ID)
	require.NoError(t, err)

	memo := strings.Repeat("x", attendance.MemoMaxChars)
	require.NoError(t, svc.UpdateMemo(ctx, alice, events[0].ID, memo))

	events, err = svc.Events(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, memo, events[0].Memo)
	assert.Equal(t, 1, countAction(t, svc, rec.ID, attendance.ActionMemoUpdate))
}

func TestUpdateMemo_TooLong_Rejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	events, err := svc.Events(ctx, rec.ID)
	require.NoError(t, err)

	memo := strings.Repeat("字", attendance.MemoMaxChars+1) // runes, not bytes
	err = svc.UpdateMemo(ctx, alice, events[0].ID, memo)

	assert.ErrorIs(t, err, attendance.ErrMemoTooLong)
	assert.True(t, attendance.IsPolicyViolation(err))
	assert.Equal(t, 0, countAction(t, svc, rec.ID, attendance.ActionMemoUpdate))
}

func TestUpdateMemo_MultibyteAtLimit_Allowed(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	events, err := svc.Events(ctx, rec.ID)
	require.NoError(t, err)

	memo := strings.Repeat("字", attendance.MemoMaxChars)
	assert.NoError(t, svc.UpdateMemo(ctx, alice, events[0].ID, memo))
}

// =============================================================================
// CORRECTION REQUEST TESTS
// =============================================================================

func TestRequestCorrection_SnapshotsBeforeValue(t *testing.T) {
	// GIVEN: A completed record with settled minutes
	// WHEN: Requesting a change to total_work_minutes
	// THEN: The correction captures the value the requester saw

	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")

	rec := checkIn(t, svc, alice)
	clock.Advance(3600)
	_, err := svc.CheckOut(ctx, alice, rec.ID)
	require.NoError(t, err)

	corr, err := svc.RequestCorrection(ctx, alice, rec.ID,
		attendance.FieldTotalWorkMinutes, "480", "forgot to log the offsite meeting")
	require.NoError(t, err)

	assert.Equal(t, "60", corr.BeforeValue)
	assert.Equal(t, "480", corr.AfterValue)
	assert.Equal(t, attendance.ApprovalPending, corr.ApprovalStatus)
	assert.Equal(t, attendance.EmployeeID("alice"), corr.RequestedBy)

	// Filing a correction is not yet a change; the trail stays clean.
	assert.Equal(t, 0, countAction(t, svc, rec.ID, attendance.ActionEditTime))
}

func TestRequestCorrection_ReasonTooShort(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := employee("alice")
	rec := checkIn(t, svc, alice)

	_, err := svc.RequestCorrection(context.Background(), alice, rec.ID,
		attendance.FieldNotes, "left early", "too short") // 9 runes
	assert.ErrorIs(t, err, attendance.ErrReasonTooShort)
}

func TestRequestCorrection_UnknownField(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := employee("alice")
	rec := checkIn(t, svc, alice)

	_, err := svc.RequestCorrection(context.Background(), alice, rec.ID,
		"approval_status", "approved", "self-approval would be nice")
	assert.ErrorIs(t, err, attendance.ErrUnknownField)
}

func TestRequestCorrection_NonNumericValueForNumericField(t *testing.T) {
	svc, _, _ := newTestService(t)
	alice := employee("alice")
	rec := checkIn(t, svc, alice)

	_, err := svc.RequestCorrection(context.Background(), alice, rec.ID,
		attendance.FieldCheckOutTime, "five o'clock", "checkout time is wrong today")
	assert.ErrorIs(t, err, attendance.ErrBadFieldValue)
}

func TestRequestCorrection_ThirdParty_Forbidden(t *testing.T) {
	svc, _, _ := newTestService(t)
	rec := checkIn(t, svc, employee("alice"))

	_, err := svc.RequestCorrection(context.Background(), employee("mallory"), rec.ID,
		attendance.FieldNotes, "whatever", "changing someone else's day")
	assert.ErrorIs(t, err, attendance.ErrForbidden)
}

func TestRequestCorrection_AdminOnBehalf_Allowed(t *testing.T) {
	svc, clock, _ := newTestService(t)
	ctx := context.Background()
	rec := checkIn(t, svc, employee("alice"))
	clock.Advance(3600)
	_, err := svc.CheckOut(ctx, employee("alice"), rec.ID)
	require.NoError(t, err)

	corr, err := svc.RequestCorrection(ctx, admin("hr-boss"), rec.ID,
		attendance.FieldNotes, "on-call handover", "employee asked HR to fix the note")
	require.NoError(t, err)
	assert.Equal(t, attendance.EmployeeID("hr-boss"), corr.RequestedBy)
}

func TestRequestCorrection_InProgressRecord_Rejected(t *testing.T) {
	// GIVEN: A record still being worked
	// WHEN: The owner files a correction against it
	// THEN: Filing fails; nothing final exists to correct yet

	svc, _, mem := newTestService(t)
	ctx := context.Background()
	alice := employee("alice")
	rec := checkIn(t, svc, alice)

	_, err := svc.RequestCorrection(ctx, alice, rec.ID,
		attendance.FieldTotalWorkMinutes, "480", "forgot to log the offsite meeting")
	assert.ErrorIs(t, err, attendance.ErrNotCompleted)
	assert.True(t, attendance.IsInvalidState(err))

	pending, err := mem.PendingCorrections(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}
