package attendance_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/attendance-engine/attendance"
)

func TestMinutesFloor(t *testing.T) {
	assert.Equal(t, 0, attendance.MinutesFloor(0))
	assert.Equal(t, 0, attendance.MinutesFloor(59))
	assert.Equal(t, 1, attendance.MinutesFloor(60))
	assert.Equal(t, 1, attendance.MinutesFloor(119), "floors, never rounds")
	assert.Equal(t, 0, attendance.MinutesFloor(-300), "negatives clamp to zero")
}

func TestHoursDisplay(t *testing.T) {
	assert.Equal(t, "1.5", attendance.HoursDisplay(5400).String())
	assert.Equal(t, "0.08", attendance.HoursDisplay(300).String(), "rounds to two decimals")
	assert.Equal(t, "8", attendance.HoursDisplay(28800).String())
	assert.Equal(t, "0", attendance.HoursDisplay(0).String())
}

func TestSecondsBetween(t *testing.T) {
	assert.Equal(t, int64(300), attendance.SecondsBetween(1000, 1300))
	assert.Equal(t, int64(-300), attendance.SecondsBetween(1300, 1000), "signed; callers clamp")
}

func TestFixedClock(t *testing.T) {
	clock := &attendance.FixedClock{Instant: 1000}
	assert.Equal(t, int64(1000), clock.Now())

	clock.Advance(301)
	assert.Equal(t, int64(1301), clock.Now())
}

func TestDayOf(t *testing.T) {
	// 2026-03-10 12:34:56 UTC
	assert.Equal(t, attendance.Day("2026-03-10"), attendance.DayOf(1773146096))
	assert.True(t, attendance.Day("2026-03-10").Valid())
	assert.False(t, attendance.Day("03/10/2026").Valid())
	assert.False(t, attendance.Day("").Valid())
}
