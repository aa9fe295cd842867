package attendance

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// TIME ARITHMETIC - Pure helpers over epoch seconds
// =============================================================================
// Internally everything is whole seconds. Display values are derived:
// minutes floor to the nearest integer, hours round to two decimals.

// SecondsBetween returns to-from. Callers decide how to treat negatives;
// the ledger never produces them for a sorted stream.
func SecondsBetween(from, to int64) int64 { return to - from }

// MinutesFloor converts seconds to whole minutes, discarding the remainder.
func MinutesFloor(seconds int64) int {
	if seconds <= 0 {
		return 0
	}
	return int(seconds / 60)
}

// HoursDisplay converts seconds to hours with two-decimal precision for
// report surfaces. Arithmetic stays integral until this final conversion.
func HoursDisplay(seconds int64) decimal.Decimal {
	return decimal.NewFromInt(seconds).Div(decimal.NewFromInt(3600)).Round(2)
}

// =============================================================================
// CLOCK - Injection seam for "now"
// =============================================================================

// Clock supplies the current instant in epoch seconds. Services take a
// Clock so the cancellation window and live-elapsed figures are testable.
type Clock interface {
	Now() int64
}

type systemClock struct{}

func (systemClock) Now() int64 { return time.Now().Unix() }

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// FixedClock is a Clock pinned to a settable instant.
type FixedClock struct {
	Instant int64
}

func (c *FixedClock) Now() int64 { return c.Instant }

// Advance moves the clock forward by d seconds.
func (c *FixedClock) Advance(d int64) { c.Instant += d }
