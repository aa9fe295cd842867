/*
ledger.go - Derives work/rest statistics from the timer-event stream

PURPOSE:
  The timer ledger is the single source of truth for how long an employee
  worked and rested on a given day. It never stores derived values; it
  replays the ordered event stream in one linear pass.

ALGORITHM (events sorted ascending by timestamp):
  - WORK: closes an open rest span, opens a work span if none is open
  - REST: closes an open work span, opens a rest span if none is open
  - END:  closes whichever span is open (tolerating the malformed case
          where both are)

IDEMPOTENCE:
  Consecutive same-type events collapse: a second WORK while a work span
  is already open neither re-opens it nor increments the period count.
  This keeps the derivation stable under client retries and double-taps.

LIVE DAYS:
  A dangling open work span means "currently working". Live elapsed time
  is computed against a caller-supplied now and is never persisted; only
  an explicit END settles TotalWorkMinutes on the record.

SEE ALSO:
  - types.go: TimerEvent
  - record.go: Appends the events this ledger consumes
*/
package attendance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DAY STATS - Settled output of the linear pass
// =============================================================================

// DayStats aggregates the closed spans of one attendance day. All values
// are whole seconds internally; minutes floor and hours round only at the
// display accessors.
type DayStats struct {
	TotalWorkSeconds int64
	TotalRestSeconds int64
	WorkPeriods      int
	RestPeriods      int
}

func (s DayStats) WorkMinutes() int { return MinutesFloor(s.TotalWorkSeconds) }
func (s DayStats) RestMinutes() int { return MinutesFloor(s.TotalRestSeconds) }

func (s DayStats) WorkHours() decimal.Decimal { return HoursDisplay(s.TotalWorkSeconds) }
func (s DayStats) RestHours() decimal.Decimal { return HoursDisplay(s.TotalRestSeconds) }

// LiveStatus describes an in-progress day as of a given instant. The
// seconds fields include the ongoing open span; they are for display only.
type LiveStatus struct {
	Working bool
	Resting bool

	WorkSeconds int64 // settled work plus the ongoing work span
	RestSeconds int64 // settled rest plus the ongoing rest span
}

// =============================================================================
// COMPUTATION
// =============================================================================

// ComputeStats runs the single linear pass over the day's events and
// returns the settled statistics. Open spans contribute nothing; see
// ComputeLive for in-progress figures.
func ComputeStats(events []TimerEvent) DayStats {
	stats, _, _ := replay(events)
	return stats
}

// ComputeLive returns the settled statistics together with the live view
// as of now. Callers display the live figures; they must never be written
// back to the record.
func ComputeLive(events []TimerEvent, now int64) (DayStats, LiveStatus) {
	stats, openWork, openRest := replay(events)

	live := LiveStatus{
		WorkSeconds: stats.TotalWorkSeconds,
		RestSeconds: stats.TotalRestSeconds,
	}
	if openWork != nil {
		live.Working = true
		if d := SecondsBetween(*openWork, now); d > 0 {
			live.WorkSeconds += d
		}
	}
	if openRest != nil {
		live.Resting = true
		if d := SecondsBetween(*openRest, now); d > 0 {
			live.RestSeconds += d
		}
	}
	return stats, live
}

// ClosedRestSeconds sums every rest span with an explicit end timestamp.
// Check-out uses this to settle the day: rest that was never closed by the
// time of the END event has already been closed by the check-out flow.
func ClosedRestSeconds(events []TimerEvent) int64 {
	var total int64
	for i := range events {
		e := &events[i]
		if e.Type != EventRest || e.EndTimestamp == nil {
			continue
		}
		if d := SecondsBetween(e.Timestamp, *e.EndTimestamp); d > 0 {
			total += d
		}
	}
	return total
}

// replay is the linear pass. It returns the settled stats and the start of
// any still-open work/rest span.
func replay(events []TimerEvent) (stats DayStats, openWork, openRest *int64) {
	sorted := make([]TimerEvent, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp < sorted[j].Timestamp
	})

	for i := range sorted {
		e := &sorted[i]
		now := e.Timestamp

		switch e.Type {
		case EventWork:
			if openRest != nil {
				stats.TotalRestSeconds += positive(SecondsBetween(*openRest, now))
				openRest = nil
			}
			if openWork == nil {
				start := now
				openWork = &start
				stats.WorkPeriods++
			}

		case EventRest:
			if openWork != nil {
				stats.TotalWorkSeconds += positive(SecondsBetween(*openWork, now))
				openWork = nil
			}
			if openRest == nil {
				start := now
				openRest = &start
				stats.RestPeriods++
			}

		case EventEnd:
			// Both may be open only on malformed input; the closer
			// tolerates it and settles them at the same instant.
			if openWork != nil {
				stats.TotalWorkSeconds += positive(SecondsBetween(*openWork, now))
				openWork = nil
			}
			if openRest != nil {
				stats.TotalRestSeconds += positive(SecondsBetween(*openRest, now))
				openRest = nil
			}
		}
	}
	return stats, openWork, openRest
}

func positive(d int64) int64 {
	if d < 0 {
		return 0
	}
	return d
}
