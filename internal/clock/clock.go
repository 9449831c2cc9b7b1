// Package clock implements the simulator's abstract time manager (spec C2).
// Ticks are not wall-clock time; the orchestrator advances by exactly one
// per call to tick().
package clock

// Clock derives tick/day arithmetic from a monotonic tick counter.
type Clock struct {
	currentTick int64
	ticksPerDay int64
}

// New constructs a Clock starting at tick 0.
func New(ticksPerDay int64) *Clock {
	return &Clock{ticksPerDay: ticksPerDay}
}

// CurrentTick is the monotonic tick counter.
func (c *Clock) CurrentTick() int64 { return c.currentTick }

// Advance increments the tick counter by exactly one.
func (c *Clock) Advance() { c.currentTick++ }

// Restore sets the tick counter directly, for checkpoint restore.
func (c *Clock) Restore(tick int64) { c.currentTick = tick }

// TicksPerDay is the configured day length.
func (c *Clock) TicksPerDay() int64 { return c.ticksPerDay }

// CurrentDay is current_tick / ticks_per_day.
func (c *Clock) CurrentDay() int64 {
	if c.ticksPerDay == 0 {
		return 0
	}
	return c.currentTick / c.ticksPerDay
}

// TickWithinDay is current_tick mod ticks_per_day.
func (c *Clock) TickWithinDay() int64 {
	if c.ticksPerDay == 0 {
		return 0
	}
	return c.currentTick % c.ticksPerDay
}

// IsLastTickOfDay reports tick_within_day == ticks_per_day-1.
func (c *Clock) IsLastTickOfDay() bool {
	return c.TickWithinDay() == c.ticksPerDay-1
}

// TicksUntilEOD is ticks_per_day - tick_within_day - 1.
func (c *Clock) TicksUntilEOD() int64 {
	return c.ticksPerDay - c.TickWithinDay() - 1
}

// DayProgressFraction is how far through the current day this tick is,
// in [0,1), used by the policy context's system.day_progress_fraction.
func (c *Clock) DayProgressFraction() float64 {
	if c.ticksPerDay == 0 {
		return 0
	}
	return float64(c.TickWithinDay()) / float64(c.ticksPerDay)
}

// CapDeadline implements spec §4.3's cap_deadline(arrival, raw): clamp to
// the episode end, optionally further clamp to end-of-day, with a floor of
// arrival+1 so a transaction arriving at the last tick of a day still gets
// a valid future deadline.
func (c *Clock) CapDeadline(arrivalTick, rawDeadline, episodeEndTick int64, capAtEOD bool) int64 {
	deadline := rawDeadline
	if deadline > episodeEndTick {
		deadline = episodeEndTick
	}
	if capAtEOD {
		day := arrivalTick / c.ticksPerDay
		eodTick := (day+1)*c.ticksPerDay - 1
		if deadline > eodTick {
			deadline = eodTick
		}
	}
	if deadline < arrivalTick+1 {
		deadline = arrivalTick + 1
	}
	return deadline
}
