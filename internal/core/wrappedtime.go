package core

import "time"

// TickHz is the scheduler's tick frequency (spec.md §4.7: "typical 1 kHz").
const TickHz = 1000

// WrappedTime is a monotonic counter ticking at TickHz that wraps at 2^32,
// per spec.md §4.7/§9. All comparisons use signed-difference arithmetic with
// a 2^31 horizon: a delta at or beyond that horizon is "in the past".
type WrappedTime uint32

// Now converts a time.Duration-since-start into a WrappedTime tick count.
func Now(sinceStart time.Duration) WrappedTime {
	return WrappedTime(sinceStart.Milliseconds() * TickHz / 1000)
}

// Before reports whether w happened before other, using the horizon rule:
// a delta with its top bit set is treated as "in the past" (spec.md §9:
// "any computed delta >= 2^31 is treated as past").
func (w WrappedTime) Before(other WrappedTime) bool {
	return int32(w-other) < 0
}

// After reports whether w happened after other.
func (w WrappedTime) After(other WrappedTime) bool {
	return other.Before(w)
}

// Add advances w by the given number of ticks.
func (w WrappedTime) Add(ticks int32) WrappedTime {
	return WrappedTime(int32(w) + ticks)
}

// Sub returns the signed tick difference w-other under wrapped arithmetic;
// a true difference beyond the 2^31 horizon wraps around rather than
// saturating.
func (w WrappedTime) Sub(other WrappedTime) int32 {
	return int32(w - other)
}

// DurationToTicks rounds a duration up to the scheduler's tick resolution.
func DurationToTicks(d time.Duration) int32 {
	tick := time.Second / TickHz
	ticks := d / tick
	if d%tick > 0 {
		ticks++
	}
	return int32(ticks)
}

// TicksToDuration is the inverse of DurationToTicks.
func TicksToDuration(ticks int32) time.Duration {
	return time.Duration(ticks) * time.Second / TickHz
}
