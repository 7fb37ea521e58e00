// Package tick implements the shared logical clock: the wrapping 16-bit tick
// counter, the four timelines built on top of it, and the ping/pong
// RTT/jitter store that feeds the sync controller.
package tick

// Tick is a 16-bit wrapping counter advanced once per fixed-step schedule
// invocation. Comparisons use signed wrapping difference with a half-range
// window, so any two ticks whose true distance is < 2^15 compare correctly
// regardless of wraparound.
type Tick uint16

// WrappingDiff returns b-a as a signed difference under 16-bit wraparound:
// for any a, b whose true distance is < 2^15, the result equals the true
// b-a (property 6 in the testable-properties list).
func WrappingDiff(a, b Tick) int16 {
	return int16(b - a)
}

// Add returns t advanced by n ticks (n may be negative), wrapping as
// necessary.
func (t Tick) Add(n int32) Tick {
	return Tick(int32(t) + n)
}

// Before reports whether a comes strictly before b in wrapping order.
func Before(a, b Tick) bool {
	return WrappingDiff(a, b) > 0
}
