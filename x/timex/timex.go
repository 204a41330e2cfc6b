package timex

import (
	"time"

	"obc-hal-go/x/mathx"
)

// MaxTimeout is the millisecond sentinel meaning "block forever".
const MaxTimeout uint32 = 0xFFFFFFFF

// Forever is the Duration form of MaxTimeout. Any negative duration
// is treated the same way.
const Forever time.Duration = -1

// FromMs converts a RAL millisecond timeout into a Duration, mapping
// MaxTimeout to Forever.
func FromMs(ms uint32) time.Duration {
	if ms == MaxTimeout {
		return Forever
	}
	return time.Duration(ms) * time.Millisecond
}

// MsToTicks converts milliseconds to kernel ticks at freqHz, rounding up.
// MaxTimeout is passed through unchanged.
func MsToTicks(ms uint32, freqHz uint32) uint32 {
	if ms == MaxTimeout {
		return MaxTimeout
	}
	if freqHz == 0 {
		freqHz = 1000
	}
	t := mathx.CeilDiv(uint64(ms)*uint64(freqHz), 1000)
	if t >= uint64(MaxTimeout) {
		return MaxTimeout - 1
	}
	return uint32(t)
}

// Deadline computes the absolute deadline for d from the monotonic clock.
// ok is false for Forever.
func Deadline(d time.Duration) (at time.Time, ok bool) {
	if d < 0 {
		return time.Time{}, false
	}
	return time.Now().Add(d), true
}

// ResetTimer safely stops, drains, and resets a timer.
func ResetTimer(t *time.Timer, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if !t.Stop() {
		DrainTimer(t)
	}
	t.Reset(d)
}

func DrainTimer(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
