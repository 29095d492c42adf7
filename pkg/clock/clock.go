// Package clock exposes the time sources the limiters read. Drive a
// VirtualClock to test limits without sleeping.
package clock

import (
	"time"

	internalclock "github.com/SmitUplenchwar2687/throttle/internal/clock"
)

// Clock is the only way limiters observe time.
type Clock = internalclock.Clock

// RealClock reads the system clock.
type RealClock = internalclock.RealClock

// VirtualClock only moves when told to. Waiters registered with After fire
// as soon as the clock reaches their deadline.
type VirtualClock = internalclock.VirtualClock

func NewRealClock() *RealClock {
	return internalclock.NewRealClock()
}

// NewVirtualClock creates a virtual clock reading start.
func NewVirtualClock(start time.Time) *VirtualClock {
	return internalclock.NewVirtualClock(start)
}
