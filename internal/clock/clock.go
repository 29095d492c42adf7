// Package clock provides the time source used by the limiters.
package clock

import "time"

// Clock is the only way limiters observe time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the duration elapsed since t.
	Since(t time.Time) time.Duration
	// After returns a channel that receives the current time after d.
	After(d time.Duration) <-chan time.Time
}

// RealClock reads the system clock. Times it returns carry a monotonic
// reading, so differences between them are immune to wall-clock steps.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

func (c *RealClock) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (c *RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
