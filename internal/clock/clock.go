// Package clock abstracts time so the simulator's three task types (health
// ticks, dispatch ticks and request completions) can run against the wall clock
// in production and against a fast-forwardable virtual clock in tests.
package clock

import (
	"time"
)

// Clock schedules deferred one-shot callbacks
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc calls f in its own goroutine (Real) or inside Advance (Fake)
	// once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable scheduled callback
type Timer interface {
	// Stop prevents the callback from firing. It returns false if the
	// callback already fired or the timer was already stopped.
	Stop() bool
}

// Real is a Clock backed by the time package
type Real struct{}

// NewReal creates a wall clock
func NewReal() *Real {
	return &Real{}
}

// Now returns time.Now()
func (Real) Now() time.Time {
	return time.Now()
}

// AfterFunc wraps time.AfterFunc
func (Real) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}
