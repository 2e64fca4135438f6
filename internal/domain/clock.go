package domain

import "time"

// Clock supplies the current time to the pool service. The engine itself
// never reads wall-clock time; every operation receives an explicit "now" so
// deadline checks are deterministic and testable.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return ClockFunc(time.Now) }

// IDGenerator mints unique pool identifiers. It is injected into the pool
// service rather than accessed as ambient state.
type IDGenerator interface {
	NewID() string
}

// IDFunc adapts a function to the IDGenerator interface.
type IDFunc func() string

// NewID implements IDGenerator.
func (f IDFunc) NewID() string { return f() }
