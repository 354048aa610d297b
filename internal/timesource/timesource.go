// Package timesource abstracts the host's wall clock and delayed-callback
// facility. Production code uses System, tests can inject a manual source for
// deterministic behavior.
package timesource

import "time"

// Source provides the current time and delayed callbacks for live scheduling.
type Source interface {
	// Now returns the current time.
	Now() time.Time
	// AfterFunc waits for the duration to elapse and then calls f in its own
	// goroutine. Returns a Waker that can be used to cancel the call.
	AfterFunc(d time.Duration, f func()) Waker
}

// Waker represents a pending AfterFunc callback.
type Waker interface {
	// Stop prevents the callback from firing. Returns true if the call was
	// stopped, false if it has already fired or been stopped.
	Stop() bool
}

// System implements Source using the standard time package.
type System struct{}

// NewSystem creates a new System source.
func NewSystem() *System {
	return &System{}
}

// AfterFunc implements Source.AfterFunc using time.AfterFunc.
func (s *System) AfterFunc(d time.Duration, f func()) Waker {
	return &systemWaker{timer: time.AfterFunc(d, f)}
}

// Now implements Source.Now using time.Now.
func (s *System) Now() time.Time {
	return time.Now()
}

// systemWaker wraps time.Timer to implement the Waker interface.
type systemWaker struct {
	timer *time.Timer
}

// Stop implements Waker.Stop.
func (w *systemWaker) Stop() bool {
	return w.timer.Stop()
}
