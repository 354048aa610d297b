// Package testutil provides test utilities: a manual time source, fixtures,
// and test database helpers.
package testutil

import (
	"sync"
	"time"

	"github.com/mescon/tradecore/internal/timesource"
)

// =============================================================================
// Manual - deterministic time source
// =============================================================================

// Manual implements timesource.Source for testing, providing deterministic
// control over the live clock's delayed callbacks.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	pending []pendingFunc
}

type pendingFunc struct {
	executeAt time.Time
	fn        func()
	stopped   bool
}

// ManualWaker implements timesource.Waker for Manual.
type ManualWaker struct {
	src   *Manual
	index int
}

// Compile-time assertion that Manual implements timesource.Source.
var _ timesource.Source = (*Manual)(nil)

// NewManual creates a Manual source starting at the current wall time.
func NewManual() *Manual {
	return &Manual{now: time.Now()}
}

// NewManualAt creates a Manual source starting at a specific instant.
func NewManualAt(t time.Time) *Manual {
	return &Manual{now: t}
}

// Now returns the source's current time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// SetNow sets the current time without triggering pending callbacks.
func (m *Manual) SetNow(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// AfterFunc schedules f to be called after duration d. Returns a Waker that
// can be used to cancel the call.
func (m *Manual) AfterFunc(d time.Duration, f func()) timesource.Waker {
	m.mu.Lock()
	defer m.mu.Unlock()

	index := len(m.pending)
	m.pending = append(m.pending, pendingFunc{
		executeAt: m.now.Add(d),
		fn:        f,
	})
	return &ManualWaker{src: m, index: index}
}

// Advance moves time forward by the given duration and executes any callbacks
// whose scheduled time has passed, in schedule order. Returns the number of
// callbacks executed.
func (m *Manual) Advance(d time.Duration) int {
	return m.AdvanceTo(m.Now().Add(d))
}

// AdvanceTo moves time to the target instant and executes due callbacks in
// schedule order. Callbacks run outside the lock, so they may schedule
// further callbacks; ones that fall due are picked up in the same call.
func (m *Manual) AdvanceTo(target time.Time) int {
	executed := 0
	for {
		m.mu.Lock()
		if target.After(m.now) {
			m.now = target
		}
		var next *pendingFunc
		for i := range m.pending {
			pf := &m.pending[i]
			if pf.stopped || pf.executeAt.After(m.now) {
				continue
			}
			if next == nil || pf.executeAt.Before(next.executeAt) {
				next = pf
			}
		}
		if next == nil {
			m.mu.Unlock()
			return executed
		}
		next.stopped = true
		fn := next.fn
		m.mu.Unlock()

		fn()
		executed++
	}
}

// Pending returns the number of callbacks waiting to fire. Useful for
// verifying that timers have been properly cleaned up.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.pending {
		if !m.pending[i].stopped {
			n++
		}
	}
	return n
}

// Stop implements timesource.Waker.Stop.
func (w *ManualWaker) Stop() bool {
	w.src.mu.Lock()
	defer w.src.mu.Unlock()
	pf := &w.src.pending[w.index]
	if pf.stopped {
		return false
	}
	pf.stopped = true
	return true
}
