package clock

import (
	"sort"
	"time"

	"github.com/mescon/tradecore/internal/ident"
)

// Delivery pairs a harvested TimeEvent with the handler registered for its
// label at harvest time. The caller dispatches; a panicking handler therefore
// surfaces on the caller's goroutine after the registry has already been
// mutated, and partial progress remains valid.
type Delivery struct {
	Event   TimeEvent
	Handler Handler
}

// Deliver invokes the handler with the event.
func (d Delivery) Deliver() {
	d.Handler(d.Event)
}

// TestClock is the deterministic clock realization. Time stands still until
// AdvanceTime moves it, harvesting every due fire across all registered
// timers into one globally ordered batch. All progression and delivery happen
// inside the caller's invocation; there are no background goroutines.
type TestClock struct {
	baseClock
	time time.Time
}

var unixEpoch = time.Unix(0, 0).UTC()

// NewTestClock creates a test clock starting at the Unix epoch.
func NewTestClock() *TestClock {
	return NewTestClockAt(unixEpoch)
}

// NewTestClockAt creates a test clock starting at the given instant.
func NewTestClockAt(start time.Time) *TestClock {
	return &TestClock{
		baseClock: newBaseClock(),
		time:      start.UTC(),
	}
}

// TimeNow returns the clock's current instant.
func (c *TestClock) TimeNow() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.time
}

// GetDelta returns TimeNow() − t.
func (c *TestClock) GetDelta(t time.Time) time.Duration {
	return c.TimeNow().Sub(t)
}

// IsTestClock reports true.
func (c *TestClock) IsTestClock() bool {
	return true
}

// SetTime overwrites the current instant without firing any events. Intended
// for initializing isolated tests only; between timer registrations use
// AdvanceTime so due fires are not silently skipped.
func (c *TestClock) SetTime(to time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.time = to.UTC()
}

// SetTimeAlert registers a one-shot timer firing exactly once at alertTime.
func (c *TestClock) SetTimeAlert(label ident.Label, alertTime time.Time, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, h, err := c.prepareAlert(label, alertTime.UTC(), c.time, handler)
	if err != nil {
		return err
	}
	c.registerLocked(newTestTimerFromState(st), h)
	return nil
}

// SetTimer registers a repeating timer firing every interval, first at
// startTime+interval.
func (c *TestClock) SetTimer(label ident.Label, interval time.Duration, startTime, stopTime time.Time, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, h, err := c.prepareTimer(label, interval, normalizeUTC(startTime), normalizeUTC(stopTime), c.time, handler)
	if err != nil {
		return err
	}
	c.registerLocked(newTestTimerFromState(st), h)
	return nil
}

// SetCronTimer registers a repeating timer driven by a standard cron
// expression.
func (c *TestClock) SetCronTimer(label ident.Label, spec string, stopTime time.Time, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, h, err := c.prepareCron(label, spec, normalizeUTC(stopTime), c.time, handler)
	if err != nil {
		return err
	}
	c.registerLocked(newTestTimerFromState(st), h)
	return nil
}

// AdvanceTime moves the clock to the target instant, harvesting one delivery
// per due fire across a snapshot of the registered timers, globally sorted
// ascending by timestamp (ties broken by label). Timers that latch expired
// during the advance are removed together with their handlers.
//
// When no timer is due — no timers registered, or to lies before the next
// event time — the call returns nil and the clock's time is deliberately left
// unchanged, so callers can probe a target without committing to it. Calling
// again with the same target after a successful advance returns nil.
func (c *TestClock) AdvanceTime(to time.Time) []Delivery {
	to = to.UTC()
	c.mu.Lock()
	if len(c.timers) == 0 || to.Before(c.nextEvent) {
		c.mu.Unlock()
		return nil
	}

	snapshot := make([]*TestTimer, 0, len(c.timers))
	for _, t := range c.timers {
		snapshot = append(snapshot, t.(*TestTimer))
	}

	var due []Delivery
	for _, t := range snapshot {
		events := t.Advance(to)
		handler := c.handlers[t.Label()]
		for _, ev := range events {
			due = append(due, Delivery{Event: ev, Handler: handler})
		}
		if t.Expired() {
			c.removeLocked(t.Label())
		}
	}
	c.updateTimingLocked()
	c.time = to
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool {
		return due[i].Event.Before(due[j].Event)
	})
	return due
}

func normalizeUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}

var _ Clock = (*TestClock)(nil)
