package clock

import (
	"time"

	"github.com/mescon/tradecore/internal/ident"
	"github.com/mescon/tradecore/internal/timesource"
)

// LiveClock is the wall-clock realization. Each registered timer owns a host
// delayed callback; callbacks land in clock-internal trampolines that do the
// registry bookkeeping under the clock's lock and dispatch the user handler
// outside it, so a handler may register further timers without deadlocking.
type LiveClock struct {
	baseClock
	src timesource.Source
}

// NewLiveClock creates a live clock. An optional time source can be provided
// for testing; if none is provided, the system source is used.
func NewLiveClock(sources ...timesource.Source) *LiveClock {
	var src timesource.Source = timesource.NewSystem()
	if len(sources) > 0 && sources[0] != nil {
		src = sources[0]
	}
	return &LiveClock{
		baseClock: newBaseClock(),
		src:       src,
	}
}

// TimeNow returns the source's current instant in UTC.
func (c *LiveClock) TimeNow() time.Time {
	return c.src.Now().UTC()
}

// GetDelta returns TimeNow() − t.
func (c *LiveClock) GetDelta(t time.Time) time.Duration {
	return c.TimeNow().Sub(t)
}

// IsTestClock reports false.
func (c *LiveClock) IsTestClock() bool {
	return false
}

// SetTimeAlert registers a one-shot timer firing exactly once at alertTime.
func (c *LiveClock) SetTimeAlert(label ident.Label, alertTime time.Time, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, h, err := c.prepareAlert(label, alertTime.UTC(), c.TimeNow(), handler)
	if err != nil {
		return err
	}
	c.registerLocked(newLiveTimer(c.src, st, c.raiseTimeEvent), h)
	c.debugf("set alert %q for %s", label.Value(), alertTime.UTC().Format(time.RFC3339Nano))
	return nil
}

// SetTimer registers a repeating timer firing every interval.
func (c *LiveClock) SetTimer(label ident.Label, interval time.Duration, startTime, stopTime time.Time, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, h, err := c.prepareTimer(label, interval, normalizeUTC(startTime), normalizeUTC(stopTime), c.TimeNow(), handler)
	if err != nil {
		return err
	}
	c.registerLocked(newLiveTimer(c.src, st, c.raiseTimeEventRepeating), h)
	c.debugf("set timer %q every %s", label.Value(), interval)
	return nil
}

// SetCronTimer registers a repeating timer driven by a standard cron
// expression.
func (c *LiveClock) SetCronTimer(label ident.Label, spec string, stopTime time.Time, handler Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, h, err := c.prepareCron(label, spec, normalizeUTC(stopTime), c.TimeNow(), handler)
	if err != nil {
		return err
	}
	c.registerLocked(newLiveTimer(c.src, st, c.raiseTimeEventRepeating), h)
	c.debugf("set cron timer %q spec %q", label.Value(), spec)
	return nil
}

// Teardown cancels every registered timer, releasing their host callback
// handles. Call on shutdown.
func (c *LiveClock) Teardown() {
	c.CancelAllTimers()
}

// raiseTimeEvent is the one-shot trampoline. The timer is removed from the
// registries before the handler runs, so a panicking handler cannot prevent
// cleanup; the registry identity check drops callbacks that lost a race with
// cancellation.
func (c *LiveClock) raiseTimeEvent(t *LiveTimer, eventTime time.Time) {
	c.mu.Lock()
	cur, ok := c.timers[t.Label()]
	if !ok || cur != timer(t) {
		c.mu.Unlock()
		return
	}
	handler := c.handlers[t.Label()]
	c.removeLocked(t.Label())
	c.updateTimingLocked()
	c.mu.Unlock()

	handler(NewTimeEvent(t.Label(), eventTime))
}

// raiseTimeEventRepeating is the repeating trampoline. Bookkeeping — stop
// handling and re-arming — happens under the lock; the handler is looked up
// at fire time and dispatched outside it.
func (c *LiveClock) raiseTimeEventRepeating(t *LiveTimer, eventTime time.Time) {
	c.mu.Lock()
	cur, ok := c.timers[t.Label()]
	if !ok || cur != timer(t) {
		c.mu.Unlock()
		return
	}
	handler := c.handlers[t.Label()]
	if stop := t.StopTime(); !stop.IsZero() && !eventTime.Before(stop) {
		c.removeLocked(t.Label())
	} else {
		t.iterateNext()
		t.Repeat(c.src.Now())
	}
	c.updateTimingLocked()
	c.mu.Unlock()

	handler(NewTimeEvent(t.Label(), eventTime))
}

var _ Clock = (*LiveClock)(nil)
