// Package clock implements the platform's clock and timer core: a uniform
// abstraction over wall-clock time that lets strategies register one-shot
// alerts and repeating timers producing labeled time events.
//
// Two interchangeable realizations share the Clock contract. LiveClock is
// driven by the operating system's UTC time and real delayed callbacks;
// TestClock is driven by explicit time advancement and replays the same event
// stream bit-identically, so backtests and live runs use identical strategy
// code.
package clock

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/emirpasic/gods/trees/redblacktree"
	"github.com/robfig/cron/v3"

	"github.com/mescon/tradecore/internal/ident"
)

// ErrInvalidArgument is returned when a setter precondition is violated:
// duplicate label, non-positive interval, alert in the past, stop before
// start, or a missing handler with no default registered. Setters fail fast
// and leave the registries untouched.
var ErrInvalidArgument = errors.New("invalid argument")

// Handler consumes a TimeEvent. Handlers run synchronously on the delivering
// goroutine: the caller of AdvanceTime on a TestClock, the host scheduler's
// callback goroutine on a LiveClock.
type Handler func(TimeEvent)

// Logger is the optional sink a clock reports to. The concrete logger lives
// outside this package; anything with leveled printf methods fits.
type Logger interface {
	Debugf(format string, v ...interface{})
	Infof(format string, v ...interface{})
	Warnf(format string, v ...interface{})
}

// Clock is the registry and dispatcher shared by strategies and the trader.
// Implementations must be safe for concurrent use.
type Clock interface {
	// TimeNow returns the current UTC instant according to this clock.
	TimeNow() time.Time
	// GetDelta returns TimeNow() − t.
	GetDelta(t time.Time) time.Duration
	// TimerLabels returns a snapshot of registered labels ordered by next
	// fire time.
	TimerLabels() []ident.Label
	// HasTimers reports whether any timer is registered.
	HasTimers() bool
	// NextEventTime returns the earliest next fire instant across all
	// registered timers; ok is false when none are registered.
	NextEventTime() (next time.Time, ok bool)
	// IsTestClock reports whether this clock is driven by explicit advancement.
	IsTestClock() bool

	// RegisterLogger attaches a logger. Replacement is idempotent.
	RegisterLogger(log Logger)
	// RegisterDefaultHandler sets the handler used when a setter omits one.
	RegisterDefaultHandler(h Handler) error

	// SetTimeAlert registers a one-shot timer that fires exactly once at
	// alertTime. A nil handler falls back to the default handler.
	SetTimeAlert(label ident.Label, alertTime time.Time, handler Handler) error
	// SetTimer registers a repeating timer firing every interval, first at
	// startTime+interval. A zero startTime defaults to now; a zero stopTime
	// means the timer repeats until cancelled.
	SetTimer(label ident.Label, interval time.Duration, startTime, stopTime time.Time, handler Handler) error
	// SetCronTimer registers a repeating timer driven by a standard cron
	// expression instead of a fixed interval.
	SetCronTimer(label ident.Label, spec string, stopTime time.Time, handler Handler) error

	// CancelTimer removes and cancels the labeled timer. An unknown label
	// logs a warning and returns normally.
	CancelTimer(label ident.Label)
	// CancelAllTimers cancels a snapshot of the current timers.
	CancelAllTimers()
}

// scheduleKey orders the schedule index by next fire time, tie-broken by
// label so peeks and iteration are deterministic.
type scheduleKey struct {
	next  time.Time
	label string
}

func compareScheduleKeys(a, b interface{}) int {
	ka, kb := a.(scheduleKey), b.(scheduleKey)
	switch {
	case ka.next.Before(kb.next):
		return -1
	case ka.next.After(kb.next):
		return 1
	case ka.label < kb.label:
		return -1
	case ka.label > kb.label:
		return 1
	default:
		return 0
	}
}

// baseClock holds the registries and derived timing cache shared by TestClock
// and LiveClock. The timers and handlers maps have identical key sets at
// every external observation point; the schedule tree mirrors timers keyed by
// (nextTime, label).
type baseClock struct {
	mu             sync.Mutex
	timers         map[ident.Label]timer
	handlers       map[ident.Label]Handler
	defaultHandler Handler
	log            Logger
	schedule       *redblacktree.Tree
	nextEvent      time.Time // zero when no timers are registered
}

func newBaseClock() baseClock {
	return baseClock{
		timers:   make(map[ident.Label]timer),
		handlers: make(map[ident.Label]Handler),
		schedule: redblacktree.NewWith(compareScheduleKeys),
	}
}

// RegisterLogger attaches a logger; replacement is idempotent.
func (c *baseClock) RegisterLogger(log Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log = log
}

// RegisterDefaultHandler sets the handler used when a setter omits one.
func (c *baseClock) RegisterDefaultHandler(h Handler) error {
	if h == nil {
		return fmt.Errorf("%w: default handler must not be nil", ErrInvalidArgument)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defaultHandler = h
	return nil
}

// TimerLabels returns a snapshot of registered labels ordered by next fire
// time.
func (c *baseClock) TimerLabels() []ident.Label {
	c.mu.Lock()
	defer c.mu.Unlock()
	labels := make([]ident.Label, 0, c.schedule.Size())
	for _, key := range c.schedule.Keys() {
		labels = append(labels, ident.Label(key.(scheduleKey).label))
	}
	return labels
}

// HasTimers reports whether any timer is registered.
func (c *baseClock) HasTimers() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers) > 0
}

// NextEventTime returns the earliest next fire instant; ok is false when no
// timers are registered.
func (c *baseClock) NextEventTime() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.timers) == 0 {
		return time.Time{}, false
	}
	return c.nextEvent, true
}

// CancelTimer removes and cancels the labeled timer. Cancelling an unknown
// label logs a warning and returns normally. On a live clock a callback that
// has already passed the registry check may still deliver one final event.
func (c *baseClock) CancelTimer(label ident.Label) {
	c.mu.Lock()
	t, ok := c.timers[label]
	if !ok {
		c.mu.Unlock()
		c.warnf("cannot cancel timer: label %q not found", label.Value())
		return
	}
	t.Cancel()
	c.removeLocked(label)
	c.updateTimingLocked()
	c.mu.Unlock()
	c.debugf("cancelled timer %q", label.Value())
}

// CancelAllTimers cancels a snapshot of the current timers. Timers registered
// after the snapshot survive.
func (c *baseClock) CancelAllTimers() {
	c.mu.Lock()
	labels := make([]ident.Label, 0, len(c.timers))
	for label := range c.timers {
		labels = append(labels, label)
	}
	c.mu.Unlock()
	for _, label := range labels {
		c.CancelTimer(label)
	}
}

// registerLocked stores the timer/handler pair and refreshes the timing
// cache. Callers hold mu.
func (c *baseClock) registerLocked(t timer, h Handler) {
	c.timers[t.Label()] = t
	c.handlers[t.Label()] = h
	c.updateTimingLocked()
}

// removeLocked drops the timer and its handler. Callers hold mu and refresh
// timing afterwards.
func (c *baseClock) removeLocked(label ident.Label) {
	delete(c.timers, label)
	delete(c.handlers, label)
}

// updateTimingLocked rebuilds the schedule index and the earliest-next-fire
// cache from the timer registry. Callers hold mu.
func (c *baseClock) updateTimingLocked() {
	c.schedule.Clear()
	for _, t := range c.timers {
		c.schedule.Put(scheduleKey{next: t.NextTime(), label: t.Label().Value()}, t)
	}
	if node := c.schedule.Left(); node != nil {
		c.nextEvent = node.Key.(scheduleKey).next
	} else {
		c.nextEvent = time.Time{}
	}
}

// resolveHandlerLocked applies the default-handler fallback. Callers hold mu.
func (c *baseClock) resolveHandlerLocked(h Handler) (Handler, error) {
	if h != nil {
		return h, nil
	}
	if c.defaultHandler != nil {
		return c.defaultHandler, nil
	}
	return nil, fmt.Errorf("%w: no handler supplied and no default handler registered", ErrInvalidArgument)
}

// prepareAlert validates a one-shot registration and returns its bookkeeping.
// Callers hold mu. The alert boundary is inclusive: alertTime == now is
// accepted and fires on the next advancement.
func (c *baseClock) prepareAlert(label ident.Label, alertTime, now time.Time, h Handler) (timerState, Handler, error) {
	if label.IsEmpty() {
		return timerState{}, nil, fmt.Errorf("%w: label must not be empty", ErrInvalidArgument)
	}
	if _, exists := c.timers[label]; exists {
		return timerState{}, nil, fmt.Errorf("%w: timer label %q already registered", ErrInvalidArgument, label.Value())
	}
	handler, err := c.resolveHandlerLocked(h)
	if err != nil {
		return timerState{}, nil, err
	}
	if alertTime.Before(now) {
		return timerState{}, nil, fmt.Errorf("%w: alert time %s is in the past (now %s)",
			ErrInvalidArgument, alertTime.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano))
	}
	interval := alertTime.Sub(now)
	return timerState{
		label:     label,
		interval:  interval,
		startTime: now,
		nextTime:  alertTime,
		stopTime:  alertTime,
		advanceFn: intervalSuccessor(interval),
	}, handler, nil
}

// prepareTimer validates a repeating registration and returns its
// bookkeeping. Callers hold mu. An explicitly supplied startTime may lie in
// the past (historical schedules replay on a test clock; a live clock fires
// the backlog immediately); only the defaulted start is checked against now.
func (c *baseClock) prepareTimer(label ident.Label, interval time.Duration, startTime, stopTime, now time.Time, h Handler) (timerState, Handler, error) {
	if label.IsEmpty() {
		return timerState{}, nil, fmt.Errorf("%w: label must not be empty", ErrInvalidArgument)
	}
	if _, exists := c.timers[label]; exists {
		return timerState{}, nil, fmt.Errorf("%w: timer label %q already registered", ErrInvalidArgument, label.Value())
	}
	handler, err := c.resolveHandlerLocked(h)
	if err != nil {
		return timerState{}, nil, err
	}
	if interval <= 0 {
		return timerState{}, nil, fmt.Errorf("%w: interval must be positive, got %s", ErrInvalidArgument, interval)
	}
	if startTime.IsZero() {
		startTime = now
		if startTime.Add(interval).Before(now) {
			return timerState{}, nil, fmt.Errorf("%w: first fire would be in the past", ErrInvalidArgument)
		}
	}
	if !stopTime.IsZero() {
		if !startTime.Before(stopTime) {
			return timerState{}, nil, fmt.Errorf("%w: start time %s is not before stop time %s",
				ErrInvalidArgument, startTime.Format(time.RFC3339Nano), stopTime.Format(time.RFC3339Nano))
		}
		if startTime.Add(interval).After(stopTime) {
			return timerState{}, nil, fmt.Errorf("%w: first fire %s would be after stop time %s",
				ErrInvalidArgument, startTime.Add(interval).Format(time.RFC3339Nano), stopTime.Format(time.RFC3339Nano))
		}
	}
	return timerState{
		label:     label,
		interval:  interval,
		startTime: startTime,
		nextTime:  startTime.Add(interval),
		stopTime:  stopTime,
		advanceFn: intervalSuccessor(interval),
	}, handler, nil
}

// prepareCron validates a cron-schedule registration and returns its
// bookkeeping. Callers hold mu.
func (c *baseClock) prepareCron(label ident.Label, spec string, stopTime, now time.Time, h Handler) (timerState, Handler, error) {
	if label.IsEmpty() {
		return timerState{}, nil, fmt.Errorf("%w: label must not be empty", ErrInvalidArgument)
	}
	if _, exists := c.timers[label]; exists {
		return timerState{}, nil, fmt.Errorf("%w: timer label %q already registered", ErrInvalidArgument, label.Value())
	}
	handler, err := c.resolveHandlerLocked(h)
	if err != nil {
		return timerState{}, nil, err
	}
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return timerState{}, nil, fmt.Errorf("%w: invalid cron expression %q: %v", ErrInvalidArgument, spec, err)
	}
	next := sched.Next(now)
	if !stopTime.IsZero() {
		if !now.Before(stopTime) {
			return timerState{}, nil, fmt.Errorf("%w: stop time %s is not in the future",
				ErrInvalidArgument, stopTime.Format(time.RFC3339Nano))
		}
		if next.After(stopTime) {
			return timerState{}, nil, fmt.Errorf("%w: first cron fire %s would be after stop time %s",
				ErrInvalidArgument, next.Format(time.RFC3339Nano), stopTime.Format(time.RFC3339Nano))
		}
	}
	return timerState{
		label:     label,
		startTime: now,
		nextTime:  next,
		stopTime:  stopTime,
		advanceFn: cronSuccessor(sched),
	}, handler, nil
}

func (c *baseClock) debugf(format string, v ...interface{}) {
	if c.log != nil {
		c.log.Debugf(format, v...)
	}
}

func (c *baseClock) warnf(format string, v ...interface{}) {
	if c.log != nil {
		c.log.Warnf(format, v...)
	}
}
