package clock

import (
	"time"

	"github.com/mescon/tradecore/internal/timesource"
)

// fireFunc is the clock-internal trampoline a LiveTimer invokes when its
// delayed callback elapses. It is never the user handler; the trampoline
// constructs the TimeEvent and centralizes expiry bookkeeping.
type fireFunc func(t *LiveTimer, eventTime time.Time)

// LiveTimer wraps a host delayed callback keyed to nextTime−now. The owning
// LiveClock re-arms it after each fire for repeating timers via Repeat.
type LiveTimer struct {
	timerState
	src   timesource.Source
	fire  fireFunc
	waker timesource.Waker
}

// newLiveTimer creates the timer and arms its first callback. A nextTime
// already in the past arms a callback that fires immediately.
func newLiveTimer(src timesource.Source, st timerState, fire fireFunc) *LiveTimer {
	t := &LiveTimer{timerState: st, src: src, fire: fire}
	t.arm(src.Now())
	return t
}

// arm schedules the trampoline for the current nextTime. The captured due
// instant keeps a superseded callback from reporting a later fire time.
func (t *LiveTimer) arm(now time.Time) {
	due := t.nextTime
	t.waker = t.src.AfterFunc(due.Sub(now), func() {
		t.fire(t, due)
	})
}

// Repeat re-arms a fresh delayed callback for nextTime−now. The clock calls
// this after each successful fire of a repeating timer, with the registry
// lock held; the previous callback has already fired, so the fresh waker
// supersedes it.
func (t *LiveTimer) Repeat(now time.Time) {
	t.arm(now)
}

// Cancel stops any pending callback. A callback that has already begun
// executing may still reach the trampoline; the clock's registry check there
// drops it.
func (t *LiveTimer) Cancel() {
	if t.waker != nil {
		t.waker.Stop()
	}
}
