package clock

import (
	"time"

	"github.com/mescon/tradecore/internal/ident"
)

// TestTimer is a pure value-advancing timer. It never touches the host
// scheduler; the owning TestClock drives it by calling Advance with a target
// instant and collects the fires that fell due.
type TestTimer struct {
	timerState
	expired bool
}

// NewTestTimer creates a test timer that first fires at startTime+interval and
// stops after stopTime (zero stopTime means never).
func NewTestTimer(label ident.Label, interval time.Duration, startTime, stopTime time.Time) *TestTimer {
	return &TestTimer{
		timerState: timerState{
			label:     label,
			interval:  interval,
			startTime: startTime,
			nextTime:  startTime.Add(interval),
			stopTime:  stopTime,
			advanceFn: intervalSuccessor(interval),
		},
	}
}

// newTestTimerFromState wraps prepared timer bookkeeping (used for cron and
// one-shot alert variants manufactured by the clock).
func newTestTimerFromState(st timerState) *TestTimer {
	return &TestTimer{timerState: st}
}

// Expired reports whether the timer has latched expired, either by advancing
// past its stop time or by cancellation.
func (t *TestTimer) Expired() bool {
	return t.expired
}

// Advance produces one event per due instant up to and including to, in
// ascending order, iterating nextTime after each. Once nextTime moves past
// stopTime the timer latches expired and emits nothing further, on this or
// any later call. Advancing an expired timer, or to a target before the next
// due instant, returns nil.
func (t *TestTimer) Advance(to time.Time) []TimeEvent {
	var events []TimeEvent
	for !t.expired && !t.nextTime.After(to) {
		events = append(events, NewTimeEvent(t.label, t.nextTime))
		prev := t.nextTime
		t.iterateNext()
		// A successor that fails to advance (a zero-interval one-shot) would
		// loop forever; latch it expired along with the past-stop case.
		if t.pastStop() || !t.nextTime.After(prev) {
			t.expired = true
		}
	}
	return events
}

// Cancel permanently disables further fires.
func (t *TestTimer) Cancel() {
	t.expired = true
}
