package clock

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mescon/tradecore/internal/ident"
)

// timer is the view of a registered timer the clock registries need: identity,
// the next due instant, and a way to disable further fires.
type timer interface {
	Label() ident.Label
	NextTime() time.Time
	Cancel()
}

// successor computes the fire instant following the given one. Interval timers
// add a fixed duration; cron timers follow their schedule.
type successor func(time.Time) time.Time

func intervalSuccessor(d time.Duration) successor {
	return func(t time.Time) time.Time {
		return t.Add(d)
	}
}

func cronSuccessor(sched cron.Schedule) successor {
	return func(t time.Time) time.Time {
		return sched.Next(t)
	}
}

// timerState holds the bookkeeping shared by test and live timers.
//
// Invariants: nextTime starts at startTime+interval (or the first schedule
// hit) and only moves forward via iterateNext; when stopTime is set no fire is
// emitted past it.
type timerState struct {
	label     ident.Label
	interval  time.Duration // zero for cron-schedule timers
	startTime time.Time
	nextTime  time.Time
	stopTime  time.Time // zero means no stop
	advanceFn successor
}

func (t *timerState) Label() ident.Label {
	return t.label
}

func (t *timerState) NextTime() time.Time {
	return t.nextTime
}

func (t *timerState) StopTime() time.Time {
	return t.stopTime
}

// iterateNext moves nextTime to its successor. Must not be called on an
// expired timer.
func (t *timerState) iterateNext() {
	t.nextTime = t.advanceFn(t.nextTime)
}

// pastStop reports whether nextTime has moved beyond the stop time.
func (t *timerState) pastStop() bool {
	return !t.stopTime.IsZero() && t.nextTime.After(t.stopTime)
}
