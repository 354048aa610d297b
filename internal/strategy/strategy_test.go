package strategy

import (
	"testing"
	"time"

	"github.com/mescon/tradecore/internal/clock"
	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/ident"
	"github.com/mescon/tradecore/internal/testutil"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

func newContextForTest(t *testing.T) (*Context, *clock.TestClock, *eventbus.EventBus) {
	t.Helper()
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	eb := eventbus.NewEventBus(db)
	t.Cleanup(eb.Shutdown)

	tc := clock.NewTestClockAt(t0)
	return &Context{Clock: tc, Bus: eb}, tc, eb
}

func drain(tc *clock.TestClock, to time.Time) int {
	deliveries := tc.AdvanceTime(to)
	for _, d := range deliveries {
		d.Deliver()
	}
	return len(deliveries)
}

// =============================================================================
// Context registration wrapping
// =============================================================================

func TestContext_SetTimerJournalsSetAndFired(t *testing.T) {
	ctx, tc, eb := newContextForTest(t)

	setSeen := make(chan domain.Event, 1)
	firedSeen := make(chan domain.Event, 4)
	eb.Subscribe(domain.TimerSet, func(e domain.Event) { setSeen <- e })
	eb.Subscribe(domain.TimerFired, func(e domain.Event) { firedSeen <- e })

	fires := 0
	err := ctx.SetTimer(ident.Label("rebalance"), time.Second, t0, t0.Add(2*time.Second), func(clock.TimeEvent) {
		fires++
	})
	if err != nil {
		t.Fatalf("SetTimer failed: %v", err)
	}

	select {
	case e := <-setSeen:
		if e.GetStringOr("label", "") != "rebalance" {
			t.Errorf("TimerSet label = %q", e.GetStringOr("label", ""))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("TimerSet was not journaled")
	}

	if n := drain(tc, t0.Add(10*time.Second)); n != 2 {
		t.Fatalf("expected 2 deliveries, got %d", n)
	}
	if fires != 2 {
		t.Errorf("strategy handler fired %d times, want 2", fires)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-firedSeen:
		case <-time.After(2 * time.Second):
			t.Fatalf("TimerFired %d was not journaled", i)
		}
	}
}

func TestContext_FailedRegistrationNotJournaled(t *testing.T) {
	ctx, _, eb := newContextForTest(t)

	setSeen := make(chan domain.Event, 1)
	eb.Subscribe(domain.TimerSet, func(e domain.Event) { setSeen <- e })

	if err := ctx.SetTimer(ident.Label("bad"), -time.Second, t0, time.Time{}, func(clock.TimeEvent) {}); err == nil {
		t.Fatal("negative interval should fail")
	}

	select {
	case <-setSeen:
		t.Error("failed registration should not journal TimerSet")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestContext_PanickingHandlerContained(t *testing.T) {
	ctx, tc, eb := newContextForTest(t)

	failed := make(chan domain.Event, 1)
	eb.Subscribe(domain.HandlerFailed, func(e domain.Event) { failed <- e })

	err := ctx.SetTimeAlert(ident.Label("boom"), t0.Add(time.Second), func(clock.TimeEvent) {
		panic("strategy bug")
	})
	if err != nil {
		t.Fatalf("SetTimeAlert failed: %v", err)
	}

	// Delivery must not propagate the panic out of the shell wrapper.
	drain(tc, t0.Add(5*time.Second))

	select {
	case e := <-failed:
		if e.GetStringOr("error", "") != "strategy bug" {
			t.Errorf("HandlerFailed error = %q", e.GetStringOr("error", ""))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("HandlerFailed was not journaled")
	}
}

func TestContext_CancelTimerJournals(t *testing.T) {
	ctx, tc, eb := newContextForTest(t)

	cancelled := make(chan domain.Event, 1)
	eb.Subscribe(domain.TimerCancelled, func(e domain.Event) { cancelled <- e })

	_ = ctx.SetTimeAlert(ident.Label("x"), t0.Add(time.Minute), func(clock.TimeEvent) {})
	ctx.CancelTimer(ident.Label("x"))

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("TimerCancelled was not journaled")
	}
	if tc.HasTimers() {
		t.Error("timer should be gone from the clock")
	}
}

func TestContext_CronTimerRoutedThroughClock(t *testing.T) {
	ctx, tc, _ := newContextForTest(t)

	fires := 0
	if err := ctx.SetCronTimer(ident.Label("q"), "*/15 * * * *", time.Time{}, func(clock.TimeEvent) {
		fires++
	}); err != nil {
		t.Fatalf("SetCronTimer failed: %v", err)
	}

	drain(tc, t0.Add(time.Hour))
	if fires != 4 {
		t.Errorf("cron handler fired %d times, want 4", fires)
	}
}

// =============================================================================
// Base defaults
// =============================================================================

type minimalStrategy struct {
	Base
	ticks int
}

func (s *minimalStrategy) OnTick(symbol string, price float64) { s.ticks++ }

func TestBase_ProvidesNoopDefaults(t *testing.T) {
	s := &minimalStrategy{Base: Base{StrategyName: "minimal"}}

	if s.Name() != "minimal" {
		t.Errorf("Name = %q", s.Name())
	}
	if err := s.OnStart(nil); err != nil {
		t.Errorf("OnStart default should be nil, got %v", err)
	}
	s.OnTimeEvent(clock.TimeEvent{})
	s.OnStop()
	s.OnTick("BTC-USD", 42000)
	if s.ticks != 1 {
		t.Errorf("override should win, ticks = %d", s.ticks)
	}
}
