// Package trader is the façade that wires a clock, strategies, the market
// data feed, order routing, and the portfolio into one start/stoppable unit.
// It is deliberately thin: the platform's behavior lives in the clock core
// and the strategies.
package trader

import (
	"fmt"
	"sync"
	"time"

	"github.com/mescon/tradecore/internal/clock"
	"github.com/mescon/tradecore/internal/datafeed"
	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/execution"
	"github.com/mescon/tradecore/internal/logger"
	"github.com/mescon/tradecore/internal/metrics"
	"github.com/mescon/tradecore/internal/portfolio"
	"github.com/mescon/tradecore/internal/strategy"
)

// Deps contains the collaborators a Trader orchestrates. Feed, Execution,
// Portfolio, and Metrics are optional; Clock and Bus are required.
type Deps struct {
	Clock     clock.Clock
	Bus       *eventbus.EventBus
	Feed      *datafeed.Client
	Execution *execution.Client
	Portfolio *portfolio.Portfolio
	Metrics   *metrics.MetricsService
}

// Trader owns the strategy set and the start/stop lifecycle.
type Trader struct {
	deps Deps

	mu         sync.Mutex
	strategies []strategy.Strategy
	started    bool
	startedAt  time.Time
}

// New creates a Trader. The clock and bus are required.
func New(deps Deps) (*Trader, error) {
	if deps.Clock == nil {
		return nil, fmt.Errorf("trader requires a clock")
	}
	if deps.Bus == nil {
		return nil, fmt.Errorf("trader requires an event bus")
	}
	return &Trader{deps: deps}, nil
}

// AddStrategy registers a strategy. Strategies cannot be added while the
// trader is running.
func (t *Trader) AddStrategy(s strategy.Strategy) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("cannot add strategy %q while running", s.Name())
	}
	for _, existing := range t.strategies {
		if existing.Name() == s.Name() {
			return fmt.Errorf("strategy %q already added", s.Name())
		}
	}
	t.strategies = append(t.strategies, s)
	return nil
}

// Start connects the data feed, fans market data out to the strategies, and
// calls each strategy's OnStart so it can register its timers.
func (t *Trader) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return fmt.Errorf("trader already started")
	}

	if t.deps.Portfolio != nil {
		t.deps.Portfolio.Start(t.deps.Bus)
	}

	t.deps.Bus.Subscribe(domain.FeedTick, func(e domain.Event) {
		symbol := e.GetStringOr("symbol", "")
		price, ok := e.GetFloat64("price")
		if symbol == "" || !ok {
			return
		}
		t.mu.Lock()
		running := t.started
		strategies := t.strategies
		t.mu.Unlock()
		if !running {
			return
		}
		for _, s := range strategies {
			s.OnTick(symbol, price)
		}
	})

	if t.deps.Feed != nil {
		if err := t.deps.Feed.Connect(); err != nil {
			return fmt.Errorf("failed to connect data feed: %w", err)
		}
	}

	ctx := t.Context()
	for i, s := range t.strategies {
		logger.Infof("Starting strategy %q", s.Name())
		if err := s.OnStart(ctx); err != nil {
			// Roll back the strategies that already started.
			for j := 0; j < i; j++ {
				t.strategies[j].OnStop()
			}
			t.deps.Clock.CancelAllTimers()
			if t.deps.Feed != nil {
				t.deps.Feed.Disconnect()
			}
			return fmt.Errorf("strategy %q failed to start: %w", s.Name(), err)
		}
		t.publish(domain.StrategyStarted, s.Name())
	}

	t.started = true
	t.startedAt = t.deps.Clock.TimeNow()
	t.publish(domain.TraderStarted, "trader")
	logger.Infof("Trader started with %d strategies", len(t.strategies))
	return nil
}

// Stop tears down in reverse dependency order: strategies first, then all
// timers, then the feed connection.
func (t *Trader) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	strategies := t.strategies
	t.mu.Unlock()

	for _, s := range strategies {
		s.OnStop()
		t.publish(domain.StrategyStopped, s.Name())
	}

	t.deps.Clock.CancelAllTimers()

	if t.deps.Feed != nil {
		t.deps.Feed.Disconnect()
	}

	t.publish(domain.TraderStopped, "trader")
	logger.Infof("Trader stopped")
}

// Context returns the platform context handed to strategies.
func (t *Trader) Context() *strategy.Context {
	return &strategy.Context{
		Clock:     t.deps.Clock,
		Bus:       t.deps.Bus,
		Execution: t.deps.Execution,
		Portfolio: t.deps.Portfolio,
		Metrics:   t.deps.Metrics,
	}
}

// Status is the read-only view the API serves.
type Status struct {
	Started       bool       `json:"started"`
	IsTestClock   bool       `json:"is_test_clock"`
	TimeNow       time.Time  `json:"time_now"`
	HasTimers     bool       `json:"has_timers"`
	NextEventTime *time.Time `json:"next_event_time,omitempty"`
	TimerLabels   []string   `json:"timer_labels"`
	FeedConnected bool       `json:"feed_connected"`
	BreakerState  string     `json:"breaker_state,omitempty"`
	Strategies    []string   `json:"strategies"`
}

// Status reports the current state of the trader and its clock.
func (t *Trader) Status() Status {
	t.mu.Lock()
	started := t.started
	names := make([]string, 0, len(t.strategies))
	for _, s := range t.strategies {
		names = append(names, s.Name())
	}
	t.mu.Unlock()

	labels := t.deps.Clock.TimerLabels()
	strLabels := make([]string, 0, len(labels))
	for _, l := range labels {
		strLabels = append(strLabels, l.Value())
	}

	st := Status{
		Started:     started,
		IsTestClock: t.deps.Clock.IsTestClock(),
		TimeNow:     t.deps.Clock.TimeNow(),
		HasTimers:   t.deps.Clock.HasTimers(),
		TimerLabels: strLabels,
		Strategies:  names,
	}
	if next, ok := t.deps.Clock.NextEventTime(); ok {
		st.NextEventTime = &next
	}
	if t.deps.Feed != nil {
		st.FeedConnected = t.deps.Feed.IsConnected()
	}
	if t.deps.Execution != nil {
		st.BreakerState = t.deps.Execution.BreakerState().String()
	}
	return st
}

func (t *Trader) publish(eventType domain.EventType, aggregateID string) {
	if err := t.deps.Bus.Publish(domain.Event{
		AggregateType: "trader",
		AggregateID:   aggregateID,
		EventType:     eventType,
	}); err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}
