// Package strategy defines the contract trading strategies implement and the
// context through which they reach the platform: the clock, the bus, order
// routing, and the portfolio.
package strategy

import (
	"time"

	"github.com/mescon/tradecore/internal/clock"
	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/execution"
	"github.com/mescon/tradecore/internal/ident"
	"github.com/mescon/tradecore/internal/logger"
	"github.com/mescon/tradecore/internal/metrics"
	"github.com/mescon/tradecore/internal/portfolio"
)

// Strategy is implemented by trading strategies. The same implementation runs
// unchanged against a live clock or a test clock.
type Strategy interface {
	// Name identifies the strategy in logs and events.
	Name() string
	// OnStart is called once when the trader starts; strategies register
	// their timers and alerts here through the context.
	OnStart(ctx *Context) error
	// OnTimeEvent is not called by the trader or the Context; timer fires go
	// to the handler passed to the Context's timer setters.
	OnTimeEvent(ev clock.TimeEvent)
	// OnTick receives market data updates.
	OnTick(symbol string, price float64)
	// OnStop is called once during trader shutdown.
	OnStop()
}

// Context gives a strategy its platform handles. Timer registrations made
// through the context wrap the strategy handler with journaling, dispatch
// timing, and panic containment before reaching the clock; the raw clock is
// exposed for code that wants none of that.
type Context struct {
	Clock     clock.Clock
	Bus       *eventbus.EventBus
	Execution *execution.Client
	Portfolio *portfolio.Portfolio
	Metrics   *metrics.MetricsService
}

// SetTimeAlert registers a one-shot alert routed to the strategy handler.
func (c *Context) SetTimeAlert(label ident.Label, alertTime time.Time, handler clock.Handler) error {
	err := c.Clock.SetTimeAlert(label, alertTime, c.wrap(label, handler))
	c.afterRegistryChange(label, err, "alert")
	return err
}

// SetTimer registers a repeating timer routed to the strategy handler.
func (c *Context) SetTimer(label ident.Label, interval time.Duration, startTime, stopTime time.Time, handler clock.Handler) error {
	err := c.Clock.SetTimer(label, interval, startTime, stopTime, c.wrap(label, handler))
	c.afterRegistryChange(label, err, "timer")
	return err
}

// SetCronTimer registers a cron-schedule timer routed to the strategy handler.
func (c *Context) SetCronTimer(label ident.Label, spec string, stopTime time.Time, handler clock.Handler) error {
	err := c.Clock.SetCronTimer(label, spec, stopTime, c.wrap(label, handler))
	c.afterRegistryChange(label, err, "cron")
	return err
}

// CancelTimer cancels a timer registered through this context.
func (c *Context) CancelTimer(label ident.Label) {
	c.Clock.CancelTimer(label)
	c.publish(domain.TimerCancelled, label, nil)
	c.syncTimerGauge()
}

// wrap surrounds the strategy handler with journaling and panic containment.
// The clock's own contract never swallows a panic; the shell contains it here
// at the outermost layer, alerts, and keeps the trader alive.
func (c *Context) wrap(label ident.Label, handler clock.Handler) clock.Handler {
	if handler == nil {
		return nil
	}
	return func(ev clock.TimeEvent) {
		c.publish(domain.TimerFired, label, map[string]interface{}{
			"label": label.Value(),
			"ts":    ev.Timestamp.Format(time.RFC3339Nano),
		})
		started := time.Now()
		defer func() {
			if c.Metrics != nil {
				c.Metrics.ObserveDispatch(time.Since(started))
			}
			c.syncTimerGauge()
			if r := recover(); r != nil {
				logger.Errorf("Handler for timer %q panicked: %v", label.Value(), r)
				c.publish(domain.HandlerFailed, label, map[string]interface{}{
					"label": label.Value(),
					"error": stringify(r),
				})
			}
		}()
		handler(ev)
	}
}

func (c *Context) afterRegistryChange(label ident.Label, err error, kind string) {
	if err != nil {
		return
	}
	c.publish(domain.TimerSet, label, map[string]interface{}{"label": label.Value(), "kind": kind})
	c.syncTimerGauge()
}

func (c *Context) syncTimerGauge() {
	if c.Metrics != nil {
		c.Metrics.SetActiveTimers(len(c.Clock.TimerLabels()))
	}
}

func (c *Context) publish(eventType domain.EventType, label ident.Label, data map[string]interface{}) {
	if c.Bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{"label": label.Value()}
	}
	if err := c.Bus.Publish(domain.Event{
		AggregateType: "timer",
		AggregateID:   label.Value(),
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}

func stringify(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "panic"
}

// Base provides no-op defaults so strategies only implement the hooks they
// care about.
type Base struct {
	StrategyName string
}

func (b *Base) Name() string {
	return b.StrategyName
}

func (b *Base) OnStart(ctx *Context) error { return nil }

func (b *Base) OnTimeEvent(ev clock.TimeEvent) {}

func (b *Base) OnTick(symbol string, price float64) {}

func (b *Base) OnStop() {}
