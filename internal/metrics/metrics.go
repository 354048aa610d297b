package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
)

// MetricsService exposes Prometheus metrics for the trading platform.
type MetricsService struct {
	registry *prometheus.Registry
	eventBus *eventbus.EventBus

	// Counters
	timeEventsTotal      *prometheus.CounterVec
	handlerFailuresTotal prometheus.Counter
	ordersTotal          *prometheus.CounterVec
	feedTicksTotal       prometheus.Counter

	// Gauges
	timersActive  prometheus.Gauge
	feedConnected prometheus.Gauge

	// Histograms
	dispatchDuration prometheus.Histogram
}

// NewMetricsService creates and registers Prometheus metrics on a private
// registry and wires them to the event bus.
func NewMetricsService(eb *eventbus.EventBus) *MetricsService {
	m := &MetricsService{
		registry: prometheus.NewRegistry(),
		eventBus: eb,

		timeEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_time_events_total",
				Help: "Total number of time events fired, by timer label",
			},
			[]string{"label"},
		),

		handlerFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecore_handler_failures_total",
				Help: "Total number of time event handlers that panicked",
			},
		),

		ordersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradecore_orders_total",
				Help: "Total number of orders by outcome",
			},
			[]string{"outcome"}, // submitted, accepted, rejected
		),

		feedTicksTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "tradecore_feed_ticks_total",
				Help: "Total number of market data ticks received",
			},
		),

		timersActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecore_timers_active",
				Help: "Number of currently registered timers",
			},
		),

		feedConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradecore_feed_connected",
				Help: "Whether the market data feed is connected (1) or not (0)",
			},
		),

		dispatchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tradecore_dispatch_duration_seconds",
				Help:    "Time spent dispatching a time event to its handler",
				Buckets: prometheus.ExponentialBuckets(0.00001, 10, 7),
			},
		),
	}

	m.registry.MustRegister(
		m.timeEventsTotal,
		m.handlerFailuresTotal,
		m.ordersTotal,
		m.feedTicksTotal,
		m.timersActive,
		m.feedConnected,
		m.dispatchDuration,
	)

	if eb != nil {
		m.subscribe()
	}
	return m
}

func (m *MetricsService) subscribe() {
	m.eventBus.Subscribe(domain.TimerFired, func(e domain.Event) {
		m.timeEventsTotal.WithLabelValues(e.GetStringOr("label", "unknown")).Inc()
	})
	m.eventBus.Subscribe(domain.HandlerFailed, func(e domain.Event) {
		m.handlerFailuresTotal.Inc()
	})
	m.eventBus.Subscribe(domain.OrderSubmitted, func(e domain.Event) {
		m.ordersTotal.WithLabelValues("submitted").Inc()
	})
	m.eventBus.Subscribe(domain.OrderAccepted, func(e domain.Event) {
		m.ordersTotal.WithLabelValues("accepted").Inc()
	})
	m.eventBus.Subscribe(domain.OrderRejected, func(e domain.Event) {
		m.ordersTotal.WithLabelValues("rejected").Inc()
	})
	m.eventBus.Subscribe(domain.FeedTick, func(e domain.Event) {
		m.feedTicksTotal.Inc()
	})
	m.eventBus.Subscribe(domain.FeedConnected, func(e domain.Event) {
		m.feedConnected.Set(1)
	})
	m.eventBus.Subscribe(domain.FeedDisconnected, func(e domain.Event) {
		m.feedConnected.Set(0)
	})
}

// SetActiveTimers records the current size of the clock's timer registry.
func (m *MetricsService) SetActiveTimers(n int) {
	m.timersActive.Set(float64(n))
}

// ObserveDispatch records how long a handler dispatch took.
func (m *MetricsService) ObserveDispatch(d time.Duration) {
	m.dispatchDuration.Observe(d.Seconds())
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the private registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
}
