// Package eventbus is the platform's internal pub/sub. Every event is
// appended to the SQLite journal first, then fanned out to in-memory
// subscribers over buffered channels. Publishing sits on the trading path
// (timer trampolines, the feed read loop), so a slow subscriber never blocks
// a publisher: the event is dropped for that subscriber and the loss is
// counted, logged, and reported at shutdown.
package eventbus

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mescon/tradecore/internal/db"
	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/logger"
)

// subscriberBuffer is the per-subscriber channel depth. Bursts larger than
// this (a backtest-sized advance batch, a feed reconnect storm) start
// dropping for the subscriber that can't keep up.
const subscriberBuffer = 100

// Publisher defines the interface for publishing events.
// This interface enables testing with mock implementations.
type Publisher interface {
	Publish(event domain.Event) error
	Subscribe(eventType domain.EventType, handler func(domain.Event))
}

// Ensure EventBus implements Publisher
var _ Publisher = (*EventBus)(nil)

// subscriber is one registered handler and its delivery channel. A nil types
// set means the subscriber wants every event (the websocket stream).
type subscriber struct {
	name    string
	types   map[domain.EventType]bool
	ch      chan domain.Event
	dropped atomic.Int64
}

func (s *subscriber) wants(et domain.EventType) bool {
	return s.types == nil || s.types[et]
}

type EventBus struct {
	journal *sql.DB

	mu   sync.RWMutex
	subs []*subscriber

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewEventBus(journal *sql.DB) *EventBus {
	return &EventBus{
		journal:  journal,
		stopChan: make(chan struct{}),
	}
}

// Publish journals the event, then offers it to every matching subscriber
// without blocking. The journal write is the source of truth; fan-out is
// best-effort.
func (eb *EventBus) Publish(event domain.Event) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC() // UTC for consistent SQLite date parsing
	}
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}

	eventDataJSON, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	res, err := db.ExecWithRetry(eb.journal, `
        INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, event.AggregateType, event.AggregateID, event.EventType, eventDataJSON, event.EventVersion, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to journal event: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		event.ID = id
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()
	for _, sub := range eb.subs {
		if !sub.wants(event.EventType) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			if sub.dropped.Add(1) == 1 {
				logger.Warnf("EventBus: subscriber %q fell behind, dropping events", sub.name)
			}
		}
	}
	return nil
}

// Subscribe registers a handler for a single event type.
func (eb *EventBus) Subscribe(eventType domain.EventType, handler func(domain.Event)) {
	eb.add(string(eventType), map[domain.EventType]bool{eventType: true}, handler)
}

// SubscribeAll registers a handler for every event type. Used by consumers
// that mirror the whole stream, like the websocket hub.
func (eb *EventBus) SubscribeAll(handler func(domain.Event)) {
	eb.add("all", nil, handler)
}

func (eb *EventBus) add(name string, types map[domain.EventType]bool, handler func(domain.Event)) {
	sub := &subscriber{
		name:  name,
		types: types,
		ch:    make(chan domain.Event, subscriberBuffer),
	}

	eb.mu.Lock()
	eb.subs = append(eb.subs, sub)
	eb.mu.Unlock()

	eb.wg.Add(1)
	go func() {
		defer eb.wg.Done()
		for {
			select {
			case event := <-sub.ch:
				handler(event)
			case <-eb.stopChan:
				return
			}
		}
	}()
}

// Dropped returns the total number of events lost to slow subscribers.
func (eb *EventBus) Dropped() int64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	var total int64
	for _, sub := range eb.subs {
		total += sub.dropped.Load()
	}
	return total
}

// Shutdown stops all subscriber goroutines and waits for them to finish.
func (eb *EventBus) Shutdown() {
	close(eb.stopChan)
	eb.wg.Wait()
	if n := eb.Dropped(); n > 0 {
		logger.Warnf("EventBus shutdown: %d events were dropped by slow subscribers", n)
	} else {
		logger.Infof("EventBus shutdown complete")
	}
}
