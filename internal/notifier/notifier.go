// Package notifier sends lifecycle and failure alerts to configured shoutrrr
// URLs, throttled per alert kind so a flapping feed cannot flood a channel.
package notifier

import (
	"fmt"
	"sync"
	"time"

	"github.com/containrrr/shoutrrr"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/logger"
)

// sendFunc is swappable for tests.
type sendFunc func(url, message string) error

// Notifier fans alert messages out to a fixed set of shoutrrr URLs.
type Notifier struct {
	urls     []string
	throttle time.Duration

	mu       sync.Mutex
	lastSent map[string]time.Time // key: alert kind

	send sendFunc
}

// New creates a Notifier for the given shoutrrr URLs. A zero throttle
// disables throttling.
func New(urls []string, throttle time.Duration) *Notifier {
	return &Notifier{
		urls:     urls,
		throttle: throttle,
		lastSent: make(map[string]time.Time),
		send:     shoutrrr.Send,
	}
}

// Start subscribes the notifier to the alert-worthy bus events.
func (n *Notifier) Start(eb *eventbus.EventBus) {
	eb.Subscribe(domain.TraderStarted, func(e domain.Event) {
		n.Notify(string(domain.TraderStarted), "Trader started")
	})
	eb.Subscribe(domain.TraderStopped, func(e domain.Event) {
		n.Notify(string(domain.TraderStopped), "Trader stopped")
	})
	eb.Subscribe(domain.FeedDisconnected, func(e domain.Event) {
		n.Notify(string(domain.FeedDisconnected),
			fmt.Sprintf("Market data feed disconnected: %s", e.GetStringOr("reason", "unknown")))
	})
	eb.Subscribe(domain.HandlerFailed, func(e domain.Event) {
		n.Notify(string(domain.HandlerFailed),
			fmt.Sprintf("Timer handler failed for label %q: %s",
				e.GetStringOr("label", "?"), e.GetStringOr("error", "unknown")))
	})
	eb.Subscribe(domain.OrderRejected, func(e domain.Event) {
		n.Notify(string(domain.OrderRejected),
			fmt.Sprintf("Order %s rejected: %s", e.AggregateID, e.GetStringOr("reason", "unknown")))
	})
}

// Notify sends the message to every configured URL, unless an alert of the
// same kind went out within the throttle window.
func (n *Notifier) Notify(kind, message string) {
	if len(n.urls) == 0 {
		return
	}
	if !n.canSend(kind) {
		logger.Debugf("Notification %q throttled", kind)
		return
	}

	for _, url := range n.urls {
		if err := n.send(url, message); err != nil {
			logger.Errorf("Failed to send notification via %s: %v", redact(url), err)
		}
	}
}

func (n *Notifier) canSend(kind string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.throttle <= 0 {
		return true
	}
	if last, ok := n.lastSent[kind]; ok && time.Since(last) < n.throttle {
		return false
	}
	n.lastSent[kind] = time.Now()
	return true
}

// redact trims a shoutrrr URL to its scheme so tokens never reach the log.
func redact(url string) string {
	for i := 0; i < len(url); i++ {
		if url[i] == ':' {
			return url[:i]
		}
	}
	return "url"
}
