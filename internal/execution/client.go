// Package execution routes orders to the venue's REST API, guarded by a
// circuit breaker so a sick venue fails fast rather than piling up requests.
package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/logger"
)

// Order is a submission to the venue.
type Order struct {
	ID     string  `json:"id"`
	Symbol string  `json:"symbol"`
	Side   string  `json:"side"` // "buy" or "sell"
	Qty    float64 `json:"qty"`
	Price  float64 `json:"price"`
}

// Ack is the venue's response to a submission.
type Ack struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
}

// Client is the execution-side connection of the trader.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	breaker *CircuitBreaker
	bus     *eventbus.EventBus
}

// NewClient creates an execution client for the venue at baseURL.
func NewClient(baseURL, apiKey string, bus *eventbus.EventBus) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
		breaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		bus:     bus,
	}
}

// SubmitOrder posts the order to the venue. Rejections — by the breaker or by
// the venue — are published as OrderRejected and returned as errors.
func (c *Client) SubmitOrder(ctx context.Context, order Order) (*Ack, error) {
	if !c.breaker.Allow() {
		c.publish(domain.OrderRejected, order, map[string]interface{}{"reason": "circuit open"})
		return nil, fmt.Errorf("venue circuit is open, order %s rejected", order.ID)
	}

	c.publish(domain.OrderSubmitted, order, nil)

	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.RecordFailure()
		c.publish(domain.OrderRejected, order, map[string]interface{}{"reason": err.Error()})
		return nil, fmt.Errorf("order submission failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		c.breaker.RecordFailure()
		return nil, fmt.Errorf("failed to read venue response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.breaker.RecordFailure()
		reason := fmt.Sprintf("venue returned %d", resp.StatusCode)
		c.publish(domain.OrderRejected, order, map[string]interface{}{"reason": reason})
		return nil, fmt.Errorf("order %s rejected: %s", order.ID, reason)
	}

	c.breaker.RecordSuccess()

	var ack Ack
	if err := json.Unmarshal(data, &ack); err != nil {
		return nil, fmt.Errorf("failed to decode venue ack: %w", err)
	}
	c.publish(domain.OrderAccepted, order, map[string]interface{}{
		"status": ack.Status,
		"symbol": order.Symbol,
		"side":   order.Side,
		"qty":    order.Qty,
		"price":  order.Price,
	})
	logger.Debugf("Order %s accepted by venue (%s)", order.ID, ack.Status)
	return &ack, nil
}

// BreakerState exposes the circuit state for the status API.
func (c *Client) BreakerState() CircuitState {
	return c.breaker.State()
}

func (c *Client) publish(eventType domain.EventType, order Order, data map[string]interface{}) {
	if c.bus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	if _, ok := data["symbol"]; !ok {
		data["symbol"] = order.Symbol
	}
	if err := c.bus.Publish(domain.Event{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}
