// Package datafeed maintains the websocket connection to the market data
// feed, publishing ticks and connection lifecycle events to the bus.
package datafeed

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/logger"
)

// maxReconnectWait caps the exponential backoff between reconnect attempts.
const maxReconnectWait = time.Minute

// Tick is one market data update from the feed.
type Tick struct {
	Symbol string    `json:"symbol"`
	Price  float64   `json:"price"`
	Ts     time.Time `json:"ts"`
}

// Client is the data-side connection of the trader. It owns one websocket
// connection and a read loop; on read failure it reconnects with exponential
// backoff until Disconnect is called.
type Client struct {
	url           string
	bus           *eventbus.EventBus
	reconnectWait time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	stopChan  chan struct{}
	stopped   bool
	wg        sync.WaitGroup
}

// NewClient creates a feed client for the given websocket URL.
func NewClient(url string, bus *eventbus.EventBus, reconnectWait time.Duration) *Client {
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	return &Client{
		url:           url,
		bus:           bus,
		reconnectWait: reconnectWait,
		stopChan:      make(chan struct{}),
	}
}

// Connect dials the feed and starts the read loop.
func (c *Client) Connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	logger.Infof("Feed connected: %s", c.url)
	c.publish(domain.FeedConnected, map[string]interface{}{"url": c.url})

	c.wg.Add(1)
	go c.readLoop(conn)
	return nil
}

// Disconnect stops the read loop and closes the connection.
func (c *Client) Disconnect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.stopped = true
	close(c.stopChan)
	conn := c.conn
	c.connected = false
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
	logger.Infof("Feed disconnected")
}

// IsConnected reports whether the read loop currently holds a live connection.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.wg.Done()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.connected = false
			stopped := c.stopped
			c.mu.Unlock()

			if stopped {
				return
			}
			logger.Warnf("Feed read failed: %v", err)
			c.publish(domain.FeedDisconnected, map[string]interface{}{"reason": err.Error()})
			c.reconnect()
			return
		}

		var tick Tick
		if err := json.Unmarshal(msg, &tick); err != nil {
			logger.Debugf("Ignoring malformed feed message: %v", err)
			continue
		}
		c.publish(domain.FeedTick, map[string]interface{}{
			"symbol": tick.Symbol,
			"price":  tick.Price,
			"ts":     tick.Ts.Format(time.RFC3339Nano),
		})
	}
}

// reconnect retries the dial with doubling backoff until it succeeds or the
// client is stopped.
func (c *Client) reconnect() {
	wait := c.reconnectWait
	for {
		select {
		case <-c.stopChan:
			return
		case <-time.After(wait):
		}

		conn, _, err := websocket.DefaultDialer.Dial(c.url, nil)
		if err == nil {
			c.mu.Lock()
			if c.stopped {
				c.mu.Unlock()
				_ = conn.Close()
				return
			}
			c.conn = conn
			c.connected = true
			c.mu.Unlock()

			logger.Infof("Feed reconnected: %s", c.url)
			c.publish(domain.FeedConnected, map[string]interface{}{"url": c.url})

			c.wg.Add(1)
			go c.readLoop(conn)
			return
		}

		wait *= 2
		if wait > maxReconnectWait {
			wait = maxReconnectWait
		}
		logger.Warnf("Feed reconnect failed: %v (next attempt in %s)", err, wait)
	}
}

func (c *Client) publish(eventType domain.EventType, data map[string]interface{}) {
	if c.bus == nil {
		return
	}
	if err := c.bus.Publish(domain.Event{
		AggregateType: "feed",
		AggregateID:   c.url,
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}
