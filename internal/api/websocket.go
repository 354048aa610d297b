package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/logger"
)

var upgrader = websocket.Upgrader{
	// Status streaming carries no credentials; same-host dashboards are the
	// expected consumers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// streamed filters the full bus stream down to the events mirrored to
// websocket clients. FeedTick is deliberately absent: tick volume belongs on
// the feed, not the status stream.
var streamed = map[domain.EventType]bool{
	domain.TimerSet:          true,
	domain.TimerFired:        true,
	domain.TimerCancelled:    true,
	domain.HandlerFailed:     true,
	domain.FeedConnected:     true,
	domain.FeedDisconnected:  true,
	domain.OrderSubmitted:    true,
	domain.OrderAccepted:     true,
	domain.OrderRejected:     true,
	domain.PositionUpdated:   true,
	domain.TraderStarted:     true,
	domain.TraderStopped:     true,
	domain.AccountRegistered: true,
	domain.StrategyStarted:   true,
	domain.StrategyStopped:   true,
}

type WebSocketHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan interface{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopChan   chan struct{}
	mu         sync.Mutex
	eventBus   *eventbus.EventBus
}

func NewWebSocketHub(eventBus *eventbus.EventBus) *WebSocketHub {
	return &WebSocketHub{
		broadcast:  make(chan interface{}, 64),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopChan:   make(chan struct{}),
		clients:    make(map[*websocket.Conn]bool),
		eventBus:   eventBus,
	}
}

// Run subscribes the hub to the bus stream and starts the broadcast loop.
func (h *WebSocketHub) Run() {
	if h.eventBus != nil {
		h.eventBus.SubscribeAll(func(e domain.Event) {
			if !streamed[e.EventType] {
				return
			}
			select {
			case h.broadcast <- e:
			default:
				// Drop rather than stall the bus.
			}
		})
	}
	go h.loop()
}

// Stop closes every client connection and ends the loop.
func (h *WebSocketHub) Stop() {
	close(h.stopChan)
}

func (h *WebSocketHub) loop() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.mu.Lock()
			if h.clients[conn] {
				delete(h.clients, conn)
				_ = conn.Close()
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteJSON(msg); err != nil {
					delete(h.clients, conn)
					_ = conn.Close()
				}
			}
			h.mu.Unlock()

		case <-h.stopChan:
			h.mu.Lock()
			for conn := range h.clients {
				_ = conn.Close()
			}
			h.clients = make(map[*websocket.Conn]bool)
			h.mu.Unlock()
			return
		}
	}
}

// HandleConnection upgrades the request and registers the client.
func (h *WebSocketHub) HandleConnection(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}
	h.register <- conn

	// Reader goroutine detects client departure.
	go func() {
		defer func() { h.unregister <- conn }()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
