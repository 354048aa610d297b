// Package api provides the REST and WebSocket status surface of the trader:
// health, clock/timer state, the recent event journal, Prometheus metrics,
// and a live event stream.
package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tradecore/internal/auth"
	"github.com/mescon/tradecore/internal/config"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/logger"
	"github.com/mescon/tradecore/internal/metrics"
	"github.com/mescon/tradecore/internal/trader"
)

// Deps contains all dependencies required for the REST server
type Deps struct {
	Trader    *trader.Trader
	DB        *sql.DB
	Bus       *eventbus.EventBus
	Metrics   *metrics.MetricsService
	TokenHash string
}

type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Deps
	hub        *WebSocketHub
	startTime  time.Time
}

// NewServer builds the router. Call Start to begin serving.
func NewServer(deps Deps) *Server {
	// Release mode suppresses gin's debug noise in production.
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Errorf("[PANIC RECOVERY] path=%s method=%s error=%v", c.Request.URL.Path, c.Request.Method, recovered)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}))

	s := &Server{
		router:    r,
		deps:      deps,
		hub:       NewWebSocketHub(deps.Bus),
		startTime: time.Now().UTC(),
	}

	// Unauthenticated: health probe and metrics scrape.
	r.GET("/healthz", s.handleHealth)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	v1 := r.Group("/api/v1", s.authMiddleware())
	{
		v1.GET("/status", s.handleStatus)
		v1.GET("/timers", s.handleTimers)
		v1.GET("/events", s.handleEvents)
	}

	r.GET("/ws", s.authMiddleware(), s.hub.HandleConnection)

	return s
}

// authMiddleware checks X-Api-Token against the configured bcrypt hash. An
// empty hash disables authentication.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.TokenHash == "" {
			c.Next()
			return
		}
		token := c.GetHeader("X-Api-Token")
		if token == "" || !auth.CheckToken(s.deps.TokenHash, token) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing API token"})
			return
		}
		c.Next()
	}
}

// Start runs the HTTP server and the websocket hub.
func (s *Server) Start(port string) error {
	s.hub.Run()

	s.httpServer = &http.Server{
		Addr:              ":" + port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Infof("Status API listening on :%s", port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status API failed: %w", err)
	}
	return nil
}

// Shutdown drains the HTTP server and stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Stop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.deps.Trader.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": config.Version,
		"uptime":  formatUptime(time.Since(s.startTime)),
		"started": st.Started,
	})
}

// formatUptime returns a human-readable uptime string
func formatUptime(uptime time.Duration) string {
	days := int(uptime.Hours()) / 24
	hours := int(uptime.Hours()) % 24
	minutes := int(uptime.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
