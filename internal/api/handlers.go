package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mescon/tradecore/internal/domain"
)

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Trader.Status())
}

// timerView is one row of the timer listing.
type timerView struct {
	Label string `json:"label"`
}

func (s *Server) handleTimers(c *gin.Context) {
	st := s.deps.Trader.Status()
	timers := make([]timerView, 0, len(st.TimerLabels))
	for _, label := range st.TimerLabels {
		timers = append(timers, timerView{Label: label})
	}
	resp := gin.H{
		"timers":     timers,
		"has_timers": st.HasTimers,
	}
	if st.NextEventTime != nil {
		resp["next_event_time"] = st.NextEventTime.Format(time.RFC3339Nano)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleEvents(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	rows, err := s.deps.DB.Query(`
		SELECT id, aggregate_type, aggregate_id, event_type, event_data, event_version, created_at
		FROM events ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to query events"})
		return
	}
	defer rows.Close()

	events := make([]domain.Event, 0, limit)
	for rows.Next() {
		var e domain.Event
		var data []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &data, &e.EventVersion, &e.CreatedAt); err != nil {
			continue
		}
		_ = json.Unmarshal(data, &e.EventData)
		events = append(events, e)
	}

	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}
