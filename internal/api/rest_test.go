package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mescon/tradecore/internal/auth"
	"github.com/mescon/tradecore/internal/clock"
	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/ident"
	"github.com/mescon/tradecore/internal/testutil"
	"github.com/mescon/tradecore/internal/trader"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

type fixture struct {
	server *Server
	clock  *clock.TestClock
	trader *trader.Trader
	bus    *eventbus.EventBus
}

func newFixture(t *testing.T, tokenHash string) *fixture {
	t.Helper()
	db, err := testutil.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	eb := eventbus.NewEventBus(db)
	t.Cleanup(eb.Shutdown)

	tc := clock.NewTestClockAt(t0)
	tr, err := trader.New(trader.Deps{Clock: tc, Bus: eb})
	require.NoError(t, err)

	srv := NewServer(Deps{Trader: tr, DB: db, Bus: eb, TokenHash: tokenHash})
	return &fixture{server: srv, clock: tc, trader: tr, bus: eb}
}

func (f *fixture) get(path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("X-Api-Token", token)
	}
	rec := httptest.NewRecorder()
	f.server.Router().ServeHTTP(rec, req)
	return rec
}

// =============================================================================
// Health
// =============================================================================

func TestHealthz(t *testing.T) {
	f := newFixture(t, "")

	rec := f.get("/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["started"])
}

// =============================================================================
// Status and timers
// =============================================================================

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.clock.SetTimeAlert(ident.Label("a"), t0.Add(time.Minute), func(clock.TimeEvent) {}))

	rec := f.get("/api/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var st trader.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.IsTestClock)
	assert.True(t, st.HasTimers)
	assert.Equal(t, []string{"a"}, st.TimerLabels)
	require.NotNil(t, st.NextEventTime)
	assert.True(t, st.NextEventTime.Equal(t0.Add(time.Minute)))
}

func TestTimersEndpoint(t *testing.T) {
	f := newFixture(t, "")
	require.NoError(t, f.clock.SetTimeAlert(ident.Label("soon"), t0.Add(time.Second), func(clock.TimeEvent) {}))
	require.NoError(t, f.clock.SetTimeAlert(ident.Label("late"), t0.Add(time.Hour), func(clock.TimeEvent) {}))

	rec := f.get("/api/v1/timers", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Timers []timerView `json:"timers"`
		Has    bool        `json:"has_timers"`
		Next   string      `json:"next_event_time"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Timers, 2)
	// Ordered by next fire time.
	assert.Equal(t, "soon", body.Timers[0].Label)
	assert.Equal(t, "late", body.Timers[1].Label)
	assert.True(t, body.Has)
	assert.NotEmpty(t, body.Next)
}

// =============================================================================
// Events journal
// =============================================================================

func TestEventsEndpoint(t *testing.T) {
	f := newFixture(t, "")

	require.NoError(t, f.bus.Publish(domain.Event{
		AggregateType: "timer",
		AggregateID:   "a",
		EventType:     domain.TimerFired,
		EventData:     map[string]interface{}{"label": "a"},
	}))

	rec := f.get("/api/v1/events?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Events []domain.Event `json:"events"`
		Count  int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 1, body.Count)
	assert.Equal(t, domain.TimerFired, body.Events[0].EventType)
	assert.Equal(t, "a", body.Events[0].GetStringOr("label", ""))
}

func TestEventsEndpoint_LimitClamped(t *testing.T) {
	f := newFixture(t, "")
	rec := f.get("/api/v1/events?limit=99999", "")
	require.Equal(t, http.StatusOK, rec.Code)
}

// =============================================================================
// Authentication
// =============================================================================

func TestAuth_MissingTokenRejected(t *testing.T) {
	hash, err := auth.HashToken("letmein")
	require.NoError(t, err)
	f := newFixture(t, hash)

	rec := f.get("/api/v1/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.get("/api/v1/status", "wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.get("/api/v1/status", "letmein")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_HealthzAlwaysOpen(t *testing.T) {
	hash, err := auth.HashToken("letmein")
	require.NoError(t, err)
	f := newFixture(t, hash)

	rec := f.get("/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
