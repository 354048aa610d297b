package execution

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/testutil"
)

func newBusForTest(t *testing.T) *eventbus.EventBus {
	t.Helper()
	db, err := testutil.NewTestDB()
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	eb := eventbus.NewEventBus(db)
	t.Cleanup(eb.Shutdown)
	return eb
}

var testOrder = Order{ID: "o-1", Symbol: "BTC-USD", Side: "buy", Qty: 0.5, Price: 42000}

// =============================================================================
// SubmitOrder tests
// =============================================================================

func TestSubmitOrder_Accepted(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"order_id":"o-1","status":"accepted"}`))
	}))
	defer srv.Close()

	eb := newBusForTest(t)
	accepted := make(chan domain.Event, 1)
	eb.Subscribe(domain.OrderAccepted, func(e domain.Event) { accepted <- e })

	c := NewClient(srv.URL, "venue-key", eb)
	ack, err := c.SubmitOrder(context.Background(), testOrder)
	if err != nil {
		t.Fatalf("SubmitOrder failed: %v", err)
	}
	if ack.Status != "accepted" {
		t.Errorf("ack status = %q, want accepted", ack.Status)
	}
	if gotKey != "venue-key" {
		t.Errorf("X-Api-Key = %q, want venue-key", gotKey)
	}

	select {
	case e := <-accepted:
		if e.AggregateID != "o-1" {
			t.Errorf("event aggregate = %q, want o-1", e.AggregateID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("OrderAccepted was not published")
	}
}

func TestSubmitOrder_VenueRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "insufficient margin", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	eb := newBusForTest(t)
	rejected := make(chan domain.Event, 1)
	eb.Subscribe(domain.OrderRejected, func(e domain.Event) { rejected <- e })

	c := NewClient(srv.URL, "", eb)
	if _, err := c.SubmitOrder(context.Background(), testOrder); err == nil {
		t.Fatal("expected an error for a 422 response")
	}

	select {
	case <-rejected:
	case <-time.After(2 * time.Second):
		t.Fatal("OrderRejected was not published")
	}
}

func TestSubmitOrder_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", "", nil)
	c.breaker = NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, ResetTimeout: time.Hour})

	ctx := context.Background()
	_, _ = c.SubmitOrder(ctx, testOrder)
	_, _ = c.SubmitOrder(ctx, testOrder)

	if c.BreakerState() != CircuitOpen {
		t.Fatalf("breaker state = %s, want open", c.BreakerState())
	}

	// Next submission is rejected without touching the network.
	if _, err := c.SubmitOrder(ctx, testOrder); err == nil {
		t.Fatal("open breaker should reject the order")
	}
}

func TestSubmitOrder_RecoversAfterReset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"order_id":"o-1","status":"accepted"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	c.breaker = NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, SuccessThreshold: 1})

	c.breaker.RecordFailure()
	time.Sleep(20 * time.Millisecond)

	if _, err := c.SubmitOrder(context.Background(), testOrder); err != nil {
		t.Fatalf("probe submission should succeed: %v", err)
	}
	if c.BreakerState() != CircuitClosed {
		t.Errorf("breaker state = %s, want closed after probe success", c.BreakerState())
	}
}
