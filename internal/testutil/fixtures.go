package testutil

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mescon/tradecore/internal/domain"
)

// SeedEvent inserts an event row directly, bypassing the bus, for tests that
// need pre-existing journal state.
func SeedEvent(db *sql.DB, event domain.Event) error {
	data, err := json.Marshal(event.EventData)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.EventVersion == 0 {
		event.EventVersion = 1
	}
	_, err = db.Exec(`
		INSERT INTO events (aggregate_type, aggregate_id, event_type, event_data, event_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, event.AggregateType, event.AggregateID, event.EventType, data, event.EventVersion, event.CreatedAt)
	return err
}

// NewAggregateID returns a random aggregate ID for seeded fixtures.
func NewAggregateID() string {
	return uuid.New().String()
}

// CountEvents returns the number of journaled events of the given type.
func CountEvents(db *sql.DB, eventType domain.EventType) (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM events WHERE event_type = ?`, eventType).Scan(&n)
	return n, err
}
