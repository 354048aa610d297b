package clock

import (
	"fmt"
	"time"

	"github.com/mescon/tradecore/internal/ident"
)

// TimeEvent is the immutable record delivered to a handler when a timer fires.
// Identity is the ID; ordering is by timestamp, then label, so a batch of
// events harvested from overlapping timers sorts deterministically.
type TimeEvent struct {
	Label     ident.Label
	ID        ident.EventID
	Timestamp time.Time
}

// NewTimeEvent creates a TimeEvent for the given label at the given instant,
// assigning a fresh random ID.
func NewTimeEvent(label ident.Label, ts time.Time) TimeEvent {
	return TimeEvent{
		Label:     label,
		ID:        ident.NewEventID(),
		Timestamp: ts.UTC(),
	}
}

// Equal reports whether two events are the same event. Comparison is by ID
// only; label and timestamp are informational.
func (e TimeEvent) Equal(o TimeEvent) bool {
	return e.ID == o.ID
}

// Before orders events by timestamp ascending, tie-broken by label, which
// gives replays a stable global order.
func (e TimeEvent) Before(o TimeEvent) bool {
	if !e.Timestamp.Equal(o.Timestamp) {
		return e.Timestamp.Before(o.Timestamp)
	}
	return e.Label < o.Label
}

func (e TimeEvent) String() string {
	return fmt.Sprintf("TimeEvent(label=%s, id=%s, ts=%s)", e.Label.Value(), e.ID, e.Timestamp.Format(time.RFC3339Nano))
}
