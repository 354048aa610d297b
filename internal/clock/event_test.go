package clock

import (
	"sort"
	"testing"
	"time"

	"github.com/mescon/tradecore/internal/ident"
)

var t0 = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// =============================================================================
// TimeEvent identity tests
// =============================================================================

func TestNewTimeEvent_AssignsUniqueIDs(t *testing.T) {
	a := NewTimeEvent(ident.Label("a"), t0)
	b := NewTimeEvent(ident.Label("a"), t0)

	if a.Equal(b) {
		t.Error("events with distinct IDs should not be equal, even with same label and timestamp")
	}
	if !a.Equal(a) {
		t.Error("an event should equal itself")
	}
}

func TestNewTimeEvent_NormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	ev := NewTimeEvent(ident.Label("a"), t0.In(loc))

	if ev.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp location = %v, want UTC", ev.Timestamp.Location())
	}
	if !ev.Timestamp.Equal(t0) {
		t.Errorf("timestamp = %v, want %v", ev.Timestamp, t0)
	}
}

// =============================================================================
// TimeEvent ordering tests
// =============================================================================

func TestTimeEvent_Before_ByTimestamp(t *testing.T) {
	early := NewTimeEvent(ident.Label("z"), t0)
	late := NewTimeEvent(ident.Label("a"), t0.Add(time.Second))

	if !early.Before(late) {
		t.Error("earlier timestamp should order first regardless of label")
	}
	if late.Before(early) {
		t.Error("later timestamp should not order first")
	}
}

func TestTimeEvent_Before_TieBreakByLabel(t *testing.T) {
	a := NewTimeEvent(ident.Label("a"), t0)
	b := NewTimeEvent(ident.Label("b"), t0)

	if !a.Before(b) {
		t.Error("equal timestamps should tie-break by label ascending")
	}
	if b.Before(a) {
		t.Error("label tie-break should be strict")
	}
}

func TestTimeEvent_SortStable(t *testing.T) {
	events := []TimeEvent{
		NewTimeEvent(ident.Label("b"), t0.Add(2*time.Second)),
		NewTimeEvent(ident.Label("a"), t0.Add(2*time.Second)),
		NewTimeEvent(ident.Label("c"), t0.Add(time.Second)),
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Before(events[j]) })

	want := []string{"c", "a", "b"}
	for i, ev := range events {
		if ev.Label.Value() != want[i] {
			t.Errorf("position %d: label = %q, want %q", i, ev.Label.Value(), want[i])
		}
	}
}

func TestTimeEvent_String(t *testing.T) {
	ev := NewTimeEvent(ident.Label("a"), t0)
	s := ev.String()
	if s == "" {
		t.Error("String() should not be empty")
	}
}
