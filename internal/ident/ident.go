// Package ident provides the small identifier value types shared across the
// platform: timer labels and time event IDs.
package ident

import "github.com/google/uuid"

// Label identifies a timer within a single clock. Labels are plain strings,
// compared by value, and usable as map keys.
type Label string

// Value returns the underlying string.
func (l Label) Value() string {
	return string(l)
}

// IsEmpty reports whether the label is the empty string.
func (l Label) IsEmpty() bool {
	return l == ""
}

// EventID uniquely identifies a single time event. IDs are random UUIDs,
// compared by value.
type EventID uuid.UUID

// NewEventID returns a fresh random EventID.
func NewEventID() EventID {
	return EventID(uuid.New())
}

// String returns the canonical UUID string form.
func (id EventID) String() string {
	return uuid.UUID(id).String()
}
