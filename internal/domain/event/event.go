// Package event defines the immutable event envelope and the closed catalog
// of event types the store will accept.
package event

import (
	"strings"
	"time"
)

// Type identifies the kind of an event as "<aggregate>.<action>".
type Type string

// Event represents an immutable fact in the append-only journal. Events are
// the sole source of truth: all current state is a deterministic fold over
// the ordered events of one aggregate.
type Event struct {
	// ID is the monotonic journal position. Assigned by storage on append.
	ID int64
	// Type identifies the kind of event.
	Type Type
	// Version is the payload-shape version for this type.
	Version int
	// AggregateID identifies the entity this event is about.
	AggregateID string
	// PayloadJSON holds event-specific data as JSON, keyed by (Type, Version).
	PayloadJSON []byte
	// CreatedAt is when the event was appended. Assigned by storage.
	CreatedAt time.Time
}

// IsValid reports whether the event type is usable.
func (t Type) IsValid() bool {
	return strings.TrimSpace(string(t)) != ""
}

// Family returns the aggregate-family prefix of the event type
// (e.g. "ledger", "delivery").
func (t Type) Family() string {
	for i, c := range t {
		if c == '.' {
			return string(t[:i])
		}
	}
	return string(t)
}
