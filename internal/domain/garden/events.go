// Package garden defines raw garden-activity events. These facts are
// appended by the activity write paths and scanned in bulk by the
// achievement evaluator; they carry the account as their aggregate.
package garden

import (
	"encoding/json"
	"errors"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

const (
	// TypePlanted records a plant put into a bed.
	TypePlanted event.Type = "garden.planted"
	// TypeHarvested records a harvest taken from a bed.
	TypeHarvested event.Type = "garden.harvested"
	// TypeWatered records a watering pass over a bed.
	TypeWatered event.Type = "garden.watered"
	// TypeMemberRegistered records the one-time member registration.
	TypeMemberRegistered event.Type = "garden.member_registered"
)

// ActivityPayload describes a bed-scoped garden action.
type ActivityPayload struct {
	BedID string `json:"bed_id"`
	Crop  string `json:"crop,omitempty"`
}

// NewPlanted constructs a planting event for an account.
func NewPlanted(accountID, bedID, crop string) event.Event {
	return activityEvent(TypePlanted, accountID, bedID, crop)
}

// NewHarvested constructs a harvest event for an account.
func NewHarvested(accountID, bedID, crop string) event.Event {
	return activityEvent(TypeHarvested, accountID, bedID, crop)
}

// NewWatered constructs a watering event for an account.
func NewWatered(accountID, bedID string) event.Event {
	return activityEvent(TypeWatered, accountID, bedID, "")
}

// NewMemberRegistered constructs the registration event for an account.
func NewMemberRegistered(accountID string) event.Event {
	return event.Event{
		Type:        TypeMemberRegistered,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: []byte("{}"),
	}
}

func activityEvent(typ event.Type, accountID, bedID, crop string) event.Event {
	raw, _ := json.Marshal(ActivityPayload{BedID: bedID, Crop: crop})
	return event.Event{
		Type:        typ,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: raw,
	}
}

// RegisterEvents registers garden activity events with the shared catalog.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	for _, typ := range []event.Type{TypePlanted, TypeHarvested, TypeWatered} {
		if err := registry.Register(event.Definition{
			Type:            typ,
			Version:         1,
			ValidatePayload: validateActivityPayload,
		}); err != nil {
			return err
		}
	}
	return registry.Register(event.Definition{Type: TypeMemberRegistered, Version: 1})
}

func validateActivityPayload(raw json.RawMessage) error {
	var payload ActivityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.BedID == "" {
		return errors.New("bed id is required")
	}
	return nil
}
