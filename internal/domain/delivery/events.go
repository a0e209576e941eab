// Package delivery defines the harvest-box delivery request lifecycle: its
// events, the pure state fold, and the transition rules.
package delivery

import (
	"encoding/json"
	"errors"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// Delivery request events. The aggregate is the request.
const (
	TypeRequestCreated   event.Type = "delivery.request_created"
	TypeRequestConfirmed event.Type = "delivery.request_confirmed"
	TypeRequestPreparing event.Type = "delivery.request_preparing"
	TypeRequestReady     event.Type = "delivery.request_ready"
	TypeRequestFulfilled event.Type = "delivery.request_fulfilled"
	TypeRequestCancelled event.Type = "delivery.request_cancelled"
	TypeSlotChanged      event.Type = "delivery.slot_changed"
)

// Mode selects the destination kind a request must carry.
type Mode string

const (
	// ModeDelivery ships the box to a member address.
	ModeDelivery Mode = "delivery"
	// ModePickup stages the box at a pickup location.
	ModePickup Mode = "pickup"
)

// IsValid reports whether the mode is a known destination kind.
func (m Mode) IsValid() bool {
	return m == ModeDelivery || m == ModePickup
}

// ActorType identifies who requested a transition. User-initiated
// cancellations are subject to the slot cutoff window; admin and system
// actors bypass it.
type ActorType string

const (
	ActorUser   ActorType = "user"
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

// CreatedPayload describes a new delivery request.
type CreatedPayload struct {
	HarvestID  string `json:"harvest_id"`
	AccountID  string `json:"account_id"`
	SlotID     string `json:"slot_id"`
	Mode       Mode   `json:"mode"`
	AddressID  string `json:"address_id,omitempty"`
	LocationID string `json:"location_id,omitempty"`
}

// CancelledPayload records who cancelled a request and why.
type CancelledPayload struct {
	Actor  ActorType `json:"actor"`
	Reason string    `json:"reason,omitempty"`
}

// SlotChangedPayload records a rescheduled time slot.
type SlotChangedPayload struct {
	SlotID string `json:"slot_id"`
}

// NewCreated constructs the creation event for a request.
func NewCreated(requestID string, payload CreatedPayload) event.Event {
	raw, _ := json.Marshal(payload)
	return event.Event{
		Type:        TypeRequestCreated,
		Version:     1,
		AggregateID: requestID,
		PayloadJSON: raw,
	}
}

// NewTransition constructs a bare lifecycle event of the given type.
func NewTransition(requestID string, typ event.Type) event.Event {
	return event.Event{
		Type:        typ,
		Version:     1,
		AggregateID: requestID,
		PayloadJSON: []byte("{}"),
	}
}

// NewCancelled constructs a cancellation event.
func NewCancelled(requestID string, actor ActorType, reason string) event.Event {
	raw, _ := json.Marshal(CancelledPayload{Actor: actor, Reason: reason})
	return event.Event{
		Type:        TypeRequestCancelled,
		Version:     1,
		AggregateID: requestID,
		PayloadJSON: raw,
	}
}

// NewSlotChanged constructs a slot change event.
func NewSlotChanged(requestID, slotID string) event.Event {
	raw, _ := json.Marshal(SlotChangedPayload{SlotID: slotID})
	return event.Event{
		Type:        TypeSlotChanged,
		Version:     1,
		AggregateID: requestID,
		PayloadJSON: raw,
	}
}

// RegisterEvents registers delivery events with the shared catalog.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	if err := registry.Register(event.Definition{
		Type:            TypeRequestCreated,
		Version:         1,
		ValidatePayload: validateCreatedPayload,
	}); err != nil {
		return err
	}
	for _, typ := range []event.Type{TypeRequestConfirmed, TypeRequestPreparing, TypeRequestReady, TypeRequestFulfilled} {
		if err := registry.Register(event.Definition{Type: typ, Version: 1}); err != nil {
			return err
		}
	}
	if err := registry.Register(event.Definition{
		Type:            TypeRequestCancelled,
		Version:         1,
		ValidatePayload: validateCancelledPayload,
	}); err != nil {
		return err
	}
	return registry.Register(event.Definition{
		Type:            TypeSlotChanged,
		Version:         1,
		ValidatePayload: validateSlotChangedPayload,
	})
}

func validateCreatedPayload(raw json.RawMessage) error {
	var payload CreatedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.HarvestID == "" {
		return errors.New("harvest id is required")
	}
	if payload.AccountID == "" {
		return errors.New("account id is required")
	}
	if payload.SlotID == "" {
		return errors.New("slot id is required")
	}
	if !payload.Mode.IsValid() {
		return errors.New("mode must be delivery or pickup")
	}
	switch payload.Mode {
	case ModeDelivery:
		if payload.AddressID == "" {
			return errors.New("address id is required for delivery mode")
		}
	case ModePickup:
		if payload.LocationID == "" {
			return errors.New("location id is required for pickup mode")
		}
	}
	return nil
}

func validateCancelledPayload(raw json.RawMessage) error {
	var payload CancelledPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	switch payload.Actor {
	case ActorUser, ActorAdmin, ActorSystem:
		return nil
	}
	return errors.New("actor must be user, admin, or system")
}

func validateSlotChangedPayload(raw json.RawMessage) error {
	var payload SlotChangedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.SlotID == "" {
		return errors.New("slot id is required")
	}
	return nil
}
