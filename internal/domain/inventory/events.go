// Package inventory defines the per-account item quantity ledger: add and
// consume events plus the pure fold deriving quantities per item key.
package inventory

import (
	"encoding/json"
	"errors"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

const (
	// TypeItemAdded records items credited to an account.
	TypeItemAdded event.Type = "inventory.item_added"
	// TypeItemConsumed records items debited from an account.
	TypeItemConsumed event.Type = "inventory.item_consumed"
)

// ItemPayload describes one inventory movement.
type ItemPayload struct {
	ItemType string `json:"item_type"`
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

// NewItemAdded constructs an add event for an account.
func NewItemAdded(accountID, itemType, itemID string, quantity int) event.Event {
	raw, _ := json.Marshal(ItemPayload{ItemType: itemType, ItemID: itemID, Quantity: quantity})
	return event.Event{
		Type:        TypeItemAdded,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: raw,
	}
}

// NewItemConsumed constructs a consume event for an account.
func NewItemConsumed(accountID, itemType, itemID string, quantity int) event.Event {
	raw, _ := json.Marshal(ItemPayload{ItemType: itemType, ItemID: itemID, Quantity: quantity})
	return event.Event{
		Type:        TypeItemConsumed,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: raw,
	}
}

// RegisterEvents registers inventory events with the shared catalog.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	if err := registry.Register(event.Definition{
		Type:            TypeItemAdded,
		Version:         1,
		ValidatePayload: validateItemPayload,
	}); err != nil {
		return err
	}
	return registry.Register(event.Definition{
		Type:            TypeItemConsumed,
		Version:         1,
		ValidatePayload: validateItemPayload,
	})
}

func validateItemPayload(raw json.RawMessage) error {
	var payload ItemPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.ItemType == "" {
		return errors.New("item type is required")
	}
	if payload.ItemID == "" {
		return errors.New("item id is required")
	}
	if payload.Quantity <= 0 {
		return errors.New("quantity must be positive")
	}
	return nil
}
