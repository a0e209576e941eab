// Package ledger defines the sunflower reward-currency events and the pure
// fold that derives an account balance from them.
package ledger

import (
	"encoding/json"
	"errors"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// Sunflower ledger events. The aggregate is the account.
const (
	// TypeSunflowersEarned records sunflowers credited to an account.
	TypeSunflowersEarned event.Type = "ledger.sunflowers_earned"
	// TypeSunflowersSpent records sunflowers debited from an account.
	TypeSunflowersSpent event.Type = "ledger.sunflowers_spent"
)

// EarnPayload is the v1 earn payload.
type EarnPayload struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// EarnPayloadV2 extends the earn payload with the crediting source, e.g. a
// payment reference. V1 events remain replayable; the fold reads both shapes.
type EarnPayloadV2 struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
	Source string `json:"source"`
}

// SpendPayload is the spend payload.
type SpendPayload struct {
	Amount int    `json:"amount"`
	Reason string `json:"reason"`
}

// NewEarned constructs a v1 earn event for an account.
func NewEarned(accountID string, amount int, reason string) event.Event {
	payload, _ := json.Marshal(EarnPayload{Amount: amount, Reason: reason})
	return event.Event{
		Type:        TypeSunflowersEarned,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: payload,
	}
}

// NewEarnedFromSource constructs a v2 earn event carrying the crediting source.
func NewEarnedFromSource(accountID string, amount int, reason, source string) event.Event {
	payload, _ := json.Marshal(EarnPayloadV2{Amount: amount, Reason: reason, Source: source})
	return event.Event{
		Type:        TypeSunflowersEarned,
		Version:     2,
		AggregateID: accountID,
		PayloadJSON: payload,
	}
}

// NewSpent constructs a spend event for an account.
func NewSpent(accountID string, amount int, reason string) event.Event {
	payload, _ := json.Marshal(SpendPayload{Amount: amount, Reason: reason})
	return event.Event{
		Type:        TypeSunflowersSpent,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: payload,
	}
}

// RegisterEvents registers ledger events with the shared catalog.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	if err := registry.Register(event.Definition{
		Type:            TypeSunflowersEarned,
		Version:         1,
		ValidatePayload: validateEarnPayload,
	}); err != nil {
		return err
	}
	if err := registry.Register(event.Definition{
		Type:            TypeSunflowersEarned,
		Version:         2,
		ValidatePayload: validateEarnPayload,
	}); err != nil {
		return err
	}
	return registry.Register(event.Definition{
		Type:            TypeSunflowersSpent,
		Version:         1,
		ValidatePayload: validateSpendPayload,
	})
}

// validateEarnPayload ensures earn payloads carry a positive amount. The v2
// shape is a superset of v1, so one validator covers both versions.
func validateEarnPayload(raw json.RawMessage) error {
	var payload EarnPayloadV2
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}

func validateSpendPayload(raw json.RawMessage) error {
	var payload SpendPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Amount <= 0 {
		return errors.New("amount must be positive")
	}
	return nil
}
