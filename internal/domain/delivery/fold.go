package delivery

import (
	"encoding/json"
	"fmt"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// FoldHandledTypes returns the event types handled by the delivery fold.
func FoldHandledTypes() []event.Type {
	return []event.Type{
		TypeRequestCreated,
		TypeRequestConfirmed,
		TypeRequestPreparing,
		TypeRequestReady,
		TypeRequestFulfilled,
		TypeRequestCancelled,
		TypeSlotChanged,
	}
}

// Fold applies one delivery event to the projected request state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case TypeRequestCreated:
		var payload CreatedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("delivery fold %s: %w", evt.Type, err)
		}
		state.Exists = true
		state.Status = StatusPending
		state.HarvestID = payload.HarvestID
		state.AccountID = payload.AccountID
		state.SlotID = payload.SlotID
		state.Mode = payload.Mode
		state.AddressID = payload.AddressID
		state.LocationID = payload.LocationID
	case TypeRequestConfirmed:
		state.Status = StatusConfirmed
	case TypeRequestPreparing:
		state.Status = StatusPreparing
	case TypeRequestReady:
		state.Status = StatusReady
	case TypeRequestFulfilled:
		state.Status = StatusFulfilled
	case TypeRequestCancelled:
		var payload CancelledPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("delivery fold %s: %w", evt.Type, err)
		}
		state.Status = StatusCancelled
		state.CancelledBy = payload.Actor
	case TypeSlotChanged:
		var payload SlotChangedPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("delivery fold %s: %w", evt.Type, err)
		}
		state.SlotID = payload.SlotID
	}
	return state, nil
}
