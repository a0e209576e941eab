package inventory

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// Key identifies one inventory bucket within an account.
type Key struct {
	ItemType string
	ItemID   string
}

// State is the projected inventory for one account: the running signed total
// per item key, including zero and negative totals. Listings filter those
// out via Holdings.
type State struct {
	Quantities map[Key]int
}

// Holding is one positive inventory position.
type Holding struct {
	ItemType string
	ItemID   string
	Quantity int
}

// FoldHandledTypes returns the event types handled by the inventory fold.
func FoldHandledTypes() []event.Type {
	return []event.Type{TypeItemAdded, TypeItemConsumed}
}

// Fold applies one inventory event to the projected state.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case TypeItemAdded, TypeItemConsumed:
		var payload ItemPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("inventory fold %s: %w", evt.Type, err)
		}
		if state.Quantities == nil {
			state.Quantities = make(map[Key]int)
		}
		key := Key{ItemType: payload.ItemType, ItemID: payload.ItemID}
		if evt.Type == TypeItemAdded {
			state.Quantities[key] += payload.Quantity
		} else {
			state.Quantities[key] -= payload.Quantity
		}
	}
	return state, nil
}

// Quantity returns the current total for one item key.
func (s State) Quantity(itemType, itemID string) int {
	return s.Quantities[Key{ItemType: itemType, ItemID: itemID}]
}

// Holdings returns the positive positions in a stable order. Zero and
// negative totals are dropped.
func (s State) Holdings() []Holding {
	holdings := make([]Holding, 0, len(s.Quantities))
	for key, quantity := range s.Quantities {
		if quantity <= 0 {
			continue
		}
		holdings = append(holdings, Holding{ItemType: key.ItemType, ItemID: key.ItemID, Quantity: quantity})
	}
	sort.Slice(holdings, func(i, j int) bool {
		if holdings[i].ItemType != holdings[j].ItemType {
			return holdings[i].ItemType < holdings[j].ItemType
		}
		return holdings[i].ItemID < holdings[j].ItemID
	})
	return holdings
}

// InsufficientQuantityError is returned when a consume exceeds the current
// quantity for an item key.
type InsufficientQuantityError struct {
	AccountID string
	ItemType  string
	ItemID    string
	Quantity  int
	Requested int
}

func (e InsufficientQuantityError) Error() string {
	return fmt.Sprintf("insufficient inventory for account %s item %s/%s: have %d, requested %d",
		e.AccountID, e.ItemType, e.ItemID, e.Quantity, e.Requested)
}
