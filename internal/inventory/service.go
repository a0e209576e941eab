// Package inventory provides the member item ledger: seeds, tools, and
// other garden items tracked as journal events and replayed into holdings.
package inventory

import (
	"context"
	"fmt"

	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/domain/inventory"
	"github.com/mittbeet/mittbeet/internal/platform/keymutex"
	"github.com/mittbeet/mittbeet/internal/projection"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// Service manages item movements for accounts.
type Service struct {
	store storage.EventStore
	locks *keymutex.Mutex
}

// NewService creates an inventory service backed by the event store.
func NewService(store storage.EventStore) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	return &Service{store: store, locks: keymutex.New()}, nil
}

func (s *Service) replay(ctx context.Context, accountID string) (inventory.State, error) {
	return projection.Replay(ctx, s.store,
		inventory.FoldHandledTypes(), []string{accountID},
		inventory.State{}, inventory.Fold)
}

// Add credits items to an account.
func (s *Service) Add(ctx context.Context, accountID, itemType, itemID string, quantity int) (event.Event, error) {
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}
	if quantity <= 0 {
		return event.Event{}, fmt.Errorf("quantity must be positive: %d", quantity)
	}
	return s.store.AppendEvent(ctx, inventory.NewItemAdded(accountID, itemType, itemID, quantity))
}

// Consume debits items from an account after a quantity check. The check and
// the append run under a per-account lock, so two overlapping consumes cannot
// both pass against the same holding.
func (s *Service) Consume(ctx context.Context, accountID, itemType, itemID string, quantity int) (event.Event, error) {
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}
	if quantity <= 0 {
		return event.Event{}, fmt.Errorf("quantity must be positive: %d", quantity)
	}

	unlock := s.locks.Lock("inventory/" + accountID)
	defer unlock()

	state, err := s.replay(ctx, accountID)
	if err != nil {
		return event.Event{}, fmt.Errorf("replay inventory for %s: %w", accountID, err)
	}
	have := state.Quantity(itemType, itemID)
	if have < quantity {
		return event.Event{}, inventory.InsufficientQuantityError{
			AccountID: accountID,
			ItemType:  itemType,
			ItemID:    itemID,
			Quantity:  have,
			Requested: quantity,
		}
	}
	return s.store.AppendEvent(ctx, inventory.NewItemConsumed(accountID, itemType, itemID, quantity))
}

// List replays the account inventory and returns its current holdings,
// omitting exhausted items.
func (s *Service) List(ctx context.Context, accountID string) ([]inventory.Holding, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	state, err := s.replay(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("replay inventory for %s: %w", accountID, err)
	}
	return state.Holdings(), nil
}
