// Package ledger provides the sunflower currency service: balances and
// entry history are replayed from the journal, never stored.
package ledger

import (
	"context"
	"fmt"

	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/domain/ledger"
	"github.com/mittbeet/mittbeet/internal/platform/keymutex"
	"github.com/mittbeet/mittbeet/internal/projection"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// Service manages sunflower earn and spend operations for accounts.
type Service struct {
	store storage.EventStore
	locks *keymutex.Mutex
}

// NewService creates a ledger service backed by the event store.
func NewService(store storage.EventStore) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	return &Service{store: store, locks: keymutex.New()}, nil
}

func (s *Service) replay(ctx context.Context, accountID string) (ledger.State, error) {
	return projection.Replay(ctx, s.store,
		ledger.FoldHandledTypes(), []string{accountID},
		ledger.State{}, ledger.Fold)
}

// Balance replays the account ledger and returns its current balance.
func (s *Service) Balance(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, fmt.Errorf("account id is required")
	}
	state, err := s.replay(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("replay ledger for %s: %w", accountID, err)
	}
	return state.Balance, nil
}

// History returns ledger entries for an account, most recent first. Offset
// and limit page through the reversed list; limit <= 0 returns everything
// after offset.
func (s *Service) History(ctx context.Context, accountID string, offset, limit int) ([]ledger.Entry, error) {
	if accountID == "" {
		return nil, fmt.Errorf("account id is required")
	}
	if offset < 0 {
		return nil, fmt.Errorf("offset must not be negative")
	}
	state, err := s.replay(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("replay ledger for %s: %w", accountID, err)
	}

	entries := state.Entries
	reversed := make([]ledger.Entry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		reversed = append(reversed, entries[i])
	}
	if offset >= len(reversed) {
		return nil, nil
	}
	reversed = reversed[offset:]
	if limit > 0 && limit < len(reversed) {
		reversed = reversed[:limit]
	}
	return reversed, nil
}

// Earn credits sunflowers to an account. A zero amount is a no-op that
// appends nothing; a negative amount is an error, since debits must go
// through Spend to be balance-checked.
func (s *Service) Earn(ctx context.Context, accountID string, amount int, reason string) (event.Event, error) {
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}
	if amount < 0 {
		return event.Event{}, fmt.Errorf("earn amount must not be negative: %d", amount)
	}
	if amount == 0 {
		return event.Event{}, nil
	}
	return s.store.AppendEvent(ctx, ledger.NewEarned(accountID, amount, reason))
}

// EarnForPayment credits sunflowers tied to an external payment reference.
// The reference is kept on the event so a credit can be traced back to the
// payment that produced it.
func (s *Service) EarnForPayment(ctx context.Context, accountID string, amount int, reason, paymentRef string) (event.Event, error) {
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}
	if amount <= 0 {
		return event.Event{}, fmt.Errorf("earn amount must be positive: %d", amount)
	}
	if paymentRef == "" {
		return event.Event{}, fmt.Errorf("payment reference is required")
	}
	return s.store.AppendEvent(ctx, ledger.NewEarnedFromSource(accountID, amount, reason, paymentRef))
}

// Spend debits sunflowers from an account after a balance check. The check
// and the append run under a per-account lock, so two overlapping spends
// cannot both pass against the same balance.
func (s *Service) Spend(ctx context.Context, accountID string, amount int, reason string) (event.Event, error) {
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}
	if amount <= 0 {
		return event.Event{}, fmt.Errorf("spend amount must be positive: %d", amount)
	}

	unlock := s.locks.Lock("ledger/" + accountID)
	defer unlock()

	state, err := s.replay(ctx, accountID)
	if err != nil {
		return event.Event{}, fmt.Errorf("replay ledger for %s: %w", accountID, err)
	}
	if state.Balance < amount {
		return event.Event{}, ledger.InsufficientBalanceError{
			AccountID: accountID,
			Balance:   state.Balance,
			Requested: amount,
		}
	}
	return s.store.AppendEvent(ctx, ledger.NewSpent(accountID, amount, reason))
}
