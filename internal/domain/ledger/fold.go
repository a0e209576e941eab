package ledger

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// Entry is one signed ledger movement, in event order.
type Entry struct {
	Amount int
	Reason string
	Source string
	At     time.Time
}

// State is the projected sunflower ledger for one account.
type State struct {
	Balance int
	Entries []Entry
}

// FoldHandledTypes returns the event types handled by the ledger fold.
func FoldHandledTypes() []event.Type {
	return []event.Type{TypeSunflowersEarned, TypeSunflowersSpent}
}

// Fold applies one ledger event to the projected state. Unrecognized types
// pass through untouched so mixed-aggregate replays stay safe.
func Fold(state State, evt event.Event) (State, error) {
	switch evt.Type {
	case TypeSunflowersEarned:
		var payload EarnPayloadV2
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("ledger fold %s: %w", evt.Type, err)
		}
		state.Balance += payload.Amount
		state.Entries = append(state.Entries, Entry{
			Amount: payload.Amount,
			Reason: payload.Reason,
			Source: payload.Source,
			At:     evt.CreatedAt,
		})
	case TypeSunflowersSpent:
		var payload SpendPayload
		if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
			return state, fmt.Errorf("ledger fold %s: %w", evt.Type, err)
		}
		state.Balance -= payload.Amount
		state.Entries = append(state.Entries, Entry{
			Amount: -payload.Amount,
			Reason: payload.Reason,
			At:     evt.CreatedAt,
		})
	}
	return state, nil
}
