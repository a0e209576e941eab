// Package projection replays journal events through pure fold functions.
// Projections are never stored; state is rebuilt from the journal on demand,
// so a fold over the same events always yields the same state.
package projection

import (
	"context"
	"fmt"

	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// defaultPageSize bounds how many events a single query pulls into memory.
const defaultPageSize = 500

// FoldFunc applies one event to a projection state.
type FoldFunc[S any] func(state S, evt event.Event) (S, error)

// Replay folds every journal event matching types and aggregateIDs, in
// journal order, starting from initial. Events are paged so arbitrarily long
// histories replay in bounded memory.
func Replay[S any](ctx context.Context, store storage.EventStore, types []event.Type, aggregateIDs []string, initial S, fold FoldFunc[S]) (S, error) {
	state := initial
	if store == nil {
		return state, fmt.Errorf("event store is required")
	}
	if fold == nil {
		return state, fmt.Errorf("fold function is required")
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return state, err
		}
		events, err := store.QueryEvents(ctx, storage.EventQuery{
			Types:        types,
			AggregateIDs: aggregateIDs,
			Offset:       offset,
			Limit:        defaultPageSize,
		})
		if err != nil {
			return state, fmt.Errorf("query events at offset %d: %w", offset, err)
		}
		for _, evt := range events {
			state, err = fold(state, evt)
			if err != nil {
				return state, fmt.Errorf("fold event %d (%s): %w", evt.ID, evt.Type, err)
			}
		}
		if len(events) < defaultPageSize {
			return state, nil
		}
		offset += len(events)
	}
}
