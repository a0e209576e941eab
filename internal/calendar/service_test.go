package calendar

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mittbeet/mittbeet/internal/domain/calendar"
	"github.com/mittbeet/mittbeet/internal/domain/catalog"
	"github.com/mittbeet/mittbeet/internal/domain/ledger"
	"github.com/mittbeet/mittbeet/internal/storage"
	"github.com/mittbeet/mittbeet/internal/storage/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	registry, err := catalog.BuildRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "calendar.db"), registry)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestOpenDayAppliesRewardOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	reward := func(ctx context.Context, accountID string, year, day int, append storage.AppendFunc) error {
		_, err := append(ledger.NewEarned(accountID, 5, "advent calendar"))
		return err
	}
	service, err := NewService(store, reward)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	opened, err := service.OpenDay(ctx, "acct-1", 2026, 6)
	if err != nil {
		t.Fatalf("open day: %v", err)
	}
	if opened.Type != calendar.TypeDayOpened {
		t.Fatalf("expected %s, got %s", calendar.TypeDayOpened, opened.Type)
	}

	_, err = service.OpenDay(ctx, "acct-1", 2026, 6)
	var dupErr calendar.DayAlreadyOpenedError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DayAlreadyOpenedError, got %v", err)
	}

	events, err := store.QueryEvents(ctx, storage.EventQuery{
		AggregateIDs: []string{"acct-1"},
		Limit:        10,
	})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected open event plus one reward, got %d events", len(events))
	}
}

func TestOpenDayValidatesInput(t *testing.T) {
	service, err := NewService(newTestStore(t), nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	if _, err := service.OpenDay(ctx, "", 2026, 1); err == nil {
		t.Fatal("expected error for empty account")
	}
	if _, err := service.OpenDay(ctx, "acct-1", 1999, 1); err == nil {
		t.Fatal("expected error for out-of-range year")
	}
	if _, err := service.OpenDay(ctx, "acct-1", 2026, 0); err == nil {
		t.Fatal("expected error for day 0")
	}
	if _, err := service.OpenDay(ctx, "acct-1", 2026, 32); err == nil {
		t.Fatal("expected error for day 32")
	}
}
