package inventory

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mittbeet/mittbeet/internal/domain/catalog"
	"github.com/mittbeet/mittbeet/internal/domain/inventory"
	"github.com/mittbeet/mittbeet/internal/storage/sqlite"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	registry, err := catalog.BuildRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "inventory.db"), registry)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	service, err := NewService(store)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func TestAddAndList(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Add(ctx, "acct-1", "seed", "tomato", 10); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := service.Add(ctx, "acct-1", "seed", "tomato", 5); err != nil {
		t.Fatalf("add more: %v", err)
	}
	if _, err := service.Add(ctx, "acct-1", "tool", "trowel", 1); err != nil {
		t.Fatalf("add tool: %v", err)
	}

	holdings, err := service.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(holdings) != 2 {
		t.Fatalf("expected 2 holdings, got %d", len(holdings))
	}
	if holdings[0].ItemType != "seed" || holdings[0].Quantity != 15 {
		t.Fatalf("expected 15 tomato seeds first, got %+v", holdings[0])
	}
}

func TestConsumeChecksQuantity(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Add(ctx, "acct-1", "seed", "tomato", 3); err != nil {
		t.Fatalf("add: %v", err)
	}

	_, err := service.Consume(ctx, "acct-1", "seed", "tomato", 5)
	var quantityErr inventory.InsufficientQuantityError
	if !errors.As(err, &quantityErr) {
		t.Fatalf("expected InsufficientQuantityError, got %v", err)
	}
	if quantityErr.Quantity != 3 || quantityErr.Requested != 5 {
		t.Fatalf("expected have 3 want 5, got have %d want %d", quantityErr.Quantity, quantityErr.Requested)
	}

	if _, err := service.Consume(ctx, "acct-1", "seed", "tomato", 3); err != nil {
		t.Fatalf("consume: %v", err)
	}

	// Exhausted items drop out of the holdings list.
	holdings, err := service.List(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(holdings) != 0 {
		t.Fatalf("expected no holdings, got %+v", holdings)
	}
}

func TestConsumeSerializesPerAccount(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	if _, err := service.Add(ctx, "acct-1", "seed", "tomato", 10); err != nil {
		t.Fatalf("add: %v", err)
	}

	const racers = 8
	var wg sync.WaitGroup
	results := make(chan error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := service.Consume(ctx, "acct-1", "seed", "tomato", 10)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded int
	for err := range results {
		var quantityErr inventory.InsufficientQuantityError
		switch {
		case err == nil:
			succeeded++
		case errors.As(err, &quantityErr):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Fatalf("expected exactly one consume to win, got %d", succeeded)
	}
}

func TestAddRejectsNonPositiveQuantity(t *testing.T) {
	service := newTestService(t)

	if _, err := service.Add(context.Background(), "acct-1", "seed", "tomato", 0); err == nil {
		t.Fatal("expected error for zero quantity")
	}
	if _, err := service.Consume(context.Background(), "acct-1", "seed", "tomato", -1); err == nil {
		t.Fatal("expected error for negative quantity")
	}
}
