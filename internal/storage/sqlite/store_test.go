package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/calendar"
	"github.com/mittbeet/mittbeet/internal/domain/catalog"
	"github.com/mittbeet/mittbeet/internal/domain/delivery"
	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/domain/ledger"
	"github.com/mittbeet/mittbeet/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	registry, err := catalog.BuildRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	store, err := Open(filepath.Join(t.TempDir(), "mittbeet.db"), registry)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})
	return store
}

func TestOpenRequiresPathAndRegistry(t *testing.T) {
	if _, err := Open("", nil); err == nil {
		t.Fatal("expected error for empty path")
	}
	if _, err := Open(filepath.Join(t.TempDir(), "x.db"), nil); err == nil {
		t.Fatal("expected error for nil registry")
	}
}

func TestAppendAndQueryEvents(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.AppendEvent(ctx, ledger.NewEarned("acct-1", 10, "harvest sale"))
	if err != nil {
		t.Fatalf("append first: %v", err)
	}
	if first.ID == 0 {
		t.Fatal("expected assigned event id")
	}
	if first.CreatedAt.IsZero() {
		t.Fatal("expected assigned created_at")
	}
	second, err := store.AppendEvent(ctx, ledger.NewSpent("acct-1", 3, "seed packet"))
	if err != nil {
		t.Fatalf("append second: %v", err)
	}
	if second.ID <= first.ID {
		t.Fatalf("expected increasing ids, got %d then %d", first.ID, second.ID)
	}
	if _, err := store.AppendEvent(ctx, ledger.NewEarned("acct-2", 5, "watering")); err != nil {
		t.Fatalf("append third: %v", err)
	}

	events, err := store.QueryEvents(ctx, storage.EventQuery{
		AggregateIDs: []string{"acct-1"},
		Limit:        10,
	})
	if err != nil {
		t.Fatalf("query by aggregate: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for acct-1, got %d", len(events))
	}
	if events[0].ID != first.ID || events[1].ID != second.ID {
		t.Fatalf("expected ascending order %d,%d, got %d,%d", first.ID, second.ID, events[0].ID, events[1].ID)
	}
	if events[0].Type != ledger.TypeSunflowersEarned {
		t.Fatalf("expected %s, got %s", ledger.TypeSunflowersEarned, events[0].Type)
	}

	spends, err := store.QueryEvents(ctx, storage.EventQuery{
		Types: []event.Type{ledger.TypeSunflowersSpent},
		Limit: 10,
	})
	if err != nil {
		t.Fatalf("query by type: %v", err)
	}
	if len(spends) != 1 || spends[0].ID != second.ID {
		t.Fatalf("expected only the spend event, got %+v", spends)
	}
}

func TestQueryEventsPaging(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.AppendEvent(ctx, ledger.NewEarned("acct-1", 1, "drip")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	if _, err := store.QueryEvents(ctx, storage.EventQuery{}); err == nil {
		t.Fatal("expected error for missing limit")
	}

	page, err := store.QueryEvents(ctx, storage.EventQuery{Offset: 3, Limit: 10})
	if err != nil {
		t.Fatalf("query page: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected 2 events after offset 3, got %d", len(page))
	}
}

func TestAppendEventRejectsUnknownType(t *testing.T) {
	store := newTestStore(t)

	_, err := store.AppendEvent(context.Background(), event.Event{
		Type:        "garden.teleported",
		AggregateID: "acct-1",
	})
	if !errors.Is(err, event.ErrTypeUnknown) {
		t.Fatalf("expected ErrTypeUnknown, got %v", err)
	}
}

func TestDeleteEventByID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	evt, err := store.AppendEvent(ctx, ledger.NewEarned("acct-1", 10, "harvest sale"))
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := store.DeleteEventByID(ctx, evt.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.DeleteEventByID(ctx, evt.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	events, err := store.QueryEvents(ctx, storage.EventQuery{Limit: 10})
	if err != nil {
		t.Fatalf("query after delete: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected empty journal, got %d events", len(events))
	}
}

func TestGrantLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	grant := storage.Grant{
		AccountID: "acct-1",
		Key:       "first_sprout",
		Title:     "First Sprout",
		Reward:    5,
		Status:    storage.GrantPending,
		GrantedAt: time.Now().UTC(),
	}

	inserted, err := store.EnsureGrant(ctx, grant)
	if err != nil {
		t.Fatalf("ensure grant: %v", err)
	}
	if !inserted {
		t.Fatal("expected first ensure to insert")
	}
	inserted, err = store.EnsureGrant(ctx, grant)
	if err != nil {
		t.Fatalf("ensure grant again: %v", err)
	}
	if inserted {
		t.Fatal("expected second ensure to be a no-op")
	}

	changed, err := store.ApproveGrant(ctx, "acct-1", "first_sprout", "admin-1")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !changed {
		t.Fatal("expected approve to change the grant")
	}
	changed, err = store.ApproveGrant(ctx, "acct-1", "first_sprout", "admin-2")
	if err != nil {
		t.Fatalf("re-approve: %v", err)
	}
	if changed {
		t.Fatal("expected re-approve to be a no-op")
	}
	if _, err := store.DenyGrant(ctx, "acct-1", "first_sprout", "admin-1"); err == nil {
		t.Fatal("expected deny of an approved grant to fail")
	}

	got, err := store.GetGrant(ctx, "acct-1", "first_sprout")
	if err != nil {
		t.Fatalf("get grant: %v", err)
	}
	if got.Status != storage.GrantApproved {
		t.Fatalf("expected approved status, got %s", got.Status)
	}
	if got.ApprovedBy != "admin-1" {
		t.Fatalf("expected approver admin-1, got %q", got.ApprovedBy)
	}
	if got.ApprovedAt == nil {
		t.Fatal("expected approved_at to be stamped")
	}

	if _, err := store.GetGrant(ctx, "acct-1", "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListGrants(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, key := range []string{"rain_maker", "first_sprout"} {
		if _, err := store.EnsureGrant(ctx, storage.Grant{
			AccountID: "acct-1",
			Key:       key,
			Status:    storage.GrantPending,
			GrantedAt: now,
		}); err != nil {
			t.Fatalf("ensure %s: %v", key, err)
		}
	}
	if _, err := store.EnsureGrant(ctx, storage.Grant{
		AccountID: "acct-2",
		Key:       "first_sprout",
		Status:    storage.GrantPending,
		GrantedAt: now,
	}); err != nil {
		t.Fatalf("ensure other account: %v", err)
	}

	grants, err := store.ListGrants(ctx, "acct-1")
	if err != nil {
		t.Fatalf("list grants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("expected 2 grants for acct-1, got %d", len(grants))
	}
}

func TestDocumentNumbering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	max, err := store.MaxDocumentNumber(ctx, 2026)
	if err != nil {
		t.Fatalf("max on empty table: %v", err)
	}
	if max != 0 {
		t.Fatalf("expected 0 on empty table, got %d", max)
	}

	doc := storage.Document{ID: "doc-1", Kind: "receipt", Year: 2026, Number: 1, CreatedAt: time.Now().UTC()}
	if err := store.InsertDocument(ctx, doc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	dup := storage.Document{ID: "doc-2", Kind: "invoice", Year: 2026, Number: 1, CreatedAt: time.Now().UTC()}
	if err := store.InsertDocument(ctx, dup); !errors.Is(err, storage.ErrNumberTaken) {
		t.Fatalf("expected ErrNumberTaken, got %v", err)
	}

	other := storage.Document{ID: "doc-3", Kind: "receipt", Year: 2027, Number: 1, CreatedAt: time.Now().UTC()}
	if err := store.InsertDocument(ctx, other); err != nil {
		t.Fatalf("insert same number in other year: %v", err)
	}

	exists, err := store.NumberExists(ctx, 2026, 1)
	if err != nil {
		t.Fatalf("number exists: %v", err)
	}
	if !exists {
		t.Fatal("expected number 2026/1 to exist")
	}
	exists, err = store.NumberExists(ctx, 2026, 2)
	if err != nil {
		t.Fatalf("number exists: %v", err)
	}
	if exists {
		t.Fatal("expected number 2026/2 to be free")
	}

	max, err = store.MaxDocumentNumber(ctx, 2026)
	if err != nil {
		t.Fatalf("max: %v", err)
	}
	if max != 1 {
		t.Fatalf("expected max 1 for 2026, got %d", max)
	}
}

func TestOpenCalendarDayOnce(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opened, err := store.OpenCalendarDay(ctx, "acct-1", 2026, 1, nil)
	if err != nil {
		t.Fatalf("open day: %v", err)
	}
	if opened.Type != calendar.TypeDayOpened {
		t.Fatalf("expected %s, got %s", calendar.TypeDayOpened, opened.Type)
	}

	_, err = store.OpenCalendarDay(ctx, "acct-1", 2026, 1, nil)
	var dupErr calendar.DayAlreadyOpenedError
	if !errors.As(err, &dupErr) {
		t.Fatalf("expected DayAlreadyOpenedError, got %v", err)
	}
	if dupErr.Year != 2026 || dupErr.Day != 1 {
		t.Fatalf("expected conflict on 2026/1, got %d/%d", dupErr.Year, dupErr.Day)
	}

	// A different account or day is unaffected.
	if _, err := store.OpenCalendarDay(ctx, "acct-2", 2026, 1, nil); err != nil {
		t.Fatalf("open same day for other account: %v", err)
	}
	if _, err := store.OpenCalendarDay(ctx, "acct-1", 2026, 2, nil); err != nil {
		t.Fatalf("open next day: %v", err)
	}
}

func TestOpenCalendarDaySideEffectSharesTransaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.OpenCalendarDay(ctx, "acct-1", 2026, 3, func(ctx context.Context, append storage.AppendFunc) error {
		_, err := append(ledger.NewEarned("acct-1", 5, "calendar day 3"))
		return err
	})
	if err != nil {
		t.Fatalf("open with side effect: %v", err)
	}

	events, err := store.QueryEvents(ctx, storage.EventQuery{AggregateIDs: []string{"acct-1"}, Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected open event plus reward, got %d events", len(events))
	}

	// A failing side effect rolls back the day row and the open event.
	boom := errors.New("boom")
	_, err = store.OpenCalendarDay(ctx, "acct-1", 2026, 4, func(ctx context.Context, append storage.AppendFunc) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected side effect failure, got %v", err)
	}
	if _, err := store.OpenCalendarDay(ctx, "acct-1", 2026, 4, nil); err != nil {
		t.Fatalf("expected day 4 reopenable after rollback, got %v", err)
	}
}

func TestOpenCalendarDayConcurrent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	const racers = 8
	results := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.OpenCalendarDay(ctx, "acct-1", 2026, 12, nil)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var opened, conflicts int
	for err := range results {
		var dupErr calendar.DayAlreadyOpenedError
		switch {
		case err == nil:
			opened++
		case errors.As(err, &dupErr):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if opened != 1 {
		t.Fatalf("expected exactly one successful open, got %d", opened)
	}
	if conflicts != racers-1 {
		t.Fatalf("expected %d conflicts, got %d", racers-1, conflicts)
	}
}

func TestDeliveryRequestAnchor(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	created := delivery.NewCreated("req-1", delivery.CreatedPayload{
		HarvestID:  "harvest-1",
		AccountID:  "acct-1",
		SlotID:     "slot-1",
		Mode:       delivery.ModePickup,
		LocationID: "loc-1",
	})

	appended, err := store.CreateDeliveryRequest(ctx, "req-1", "harvest-1", created)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if appended.ID == 0 {
		t.Fatal("expected creation event to be appended")
	}

	_, err = store.CreateDeliveryRequest(ctx, "req-2", "harvest-1", created)
	if !errors.Is(err, storage.ErrHarvestTaken) {
		t.Fatalf("expected ErrHarvestTaken, got %v", err)
	}

	requestID, err := store.GetRequestIDByHarvest(ctx, "harvest-1")
	if err != nil {
		t.Fatalf("get by harvest: %v", err)
	}
	if requestID != "req-1" {
		t.Fatalf("expected req-1, got %s", requestID)
	}

	if _, err := store.GetRequestIDByHarvest(ctx, "harvest-404"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	// The duplicate create must not leave a stray event behind.
	events, err := store.QueryEvents(ctx, storage.EventQuery{AggregateIDs: []string{"req-1"}, Limit: 10})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected a single creation event, got %d", len(events))
	}
}
