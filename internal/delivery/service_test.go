package delivery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/catalog"
	"github.com/mittbeet/mittbeet/internal/domain/delivery"
	"github.com/mittbeet/mittbeet/internal/notify"
	"github.com/mittbeet/mittbeet/internal/storage"
	"github.com/mittbeet/mittbeet/internal/storage/sqlite"
)

type stubSlots struct {
	slots map[string]Slot
}

func (s *stubSlots) Slot(ctx context.Context, slotID string) (Slot, error) {
	slot, ok := s.slots[slotID]
	if !ok {
		return Slot{}, fmt.Errorf("slot %s: %w", slotID, storage.ErrNotFound)
	}
	return slot, nil
}

type recordingNotifier struct {
	sent []notify.Notification
	err  error
}

func (n *recordingNotifier) Dispatch(ctx context.Context, msg notify.Notification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, msg)
	return nil
}

func newTestService(t *testing.T, slots *stubSlots, notifier notify.Dispatcher) *Service {
	t.Helper()
	registry, err := catalog.BuildRegistry()
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "delivery.db"), registry)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	service, err := NewService(store, slots, notifier, 0)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return service
}

func openSlots(startAt time.Time) *stubSlots {
	return &stubSlots{slots: map[string]Slot{
		"slot-1":      {ID: "slot-1", StartAt: startAt},
		"slot-2":      {ID: "slot-2", StartAt: startAt.Add(24 * time.Hour)},
		"slot-closed": {ID: "slot-closed", StartAt: startAt, Closed: true},
	}}
}

func pickupParams(harvestID string) CreateParams {
	return CreateParams{
		HarvestID:  harvestID,
		AccountID:  "acct-1",
		SlotID:     "slot-1",
		Mode:       delivery.ModePickup,
		LocationID: "loc-1",
	}
}

func TestCreateValidatesDestination(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  CreateParams
		wantErr bool
	}{
		{
			name:   "pickup with location",
			params: pickupParams("harvest-1"),
		},
		{
			name: "delivery with address",
			params: CreateParams{
				HarvestID: "harvest-2", AccountID: "acct-1", SlotID: "slot-1",
				Mode: delivery.ModeDelivery, AddressID: "addr-1",
			},
		},
		{
			name: "delivery without address",
			params: CreateParams{
				HarvestID: "harvest-3", AccountID: "acct-1", SlotID: "slot-1",
				Mode: delivery.ModeDelivery,
			},
			wantErr: true,
		},
		{
			name: "pickup with address",
			params: CreateParams{
				HarvestID: "harvest-4", AccountID: "acct-1", SlotID: "slot-1",
				Mode: delivery.ModePickup, LocationID: "loc-1", AddressID: "addr-1",
			},
			wantErr: true,
		},
		{
			name: "unknown mode",
			params: CreateParams{
				HarvestID: "harvest-5", AccountID: "acct-1", SlotID: "slot-1",
				Mode: "teleport",
			},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := service.Create(ctx, tc.params)
			if tc.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("create: %v", err)
			}
		})
	}
}

func TestCreateRejectsClosedAndUnknownSlots(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	params := pickupParams("harvest-1")
	params.SlotID = "slot-closed"
	if _, err := service.Create(ctx, params); !errors.Is(err, ErrSlotClosed) {
		t.Fatalf("expected ErrSlotClosed, got %v", err)
	}

	params.SlotID = "slot-404"
	if _, err := service.Create(ctx, params); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateOnePerHarvest(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	if _, err := service.Create(ctx, pickupParams("harvest-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := service.Create(ctx, pickupParams("harvest-1")); !errors.Is(err, storage.ErrHarvestTaken) {
		t.Fatalf("expected ErrHarvestTaken, got %v", err)
	}
}

func TestLifecycleHappyPath(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	requestID, err := service.Create(ctx, pickupParams("harvest-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	steps := []struct {
		name string
		op   func(context.Context, string) error
		want delivery.Status
	}{
		{"confirm", service.Confirm, delivery.StatusConfirmed},
		{"prepare", service.Prepare, delivery.StatusPreparing},
		{"mark ready", service.MarkReady, delivery.StatusReady},
		{"fulfill", service.Fulfill, delivery.StatusFulfilled},
	}
	for _, step := range steps {
		if err := step.op(ctx, requestID); err != nil {
			t.Fatalf("%s: %v", step.name, err)
		}
		state, err := service.Get(ctx, requestID)
		if err != nil {
			t.Fatalf("get after %s: %v", step.name, err)
		}
		if state.Status != step.want {
			t.Fatalf("after %s expected %s, got %s", step.name, step.want, state.Status)
		}
	}
}

func TestAdvanceIsIdempotentAndOrdered(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	requestID, err := service.Create(ctx, pickupParams("harvest-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Skipping a step is illegal.
	err = service.Prepare(ctx, requestID)
	var illegalErr delivery.IllegalTransitionError
	if !errors.As(err, &illegalErr) {
		t.Fatalf("expected IllegalTransitionError for skipped step, got %v", err)
	}

	if err := service.Confirm(ctx, requestID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	// Repeating a transition is a no-op.
	if err := service.Confirm(ctx, requestID); err != nil {
		t.Fatalf("re-confirm: %v", err)
	}

	state, err := service.Get(ctx, requestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != delivery.StatusConfirmed {
		t.Fatalf("expected CONFIRMED, got %s", state.Status)
	}
}

func TestCancelCutoff(t *testing.T) {
	notifier := &recordingNotifier{}
	// Slot starts in 2 hours, inside the default 12 hour cutoff.
	service := newTestService(t, openSlots(time.Now().Add(2*time.Hour)), notifier)
	ctx := context.Background()

	requestID, err := service.Create(ctx, pickupParams("harvest-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	err = service.Cancel(ctx, requestID, delivery.ActorUser, "changed my mind")
	var cutoffErr delivery.CutoffExpiredError
	if !errors.As(err, &cutoffErr) {
		t.Fatalf("expected CutoffExpiredError for user inside cutoff, got %v", err)
	}

	// Admin actors bypass the cutoff.
	if err := service.Cancel(ctx, requestID, delivery.ActorAdmin, "member called in"); err != nil {
		t.Fatalf("admin cancel: %v", err)
	}
	state, err := service.Get(ctx, requestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != delivery.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %s", state.Status)
	}
	if state.CancelledBy != delivery.ActorAdmin {
		t.Fatalf("expected admin as cancelling actor, got %s", state.CancelledBy)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected one notification, got %d", len(notifier.sent))
	}

	// Re-cancelling is a no-op and does not notify again.
	if err := service.Cancel(ctx, requestID, delivery.ActorAdmin, "again"); err != nil {
		t.Fatalf("re-cancel: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("expected no duplicate notification, got %d", len(notifier.sent))
	}
}

func TestCancelAfterFulfillFails(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	requestID, err := service.Create(ctx, pickupParams("harvest-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for _, op := range []func(context.Context, string) error{
		service.Confirm, service.Prepare, service.MarkReady, service.Fulfill,
	} {
		if err := op(ctx, requestID); err != nil {
			t.Fatalf("advance: %v", err)
		}
	}

	err = service.Cancel(ctx, requestID, delivery.ActorAdmin, "too late")
	var illegalErr delivery.IllegalTransitionError
	if !errors.As(err, &illegalErr) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
}

func TestCancelNotifyFailureKeepsCancellation(t *testing.T) {
	notifier := &recordingNotifier{err: errors.New("smtp down")}
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), notifier)
	ctx := context.Background()

	requestID, err := service.Create(ctx, pickupParams("harvest-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := service.Cancel(ctx, requestID, delivery.ActorAdmin, "test"); err == nil {
		t.Fatal("expected notification failure to surface")
	}

	state, err := service.Get(ctx, requestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != delivery.StatusCancelled {
		t.Fatalf("expected cancellation to stick, got %s", state.Status)
	}
}

func TestChangeSlot(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)
	ctx := context.Background()

	requestID, err := service.Create(ctx, pickupParams("harvest-1"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := service.ChangeSlot(ctx, requestID, "slot-2"); err != nil {
		t.Fatalf("change slot: %v", err)
	}
	state, err := service.Get(ctx, requestID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.SlotID != "slot-2" {
		t.Fatalf("expected slot-2, got %s", state.SlotID)
	}

	// Re-selecting the current slot is a no-op even if that slot has since closed.
	if err := service.ChangeSlot(ctx, requestID, "slot-2"); err != nil {
		t.Fatalf("re-select current slot: %v", err)
	}

	if err := service.ChangeSlot(ctx, requestID, "slot-closed"); !errors.Is(err, ErrSlotClosed) {
		t.Fatalf("expected ErrSlotClosed, got %v", err)
	}

	// Once preparation begins the slot is frozen.
	if err := service.Confirm(ctx, requestID); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if err := service.Prepare(ctx, requestID); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	err = service.ChangeSlot(ctx, requestID, "slot-1")
	var illegalErr delivery.IllegalTransitionError
	if !errors.As(err, &illegalErr) {
		t.Fatalf("expected IllegalTransitionError, got %v", err)
	}
}

func TestGetUnknownRequest(t *testing.T) {
	service := newTestService(t, openSlots(time.Now().Add(48*time.Hour)), nil)

	if _, err := service.Get(context.Background(), "req-404"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
