// Package delivery runs the harvest-box delivery request workflow on top of
// the event journal. Request state is replayed, decided by the pure
// transition rules, and advanced by appending events.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/delivery"
	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/id"
	"github.com/mittbeet/mittbeet/internal/notify"
	"github.com/mittbeet/mittbeet/internal/platform/keymutex"
	"github.com/mittbeet/mittbeet/internal/projection"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// DefaultCancelCutoff is the window before the slot start inside which a
// member can no longer cancel their own request.
const DefaultCancelCutoff = 12 * time.Hour

// ErrSlotClosed indicates a time slot that no longer accepts requests.
var ErrSlotClosed = errors.New("time slot is closed")

// Slot is one pickup or delivery time slot.
type Slot struct {
	ID      string
	StartAt time.Time
	Closed  bool
}

// SlotDirectory resolves time slots. Lookups for unknown slots return an
// error wrapping storage.ErrNotFound.
type SlotDirectory interface {
	Slot(ctx context.Context, slotID string) (Slot, error)
}

// RequestStore is the persistence surface the workflow needs: the journal
// plus the request anchor rows.
type RequestStore interface {
	storage.EventStore
	storage.DeliveryAnchorStore
}

// Service executes delivery request operations.
type Service struct {
	store    RequestStore
	slots    SlotDirectory
	notifier notify.Dispatcher
	cutoff   time.Duration
	locks    *keymutex.Mutex
}

// NewService creates the delivery workflow service. A nil notifier discards
// notifications; a non-positive cutoff falls back to DefaultCancelCutoff.
func NewService(store RequestStore, slots SlotDirectory, notifier notify.Dispatcher, cutoff time.Duration) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if slots == nil {
		return nil, fmt.Errorf("slot directory is required")
	}
	if notifier == nil {
		notifier = notify.Discard{}
	}
	if cutoff <= 0 {
		cutoff = DefaultCancelCutoff
	}
	return &Service{
		store:    store,
		slots:    slots,
		notifier: notifier,
		cutoff:   cutoff,
		locks:    keymutex.New(),
	}, nil
}

// CreateParams describes a new delivery request.
type CreateParams struct {
	HarvestID  string
	AccountID  string
	SlotID     string
	Mode       delivery.Mode
	AddressID  string
	LocationID string
}

func (p CreateParams) validate() error {
	if p.HarvestID == "" {
		return fmt.Errorf("harvest id is required")
	}
	if p.AccountID == "" {
		return fmt.Errorf("account id is required")
	}
	if p.SlotID == "" {
		return fmt.Errorf("slot id is required")
	}
	if !p.Mode.IsValid() {
		return fmt.Errorf("unknown delivery mode %q", p.Mode)
	}
	switch p.Mode {
	case delivery.ModeDelivery:
		if p.AddressID == "" {
			return fmt.Errorf("delivery mode requires an address")
		}
		if p.LocationID != "" {
			return fmt.Errorf("delivery mode must not carry a pickup location")
		}
	case delivery.ModePickup:
		if p.LocationID == "" {
			return fmt.Errorf("pickup mode requires a location")
		}
		if p.AddressID != "" {
			return fmt.Errorf("pickup mode must not carry an address")
		}
	}
	return nil
}

func (s *Service) schedulableSlot(ctx context.Context, slotID string) (Slot, error) {
	slot, err := s.slots.Slot(ctx, slotID)
	if err != nil {
		return Slot{}, fmt.Errorf("resolve slot %s: %w", slotID, err)
	}
	if slot.Closed {
		return Slot{}, fmt.Errorf("slot %s: %w", slotID, ErrSlotClosed)
	}
	return slot, nil
}

// Create opens a new delivery request for a harvest. Each harvest gets at
// most one request: a read check catches the common case and the anchor
// row's uniqueness closes the race.
func (s *Service) Create(ctx context.Context, params CreateParams) (string, error) {
	if err := params.validate(); err != nil {
		return "", err
	}
	if _, err := s.schedulableSlot(ctx, params.SlotID); err != nil {
		return "", err
	}

	existing, err := s.store.GetRequestIDByHarvest(ctx, params.HarvestID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return "", err
	}
	if existing != "" {
		return "", fmt.Errorf("%w: request %s", storage.ErrHarvestTaken, existing)
	}

	requestID := id.New()
	created := delivery.NewCreated(requestID, delivery.CreatedPayload{
		HarvestID:  params.HarvestID,
		AccountID:  params.AccountID,
		SlotID:     params.SlotID,
		Mode:       params.Mode,
		AddressID:  params.AddressID,
		LocationID: params.LocationID,
	})
	if _, err := s.store.CreateDeliveryRequest(ctx, requestID, params.HarvestID, created); err != nil {
		return "", err
	}
	return requestID, nil
}

// Get replays and returns the current state of a request.
func (s *Service) Get(ctx context.Context, requestID string) (delivery.State, error) {
	if requestID == "" {
		return delivery.State{}, fmt.Errorf("request id is required")
	}
	state, err := projection.Replay(ctx, s.store,
		delivery.FoldHandledTypes(), []string{requestID},
		delivery.State{}, delivery.Fold)
	if err != nil {
		return delivery.State{}, fmt.Errorf("replay request %s: %w", requestID, err)
	}
	if !state.Exists {
		return delivery.State{}, fmt.Errorf("delivery request %s: %w", requestID, storage.ErrNotFound)
	}
	return state, nil
}

// Confirm moves a pending request to CONFIRMED.
func (s *Service) Confirm(ctx context.Context, requestID string) error {
	return s.advance(ctx, requestID, delivery.StatusConfirmed, delivery.TypeRequestConfirmed)
}

// Prepare moves a confirmed request to PREPARING.
func (s *Service) Prepare(ctx context.Context, requestID string) error {
	return s.advance(ctx, requestID, delivery.StatusPreparing, delivery.TypeRequestPreparing)
}

// MarkReady moves a preparing request to READY.
func (s *Service) MarkReady(ctx context.Context, requestID string) error {
	return s.advance(ctx, requestID, delivery.StatusReady, delivery.TypeRequestReady)
}

// Fulfill moves a ready request to FULFILLED.
func (s *Service) Fulfill(ctx context.Context, requestID string) error {
	return s.advance(ctx, requestID, delivery.StatusFulfilled, delivery.TypeRequestFulfilled)
}

// advance replays the request, decides the transition, and appends the
// lifecycle event. Repeating an already-applied transition is a no-op.
func (s *Service) advance(ctx context.Context, requestID string, target delivery.Status, typ event.Type) error {
	unlock := s.locks.Lock("delivery/" + requestID)
	defer unlock()

	state, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	already, err := delivery.Advance(state, target)
	if err != nil {
		return err
	}
	if already {
		return nil
	}
	_, err = s.store.AppendEvent(ctx, delivery.NewTransition(requestID, typ))
	return err
}

// Cancel cancels a request. User actors are held to the cutoff window before
// their slot start; admin and system actors bypass it. Re-cancelling is a
// no-op. A successful cancellation notifies the request owner; a failed
// notification does not undo the cancellation and is reported alongside it.
func (s *Service) Cancel(ctx context.Context, requestID string, actor delivery.ActorType, reason string) error {
	unlock := s.locks.Lock("delivery/" + requestID)
	defer unlock()

	state, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}

	var slotStart time.Time
	if actor == delivery.ActorUser && state.SlotID != "" {
		slot, err := s.slots.Slot(ctx, state.SlotID)
		if err != nil {
			return fmt.Errorf("resolve slot %s: %w", state.SlotID, err)
		}
		slotStart = slot.StartAt
	}

	already, err := delivery.Cancel(state, actor, slotStart, s.cutoff, time.Now().UTC())
	if err != nil {
		return err
	}
	if already {
		return nil
	}

	if _, err := s.store.AppendEvent(ctx, delivery.NewCancelled(requestID, actor, reason)); err != nil {
		return err
	}

	notification := notify.Notification{
		AccountID: state.AccountID,
		Subject:   "Delivery request cancelled",
		Body:      fmt.Sprintf("Your harvest box request %s was cancelled.", requestID),
	}
	if err := s.notifier.Dispatch(ctx, notification); err != nil {
		return fmt.Errorf("request cancelled, notification failed: %w", err)
	}
	return nil
}

// ChangeSlot reschedules a request onto another slot. Only requests that
// have not entered preparation can move, and the new slot must be open.
// Re-selecting the current slot is a no-op.
func (s *Service) ChangeSlot(ctx context.Context, requestID, slotID string) error {
	if slotID == "" {
		return fmt.Errorf("slot id is required")
	}

	unlock := s.locks.Lock("delivery/" + requestID)
	defer unlock()

	state, err := s.Get(ctx, requestID)
	if err != nil {
		return err
	}
	if err := delivery.CanChangeSlot(state); err != nil {
		return err
	}
	if state.SlotID == slotID {
		return nil
	}
	if _, err := s.schedulableSlot(ctx, slotID); err != nil {
		return err
	}
	_, err = s.store.AppendEvent(ctx, delivery.NewSlotChanged(requestID, slotID))
	return err
}
