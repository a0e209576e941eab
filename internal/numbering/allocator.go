// Package numbering allocates gapless-enough sequential document numbers,
// unique per year, without a global lock. Allocation is optimistic: probe
// for a free number, insert, and retry on collision with another writer.
package numbering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/mittbeet/mittbeet/internal/id"
	"github.com/mittbeet/mittbeet/internal/metrics"
	"github.com/mittbeet/mittbeet/internal/storage"
)

const (
	// maxCreateAttempts bounds full insert attempts before giving up.
	maxCreateAttempts = 10
	// maxProbeAttempts bounds candidate numbers checked per attempt.
	maxProbeAttempts = 100
)

// AllocationExhaustedError is returned when every bounded attempt collided.
// It signals contention, not corruption; the caller may retry later.
type AllocationExhaustedError struct {
	Year     int
	Attempts int
}

func (e AllocationExhaustedError) Error() string {
	return fmt.Sprintf("document number allocation for year %d exhausted after %d attempts", e.Year, e.Attempts)
}

// Allocator hands out per-year document numbers backed by the document store.
type Allocator struct {
	store storage.DocumentStore
}

// NewAllocator creates an allocator over the document store.
func NewAllocator(store storage.DocumentStore) (*Allocator, error) {
	if store == nil {
		return nil, fmt.Errorf("document store is required")
	}
	return &Allocator{store: store}, nil
}

// Allocate inserts a new document of the given kind with the next free
// number for year and returns it. Concurrent allocators may collide on the
// same candidate; collisions are retried with randomized backoff so racing
// writers spread out instead of thrashing on the same number.
func (a *Allocator) Allocate(ctx context.Context, kind string, year int) (storage.Document, error) {
	if kind == "" {
		return storage.Document{}, fmt.Errorf("document kind is required")
	}
	if year < 2000 {
		return storage.Document{}, fmt.Errorf("year %d is out of range", year)
	}

	wait := backoff.NewExponentialBackOff()
	wait.InitialInterval = 5 * time.Millisecond
	wait.MaxInterval = 250 * time.Millisecond

	for attempt := 1; attempt <= maxCreateAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return storage.Document{}, err
		}

		number, err := a.nextFreeNumber(ctx, year)
		if err != nil {
			return storage.Document{}, err
		}

		doc := storage.Document{
			ID:        id.New(),
			Kind:      kind,
			Year:      year,
			Number:    number,
			CreatedAt: time.Now().UTC(),
		}
		err = a.store.InsertDocument(ctx, doc)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, storage.ErrNumberTaken) {
			return storage.Document{}, err
		}

		// Another writer claimed the number first. Back off and retry.
		metrics.AllocatorRetries.Inc()
		select {
		case <-time.After(wait.NextBackOff()):
		case <-ctx.Done():
			return storage.Document{}, ctx.Err()
		}
	}

	metrics.AllocatorExhausted.Inc()
	return storage.Document{}, AllocationExhaustedError{Year: year, Attempts: maxCreateAttempts}
}

// nextFreeNumber probes forward from the current maximum for a number not
// yet taken. The probe bound keeps a pathological store from spinning the
// allocator forever.
func (a *Allocator) nextFreeNumber(ctx context.Context, year int) (int, error) {
	max, err := a.store.MaxDocumentNumber(ctx, year)
	if err != nil {
		return 0, fmt.Errorf("max document number for %d: %w", year, err)
	}

	candidate := max + 1
	for probe := 0; probe < maxProbeAttempts; probe++ {
		taken, err := a.store.NumberExists(ctx, year, candidate)
		if err != nil {
			return 0, fmt.Errorf("probe number %d/%d: %w", year, candidate, err)
		}
		if !taken {
			return candidate, nil
		}
		candidate++
	}
	return 0, AllocationExhaustedError{Year: year, Attempts: maxProbeAttempts}
}
