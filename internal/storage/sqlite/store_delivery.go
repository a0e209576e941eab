package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// CreateDeliveryRequest writes the request anchor row and its creation event
// in one transaction. The UNIQUE constraint on harvest_id turns a lost
// read-before-write race into storage.ErrHarvestTaken instead of a second
// request for the same harvest.
func (s *Store) CreateDeliveryRequest(ctx context.Context, requestID, harvestID string, created event.Event) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if requestID == "" {
		return event.Event{}, fmt.Errorf("request id is required")
	}
	if harvestID == "" {
		return event.Event{}, fmt.Errorf("harvest id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO delivery_requests (id, harvest_id, created_at) VALUES (?, ?, ?)",
		requestID, harvestID, toMillis(time.Now().UTC()),
	); err != nil {
		if isConstraintError(err) {
			return event.Event{}, fmt.Errorf("%w: %s", storage.ErrHarvestTaken, harvestID)
		}
		return event.Event{}, storage.WriteError{Op: "insert delivery request", Err: err}
	}

	appended, err := s.appendEvent(ctx, tx, created)
	if err != nil {
		return event.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, storage.WriteError{Op: "commit delivery request", Err: err}
	}
	return appended, nil
}

// GetRequestIDByHarvest resolves the request anchored to a harvest, or
// storage.ErrNotFound when none exists.
func (s *Store) GetRequestIDByHarvest(ctx context.Context, harvestID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}

	var requestID string
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT id FROM delivery_requests WHERE harvest_id = ?", harvestID,
	)
	if err := row.Scan(&requestID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("delivery request for harvest %s: %w", harvestID, storage.ErrNotFound)
		}
		return "", fmt.Errorf("get delivery request by harvest: %w", err)
	}
	return requestID, nil
}
