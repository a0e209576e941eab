package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/storage"
)

// MaxDocumentNumber returns the highest allocated number for a year, or zero
// when none exists yet.
func (s *Store) MaxDocumentNumber(ctx context.Context, year int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("storage is not configured")
	}

	var max int
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(number), 0) FROM documents WHERE year = ?", year)
	if err := row.Scan(&max); err != nil {
		return 0, fmt.Errorf("max document number: %w", err)
	}
	return max, nil
}

// NumberExists reports whether a (year, number) pair is already allocated.
func (s *Store) NumberExists(ctx context.Context, year, number int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	var found int
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE year = ? AND number = ?", year, number)
	if err := row.Scan(&found); err != nil {
		return false, fmt.Errorf("document number exists: %w", err)
	}
	return found > 0, nil
}

// InsertDocument writes one numbered document row. A (year, number)
// collision surfaces as storage.ErrNumberTaken so the allocator can retry
// with the next candidate.
func (s *Store) InsertDocument(ctx context.Context, doc storage.Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.Kind == "" {
		return fmt.Errorf("document kind is required")
	}
	if doc.Number <= 0 {
		return fmt.Errorf("document number must be positive")
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO documents (id, kind, year, number, created_at) VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Kind, doc.Year, doc.Number, toMillis(doc.CreatedAt),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: %d/%d", storage.ErrNumberTaken, doc.Year, doc.Number)
		}
		return storage.WriteError{Op: "insert document", Err: err}
	}
	return nil
}
