package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/storage"
)

// EnsureGrant inserts an achievement grant if no row exists yet for the
// (account, key) pair. Concurrent and repeated evaluator runs race safely:
// the primary key makes the insert a no-op on conflict.
func (s *Store) EnsureGrant(ctx context.Context, grant storage.Grant) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	if grant.AccountID == "" || grant.Key == "" {
		return false, fmt.Errorf("account id and achievement key are required")
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	if grant.Status == "" {
		grant.Status = storage.GrantPending
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO achievement_grants (account_id, achievement_key, title, reward, status, granted_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (account_id, achievement_key) DO NOTHING`,
		grant.AccountID, grant.Key, grant.Title, grant.Reward, string(grant.Status), toMillis(grant.GrantedAt),
	)
	if err != nil {
		return false, storage.WriteError{Op: "ensure grant", Err: err}
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("ensure grant rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetGrant loads one grant row.
func (s *Store) GetGrant(ctx context.Context, accountID, key string) (storage.Grant, error) {
	if err := ctx.Err(); err != nil {
		return storage.Grant{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Grant{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT account_id, achievement_key, title, reward, status, granted_at, approved_at, approved_by, denied_at, denied_by
		 FROM achievement_grants WHERE account_id = ? AND achievement_key = ?`,
		accountID, key,
	)
	grant, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Grant{}, storage.ErrNotFound
		}
		return storage.Grant{}, fmt.Errorf("get grant: %w", err)
	}
	return grant, nil
}

// ListGrants returns all grants for an account in grant order.
func (s *Store) ListGrants(ctx context.Context, accountID string) ([]storage.Grant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT account_id, achievement_key, title, reward, status, granted_at, approved_at, approved_by, denied_at, denied_by
		 FROM achievement_grants WHERE account_id = ?
		 ORDER BY granted_at ASC, achievement_key ASC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("list grants: %w", err)
	}
	defer rows.Close()

	var grants []storage.Grant
	for rows.Next() {
		grant, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("scan grant: %w", err)
		}
		grants = append(grants, grant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate grants: %w", err)
	}
	return grants, nil
}

// ApproveGrant stamps a pending grant approved. Approving an already
// approved grant is a no-op; approving a denied grant is a conflict.
func (s *Store) ApproveGrant(ctx context.Context, accountID, key, approvedBy string) (bool, error) {
	return s.reviewGrant(ctx, accountID, key, approvedBy, storage.GrantApproved)
}

// DenyGrant stamps a pending grant denied. Denying an already denied grant
// is a no-op; denying an approved grant is a conflict.
func (s *Store) DenyGrant(ctx context.Context, accountID, key, deniedBy string) (bool, error) {
	return s.reviewGrant(ctx, accountID, key, deniedBy, storage.GrantDenied)
}

func (s *Store) reviewGrant(ctx context.Context, accountID, key, reviewer string, target storage.GrantStatus) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}

	now := toMillis(time.Now().UTC())
	var result sql.Result
	var err error
	switch target {
	case storage.GrantApproved:
		result, err = s.sqlDB.ExecContext(ctx,
			`UPDATE achievement_grants SET status = ?, approved_at = ?, approved_by = ?
			 WHERE account_id = ? AND achievement_key = ? AND status = ?`,
			string(storage.GrantApproved), now, reviewer, accountID, key, string(storage.GrantPending),
		)
	case storage.GrantDenied:
		result, err = s.sqlDB.ExecContext(ctx,
			`UPDATE achievement_grants SET status = ?, denied_at = ?, denied_by = ?
			 WHERE account_id = ? AND achievement_key = ? AND status = ?`,
			string(storage.GrantDenied), now, reviewer, accountID, key, string(storage.GrantPending),
		)
	default:
		return false, fmt.Errorf("unsupported review status: %s", target)
	}
	if err != nil {
		return false, storage.WriteError{Op: "review grant", Err: err}
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("review grant rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil
	}

	// No pending row was updated: either the grant is missing, already in
	// the target state (idempotent no-op), or in the opposite review state
	// (conflict).
	grant, err := s.GetGrant(ctx, accountID, key)
	if err != nil {
		return false, err
	}
	if grant.Status == target {
		return false, nil
	}
	return false, fmt.Errorf("grant %s/%s is %s, cannot mark %s", accountID, key, grant.Status, target)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGrant(row rowScanner) (storage.Grant, error) {
	var (
		grant      storage.Grant
		status     string
		grantedAt  int64
		approvedAt sql.NullInt64
		deniedAt   sql.NullInt64
	)
	if err := row.Scan(
		&grant.AccountID,
		&grant.Key,
		&grant.Title,
		&grant.Reward,
		&status,
		&grantedAt,
		&approvedAt,
		&grant.ApprovedBy,
		&deniedAt,
		&grant.DeniedBy,
	); err != nil {
		return storage.Grant{}, err
	}
	grant.Status = storage.GrantStatus(status)
	grant.GrantedAt = fromMillis(grantedAt)
	grant.ApprovedAt = fromNullMillis(approvedAt)
	grant.DeniedAt = fromNullMillis(deniedAt)
	return grant, nil
}
