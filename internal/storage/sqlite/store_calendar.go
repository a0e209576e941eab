package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mittbeet/mittbeet/internal/domain/calendar"
	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/metrics"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// OpenCalendarDay opens one advent calendar day for an account exactly once.
//
// The sequence is: take a key lock scoped to (account, year, day), then in
// one transaction re-check whether the day is already open, insert the day
// row, append the day-opened event, and run the optional caller side effect.
// Racing callers serialize on the lock; exactly one commits, the rest get a
// DayAlreadyOpenedError carrying the conflicting day. The primary key on
// calendar_days backs the lock up across processes.
func (s *Store) OpenCalendarDay(ctx context.Context, accountID string, year, day int, sideEffect func(ctx context.Context, append storage.AppendFunc) error) (event.Event, error) {
	if err := ctx.Err(); err != nil {
		return event.Event{}, err
	}
	if s == nil || s.sqlDB == nil {
		return event.Event{}, fmt.Errorf("storage is not configured")
	}
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}

	unlock := s.locks.Lock(fmt.Sprintf("calendar/%s/%d/%d", accountID, year, day))
	defer unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return event.Event{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var found int
	row := tx.QueryRowContext(ctx,
		"SELECT 1 FROM calendar_days WHERE account_id = ? AND year = ? AND day = ?",
		accountID, year, day,
	)
	if err := row.Scan(&found); err == nil {
		metrics.DayGateConflicts.Inc()
		return event.Event{}, calendar.DayAlreadyOpenedError{AccountID: accountID, Year: year, Day: day}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return event.Event{}, fmt.Errorf("check calendar day: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO calendar_days (account_id, year, day, opened_at) VALUES (?, ?, ?, ?)",
		accountID, year, day, toMillis(time.Now().UTC()),
	); err != nil {
		if isConstraintError(err) {
			metrics.DayGateConflicts.Inc()
			return event.Event{}, calendar.DayAlreadyOpenedError{AccountID: accountID, Year: year, Day: day}
		}
		return event.Event{}, storage.WriteError{Op: "insert calendar day", Err: err}
	}

	opened, err := s.appendEvent(ctx, tx, calendar.NewDayOpened(accountID, year, day))
	if err != nil {
		return event.Event{}, err
	}

	if sideEffect != nil {
		appendInTx := func(evt event.Event) (event.Event, error) {
			return s.appendEvent(ctx, tx, evt)
		}
		if err := sideEffect(ctx, appendInTx); err != nil {
			return event.Event{}, fmt.Errorf("calendar day side effect: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return event.Event{}, storage.WriteError{Op: "commit calendar day", Err: err}
	}
	return opened, nil
}
