// Package calendar provides the advent-calendar day-gate service: each
// account may open a given day exactly once, with an optional reward applied
// atomically with the open.
package calendar

import (
	"context"
	"fmt"

	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/storage"
)

// RewardFunc applies the reward for an opened day. It runs inside the same
// transaction as the open event; appending through append keeps the reward
// atomic with the gate.
type RewardFunc func(ctx context.Context, accountID string, year, day int, append storage.AppendFunc) error

// Service opens calendar days through the day-gated store.
type Service struct {
	store  storage.CalendarStore
	reward RewardFunc
}

// NewService creates the calendar service. A nil reward means opening a day
// records only the open event.
func NewService(store storage.CalendarStore, reward RewardFunc) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("calendar store is required")
	}
	return &Service{store: store, reward: reward}, nil
}

// OpenDay opens one calendar day for an account. A repeat open returns
// calendar.DayAlreadyOpenedError and applies no reward.
func (s *Service) OpenDay(ctx context.Context, accountID string, year, day int) (event.Event, error) {
	if accountID == "" {
		return event.Event{}, fmt.Errorf("account id is required")
	}
	if year < 2000 {
		return event.Event{}, fmt.Errorf("year %d is out of range", year)
	}
	if day < 1 || day > 31 {
		return event.Event{}, fmt.Errorf("day %d is out of range", day)
	}

	var sideEffect func(ctx context.Context, append storage.AppendFunc) error
	if s.reward != nil {
		sideEffect = func(ctx context.Context, append storage.AppendFunc) error {
			return s.reward(ctx, accountID, year, day, append)
		}
	}
	opened, err := s.store.OpenCalendarDay(ctx, accountID, year, day, sideEffect)
	if err != nil {
		return event.Event{}, err
	}
	return opened, nil
}
