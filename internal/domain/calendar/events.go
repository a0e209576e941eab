// Package calendar defines the advent-calendar day-gate events: one opening
// per account per calendar day, guarded against duplicate execution.
package calendar

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mittbeet/mittbeet/internal/domain/event"
)

// TypeDayOpened records an advent calendar day opened by an account.
const TypeDayOpened event.Type = "calendar.day_opened"

// DayOpenedPayload identifies the opened day.
type DayOpenedPayload struct {
	Year int `json:"year"`
	Day  int `json:"day"`
}

// NewDayOpened constructs a day-opened event for an account.
func NewDayOpened(accountID string, year, day int) event.Event {
	raw, _ := json.Marshal(DayOpenedPayload{Year: year, Day: day})
	return event.Event{
		Type:        TypeDayOpened,
		Version:     1,
		AggregateID: accountID,
		PayloadJSON: raw,
	}
}

// RegisterEvents registers calendar events with the shared catalog.
func RegisterEvents(registry *event.Registry) error {
	if registry == nil {
		return errors.New("event registry is required")
	}
	return registry.Register(event.Definition{
		Type:            TypeDayOpened,
		Version:         1,
		ValidatePayload: validateDayOpenedPayload,
	})
}

func validateDayOpenedPayload(raw json.RawMessage) error {
	var payload DayOpenedPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return err
	}
	if payload.Year < 2000 {
		return errors.New("year is out of range")
	}
	if payload.Day < 1 || payload.Day > 31 {
		return errors.New("day must be between 1 and 31")
	}
	return nil
}

// DayAlreadyOpenedError is returned when an account races or retries an open
// for a day it has already opened. It carries the conflicting day.
type DayAlreadyOpenedError struct {
	AccountID string
	Year      int
	Day       int
}

func (e DayAlreadyOpenedError) Error() string {
	return fmt.Sprintf("calendar day %d/%d already opened by account %s", e.Year, e.Day, e.AccountID)
}
