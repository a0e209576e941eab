// Package catalog assembles the closed event registry from every aggregate
// family. The storage layer validates appends against the result, so the set
// of persistable facts is exactly the set registered here.
package catalog

import (
	"github.com/mittbeet/mittbeet/internal/domain/calendar"
	"github.com/mittbeet/mittbeet/internal/domain/delivery"
	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/domain/garden"
	"github.com/mittbeet/mittbeet/internal/domain/inventory"
	"github.com/mittbeet/mittbeet/internal/domain/ledger"
)

// BuildRegistry registers all event families and returns the shared registry.
func BuildRegistry() (*event.Registry, error) {
	registry := event.NewRegistry()
	registrars := []func(*event.Registry) error{
		ledger.RegisterEvents,
		delivery.RegisterEvents,
		garden.RegisterEvents,
		inventory.RegisterEvents,
		calendar.RegisterEvents,
	}
	for _, register := range registrars {
		if err := register(registry); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
