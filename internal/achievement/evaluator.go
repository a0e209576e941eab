// Package achievement evaluates the rule catalog against raw garden
// activity and manages the grant review workflow.
package achievement

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/mittbeet/mittbeet/internal/domain/achievement"
	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/domain/garden"
	"github.com/mittbeet/mittbeet/internal/ledger"
	"github.com/mittbeet/mittbeet/internal/metrics"
	"github.com/mittbeet/mittbeet/internal/storage"
)

const tracerName = "mittbeet/achievement"

// scanPageSize bounds how many garden events one evaluator query loads.
const scanPageSize = 500

// GrantActorSystem is the audit stamp used for auto-approved grants.
const GrantActorSystem = "system"

// Store is the persistence surface the evaluator needs.
type Store interface {
	storage.EventStore
	storage.GrantStore
}

// Evaluator runs batch achievement evaluation passes and processes manual
// grant reviews. Passes are idempotent: re-running over the same journal
// grants nothing twice and credits nothing twice.
type Evaluator struct {
	store  Store
	ledger *ledger.Service
	rules  []achievement.Rule
}

// NewEvaluator creates an evaluator over the given rule catalog.
func NewEvaluator(store Store, ledgerService *ledger.Service, rules []achievement.Rule) (*Evaluator, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if ledgerService == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if len(rules) == 0 {
		rules = achievement.DefaultRules()
	}
	if err := achievement.ValidateRules(rules); err != nil {
		return nil, err
	}
	return &Evaluator{store: store, ledger: ledgerService, rules: rules}, nil
}

// categoryForType maps a garden event type to the counter it increments.
func categoryForType(typ event.Type) (achievement.Category, bool) {
	switch typ {
	case garden.TypePlanted:
		return achievement.CategoryPlantings, true
	case garden.TypeHarvested:
		return achievement.CategoryHarvests, true
	case garden.TypeWatered:
		return achievement.CategoryWaterings, true
	case garden.TypeMemberRegistered:
		return achievement.CategoryRegistration, true
	}
	return "", false
}

// Run executes one evaluation pass: scan all garden activity, count per
// account per category, and grant every rule whose threshold is reached.
// It returns the number of new grants inserted.
func (e *Evaluator) Run(ctx context.Context) (granted int, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "achievement.evaluate")
	defer span.End()

	counters, err := e.scan(ctx)
	if err != nil {
		return 0, err
	}

	// Deterministic account order keeps runs comparable in logs and traces.
	accounts := make([]string, 0, len(counters))
	for accountID := range counters {
		accounts = append(accounts, accountID)
	}
	sort.Strings(accounts)

	for _, accountID := range accounts {
		for _, rule := range e.rules {
			if counters[accountID][rule.Category] < rule.Threshold {
				continue
			}
			inserted, err := e.grant(ctx, accountID, rule)
			if err != nil {
				return granted, err
			}
			if inserted {
				granted++
			}
		}
	}

	span.SetAttributes(
		attribute.Int("achievement.accounts_scanned", len(accounts)),
		attribute.Int("achievement.grants_inserted", granted),
	)
	metrics.EvaluatorRuns.Inc()
	return granted, nil
}

// scan pages through all garden activity and tallies per-account category
// counters.
func (e *Evaluator) scan(ctx context.Context) (map[string]map[achievement.Category]int, error) {
	counters := make(map[string]map[achievement.Category]int)
	types := []event.Type{
		garden.TypePlanted,
		garden.TypeHarvested,
		garden.TypeWatered,
		garden.TypeMemberRegistered,
	}

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		events, err := e.store.QueryEvents(ctx, storage.EventQuery{
			Types:  types,
			Offset: offset,
			Limit:  scanPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("scan garden events at offset %d: %w", offset, err)
		}
		for _, evt := range events {
			category, ok := categoryForType(evt.Type)
			if !ok {
				continue
			}
			if counters[evt.AggregateID] == nil {
				counters[evt.AggregateID] = make(map[achievement.Category]int)
			}
			counters[evt.AggregateID][category]++
		}
		if len(events) < scanPageSize {
			return counters, nil
		}
		offset += len(events)
	}
}

// grant inserts one achievement and, for auto-approved rules, stamps the
// approval and credits the reward. The conflict-free insert makes repeat
// passes no-ops.
func (e *Evaluator) grant(ctx context.Context, accountID string, rule achievement.Rule) (bool, error) {
	inserted, err := e.store.EnsureGrant(ctx, storage.Grant{
		AccountID: accountID,
		Key:       rule.Key,
		Title:     rule.Title,
		Reward:    rule.Reward,
		Status:    storage.GrantPending,
		GrantedAt: time.Now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("grant %s to %s: %w", rule.Key, accountID, err)
	}
	if !inserted {
		return false, nil
	}
	metrics.AchievementsGranted.WithLabelValues(rule.Key).Inc()

	if !rule.AutoApprove {
		return true, nil
	}
	if _, err := e.store.ApproveGrant(ctx, accountID, rule.Key, GrantActorSystem); err != nil {
		return true, fmt.Errorf("auto-approve %s for %s: %w", rule.Key, accountID, err)
	}
	if _, err := e.ledger.Earn(ctx, accountID, rule.Reward, "achievement:"+rule.Key); err != nil {
		return true, fmt.Errorf("credit reward for %s to %s: %w", rule.Key, accountID, err)
	}
	return true, nil
}

// Approve stamps a pending grant approved and credits its reward. Repeating
// an approval neither fails nor credits twice.
func (e *Evaluator) Approve(ctx context.Context, accountID, key, approvedBy string) error {
	if approvedBy == "" {
		return fmt.Errorf("approver is required")
	}
	changed, err := e.store.ApproveGrant(ctx, accountID, key, approvedBy)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	grant, err := e.store.GetGrant(ctx, accountID, key)
	if err != nil {
		return fmt.Errorf("load approved grant %s for %s: %w", key, accountID, err)
	}
	if _, err := e.ledger.Earn(ctx, accountID, grant.Reward, "achievement:"+key); err != nil {
		return fmt.Errorf("credit reward for %s to %s: %w", key, accountID, err)
	}
	return nil
}

// Deny stamps a pending grant denied. Repeating a denial is a no-op.
func (e *Evaluator) Deny(ctx context.Context, accountID, key, deniedBy string) error {
	if deniedBy == "" {
		return fmt.Errorf("reviewer is required")
	}
	_, err := e.store.DenyGrant(ctx, accountID, key, deniedBy)
	return err
}
