// Package maintenance implements the administrative command: replay
// verification, manual grant review, and the narrow event deletion.
package maintenance

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"sort"
	"time"

	"github.com/caarlos0/env/v11"

	achievementsvc "github.com/mittbeet/mittbeet/internal/achievement"
	"github.com/mittbeet/mittbeet/internal/domain/catalog"
	"github.com/mittbeet/mittbeet/internal/domain/delivery"
	"github.com/mittbeet/mittbeet/internal/domain/event"
	"github.com/mittbeet/mittbeet/internal/domain/inventory"
	"github.com/mittbeet/mittbeet/internal/domain/ledger"
	ledgersvc "github.com/mittbeet/mittbeet/internal/ledger"
	"github.com/mittbeet/mittbeet/internal/projection"
	"github.com/mittbeet/mittbeet/internal/storage"
	"github.com/mittbeet/mittbeet/internal/storage/sqlite"
)

const scanPageSize = 200

// Config holds maintenance command configuration.
type Config struct {
	DBPath       string        `env:"MITTBEET_DB_PATH"`
	Timeout      time.Duration `env:"MITTBEET_MAINTENANCE_TIMEOUT" envDefault:"10m"`
	VerifyReplay bool
	Approve      bool
	Deny         bool
	AccountID    string
	Achievement  string
	ReviewedBy   string
	DeleteEvent  int64
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join("data", "mittbeet.db")
	}

	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "path to the SQLite database")
	fs.BoolVar(&cfg.VerifyReplay, "verify-replay", false, "fold every aggregate twice and compare the results")
	fs.BoolVar(&cfg.Approve, "approve", false, "approve a pending achievement grant")
	fs.BoolVar(&cfg.Deny, "deny", false, "deny a pending achievement grant")
	fs.StringVar(&cfg.AccountID, "account", "", "account id for grant review")
	fs.StringVar(&cfg.Achievement, "achievement", "", "achievement key for grant review")
	fs.StringVar(&cfg.ReviewedBy, "by", "", "reviewer identity for grant review")
	fs.Int64Var(&cfg.DeleteEvent, "delete-event", 0, "delete one event by id (administrative correction)")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "overall timeout")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run executes the maintenance command.
func Run(ctx context.Context, cfg Config, out io.Writer, errOut io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	if errOut == nil {
		errOut = io.Discard
	}

	modes := 0
	for _, enabled := range []bool{cfg.VerifyReplay, cfg.Approve, cfg.Deny, cfg.DeleteEvent != 0} {
		if enabled {
			modes++
		}
	}
	if modes == 0 {
		return errors.New("nothing to do: pass -verify-replay, -approve, -deny, or -delete-event")
	}
	if modes > 1 {
		return errors.New("pass exactly one of -verify-replay, -approve, -deny, -delete-event")
	}

	registry, err := catalog.BuildRegistry()
	if err != nil {
		return fmt.Errorf("build event registry: %w", err)
	}
	store, err := sqlite.Open(cfg.DBPath, registry)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			fmt.Fprintf(errOut, "Error: close store: %v\n", closeErr)
		}
	}()

	switch {
	case cfg.VerifyReplay:
		return runVerifyReplay(ctx, store, out)
	case cfg.Approve, cfg.Deny:
		return runGrantReview(ctx, store, cfg, out)
	default:
		return runDeleteEvent(ctx, store, cfg.DeleteEvent, out)
	}
}

// runVerifyReplay folds every aggregate of every projected family twice and
// compares the two results. Any divergence means a fold is impure or the
// journal order is unstable, both of which corrupt projections.
func runVerifyReplay(ctx context.Context, store *sqlite.Store, out io.Writer) error {
	families := []struct {
		name   string
		types  []event.Type
		verify func(ctx context.Context, aggregateID string) error
	}{
		{
			name:  "ledger",
			types: ledger.FoldHandledTypes(),
			verify: func(ctx context.Context, aggregateID string) error {
				return verifyFold(ctx, store, ledger.FoldHandledTypes(), aggregateID, ledger.State{}, ledger.Fold)
			},
		},
		{
			name:  "inventory",
			types: inventory.FoldHandledTypes(),
			verify: func(ctx context.Context, aggregateID string) error {
				return verifyFold(ctx, store, inventory.FoldHandledTypes(), aggregateID, inventory.State{}, inventory.Fold)
			},
		},
		{
			name:  "delivery",
			types: delivery.FoldHandledTypes(),
			verify: func(ctx context.Context, aggregateID string) error {
				return verifyFold(ctx, store, delivery.FoldHandledTypes(), aggregateID, delivery.State{}, delivery.Fold)
			},
		},
	}

	for _, family := range families {
		aggregates, err := collectAggregates(ctx, store, family.types)
		if err != nil {
			return err
		}
		for _, aggregateID := range aggregates {
			if err := family.verify(ctx, aggregateID); err != nil {
				return fmt.Errorf("family %s aggregate %s: %w", family.name, aggregateID, err)
			}
		}
		fmt.Fprintf(out, "%s: %d aggregates verified\n", family.name, len(aggregates))
	}
	return nil
}

// verifyFold replays one aggregate twice and compares the resulting states.
func verifyFold[S any](ctx context.Context, store storage.EventStore, types []event.Type, aggregateID string, initial S, fold projection.FoldFunc[S]) error {
	first, err := projection.Replay(ctx, store, types, []string{aggregateID}, initial, fold)
	if err != nil {
		return err
	}
	second, err := projection.Replay(ctx, store, types, []string{aggregateID}, initial, fold)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(first, second) {
		return fmt.Errorf("replay diverged:\n  first:  %+v\n  second: %+v", first, second)
	}
	return nil
}

// collectAggregates pages through events of the given types and returns the
// distinct aggregate ids, sorted.
func collectAggregates(ctx context.Context, store storage.EventStore, types []event.Type) ([]string, error) {
	seen := make(map[string]struct{})
	offset := 0
	for {
		events, err := store.QueryEvents(ctx, storage.EventQuery{
			Types:  types,
			Offset: offset,
			Limit:  scanPageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("scan events at offset %d: %w", offset, err)
		}
		for _, evt := range events {
			seen[evt.AggregateID] = struct{}{}
		}
		if len(events) < scanPageSize {
			break
		}
		offset += len(events)
	}

	aggregates := make([]string, 0, len(seen))
	for aggregateID := range seen {
		aggregates = append(aggregates, aggregateID)
	}
	sort.Strings(aggregates)
	return aggregates, nil
}

func runGrantReview(ctx context.Context, store *sqlite.Store, cfg Config, out io.Writer) error {
	if cfg.AccountID == "" || cfg.Achievement == "" {
		return errors.New("-account and -achievement are required for grant review")
	}
	if cfg.ReviewedBy == "" {
		return errors.New("-by is required for grant review")
	}

	ledgerService, err := ledgersvc.NewService(store)
	if err != nil {
		return err
	}
	evaluator, err := achievementsvc.NewEvaluator(store, ledgerService, nil)
	if err != nil {
		return err
	}

	if cfg.Approve {
		if err := evaluator.Approve(ctx, cfg.AccountID, cfg.Achievement, cfg.ReviewedBy); err != nil {
			return err
		}
		fmt.Fprintf(out, "approved %s for %s\n", cfg.Achievement, cfg.AccountID)
		return nil
	}
	if err := evaluator.Deny(ctx, cfg.AccountID, cfg.Achievement, cfg.ReviewedBy); err != nil {
		return err
	}
	fmt.Fprintf(out, "denied %s for %s\n", cfg.Achievement, cfg.AccountID)
	return nil
}

func runDeleteEvent(ctx context.Context, store *sqlite.Store, eventID int64, out io.Writer) error {
	if eventID <= 0 {
		return fmt.Errorf("invalid event id: %d", eventID)
	}
	if err := store.DeleteEventByID(ctx, eventID); err != nil {
		return err
	}
	fmt.Fprintf(out, "deleted event %d\n", eventID)
	return nil
}
