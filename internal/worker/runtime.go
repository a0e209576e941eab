// Package worker runs the background runtime: periodic achievement
// evaluation passes plus the Prometheus metrics endpoint.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	achievementsvc "github.com/mittbeet/mittbeet/internal/achievement"
	"github.com/mittbeet/mittbeet/internal/domain/achievement"
	"github.com/mittbeet/mittbeet/internal/domain/catalog"
	ledgersvc "github.com/mittbeet/mittbeet/internal/ledger"
	"github.com/mittbeet/mittbeet/internal/storage/sqlite"
)

// RuntimeConfig holds the assembled worker runtime configuration.
type RuntimeConfig struct {
	DBPath       string
	MetricsAddr  string
	PollInterval time.Duration
	RulesPath    string
}

// Run starts the worker runtime and blocks until ctx is cancelled.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}

	rules, err := loadRules(cfg.RulesPath)
	if err != nil {
		return err
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
		if err := store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}()

	ledgerService, err := ledgersvc.NewService(store)
	if err != nil {
		return err
	}
	evaluator, err := achievementsvc.NewEvaluator(store, ledgerService, rules)
	if err != nil {
		return err
	}

	metricsErr := make(chan error, 1)
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler()}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			metricsErr <- fmt.Errorf("metrics server: %w", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown metrics server: %v", err)
		}
	}()

	log.Printf("worker started: db=%s metrics=%s interval=%s rules=%d",
		cfg.DBPath, cfg.MetricsAddr, cfg.PollInterval, len(rules))

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-metricsErr:
			return err
		case <-ticker.C:
			granted, err := evaluator.Run(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				log.Printf("achievement evaluation pass: %v", err)
				continue
			}
			if granted > 0 {
				log.Printf("achievement evaluation pass granted %d", granted)
			}
		}
	}
}

func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// loadRules reads the YAML rule catalog at path, or the built-in catalog
// when no path is configured.
func loadRules(path string) ([]achievement.Rule, error) {
	if path == "" {
		return achievement.DefaultRules(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}
	return achievement.ParseRules(raw)
}
