// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/mittbeet/mittbeet/internal/platform/cmd"
	workerruntime "github.com/mittbeet/mittbeet/internal/worker"
)

// Config holds worker command configuration.
type Config struct {
	DBPath       string        `env:"MITTBEET_DB_PATH" envDefault:"data/mittbeet.db"`
	MetricsAddr  string        `env:"MITTBEET_METRICS_ADDR" envDefault:":9464"`
	PollInterval time.Duration `env:"MITTBEET_EVALUATOR_INTERVAL" envDefault:"1m"`
	RulesPath    string        `env:"MITTBEET_RULES_PATH"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The SQLite database path")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "The Prometheus metrics listen address")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Achievement evaluation interval")
	fs.StringVar(&cfg.RulesPath, "rules-path", cfg.RulesPath, "Optional YAML achievement rule catalog path")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(context.Context) error {
		return workerruntime.Run(ctx, workerruntime.RuntimeConfig{
			DBPath:       cfg.DBPath,
			MetricsAddr:  cfg.MetricsAddr,
			PollInterval: cfg.PollInterval,
			RulesPath:    cfg.RulesPath,
		})
	})
}
