package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tallybill/tally/am"
	"github.com/tallybill/tally/enrich"
	"github.com/tallybill/tally/logger"
	"github.com/tallybill/tally/pulse/async"
	"golang.org/x/time/rate"
)

// PulseCmd represents the pulse command - background job daemon
var PulseCmd = &cobra.Command{
	Use:   "pulse",
	Short: "Manage the background job daemon",
	Long: `Pulse daemon - background job processing.

The Pulse daemon provides:
- Persisted async job queue with a worker pool
- Rate-limited enrichment batches (census refresh, coordinate backfill,
  address standardization)
- Graceful shutdown (completes current jobs before exit)
- Hot reload of process configuration

Example:
  tally pulse start              # Start daemon in foreground
  tally pulse start --workers 3  # Start with 3 concurrent workers`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// PulseStartCmd starts the Pulse daemon
var PulseStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Pulse daemon",
	Long: `Start the Pulse daemon in foreground mode.

The daemon will:
- Start a worker pool for async job processing
- Register enrichment job handlers for the configured providers
- Run until interrupted (Ctrl+C) with graceful shutdown`,
	RunE: runPulseStart,
}

func init() {
	PulseStartCmd.Flags().Int("workers", 0, "Number of concurrent workers (0 = from config)")
	PulseCmd.AddCommand(PulseStartCmd)
}

func runPulseStart(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	workers, _ := cmd.Flags().GetInt("workers")
	if workers <= 0 {
		workers = cfg.Pulse.Workers
	}

	database, err := openDatabase("")
	if err != nil {
		return err
	}
	defer database.Close()

	poolCfg := async.DefaultWorkerPoolConfig()
	poolCfg.Workers = workers
	if cfg.Pulse.PollIntervalSeconds > 0 {
		poolCfg.PollInterval = time.Duration(cfg.Pulse.PollIntervalSeconds) * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool := async.NewWorkerPool(ctx, database, poolCfg, logger.Logger)

	// Enrichment handlers register for whichever providers are wired.
	// Census, geocoding, and standardization providers are supplied by the
	// embedding application; a job enqueued for a handler this daemon did
	// not register is dequeued and failed with a dispatch error.
	providers := enrich.Providers{BatchSize: cfg.Enrich.BatchSize}
	if cfg.Enrich.GeocodeRatePerMinute > 0 {
		limit := rate.Limit(float64(cfg.Enrich.GeocodeRatePerMinute) / 60.0)
		providers.GeocodeLimiter = rate.NewLimiter(limit, cfg.Enrich.GeocodeBurst)
	}
	enrich.RegisterHandlers(pool.Registry(), database, pool.Queue(), providers, logger.Logger)

	pool.Start()

	if cfg.Pulse.CleanupAfterDays > 0 {
		retention := time.Duration(cfg.Pulse.CleanupAfterDays) * 24 * time.Hour
		if removed, err := pool.Queue().Cleanup(retention); err != nil {
			logger.Logger.Warnw("Job cleanup failed", logger.FieldError, err)
		} else if removed > 0 {
			logger.Logger.Infow("Cleaned up old jobs", "removed", removed, "retention", retention)
		}
	}

	// Hot-reload the process config so operators can retune the pool
	// without dropping in-flight jobs.
	var watcher *am.ConfigWatcher
	if configPath := am.FindProjectConfig(); configPath != "" {
		watcher, err = am.NewConfigWatcher(configPath)
		if err != nil {
			logger.Logger.Warnw("Config watcher unavailable", logger.FieldError, err)
		} else {
			watcher.OnReload(func(updated *am.Config) error {
				logger.Logger.Infow("Process configuration reloaded",
					"workers", updated.Pulse.Workers,
					"poll_interval_seconds", updated.Pulse.PollIntervalSeconds)
				return nil
			})
			watcher.Start()
			defer watcher.Stop()
		}
	}

	fmt.Printf("Pulse daemon started\n")
	fmt.Printf("  Workers:       %d\n", pool.Workers())
	fmt.Printf("  Poll interval: %v\n", poolCfg.PollInterval)
	fmt.Printf("  Geocode rate:  %d/min (burst %d)\n", cfg.Enrich.GeocodeRatePerMinute, cfg.Enrich.GeocodeBurst)
	fmt.Printf("\nPress Ctrl+C for graceful shutdown\n\n")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Printf("\nShutting down...\n")

	pool.Stop()
	cancel()

	fmt.Printf("Pulse daemon stopped\n")
	return nil
}
