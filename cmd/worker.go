package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/pentest-portal/internal/access"
	accessPostgres "github.com/frahmantamala/pentest-portal/internal/access/postgres"
	"github.com/frahmantamala/pentest-portal/internal/core/datastore"
	"github.com/frahmantamala/pentest-portal/internal/core/events"
	"github.com/frahmantamala/pentest-portal/internal/upload"
	uploadPostgres "github.com/frahmantamala/pentest-portal/internal/upload/postgres"
	"github.com/frahmantamala/pentest-portal/pkg/logger"
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run background maintenance jobs",
	Long:  `Run one-off worker pools that maintain evidence storage outside the HTTP server.`,
}

var purgeOrphansCmd = &cobra.Command{
	Use:   "purge-orphans",
	Short: "Delete stored evidence objects no upload references",
	Long:  `Scan object storage for blobs left behind by interrupted deletes and purge them through the worker pool.`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runPurgeOrphans(); err != nil {
			fmt.Fprintf(os.Stderr, "Purge failed: %v\n", err)
			os.Exit(1)
		}
	},
}

var (
	maxWorkers   int
	jobQueueSize int
	drainTimeout time.Duration
	minAge       time.Duration
)

func runPurgeOrphans() error {
	cfg, err := setup()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqlDB, err := initDB(cfg.Database)
	if err != nil {
		return err
	}
	defer sqlDB.Close()
	db, err := openGorm(sqlDB.DB, cfg.Env)
	if err != nil {
		return err
	}

	store, location, err := upload.NewObjectStorage(ctx, cfg.Storage, lg)
	if err != nil {
		return err
	}

	purgerConfig := upload.PurgerConfig{
		Workers:   getIntFlag(maxWorkers, cfg.Upload.PurgeWorkers),
		QueueSize: getIntFlag(jobQueueSize, cfg.Upload.QueueSize),
	}
	lg.Info("starting purge worker pool",
		"workers", purgerConfig.Workers,
		"queue_size", purgerConfig.QueueSize,
		"storage", location)

	purger := upload.NewPurger(store, purgerConfig, lg)
	uploads := upload.NewService(
		uploadPostgres.NewRepository(db),
		store,
		access.NewGate(accessPostgres.NewRepository(db), lg),
		datastore.NewGormTransactor(db),
		events.NewEventBus(lg),
		upload.Options{
			MaxSizeBytes: cfg.Upload.MaxSizeBytes,
			Location:     location,
			OrphanMinAge: orphanMinAge(minAge, cfg.Upload.OrphanMinAge),
		},
		lg,
	)

	scheduled, sweepErr := uploads.SweepOrphans(ctx, purger)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := purger.Shutdown(shutdownCtx); err != nil {
		lg.Warn("purge pool did not drain before timeout", "error", err)
	}
	if sweepErr != nil {
		return sweepErr
	}

	lg.Info("orphan sweep complete", "scheduled", scheduled, "purged", purger.Purged())
	return nil
}

func getIntFlag(flagValue, configValue int) int {
	if flagValue > 0 {
		return flagValue
	}
	return configValue
}

func orphanMinAge(flagValue, configValue time.Duration) time.Duration {
	if flagValue > 0 {
		return flagValue
	}
	if configValue > 0 {
		return configValue
	}
	return upload.DefaultOrphanMinAge
}

func init() {
	purgeOrphansCmd.Flags().IntVar(&maxWorkers, "workers", 0, "Number of purge workers (overrides config)")
	purgeOrphansCmd.Flags().IntVar(&jobQueueSize, "job-queue-size", 0, "Purge queue buffer size (overrides config)")
	purgeOrphansCmd.Flags().DurationVar(&drainTimeout, "drain-timeout", 5*time.Minute, "How long to wait for queued purges to finish")
	purgeOrphansCmd.Flags().DurationVar(&minAge, "min-age", 0, "Skip objects modified more recently than this (overrides config)")

	workerCmd.AddCommand(purgeOrphansCmd)
}
