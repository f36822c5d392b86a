package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/api"
	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/config"
	"github.com/platinummonkey/myinner/pkg/observability"
)

var (
	runOnce  = flag.Bool("run-once", false, "Run the cleanup once and exit")
	dryRun   = flag.Bool("dry-run", false, "Only report how many log records would be deleted")
	schedule = flag.String("schedule", "", "Cron schedule overriding MYINNER_AUDIT_CLEANUP_SCHEDULE")
)

func main() {
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *schedule != "" {
		cfg.Audit.CleanupSchedule = *schedule
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, db, err := api.OpenLogStore(ctx, cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open log store")
	}
	if db != nil {
		defer db.Close()
	}

	metrics := observability.NewMetrics(prometheus.NewRegistry())
	retention, err := api.NewRetentionService(ctx, cfg, store, metrics, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create retention service")
	}

	if *runOnce {
		if err := runCleanup(ctx, retention, logger); err != nil {
			logger.WithError(err).Fatal("Cleanup failed")
		}
		return
	}

	c := newScheduler(logger)
	_, err = c.AddFunc(cfg.Audit.CleanupSchedule, func() {
		if err := runCleanup(ctx, retention, logger); err != nil {
			logger.WithError(err).Error("Scheduled cleanup failed")
		}
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to schedule cleanup")
	}

	c.Start()
	logger.WithFields(logrus.Fields{
		"schedule":    cfg.Audit.CleanupSchedule,
		"retain_days": cfg.Audit.RetainDays,
		"dry_run":     *dryRun,
	}).Info("Audit retention scheduler started")

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	<-c.Stop().Done()
	logger.Info("Retention scheduler stopped")
}

func runCleanup(ctx context.Context, retention *audit.RetentionService, logger logrus.FieldLogger) error {
	result, err := retention.Execute(ctx, !*dryRun)
	if err != nil {
		return err
	}

	log := logger.WithFields(logrus.Fields{
		"cutoff_date": result.CutoffDate,
		"retain_days": result.RetainDays,
	})
	if result.Preview {
		if result.LogsToDelete != nil {
			log = log.WithField("logs_to_delete", *result.LogsToDelete)
		}
		log.Info("Cleanup preview")
		return nil
	}

	if result.DeletedCount != nil {
		log = log.WithField("deleted_count", *result.DeletedCount)
	}
	if result.ArchiveLocation != "" {
		log = log.WithField("archive_location", result.ArchiveLocation)
	}
	log.Info("Cleanup completed")
	return nil
}
