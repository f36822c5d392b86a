package api

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/myinner/pkg/audit"
	"github.com/platinummonkey/myinner/pkg/config"
	"github.com/platinummonkey/myinner/pkg/observability"
	"github.com/platinummonkey/myinner/pkg/storage/postgres"
)

// OpenLogStore opens the configured log store. The returned database is nil for the
// memory backend.
func OpenLogStore(ctx context.Context, cfg *config.Config) (audit.Store, *sql.DB, error) {
	switch cfg.Database.AuditBackend {
	case "memory":
		return audit.NewMemoryStore(), nil, nil
	case "postgres":
		connConfig := postgres.DefaultConnectionConfig(cfg.Database.PostgresURL)
		if cfg.Database.MaxOpenConns > 0 {
			connConfig.MaxConns = cfg.Database.MaxOpenConns
		}
		db, err := postgres.Open(ctx, connConfig)
		if err != nil {
			return nil, nil, err
		}
		store, err := audit.NewDBStore(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return store, db, nil
	default:
		return nil, nil, fmt.Errorf("unknown audit backend %q", cfg.Database.AuditBackend)
	}
}

// NewArchiver returns the configured archiver, or nil when archiving is disabled
func NewArchiver(ctx context.Context, cfg config.ArchiveConfig) (audit.Archiver, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	switch cfg.Type {
	case "file":
		return audit.NewFileArchiver(cfg.Dir), nil
	case "s3":
		client, err := postgres.NewS3Client(ctx, postgres.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 archiver: %w", err)
		}
		return audit.NewS3Archiver(client, cfg.S3Prefix), nil
	default:
		return nil, fmt.Errorf("unknown archive type %q", cfg.Type)
	}
}

// NewRetentionService wires the retention service to the configured archiver
func NewRetentionService(ctx context.Context, cfg *config.Config, store audit.Store, metrics *observability.Metrics, logger logrus.FieldLogger) (*audit.RetentionService, error) {
	archiver, err := NewArchiver(ctx, cfg.Archive)
	if err != nil {
		return nil, err
	}
	return newRetentionService(cfg, store, archiver, metrics, logger), nil
}

func newRetentionService(cfg *config.Config, store audit.Store, archiver audit.Archiver, metrics *observability.Metrics, logger logrus.FieldLogger) *audit.RetentionService {
	opts := []audit.RetentionOption{
		audit.WithRetentionLogger(logger),
		audit.WithRetentionMetrics(metrics),
	}
	if archiver != nil {
		opts = append(opts, audit.WithArchiver(archiver))
	}
	return audit.NewRetentionService(store, cfg.RetentionPolicy(), opts...)
}

// archiveHealthCheck returns the readiness check of archivers backed by a remote service
func archiveHealthCheck(archiver audit.Archiver) observability.CheckFunc {
	if checked, ok := archiver.(interface {
		HealthCheck(ctx context.Context) error
	}); ok {
		return checked.HealthCheck
	}
	return nil
}
