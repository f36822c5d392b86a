package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/myinner/pkg/observability"
)

var tracer = otel.Tracer("github.com/platinummonkey/myinner/pkg/audit")

// CleanupResult reports a retention preview or a confirmed cleanup
type CleanupResult struct {
	Preview      bool      `json:"preview,omitempty"`
	Success      bool      `json:"success,omitempty"`
	LogsToDelete *int64    `json:"logs_to_delete,omitempty"`
	DeletedCount *int64    `json:"deleted_count,omitempty"`
	CutoffDate   time.Time `json:"cutoff_date"`
	RetainDays   int       `json:"retain_days"`

	// ArchiveLocation is where the deleted records were archived, if archiving is enabled
	ArchiveLocation string `json:"archive_location,omitempty"`
}

// RetentionService removes log records older than the retention window
type RetentionService struct {
	store    Store
	policy   RetentionPolicy
	archiver Archiver
	logger   logrus.FieldLogger
	metrics  *observability.Metrics
	now      func() time.Time
}

// RetentionOption configures a RetentionService
type RetentionOption func(*RetentionService)

// WithArchiver archives records before they are deleted
func WithArchiver(archiver Archiver) RetentionOption {
	return func(s *RetentionService) {
		s.archiver = archiver
	}
}

// WithRetentionLogger sets the logger
func WithRetentionLogger(logger logrus.FieldLogger) RetentionOption {
	return func(s *RetentionService) {
		s.logger = logger
	}
}

// WithRetentionMetrics records cleanup runs and deleted counts
func WithRetentionMetrics(metrics *observability.Metrics) RetentionOption {
	return func(s *RetentionService) {
		s.metrics = metrics
	}
}

// NewRetentionService creates a retention service
func NewRetentionService(store Store, policy RetentionPolicy, opts ...RetentionOption) *RetentionService {
	if policy.RetainDays <= 0 {
		policy.RetainDays = DefaultRetainDays
	}
	s := &RetentionService{
		store:  store,
		policy: policy,
		logger: logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the effective retention policy
func (s *RetentionService) Policy() RetentionPolicy {
	return s.policy
}

// Preview counts the records a confirmed cleanup would delete, without deleting anything
func (s *RetentionService) Preview(ctx context.Context) (*CleanupResult, error) {
	cutoff := s.policy.Cutoff(s.now().UTC())

	count, err := s.store.CountBefore(ctx, cutoff)
	s.metrics.RecordCleanup("preview", 0, err)
	if err != nil {
		return nil, fmt.Errorf("failed to count expired log records: %w", err)
	}

	return &CleanupResult{
		Preview:      true,
		LogsToDelete: &count,
		CutoffDate:   cutoff,
		RetainDays:   s.policy.RetainDays,
	}, nil
}

// Execute deletes expired records when confirm is true, otherwise it only previews.
// The cutoff is computed once so records appended during the run are never deleted.
// With archiving enabled, an archive failure aborts the run before anything is deleted.
func (s *RetentionService) Execute(ctx context.Context, confirm bool) (*CleanupResult, error) {
	if !confirm {
		return s.Preview(ctx)
	}

	cutoff := s.policy.Cutoff(s.now().UTC())

	ctx, span := tracer.Start(ctx, "audit.RetentionService.Execute",
		trace.WithAttributes(
			attribute.String("retention.cutoff", cutoff.Format(time.RFC3339)),
			attribute.Int("retention.retain_days", s.policy.RetainDays),
		),
	)
	defer span.End()

	log := s.logger.WithFields(logrus.Fields{
		"cutoff":      cutoff.Format(time.RFC3339),
		"retain_days": s.policy.RetainDays,
	})

	result, err := s.execute(ctx, cutoff)
	if err != nil {
		s.metrics.RecordCleanup("execute", 0, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "cleanup failed")
		log.WithError(err).Error("audit log cleanup failed")
		return nil, err
	}

	s.metrics.RecordCleanup("execute", *result.DeletedCount, nil)
	span.SetAttributes(attribute.Int64("retention.deleted", *result.DeletedCount))
	span.SetStatus(codes.Ok, "cleanup completed")
	log.WithField("deleted", *result.DeletedCount).Info("audit log cleanup completed")
	return result, nil
}

func (s *RetentionService) execute(ctx context.Context, cutoff time.Time) (*CleanupResult, error) {
	result := &CleanupResult{
		Success:    true,
		CutoffDate: cutoff,
		RetainDays: s.policy.RetainDays,
	}

	if s.policy.ArchiveEnabled && s.archiver != nil {
		records, err := s.store.SearchBefore(ctx, cutoff)
		if err != nil {
			return nil, fmt.Errorf("failed to load expired log records: %w", err)
		}
		if len(records) > 0 {
			location, err := s.archiver.Archive(ctx, records, cutoff)
			if err != nil {
				return nil, fmt.Errorf("failed to archive expired log records: %w", err)
			}
			s.metrics.RecordArchived(len(records))
			result.ArchiveLocation = location
		}
	}

	deleted, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired log records: %w", err)
	}
	result.DeletedCount = &deleted

	return result, nil
}
