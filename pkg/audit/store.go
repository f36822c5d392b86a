package audit

import (
	"context"
	"time"
)

// Store is the append-mostly collection of log records
type Store interface {
	// Write appends a record, assigning its ID and timestamp
	Write(ctx context.Context, record *LogRecord) error

	// Get retrieves a record by ID
	Get(ctx context.Context, id int64) (*LogRecord, error)

	// Search returns matching records, newest first
	Search(ctx context.Context, filter SearchFilter) ([]*LogRecord, error)

	// Count returns the number of matching records
	Count(ctx context.Context, filter SearchFilter) (int64, error)

	// CountByAction groups matching records by action, largest first
	CountByAction(ctx context.Context, filter SearchFilter) ([]ActionCount, error)

	// CountByEntityType groups matching records by entity type, largest first (limit 0 = all)
	CountByEntityType(ctx context.Context, filter SearchFilter, limit int) ([]EntityTypeCount, error)

	// TopActors groups matching records with an actor by actor, largest first
	TopActors(ctx context.Context, filter SearchFilter, limit int) ([]ActorCount, error)

	// CountDistinctActors counts the distinct non-system actors of matching records
	CountDistinctActors(ctx context.Context, filter SearchFilter) (int64, error)

	// DailyActivity counts matching records per UTC calendar day, oldest first
	DailyActivity(ctx context.Context, filter SearchFilter) ([]DayCount, error)

	// HourlyActivity counts matching records per UTC hour of day, always 24 buckets
	HourlyActivity(ctx context.Context, filter SearchFilter) ([]HourCount, error)

	// CountBefore counts records strictly older than cutoff
	CountBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// SearchBefore returns records strictly older than cutoff, oldest first
	SearchBefore(ctx context.Context, cutoff time.Time) ([]*LogRecord, error)

	// DeleteBefore atomically removes records strictly older than cutoff
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// emptyHours returns the 24 zeroed hour buckets
func emptyHours() []HourCount {
	hours := make([]HourCount, 24)
	for h := range hours {
		hours[h] = HourCount{Hour: h}
	}
	return hours
}

// dayKey formats the UTC calendar day of t
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
