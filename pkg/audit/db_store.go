package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// DBStore implements Store on PostgreSQL
type DBStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewDBStore creates a new database-backed store
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	store := &DBStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}

	// Ensure the audit_log_records table exists
	if err := store.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure audit_log_records table: %w", err)
	}

	return store, nil
}

// ensureTable creates the audit_log_records table if it doesn't exist
func (s *DBStore) ensureTable() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_log_records (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
		actor_id BIGINT,
		actor_username VARCHAR(150) NOT NULL DEFAULT '',
		action SMALLINT NOT NULL,
		entity_namespace VARCHAR(100) NOT NULL,
		entity_name VARCHAR(100) NOT NULL,
		entity_id VARCHAR(255) NOT NULL,
		entity_repr TEXT NOT NULL DEFAULT '',
		changes JSONB,
		remote_addr VARCHAR(45) NOT NULL DEFAULT '',
		additional_data JSONB
	);

	-- Create indexes for common query patterns
	CREATE INDEX IF NOT EXISTS idx_audit_log_records_timestamp ON audit_log_records(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_audit_log_records_actor_id ON audit_log_records(actor_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_records_action ON audit_log_records(action);
	CREATE INDEX IF NOT EXISTS idx_audit_log_records_entity ON audit_log_records(entity_namespace, entity_name, entity_id);
	`

	_, err := s.db.Exec(query)
	return err
}

// Write inserts the record, assigning its ID and timestamp
func (s *DBStore) Write(ctx context.Context, record *LogRecord) error {
	var changesJSON, additionalJSON []byte
	var err error

	if len(record.Changes) > 0 {
		changesJSON, err = json.Marshal(record.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	if len(record.AdditionalData) > 0 {
		additionalJSON, err = json.Marshal(record.AdditionalData)
		if err != nil {
			return fmt.Errorf("failed to marshal additional data: %w", err)
		}
	}

	if record.Timestamp.IsZero() {
		record.Timestamp = s.now()
	}

	query := `
		INSERT INTO audit_log_records (
			timestamp, actor_id, actor_username, action,
			entity_namespace, entity_name, entity_id, entity_repr,
			changes, remote_addr, additional_data
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11
		) RETURNING id
	`

	err = s.db.QueryRowContext(ctx, query,
		record.Timestamp, record.ActorID, record.ActorUsername, int(record.Action),
		record.EntityType.Namespace, record.EntityType.Name, record.EntityID, record.EntityRepr,
		changesJSON, record.RemoteAddr, additionalJSON,
	).Scan(&record.ID)
	if err != nil {
		return fmt.Errorf("failed to insert audit log record: %w", err)
	}

	return nil
}

const selectColumns = `
	id, timestamp, actor_id, actor_username, action,
	entity_namespace, entity_name, entity_id, entity_repr,
	changes, remote_addr, additional_data`

// Get retrieves a record by ID
func (s *DBStore) Get(ctx context.Context, id int64) (*LogRecord, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM audit_log_records WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit log record: %w", err)
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrRecordNotFound
	}
	return records[0], nil
}

// Search returns matching records, newest first
func (s *DBStore) Search(ctx context.Context, filter SearchFilter) ([]*LogRecord, error) {
	where, args := buildWhere(filter)
	query := "SELECT " + selectColumns + " FROM audit_log_records " + where + " ORDER BY timestamp DESC, id DESC"

	argCount := len(args) + 1
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search audit log records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of matching records
func (s *DBStore) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log_records "+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit log records: %w", err)
	}
	return count, nil
}

// CountByAction groups matching records by action
func (s *DBStore) CountByAction(ctx context.Context, filter SearchFilter) ([]ActionCount, error) {
	where, args := buildWhere(filter)
	query := "SELECT action, COUNT(*) FROM audit_log_records " + where + " GROUP BY action ORDER BY COUNT(*) DESC, action"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by action: %w", err)
	}
	defer rows.Close()

	result := make([]ActionCount, 0)
	for rows.Next() {
		var action int
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, fmt.Errorf("failed to scan action count: %w", err)
		}
		result = append(result, ActionCount{Action: Action(action), Count: count})
	}
	return result, rows.Err()
}

// CountByEntityType groups matching records by entity type
func (s *DBStore) CountByEntityType(ctx context.Context, filter SearchFilter, limit int) ([]EntityTypeCount, error) {
	where, args := buildWhere(filter)
	query := "SELECT entity_namespace, entity_name, COUNT(*) FROM audit_log_records " + where +
		" GROUP BY entity_namespace, entity_name ORDER BY COUNT(*) DESC, entity_namespace, entity_name"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get records by entity type: %w", err)
	}
	defer rows.Close()

	result := make([]EntityTypeCount, 0)
	for rows.Next() {
		var row EntityTypeCount
		if err := rows.Scan(&row.EntityType.Namespace, &row.EntityType.Name, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan entity type count: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// TopActors groups matching records by actor
func (s *DBStore) TopActors(ctx context.Context, filter SearchFilter, limit int) ([]ActorCount, error) {
	where, args := buildWhere(filter)
	query := "SELECT actor_id, MAX(actor_username), COUNT(*) FROM audit_log_records " + where +
		" AND actor_id IS NOT NULL GROUP BY actor_id ORDER BY COUNT(*) DESC, actor_id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get top actors: %w", err)
	}
	defer rows.Close()

	result := make([]ActorCount, 0)
	for rows.Next() {
		var row ActorCount
		if err := rows.Scan(&row.ActorID, &row.Username, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan actor count: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// CountDistinctActors counts distinct non-system actors
func (s *DBStore) CountDistinctActors(ctx context.Context, filter SearchFilter) (int64, error) {
	where, args := buildWhere(filter)

	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT actor_id) FROM audit_log_records "+where+" AND actor_id IS NOT NULL", args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get distinct actors: %w", err)
	}
	return count, nil
}

// DailyActivity counts matching records per UTC day
func (s *DBStore) DailyActivity(ctx context.Context, filter SearchFilter) ([]DayCount, error) {
	where, args := buildWhere(filter)
	query := "SELECT to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, COUNT(*) FROM audit_log_records " +
		where + " GROUP BY day ORDER BY day"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily activity: %w", err)
	}
	defer rows.Close()

	result := make([]DayCount, 0)
	for rows.Next() {
		var row DayCount
		if err := rows.Scan(&row.Day, &row.Count); err != nil {
			return nil, fmt.Errorf("failed to scan daily activity: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// HourlyActivity counts matching records per UTC hour
func (s *DBStore) HourlyActivity(ctx context.Context, filter SearchFilter) ([]HourCount, error) {
	where, args := buildWhere(filter)
	query := "SELECT EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC')::int AS hour, COUNT(*) FROM audit_log_records " +
		where + " GROUP BY hour"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get hourly activity: %w", err)
	}
	defer rows.Close()

	hours := emptyHours()
	for rows.Next() {
		var hour int
		var count int64
		if err := rows.Scan(&hour, &count); err != nil {
			return nil, fmt.Errorf("failed to scan hourly activity: %w", err)
		}
		if hour >= 0 && hour < len(hours) {
			hours[hour].Count = count
		}
	}
	return hours, rows.Err()
}

// CountBefore counts records strictly older than cutoff
func (s *DBStore) CountBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_log_records WHERE timestamp < $1", cutoff).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count expired audit log records: %w", err)
	}
	return count, nil
}

// SearchBefore returns records strictly older than cutoff, oldest first
func (s *DBStore) SearchBefore(ctx context.Context, cutoff time.Time) ([]*LogRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+selectColumns+" FROM audit_log_records WHERE timestamp < $1 ORDER BY timestamp, id", cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to search expired audit log records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// DeleteBefore removes records strictly older than cutoff inside one transaction.
// A cancelled context rolls the transaction back.
func (s *DBStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin cleanup transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	result, err := tx.ExecContext(ctx, "DELETE FROM audit_log_records WHERE timestamp < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired audit log records: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cleanup transaction: %w", err)
	}

	return rowsAffected, nil
}

// buildWhere renders the filter as a WHERE clause with positional arguments
func buildWhere(filter SearchFilter) (string, []interface{}) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argCount := 1

	if filter.ActorID != nil {
		where += fmt.Sprintf(" AND actor_id = $%d", argCount)
		args = append(args, *filter.ActorID)
		argCount++
	}

	if len(filter.Actions) > 0 {
		codes := make([]int64, len(filter.Actions))
		for i, a := range filter.Actions {
			codes[i] = int64(a)
		}
		where += fmt.Sprintf(" AND action = ANY($%d)", argCount)
		args = append(args, pq.Array(codes))
		argCount++
	}

	if filter.EntityType != "" {
		if namespace, name, ok := strings.Cut(filter.EntityType, "."); ok {
			where += fmt.Sprintf(" AND lower(entity_namespace) = lower($%d) AND lower(entity_name) = lower($%d)", argCount, argCount+1)
			args = append(args, namespace, name)
			argCount += 2
		} else {
			where += fmt.Sprintf(" AND lower(entity_name) = lower($%d)", argCount)
			args = append(args, filter.EntityType)
			argCount++
		}
	}

	if filter.From != nil {
		where += fmt.Sprintf(" AND timestamp >= $%d", argCount)
		args = append(args, *filter.From)
		argCount++
	}

	if filter.To != nil {
		where += fmt.Sprintf(" AND timestamp <= $%d", argCount)
		args = append(args, *filter.To)
	}

	return where, args
}

// scanRecords reads all rows selected with selectColumns
func scanRecords(rows *sql.Rows) ([]*LogRecord, error) {
	records := make([]*LogRecord, 0)
	for rows.Next() {
		record := &LogRecord{}

		var actorID sql.NullInt64
		var action int
		var changesJSON, additionalJSON []byte

		err := rows.Scan(
			&record.ID, &record.Timestamp, &actorID, &record.ActorUsername, &action,
			&record.EntityType.Namespace, &record.EntityType.Name, &record.EntityID, &record.EntityRepr,
			&changesJSON, &record.RemoteAddr, &additionalJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log record: %w", err)
		}

		record.Action = Action(action)
		record.Timestamp = record.Timestamp.UTC()
		if actorID.Valid {
			id := actorID.Int64
			record.ActorID = &id
		}

		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &record.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		if len(additionalJSON) > 0 {
			if err := json.Unmarshal(additionalJSON, &record.AdditionalData); err != nil {
				return nil, fmt.Errorf("failed to unmarshal additional data: %w", err)
			}
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log records: %w", err)
	}

	return records, nil
}
