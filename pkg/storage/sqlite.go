package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/myinner/pkg/audit"
)

const schema = `
CREATE TABLE IF NOT EXISTS entities (
	entity_type TEXT NOT NULL,
	id INTEGER NOT NULL,
	payload TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL,
	PRIMARY KEY (entity_type, id)
);

CREATE TABLE IF NOT EXISTS entity_sequences (
	entity_type TEXT PRIMARY KEY,
	last_id INTEGER NOT NULL
);
`

// SQLiteStore persists entities as JSON payloads in SQLite. Identifiers are allocated per
// entity type from a sequence, so a deleted identifier is never handed out again.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	mu        sync.RWMutex
	factories map[audit.EntityType]Factory
}

// OpenSQLite opens (creating if needed) the entity database at path.
// Use ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open entity database: %w", err)
	}

	// A single connection serializes writers and keeps in-memory databases alive
	db.SetMaxOpenConns(1)

	store, err := NewSQLiteStore(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore creates a store on an open database and ensures the schema exists
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to create entity schema: %w", err)
	}

	return &SQLiteStore{
		db:        db,
		now:       func() time.Time { return time.Now().UTC() },
		factories: make(map[audit.EntityType]Factory),
	}, nil
}

// RegisterType makes entities of type t decodable
func (s *SQLiteStore) RegisterType(t audit.EntityType, factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.factories[t] = factory
}

// DB returns the underlying database, for health checks
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) factory(t audit.EntityType) (Factory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	factory, ok := s.factories[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, t)
	}
	return factory, nil
}

func (s *SQLiteStore) decode(t audit.EntityType, payload string) (audit.Entity, error) {
	factory, err := s.factory(t)
	if err != nil {
		return nil, err
	}
	entity := factory()
	if err := json.Unmarshal([]byte(payload), entity); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", t, err)
	}
	return entity, nil
}

func parseID(t audit.EntityType, id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s %q: %w", t, id, ErrNotFound)
	}
	return n, nil
}

func asEntity(e audit.Entity) (Entity, error) {
	entity, ok := e.(Entity)
	if !ok {
		return nil, fmt.Errorf("%T cannot be stored: it does not implement SetID", e)
	}
	return entity, nil
}

// Get loads one entity
func (s *SQLiteStore) Get(ctx context.Context, t audit.EntityType, id string) (audit.Entity, error) {
	n, err := parseID(t, id)
	if err != nil {
		return nil, err
	}

	var payload string
	err = s.db.QueryRowContext(ctx,
		"SELECT payload FROM entities WHERE entity_type = ? AND id = ?", t.String(), n).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s %d: %w", t, n, ErrNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", t, n, err)
	}
	return s.decode(t, payload)
}

// List returns every entity of type t in ID order
func (s *SQLiteStore) List(ctx context.Context, t audit.EntityType) ([]audit.Entity, error) {
	if _, err := s.factory(t); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM entities WHERE entity_type = ? ORDER BY id", t.String())
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", t, err)
	}
	defer rows.Close()

	entities := make([]audit.Entity, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", t, err)
		}
		entity, err := s.decode(t, payload)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	return entities, rows.Err()
}

// Create assigns the next identifier of the entity's type and inserts it
func (s *SQLiteStore) Create(ctx context.Context, e audit.Entity) error {
	entity, err := asEntity(e)
	if err != nil {
		return err
	}
	t := entity.AuditType()
	if _, err := s.factory(t); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO entity_sequences (entity_type, last_id) VALUES (?, 1)
		ON CONFLICT (entity_type) DO UPDATE SET last_id = last_id + 1
		RETURNING last_id`, t.String()).Scan(&id)
	if err != nil {
		return fmt.Errorf("failed to allocate %s id: %w", t, err)
	}
	entity.SetID(id)

	payload, err := json.Marshal(entity)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", t, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO entities (entity_type, id, payload, updated_at) VALUES (?, ?, ?, ?)",
		t.String(), id, string(payload), s.now()); err != nil {
		return fmt.Errorf("failed to insert %s: %w", t, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Update overwrites an existing entity
func (s *SQLiteStore) Update(ctx context.Context, e audit.Entity) error {
	t := e.AuditType()
	n, err := parseID(t, e.AuditID())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", t, err)
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE entities SET payload = ?, updated_at = ? WHERE entity_type = ? AND id = ?",
		string(payload), s.now(), t.String(), n)
	if err != nil {
		return fmt.Errorf("failed to update %s %d: %w", t, n, err)
	}
	return expectOneRow(result, t, n)
}

// Delete removes an entity
func (s *SQLiteStore) Delete(ctx context.Context, t audit.EntityType, id string) error {
	n, err := parseID(t, id)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM entities WHERE entity_type = ? AND id = ?", t.String(), n)
	if err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", t, n, err)
	}
	return expectOneRow(result, t, n)
}

// Restore writes the entity back under its own identifier, replacing any current row
func (s *SQLiteStore) Restore(ctx context.Context, e audit.Entity) error {
	t := e.AuditType()
	n, err := parseID(t, e.AuditID())
	if err != nil {
		return err
	}

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", t, err)
	}

	if _, err := s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO entities (entity_type, id, payload, updated_at) VALUES (?, ?, ?, ?)",
		t.String(), n, string(payload), s.now()); err != nil {
		return fmt.Errorf("failed to restore %s %d: %w", t, n, err)
	}
	return nil
}

func expectOneRow(result sql.Result, t audit.EntityType, id int64) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s %d: %w", t, id, ErrNotFound)
	}
	return nil
}
