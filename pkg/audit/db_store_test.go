package audit

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var recordColumns = []string{
	"id", "timestamp", "actor_id", "actor_username", "action",
	"entity_namespace", "entity_name", "entity_id", "entity_repr",
	"changes", "remote_addr", "additional_data",
}

func newMockDBStore(t *testing.T) (*DBStore, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_log_records").WillReturnResult(sqlmock.NewResult(0, 0))

	store, err := NewDBStore(db)
	require.NoError(t, err)
	return store, mock
}

func TestNewDBStore_NilDB(t *testing.T) {
	_, err := NewDBStore(nil)
	assert.Error(t, err)
}

func TestNewDBStore_TableError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))

	_, err = NewDBStore(db)
	assert.ErrorContains(t, err, "permission denied")
}

func TestDBStore_Write(t *testing.T) {
	store, mock := newMockDBStore(t)
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	store.now = func() time.Time { return now }

	record := &LogRecord{
		ActorID:       int64Ptr(7),
		ActorUsername: "alice",
		Action:        ActionUpdate,
		EntityType:    noteType,
		EntityID:      "12",
		EntityRepr:    "Groceries - alice",
		Changes:       Changes{"title": {Old: "a", New: "b"}},
		RemoteAddr:    "10.0.0.1",
	}

	mock.ExpectQuery("INSERT INTO audit_log_records").
		WithArgs(now, int64(7), "alice", int64(1), "notes", "Note", "12", "Groceries - alice",
			[]byte(`{"title":["a","b"]}`), "10.0.0.1", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	require.NoError(t, store.Write(context.Background(), record))
	assert.Equal(t, int64(42), record.ID)
	assert.Equal(t, now, record.Timestamp)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_WriteError(t *testing.T) {
	store, mock := newMockDBStore(t)

	mock.ExpectQuery("INSERT INTO audit_log_records").WillReturnError(sql.ErrConnDone)

	err := store.Write(context.Background(), &LogRecord{Action: ActionCreate, EntityType: noteType})
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestDBStore_Get(t *testing.T) {
	store, mock := newMockDBStore(t)
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM audit_log_records WHERE id = $1")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(42, ts, nil, "", 2, "notes", "Note", "12", "Groceries", nil, "", []byte(`{"request_id":"r1"}`)))

	record, err := store.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, ActionDelete, record.Action)
	assert.True(t, record.IsSystem())
	assert.Equal(t, noteType, record.EntityType)
	assert.Equal(t, "r1", record.AdditionalData["request_id"])
	assert.Nil(t, record.Changes)

	mock.ExpectQuery("FROM audit_log_records WHERE id").
		WithArgs(int64(43)).
		WillReturnRows(sqlmock.NewRows(recordColumns))

	_, err = store.Get(context.Background(), 43)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Search(t *testing.T) {
	store, mock := newMockDBStore(t)
	ts := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND actor_id = $1 ORDER BY timestamp DESC, id DESC LIMIT $2 OFFSET $3")).
		WithArgs(int64(7), 10, 20).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(5, ts, 7, "alice", 1, "notes", "Note", "12", "Groceries", []byte(`{"title":["a","b"]}`), "10.0.0.1", nil))

	records, err := store.Search(context.Background(), SearchFilter{ActorID: int64Ptr(7), Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(7), *records[0].ActorID)
	assert.Equal(t, FieldChange{Old: "a", New: "b"}, records[0].Changes["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_Aggregations(t *testing.T) {
	store, mock := newMockDBStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_log_records WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	count, err := store.Count(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(10), count)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY action")).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count"}).AddRow(0, 5).AddRow(1, 3).AddRow(2, 2))
	actions, err := store.CountByAction(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, []ActionCount{{ActionCreate, 5}, {ActionUpdate, 3}, {ActionDelete, 2}}, actions)

	mock.ExpectQuery(regexp.QuoteMeta("GROUP BY entity_namespace, entity_name ORDER BY COUNT(*) DESC, entity_namespace, entity_name LIMIT $1")).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"ns", "name", "count"}).AddRow("notes", "Note", 8))
	types, err := store.CountByEntityType(ctx, SearchFilter{}, 5)
	require.NoError(t, err)
	assert.Equal(t, []EntityTypeCount{{EntityType: noteType, Count: 8}}, types)

	mock.ExpectQuery(regexp.QuoteMeta("AND actor_id IS NOT NULL GROUP BY actor_id")).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{"actor_id", "username", "count"}).AddRow(1, "alice", 6))
	actors, err := store.TopActors(ctx, SearchFilter{}, 10)
	require.NoError(t, err)
	assert.Equal(t, []ActorCount{{ActorID: 1, Username: "alice", Count: 6}}, actors)

	mock.ExpectQuery(regexp.QuoteMeta("COUNT(DISTINCT actor_id)")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	distinct, err := store.CountDistinctActors(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), distinct)

	mock.ExpectQuery(regexp.QuoteMeta("to_char(timestamp AT TIME ZONE 'UTC', 'YYYY-MM-DD')")).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).AddRow("2024-06-01", 2).AddRow("2024-06-02", 1))
	daily, err := store.DailyActivity(ctx, SearchFilter{})
	require.NoError(t, err)
	assert.Equal(t, []DayCount{{"2024-06-01", 2}, {"2024-06-02", 1}}, daily)

	mock.ExpectQuery(regexp.QuoteMeta("EXTRACT(HOUR FROM timestamp AT TIME ZONE 'UTC')")).
		WillReturnRows(sqlmock.NewRows([]string{"hour", "count"}).AddRow(3, 4).AddRow(23, 1))
	hourly, err := store.HourlyActivity(ctx, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hourly, 24)
	assert.Equal(t, int64(4), hourly[3].Count)
	assert.Equal(t, int64(1), hourly[23].Count)
	assert.Equal(t, int64(0), hourly[0].Count)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_DeleteBefore(t *testing.T) {
	store, mock := newMockDBStore(t)
	cutoff := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_log_records WHERE timestamp < $1")).
		WithArgs(cutoff).
		WillReturnResult(sqlmock.NewResult(0, 17))
	mock.ExpectCommit()

	deleted, err := store.DeleteBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(17), deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_DeleteBeforeRollsBack(t *testing.T) {
	store, mock := newMockDBStore(t)
	cutoff := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM audit_log_records").WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := store.DeleteBefore(context.Background(), cutoff)
	assert.ErrorContains(t, err, "lock timeout")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDBStore_CountAndSearchBefore(t *testing.T) {
	store, mock := newMockDBStore(t)
	cutoff := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM audit_log_records WHERE timestamp < $1")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	count, err := store.CountBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE timestamp < $1 ORDER BY timestamp, id")).
		WithArgs(cutoff).
		WillReturnRows(sqlmock.NewRows(recordColumns).
			AddRow(1, cutoff.Add(-time.Hour), nil, "", 0, "notes", "Note", "1", "a", nil, "", nil))
	older, err := store.SearchBefore(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Len(t, older, 1)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	where, args := buildWhere(SearchFilter{
		ActorID:    int64Ptr(3),
		Actions:    []Action{ActionCreate, ActionDelete},
		EntityType: "notes.Note",
		From:       &from,
		To:         &to,
	})

	assert.Equal(t, "WHERE 1=1 AND actor_id = $1 AND action = ANY($2)"+
		" AND lower(entity_namespace) = lower($3) AND lower(entity_name) = lower($4)"+
		" AND timestamp >= $5 AND timestamp <= $6", where)
	assert.Equal(t, []interface{}{int64(3), pq.Array([]int64{0, 2}), "notes", "Note", from, to}, args)

	where, args = buildWhere(SearchFilter{EntityType: "note"})
	assert.Equal(t, "WHERE 1=1 AND lower(entity_name) = lower($1)", where)
	assert.Equal(t, []interface{}{"note"}, args)

	where, args = buildWhere(SearchFilter{})
	assert.Equal(t, "WHERE 1=1", where)
	assert.Empty(t, args)
}
