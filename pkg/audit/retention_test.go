package audit

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/myinner/pkg/observability"
)

var retentionNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// retentionStore holds records aged 400, 200, 40 and 1 days
func retentionStore() *MemoryStore {
	store := NewMemoryStore()
	for _, days := range []int{400, 200, 40, 1} {
		seedRecord(store, retentionNow.AddDate(0, 0, -days), ActionUpdate, noteType, &alice)
	}
	return store
}

func newTestRetention(store Store, days int, opts ...RetentionOption) *RetentionService {
	service := NewRetentionService(store, RetentionPolicy{RetainDays: days}, opts...)
	service.now = func() time.Time { return retentionNow }
	return service
}

func TestRetentionService_DefaultPolicy(t *testing.T) {
	service := NewRetentionService(NewMemoryStore(), RetentionPolicy{RetainDays: -1})
	assert.Equal(t, DefaultRetainDays, service.Policy().RetainDays)
}

func TestRetentionService_PreviewNeverDeletes(t *testing.T) {
	store := retentionStore()
	service := newTestRetention(store, 90)

	for i := 0; i < 3; i++ {
		result, err := service.Execute(context.Background(), false)
		require.NoError(t, err)
		assert.True(t, result.Preview)
		assert.False(t, result.Success)
		require.NotNil(t, result.LogsToDelete)
		assert.Equal(t, int64(2), *result.LogsToDelete)
		assert.Nil(t, result.DeletedCount)
		assert.Equal(t, retentionNow.AddDate(0, 0, -90), result.CutoffDate)
		assert.Equal(t, 90, result.RetainDays)
	}
	assert.Equal(t, 4, store.Len())
}

func TestRetentionService_Execute(t *testing.T) {
	store := retentionStore()
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	service := newTestRetention(store, 90, WithRetentionMetrics(metrics))

	result, err := service.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.False(t, result.Preview)
	require.NotNil(t, result.DeletedCount)
	assert.Equal(t, int64(2), *result.DeletedCount)
	assert.Empty(t, result.ArchiveLocation)

	remaining, err := store.Search(context.Background(), SearchFilter{})
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	for _, r := range remaining {
		assert.False(t, r.Timestamp.Before(result.CutoffDate))
	}

	again, err := service.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Zero(t, *again.DeletedCount)

	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AuditCleanupDeletedTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.AuditCleanupRunsTotal.WithLabelValues("execute", "success")))
}

func TestRetentionService_ExecuteWithFileArchive(t *testing.T) {
	store := retentionStore()
	dir := t.TempDir()
	archiver := NewFileArchiver(dir)
	archiver.now = func() time.Time { return retentionNow }

	service := NewRetentionService(store, RetentionPolicy{RetainDays: 90, ArchiveEnabled: true}, WithArchiver(archiver))
	service.now = func() time.Time { return retentionNow }

	result, err := service.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *result.DeletedCount)
	assert.Equal(t, filepath.Join(dir, archiveName(result.CutoffDate, retentionNow)), result.ArchiveLocation)

	_, err = os.Stat(result.ArchiveLocation)
	assert.NoError(t, err)
}

func TestRetentionService_ArchiveFailureAborts(t *testing.T) {
	store := retentionStore()
	putter := &fakePutter{err: errors.New("bucket unavailable")}
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	service := NewRetentionService(store,
		RetentionPolicy{RetainDays: 90, ArchiveEnabled: true},
		WithArchiver(NewS3Archiver(putter, "audit")),
		WithRetentionMetrics(metrics),
	)
	service.now = func() time.Time { return retentionNow }

	_, err := service.Execute(context.Background(), true)
	assert.ErrorContains(t, err, "bucket unavailable")
	assert.Equal(t, 4, store.Len(), "nothing is deleted when archiving fails")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.AuditCleanupRunsTotal.WithLabelValues("execute", "error")))
}

func TestRetentionService_ArchiveDisabledSkipsArchiver(t *testing.T) {
	store := retentionStore()
	putter := &fakePutter{err: errors.New("must not be called")}
	service := newTestRetention(store, 90, WithArchiver(NewS3Archiver(putter, "audit")))

	result, err := service.Execute(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, int64(2), *result.DeletedCount)
}

type deleteFailingStore struct {
	*MemoryStore
}

func (s deleteFailingStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRetentionService_DeleteFailure(t *testing.T) {
	store := deleteFailingStore{MemoryStore: retentionStore()}
	service := newTestRetention(store, 90)

	_, err := service.Execute(context.Background(), true)
	assert.ErrorContains(t, err, "disk full")
	assert.Equal(t, 4, store.Len())
}
