package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/myinner/pkg/observability"
)

func setupRedisStatsCache(t *testing.T, metrics *observability.Metrics) (*RedisStatsCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStatsCache(client, time.Minute, metrics), mr
}

func TestRedisStatsCache_RoundTrip(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	cache, mr := setupRedisStatsCache(t, metrics)
	ctx := context.Background()

	var got ActionCount
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cache.Set(ctx, "k", ActionCount{Action: ActionDelete, Count: 4}))
	assert.Equal(t, time.Minute, mr.TTL("audit:stats:k"))

	found, err = cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, ActionCount{Action: ActionDelete, Count: 4}, got)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHitsTotal.WithLabelValues(statsCacheType)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMissesTotal.WithLabelValues(statsCacheType)))
}

func TestRedisStatsCache_Expiry(t *testing.T) {
	cache, mr := setupRedisStatsCache(t, nil)
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", 1))
	mr.FastForward(2 * time.Minute)

	var got int
	found, err := cache.Get(ctx, "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRedisStatsCache_CorruptValue(t *testing.T) {
	cache, mr := setupRedisStatsCache(t, nil)
	require.NoError(t, mr.Set("audit:stats:k", "{not json"))

	var got ActionCount
	found, err := cache.Get(context.Background(), "k", &got)
	assert.Error(t, err)
	assert.False(t, found)
	assert.False(t, mr.Exists("audit:stats:k"), "corrupt entries are dropped")
}

func TestNoopStatsCache(t *testing.T) {
	var cache StatsCache = NoopStatsCache{}
	require.NoError(t, cache.Set(context.Background(), "k", 1))

	var got int
	found, err := cache.Get(context.Background(), "k", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStatsCacheKey(t *testing.T) {
	actor := int64(5)
	a := statsCacheKey("statistics", SearchFilter{ActorID: &actor})
	b := statsCacheKey("statistics", SearchFilter{ActorID: &actor})
	c := statsCacheKey("statistics", SearchFilter{})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Contains(t, a, "statistics:")
}
