package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/myinner/pkg/observability"
)

// StatsCache holds computed statistics for a short time
type StatsCache interface {
	// Get decodes the cached value into dest and reports whether it was found
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key
	Set(ctx context.Context, key string, value any) error
}

// NoopStatsCache never caches anything
type NoopStatsCache struct{}

func (NoopStatsCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	return false, nil
}

func (NoopStatsCache) Set(ctx context.Context, key string, value any) error {
	return nil
}

const statsCacheType = "audit_stats"

// RedisStatsCache stores statistics as JSON values in Redis
type RedisStatsCache struct {
	client  *redis.Client
	ttl     time.Duration
	prefix  string
	metrics *observability.Metrics
}

// NewRedisStatsCache creates a Redis backed cache. metrics may be nil.
func NewRedisStatsCache(client *redis.Client, ttl time.Duration, metrics *observability.Metrics) *RedisStatsCache {
	return &RedisStatsCache{
		client:  client,
		ttl:     ttl,
		prefix:  "audit:stats:",
		metrics: metrics,
	}
}

// Get retrieves a cached value
func (c *RedisStatsCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err == redis.Nil {
		c.metrics.RecordCacheLookup(statsCacheType, false)
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		// Drop corrupt data so the next call recomputes it
		c.client.Del(ctx, c.prefix+key)
		return false, fmt.Errorf("failed to unmarshal cached stats: %w", err)
	}

	c.metrics.RecordCacheLookup(statsCacheType, true)
	return true, nil
}

// Set stores a value with the configured TTL
func (c *RedisStatsCache) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// statsCacheKey derives a cache key from the operation name and its inputs
func statsCacheKey(operation string, inputs ...any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		data = []byte(fmt.Sprint(inputs...))
	}
	sum := sha256.Sum256(data)
	return operation + ":" + hex.EncodeToString(sum[:8])
}
