// Package cache provides an optional read-side cache for registry statistics.
// The engine never depends on it for correctness: misses and errors fall
// through to the store, and every mutating operation invalidates the entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"escrowcore/pkg/domain"
)

// DefaultStatsKey is the redis key registry statistics are cached under.
const DefaultStatsKey = "escrowcore:registry:stats"

// DefaultStatsTTL bounds staleness when invalidation is missed.
const DefaultStatsTTL = 30 * time.Second

// StatsCache stores and retrieves a registry snapshot.
type StatsCache interface {
	Get(ctx context.Context) (domain.Registry, bool, error)
	Set(ctx context.Context, stats domain.Registry) error
	Invalidate(ctx context.Context) error
}

// RedisStatsCache caches registry statistics in redis as a JSON value.
type RedisStatsCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisStatsCache constructs a cache over an existing client. Zero values
// select the default key and TTL.
func NewRedisStatsCache(client *redis.Client, key string, ttl time.Duration) *RedisStatsCache {
	if key == "" {
		key = DefaultStatsKey
	}
	if ttl <= 0 {
		ttl = DefaultStatsTTL
	}
	return &RedisStatsCache{client: client, key: key, ttl: ttl}
}

// NewRedisClient dials redis with the supplied settings.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Get returns the cached registry snapshot when present.
func (c *RedisStatsCache) Get(ctx context.Context) (domain.Registry, bool, error) {
	payload, err := c.client.Get(ctx, c.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Registry{}, false, nil
	}
	if err != nil {
		return domain.Registry{}, false, fmt.Errorf("stats cache get: %w", err)
	}
	var stats domain.Registry
	if err := json.Unmarshal(payload, &stats); err != nil {
		return domain.Registry{}, false, fmt.Errorf("stats cache decode: %w", err)
	}
	return stats, true, nil
}

// Set stores the registry snapshot with the configured TTL.
func (c *RedisStatsCache) Set(ctx context.Context, stats domain.Registry) error {
	payload, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("stats cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.key, payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("stats cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached snapshot.
func (c *RedisStatsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("stats cache invalidate: %w", err)
	}
	return nil
}
