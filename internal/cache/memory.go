package cache

import (
	"context"
	"sync"

	"escrowcore/pkg/domain"
)

// MemoryStatsCache is a process-local StatsCache used in tests and
// single-node deployments without redis.
type MemoryStatsCache struct {
	mu      sync.Mutex
	stats   domain.Registry
	present bool
}

// NewMemoryStatsCache constructs an empty in-memory cache.
func NewMemoryStatsCache() *MemoryStatsCache {
	return &MemoryStatsCache{}
}

// Get returns the cached snapshot when present.
func (c *MemoryStatsCache) Get(_ context.Context) (domain.Registry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats, c.present, nil
}

// Set stores the snapshot.
func (c *MemoryStatsCache) Set(_ context.Context, stats domain.Registry) error {
	c.mu.Lock()
	c.stats = stats
	c.present = true
	c.mu.Unlock()
	return nil
}

// Invalidate drops the snapshot.
func (c *MemoryStatsCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	c.stats = domain.Registry{}
	c.present = false
	c.mu.Unlock()
	return nil
}
