// Package memory provides an in-process, insertion-ordered result cache.
package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pario-ai/relay/pkg/cache"
	"github.com/pario-ai/relay/pkg/models"
)

// Cache is a mutex-guarded map that remembers insertion order.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*models.Result
	keys    []string
	hits    atomic.Int64
	misses  atomic.Int64
}

var _ cache.Cache = (*Cache)(nil)

// New creates an empty Cache.
func New() *Cache {
	return &Cache{entries: make(map[string]*models.Result)}
}

// Get returns the cached result for fingerprint.
func (c *Cache) Get(_ context.Context, fingerprint string) (*models.Result, bool) {
	c.mu.RLock()
	res, ok := c.entries[fingerprint]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return res, true
}

// Put stores res. Replacing an existing key keeps its original position.
func (c *Cache) Put(_ context.Context, fingerprint string, res *models.Result) error {
	if err := cache.CheckKey(fingerprint, res); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[fingerprint]; !ok {
		c.keys = append(c.keys, fingerprint)
	}
	c.entries[fingerprint] = res
	return nil
}

// Keys returns the cached fingerprints in insertion order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.keys...)
}

// Clear removes every entry.
func (c *Cache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*models.Result)
	c.keys = nil
	return nil
}

// Size returns the number of entries.
func (c *Cache) Size(context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries), nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	n, _ := c.Size(ctx)
	return models.CacheStats{
		Entries: int64(n),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Close is a no-op.
func (c *Cache) Close() error { return nil }
