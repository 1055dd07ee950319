// Package sqlite provides a result cache backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/relay/pkg/cache"
	"github.com/pario-ai/relay/pkg/models"
)

// Cache is an exact-match result cache backed by SQLite. Entries have no
// expiry; rowid order is insertion order.
type Cache struct {
	db     *sql.DB
	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Cache = (*Cache)(nil)

const createCacheTable = `
CREATE TABLE IF NOT EXISTS route_cache (
	fingerprint TEXT PRIMARY KEY,
	backend TEXT NOT NULL,
	result BLOB NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens (or creates) the cache database at dbPath.
func New(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	if _, err := db.Exec(createCacheTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &Cache{db: db}, nil
}

// Get retrieves a cached result. Unreadable rows count as misses.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*models.Result, bool) {
	var data []byte
	err := c.db.QueryRowContext(ctx,
		`SELECT result FROM route_cache WHERE fingerprint = ?`, fingerprint,
	).Scan(&data)
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}

	var res models.Result
	if err := json.Unmarshal(data, &res); err != nil || res.Fingerprint != fingerprint {
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	return &res, true
}

// Put stores a result. An existing row is updated in place so it keeps its
// insertion position.
func (c *Cache) Put(ctx context.Context, fingerprint string, res *models.Result) error {
	if err := cache.CheckKey(fingerprint, res); err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}

	_, err = c.db.ExecContext(ctx,
		`INSERT INTO route_cache (fingerprint, backend, result, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(fingerprint) DO UPDATE SET backend = excluded.backend, result = excluded.result`,
		fingerprint, string(res.Backend), data, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Keys returns cached fingerprints in insertion order.
func (c *Cache) Keys(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT fingerprint FROM route_cache ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("cache keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan cache key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// Size returns the number of cached results.
func (c *Cache) Size(ctx context.Context) (int, error) {
	var count int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM route_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache size: %w", err)
	}
	return count, nil
}

// Stats returns cache performance metrics.
func (c *Cache) Stats(ctx context.Context) (models.CacheStats, error) {
	n, err := c.Size(ctx)
	if err != nil {
		return models.CacheStats{}, fmt.Errorf("cache stats: %w", err)
	}
	return models.CacheStats{
		Entries: int64(n),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}

// Clear removes all cache entries.
func (c *Cache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM route_cache`); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}
