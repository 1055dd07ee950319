// Package redis provides a result cache shared between router processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/cache"
	"github.com/pario-ai/relay/pkg/config"
	"github.com/pario-ai/relay/pkg/models"
)

// DefaultKey is the hash that holds cached results when no key is configured.
const DefaultKey = "relay:cache"

// Cache stores results as JSON fields of a single Redis hash. Nothing is
// written with an expiry.
type Cache struct {
	client *goredis.Client
	key    string
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

var _ cache.Cache = (*Cache)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(client, cfg.Key, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *goredis.Client, key string, logger *zap.Logger) *Cache {
	if key == "" {
		key = DefaultKey
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		client: client,
		key:    key,
		logger: logger.With(zap.String("component", "cache.redis")),
	}
}

// Get returns the cached result for fingerprint. Redis errors are logged and
// reported as a miss.
func (c *Cache) Get(ctx context.Context, fingerprint string) (*models.Result, bool) {
	data, err := c.client.HGet(ctx, c.key, fingerprint).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Warn("cache get failed", zap.String("fingerprint", fingerprint), zap.Error(err))
		}
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

// Put stores res under fingerprint.
func (c *Cache) Put(ctx context.Context, fingerprint string, res *models.Result) error {
	if err := cache.CheckKey(fingerprint, res); err != nil {
		return err
	}
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.HSet(ctx, c.key, fingerprint, data).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Clear deletes the whole hash.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		return fmt.Errorf("cache clear: %w", err)
	}
	return nil
}

// Size returns the number of cached results.
func (c *Cache) Size(ctx context.Context) (int, error) {
	n, err := c.client.HLen(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("cache size: %w", err)
	}
	return int(n), nil
}

// Stats returns cache performance metrics. Hit and miss counts are local to
// this process.
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

// Close closes the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
