// Package cache defines the result cache used to deduplicate identical queries.
//
// Entries never expire on their own; they live until Clear is called. The
// implementations are memory (process local), sqlite (survives restarts) and
// redis (shared between router processes).
package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/pario-ai/relay/pkg/models"
)

// ErrFingerprintMismatch is returned by Put when the result was produced for a
// different query than the key it is being stored under.
var ErrFingerprintMismatch = errors.New("result fingerprint does not match cache key")

// Cache maps a query fingerprint to the last successful Result.
type Cache interface {
	// Get returns the cached result for fingerprint, if any.
	Get(ctx context.Context, fingerprint string) (*models.Result, bool)
	// Put stores res under fingerprint, replacing any previous entry.
	Put(ctx context.Context, fingerprint string, res *models.Result) error
	// Clear removes every entry.
	Clear(ctx context.Context) error
	// Size returns the number of entries.
	Size(ctx context.Context) (int, error)
	// Stats returns entry count and hit/miss counters.
	Stats(ctx context.Context) (models.CacheStats, error)
	// Close releases resources.
	Close() error
}

// CheckKey validates that res may be stored under fingerprint.
func CheckKey(fingerprint string, res *models.Result) error {
	if res == nil {
		return errors.New("cache put: nil result")
	}
	if res.Fingerprint != fingerprint {
		return fmt.Errorf("cache put %s: %w", fingerprint, ErrFingerprintMismatch)
	}
	return nil
}
