// Package metrics holds live per-backend routing statistics.
package metrics

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pario-ai/relay/pkg/models"
)

// ErrUnknownBackend is returned for ids that were never registered.
var ErrUnknownBackend = errors.New("unknown backend")

// Store tracks attempts, outcomes, cost and health for each backend.
// All methods are safe for concurrent use; every read is a consistent copy.
type Store struct {
	mu      sync.RWMutex
	entries map[models.BackendID]*models.BackendMetrics
	order   []models.BackendID
	now     func() time.Time
}

// NewStore creates a Store with a healthy zero entry for each id.
func NewStore(ids ...models.BackendID) *Store {
	s := &Store{
		entries: make(map[models.BackendID]*models.BackendMetrics, len(ids)),
		now:     time.Now,
	}
	for _, id := range ids {
		s.Register(id)
	}
	return s
}

// Register adds a zero entry for id. Registering an existing id is a no-op.
func (s *Store) Register(id models.BackendID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registerLocked(id)
}

func (s *Store) registerLocked(id models.BackendID) *models.BackendMetrics {
	if m, ok := s.entries[id]; ok {
		return m
	}
	m := &models.BackendMetrics{
		ID:          id,
		Health:      models.HealthHealthy,
		LastChecked: s.now(),
	}
	s.entries[id] = m
	s.order = append(s.order, id)
	return m
}

// RecordSuccess counts a successful attempt and adds its cost.
func (s *Store) RecordSuccess(id models.BackendID, cost float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("record success for %s: %w", id, ErrUnknownBackend)
	}
	m.Attempts++
	m.Successes++
	m.TotalCost += cost
	m.LastError = ""
	return nil
}

// RecordFailure counts a failed attempt and keeps its error message.
func (s *Store) RecordFailure(id models.BackendID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("record failure for %s: %w", id, ErrUnknownBackend)
	}
	m.Attempts++
	m.Failures++
	m.LastError = errMsg
	return nil
}

// SetHealth sets the health state explicitly. Routing failures never change
// health on their own; only this method and RecordProbe do.
func (s *Store) SetHealth(id models.BackendID, state models.HealthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("set health for %s: %w", id, ErrUnknownBackend)
	}
	m.Health = state
	m.LastChecked = s.now()
	return nil
}

// RecordProbe applies the outcome of a health probe. A probe error is kept as
// the backend's last error.
func (s *Store) RecordProbe(id models.BackendID, healthy bool, probeErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("record probe for %s: %w", id, ErrUnknownBackend)
	}
	if healthy {
		m.Health = models.HealthHealthy
	} else {
		m.Health = models.HealthUnhealthy
	}
	if probeErr != nil {
		m.LastError = probeErr.Error()
	}
	m.LastChecked = s.now()
	return nil
}

// Snapshot returns a copy of the metrics for id.
func (s *Store) Snapshot(id models.BackendID) (models.BackendMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.entries[id]
	if !ok {
		return models.BackendMetrics{}, fmt.Errorf("snapshot %s: %w", id, ErrUnknownBackend)
	}
	return *m, nil
}

// All returns copies of every entry in registration order.
func (s *Store) All() []models.BackendMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.BackendMetrics, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.entries[id])
	}
	return out
}

// IDs returns the registered ids in registration order.
func (s *Store) IDs() []models.BackendID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.BackendID(nil), s.order...)
}

// Records returns the persisted form of every entry.
func (s *Store) Records() map[models.BackendID]models.MetricsRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.BackendID]models.MetricsRecord, len(s.entries))
	for id, m := range s.entries {
		out[id] = m.Record()
	}
	return out
}

// Restore overwrites counters from persisted records. Unknown backend names are
// skipped. Attempts is recomputed from successes and failures so a record
// written by an older or partial writer cannot break the counter invariant.
func (s *Store) Restore(records map[models.BackendID]models.MetricsRecord) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	restored := 0
	for id, rec := range records {
		if !id.Valid() {
			continue
		}
		m := s.registerLocked(id)
		m.Successes = max(rec.Successes, 0)
		m.Failures = max(rec.Failures, 0)
		m.Attempts = m.Successes + m.Failures
		m.TotalCost = max(rec.TotalCost, 0)
		if !rec.LastChecked.IsZero() {
			m.LastChecked = rec.LastChecked
		}
		restored++
	}
	return restored
}
