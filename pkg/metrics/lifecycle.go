package metrics

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/models"
)

// Persister loads and saves the flat per-backend metrics record.
type Persister interface {
	Load(ctx context.Context) (map[models.BackendID]models.MetricsRecord, error)
	Save(ctx context.Context, records map[models.BackendID]models.MetricsRecord) error
}

// Load builds a Store for ids and restores any persisted counters from p.
// Persistence problems are logged and leave the store at its defaults; they
// never prevent construction.
func Load(ctx context.Context, p Persister, logger *zap.Logger, ids ...models.BackendID) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := NewStore(ids...)
	if p == nil {
		return s
	}

	records, err := p.Load(ctx)
	if err != nil {
		logger.Error("failed to load metrics, starting from defaults", zap.Error(err))
		return s
	}
	n := s.Restore(records)
	logger.Info("loaded metrics", zap.Int("backends", n))
	return s
}

// Save writes the current records through p.
func (s *Store) Save(ctx context.Context, p Persister) error {
	if p == nil {
		return nil
	}
	if err := p.Save(ctx, s.Records()); err != nil {
		return fmt.Errorf("save metrics: %w", err)
	}
	return nil
}
