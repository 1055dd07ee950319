package scheduler

import (
	"context"

	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/models"
)

const (
	JobHealth      = "health-sweep"
	JobSaveMetrics = "save-metrics"
)

// HealthChecker runs a health sweep.
type HealthChecker interface {
	CheckHealth(ctx context.Context) map[models.BackendID]bool
}

// HealthJob sweeps every backend on schedule.
func HealthJob(schedule string, hc HealthChecker, logger *zap.Logger) Job {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Job{
		Name:     JobHealth,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			results := hc.CheckHealth(ctx)
			healthy := 0
			for _, ok := range results {
				if ok {
					healthy++
				}
			}
			logger.Info("health sweep", zap.Int("healthy", healthy), zap.Int("total", len(results)))
			return nil
		},
	}
}

// SaveJob persists the store through p on schedule.
func SaveJob(schedule string, store *metrics.Store, p metrics.Persister) Job {
	return Job{
		Name:     JobSaveMetrics,
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			return store.Save(ctx, p)
		},
	}
}
