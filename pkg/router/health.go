package router

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pario-ai/relay/pkg/models"
)

// CheckHealth probes every backend concurrently and records the outcome.
// A probe that errors, panics or times out marks its backend unhealthy and
// never affects the other probes.
func (r *Router) CheckHealth(ctx context.Context) map[models.BackendID]bool {
	results := make(map[models.BackendID]bool, len(r.order))
	var mu sync.Mutex

	var g errgroup.Group
	if r.probeConcurrency > 0 {
		g.SetLimit(r.probeConcurrency)
	}
	for _, id := range r.order {
		g.Go(func() error {
			healthy := r.probe(ctx, id)
			mu.Lock()
			results[id] = healthy
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (r *Router) probe(ctx context.Context, id models.BackendID) bool {
	ctx, span := r.tracer.Start(ctx, "relay.probe")
	defer span.End()

	if r.probeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.probeTimeout)
		defer cancel()
	}

	b := r.backends[id]
	ok, err := guard(ctx, b.HealthProbe)
	healthy := ok && err == nil
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("health probe failed", zap.String("backend", string(id)), zap.Error(err))
	} else if !healthy {
		r.logger.Warn("backend reported unhealthy", zap.String("backend", string(id)))
	}

	if serr := r.store.RecordProbe(id, healthy, err); serr != nil {
		r.logger.Error("failed to record probe", zap.Error(serr))
	}
	return healthy
}
