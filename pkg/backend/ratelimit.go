package backend

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/pario-ai/relay/pkg/models"
)

// RateLimited throttles invocations of the wrapped backend with a token
// bucket. Waiting for a token respects the invocation context, so a per-attempt
// timeout that expires while throttled surfaces as an ordinary failure.
type RateLimited struct {
	inner   Backend
	limiter *rate.Limiter
}

// WithRateLimit wraps b with a limiter of rps requests per second.
func WithRateLimit(b Backend, rps float64, burst int) *RateLimited {
	if burst < 1 {
		burst = 1
	}
	return &RateLimited{inner: b, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Invoke waits for a token and then calls the wrapped backend.
func (r *RateLimited) Invoke(ctx context.Context, q models.Query) (*models.Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}
	return r.inner.Invoke(ctx, q)
}

// HealthProbe is not rate limited.
func (r *RateLimited) HealthProbe(ctx context.Context) (bool, error) {
	return r.inner.HealthProbe(ctx)
}

// CostPerUnit returns the wrapped backend's cost.
func (r *RateLimited) CostPerUnit() float64 { return r.inner.CostPerUnit() }

// LatencyHint returns the wrapped backend's latency hint.
func (r *RateLimited) LatencyHint() time.Duration { return LatencyHint(r.inner) }
