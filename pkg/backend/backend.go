// Package backend defines the capability every routing target implements and
// ships the concrete variants: deterministic simulations, an OpenAI client and
// an Anthropic client.
package backend

import (
	"context"
	"time"

	"github.com/pario-ai/relay/pkg/models"
)

// Backend is one provider the router can send a query to.
type Backend interface {
	// Invoke executes the query. It should honour ctx cancellation.
	Invoke(ctx context.Context, q models.Query) (*models.Result, error)
	// HealthProbe reports whether the provider is reachable.
	HealthProbe(ctx context.Context) (bool, error)
	// CostPerUnit is the static price per 1000 units.
	CostPerUnit() float64
}

// LatencyHinter is implemented by backends that declare a typical latency.
type LatencyHinter interface {
	LatencyHint() time.Duration
}

// LatencyHint returns b's declared latency, or zero.
func LatencyHint(b Backend) time.Duration {
	if h, ok := b.(LatencyHinter); ok {
		return h.LatencyHint()
	}
	return 0
}

// unitCost converts a unit count into cost at perThousand.
func unitCost(units int, perThousand float64) float64 {
	return float64(units) / 1000 * perThousand
}
