package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pario-ai/relay/pkg/models"
)

// Simulated is a deterministic stand-in for a real provider. It derives the
// unit count from the query text and never performs I/O.
type Simulated struct {
	ID    models.BackendID
	Label string
	Model string
	Cost  float64
	// Overhead is added to every unit count.
	Overhead int
	Latency  time.Duration
	// Delay, when set, actually blocks Invoke for that long.
	Delay time.Duration
	// Healthy is the probe answer.
	Healthy bool
}

// NewSimulated returns the reference simulation for id.
func NewSimulated(id models.BackendID) *Simulated {
	switch id {
	case models.BackendClaude:
		return &Simulated{ID: id, Label: "Claude", Model: "claude-opus-4-1-20250805", Cost: 0.03, Overhead: 500, Latency: 200 * time.Millisecond, Healthy: true}
	case models.BackendOpenAI:
		return &Simulated{ID: id, Label: "OpenAI", Model: "gpt-4-turbo", Cost: 0.05, Overhead: 200, Latency: 250 * time.Millisecond, Healthy: true}
	default:
		return &Simulated{ID: id, Label: "Gemini", Model: "gemini-2.0-flash", Cost: 0.01, Latency: 150 * time.Millisecond, Healthy: true}
	}
}

// Invoke produces a canned response priced from the word count.
func (s *Simulated) Invoke(ctx context.Context, q models.Query) (*models.Result, error) {
	if s.Delay > 0 {
		timer := time.NewTimer(s.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	units := len(strings.Fields(q.Text))*2 + s.Overhead
	return &models.Result{
		Backend:   s.ID,
		Text:      fmt.Sprintf("[%s response to: %s...]", s.Label, truncate(q.Text, 50)),
		Units:     units,
		Cost:      unitCost(units, s.Cost),
		Latency:   s.Latency,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// HealthProbe returns the configured health answer.
func (s *Simulated) HealthProbe(context.Context) (bool, error) {
	return s.Healthy, nil
}

// CostPerUnit returns the static price per 1000 units.
func (s *Simulated) CostPerUnit() float64 { return s.Cost }

// LatencyHint returns the declared latency.
func (s *Simulated) LatencyHint() time.Duration { return s.Latency }

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
