// Package selector orders candidate backends for a routing call.
//
// Every function here is pure: it reads the static cost and latency table and,
// for health-aware strategies, a metrics snapshot. Nothing is mutated.
package selector

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/pario-ai/relay/pkg/models"
)

// Strategy names a selection criterion.
type Strategy string

const (
	StrategyCheapest   Strategy = "cheapest"
	StrategyHealthiest Strategy = "healthiest"
	StrategyFastest    Strategy = "fastest"
)

// ParseStrategy converts s to a Strategy. The empty string means cheapest.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case "":
		return StrategyCheapest, nil
	case StrategyCheapest, StrategyHealthiest, StrategyFastest:
		return st, nil
	}
	return "", fmt.Errorf("%w %q", ErrUnknownStrategy, s)
}

// ErrUnknownStrategy is returned by ParseStrategy for unrecognised names.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Candidate is the static description of one configured backend.
type Candidate struct {
	ID          models.BackendID
	CostPerUnit float64
	// LatencyHint is a declared typical latency, not a measured average.
	LatencyHint time.Duration
}

// MetricsReader supplies current metrics for health-aware selection.
type MetricsReader interface {
	Snapshot(id models.BackendID) (models.BackendMetrics, error)
}

// Policy selects among candidates kept in declaration order.
type Policy struct {
	candidates []Candidate
	metrics    MetricsReader
}

// New creates a Policy. The order of candidates is the declaration order used
// to break ties.
func New(candidates []Candidate, metrics MetricsReader) *Policy {
	return &Policy{
		candidates: slices.Clone(candidates),
		metrics:    metrics,
	}
}

// DefaultOrder returns every backend by ascending cost per unit, ties broken
// by declaration order.
func (p *Policy) DefaultOrder() []models.BackendID {
	return p.Order(StrategyCheapest)
}

// Order returns every backend sorted by the given strategy.
func (p *Policy) Order(strategy Strategy) []models.BackendID {
	sorted := slices.Clone(p.candidates)
	switch strategy {
	case StrategyHealthiest:
		avail := p.availability()
		slices.SortStableFunc(sorted, func(a, b Candidate) int {
			return cmpFloatDesc(avail[a.ID], avail[b.ID])
		})
	case StrategyFastest:
		slices.SortStableFunc(sorted, func(a, b Candidate) int {
			return cmpLatencyHint(a.LatencyHint, b.LatencyHint)
		})
	default:
		slices.SortStableFunc(sorted, func(a, b Candidate) int {
			return cmpFloat(a.CostPerUnit, b.CostPerUnit)
		})
	}

	ids := make([]models.BackendID, len(sorted))
	for i, c := range sorted {
		ids[i] = c.ID
	}
	return ids
}

// Select returns the first backend for strategy, or "" when none are configured.
func (p *Policy) Select(strategy Strategy) models.BackendID {
	order := p.Order(strategy)
	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// Cheapest returns the backend with the lowest static cost. Metrics never
// influence the answer.
func (p *Policy) Cheapest() models.BackendID {
	return p.Select(StrategyCheapest)
}

// Healthiest returns the backend with the highest availability.
func (p *Policy) Healthiest() models.BackendID {
	return p.Select(StrategyHealthiest)
}

// Fastest returns the backend with the lowest declared latency hint. Backends
// without a hint rank after every backend that has one.
func (p *Policy) Fastest() models.BackendID {
	return p.Select(StrategyFastest)
}

func (p *Policy) availability() map[models.BackendID]float64 {
	out := make(map[models.BackendID]float64, len(p.candidates))
	for _, c := range p.candidates {
		if p.metrics == nil {
			out[c.ID] = 1.0
			continue
		}
		m, err := p.metrics.Snapshot(c.ID)
		if err != nil {
			// Untracked backends have no evidence of failure.
			out[c.ID] = 1.0
			continue
		}
		out[c.ID] = m.Availability()
	}
	return out
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func cmpFloatDesc(a, b float64) int {
	return cmpFloat(b, a)
}

// cmpLatencyHint orders unknown (non-positive) hints last.
func cmpLatencyHint(a, b time.Duration) int {
	switch {
	case a <= 0 && b <= 0:
		return 0
	case a <= 0:
		return 1
	case b <= 0:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
