package selector

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/models"
)

func threeBackends() []Candidate {
	return []Candidate{
		{ID: models.BackendOpenAI, CostPerUnit: 0.05, LatencyHint: 250 * time.Millisecond},
		{ID: models.BackendGemini, CostPerUnit: 0.01, LatencyHint: 150 * time.Millisecond},
		{ID: models.BackendClaude, CostPerUnit: 0.03, LatencyHint: 200 * time.Millisecond},
	}
}

func equalIDs(a, b []models.BackendID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDefaultOrderByCost(t *testing.T) {
	p := New(threeBackends(), nil)
	got := p.DefaultOrder()
	want := []models.BackendID{models.BackendGemini, models.BackendClaude, models.BackendOpenAI}
	if !equalIDs(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestDefaultOrderTiesKeepDeclarationOrder(t *testing.T) {
	p := New([]Candidate{
		{ID: models.BackendClaude, CostPerUnit: 0.02},
		{ID: models.BackendOpenAI, CostPerUnit: 0.01},
		{ID: models.BackendGemini, CostPerUnit: 0.02},
	}, nil)
	got := p.DefaultOrder()
	want := []models.BackendID{models.BackendOpenAI, models.BackendClaude, models.BackendGemini}
	if !equalIDs(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestCheapestIgnoresMetrics(t *testing.T) {
	store := metrics.NewStore(models.AllBackends...)
	p := New(threeBackends(), store)

	if got := p.Cheapest(); got != models.BackendGemini {
		t.Fatalf("expected gemini, got %s", got)
	}
	_ = store.SetHealth(models.BackendGemini, models.HealthUnhealthy)
	for range 5 {
		_ = store.RecordFailure(models.BackendGemini, "down")
	}
	if got := p.Cheapest(); got != models.BackendGemini {
		t.Errorf("metrics changed cheapest to %s", got)
	}
}

func TestHealthiest(t *testing.T) {
	store := metrics.NewStore(models.AllBackends...)
	p := New(threeBackends(), store)

	// All equal: first declared wins.
	if got := p.Healthiest(); got != models.BackendOpenAI {
		t.Fatalf("expected openai on tie, got %s", got)
	}

	_ = store.SetHealth(models.BackendOpenAI, models.HealthUnhealthy)
	if got := p.Healthiest(); got == models.BackendOpenAI {
		t.Error("unhealthy backend should not be healthiest")
	}

	_ = store.RecordFailure(models.BackendGemini, "x")
	_ = store.RecordSuccess(models.BackendClaude, 0.1)
	if got := p.Healthiest(); got != models.BackendClaude {
		t.Errorf("expected claude, got %s", got)
	}
}

func TestFastestUsesLatencyHint(t *testing.T) {
	p := New(threeBackends(), nil)
	if got := p.Fastest(); got != models.BackendGemini {
		t.Errorf("expected gemini, got %s", got)
	}
	got := p.Order(StrategyFastest)
	want := []models.BackendID{models.BackendGemini, models.BackendClaude, models.BackendOpenAI}
	if !equalIDs(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestFastestRanksUnknownHintsLast(t *testing.T) {
	p := New([]Candidate{
		{ID: models.BackendOpenAI, CostPerUnit: 0.05},
		{ID: models.BackendGemini, CostPerUnit: 0.01, LatencyHint: 400 * time.Millisecond},
		{ID: models.BackendClaude, CostPerUnit: 0.03},
	}, nil)
	got := p.Order(StrategyFastest)
	want := []models.BackendID{models.BackendGemini, models.BackendOpenAI, models.BackendClaude}
	if !equalIDs(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if p.Fastest() != models.BackendGemini {
		t.Errorf("expected gemini, got %s", p.Fastest())
	}
}

func TestEmptyPolicy(t *testing.T) {
	p := New(nil, nil)
	if got := p.Cheapest(); got != "" {
		t.Errorf("expected empty id, got %s", got)
	}
	if len(p.DefaultOrder()) != 0 {
		t.Error("expected empty order")
	}
}

func TestParseStrategy(t *testing.T) {
	if s, err := ParseStrategy(""); err != nil || s != StrategyCheapest {
		t.Errorf("expected cheapest default, got %s %v", s, err)
	}
	if _, err := ParseStrategy("random"); err == nil {
		t.Error("expected error for unknown strategy")
	}
}

func TestPropertyCheapestIsMinimumCost(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(1, len(models.AllBackends)).Draw(rt, "n")
		cands := make([]Candidate, n)
		for i := range n {
			cands[i] = Candidate{
				ID:          models.AllBackends[i],
				CostPerUnit: rapid.Float64Range(0, 1).Draw(rt, "cost"),
			}
		}
		store := metrics.NewStore(models.AllBackends...)
		p := New(cands, store)
		before := p.Cheapest()

		for _, c := range cands {
			if rapid.Bool().Draw(rt, "fail") {
				_ = store.RecordFailure(c.ID, "x")
				_ = store.SetHealth(c.ID, models.HealthUnhealthy)
			}
		}
		after := p.Cheapest()
		if before != after {
			rt.Fatalf("cheapest changed with metrics: %s -> %s", before, after)
		}

		var chosen Candidate
		for _, c := range cands {
			if c.ID == after {
				chosen = c
			}
		}
		for _, c := range cands {
			if c.CostPerUnit < chosen.CostPerUnit {
				rt.Fatalf("%s costs %f, cheaper than chosen %s at %f", c.ID, c.CostPerUnit, chosen.ID, chosen.CostPerUnit)
			}
		}
	})
}

func TestPropertyHealthiestHasMaxAvailability(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := metrics.NewStore(models.AllBackends...)
		p := New(threeBackends(), store)
		for _, id := range models.AllBackends {
			for range rapid.IntRange(0, 5).Draw(rt, "successes") {
				_ = store.RecordSuccess(id, 0.01)
			}
			for range rapid.IntRange(0, 5).Draw(rt, "failures") {
				_ = store.RecordFailure(id, "x")
			}
			_ = store.SetHealth(id, rapid.SampledFrom([]models.HealthState{
				models.HealthHealthy, models.HealthDegraded, models.HealthUnhealthy,
			}).Draw(rt, "state"))
		}

		best := p.Healthiest()
		bm, _ := store.Snapshot(best)
		for _, m := range store.All() {
			if m.Availability() > bm.Availability() {
				rt.Fatalf("%s availability %f exceeds chosen %s %f", m.ID, m.Availability(), best, bm.Availability())
			}
		}
	})
}
