package telemetry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/pario-ai/relay/pkg/config"
	"github.com/pario-ai/relay/pkg/models"
)

type staticMetrics []models.BackendMetrics

func (s staticMetrics) AllMetrics() []models.BackendMetrics { return s }

type staticCache struct {
	stats models.CacheStats
	err   error
}

func (s staticCache) CacheStats(context.Context) (models.CacheStats, error) { return s.stats, s.err }

func TestNewLogger(t *testing.T) {
	for _, cfg := range []config.LogConfig{{}, {Level: "debug", Format: "console"}, {Level: "warn", Format: "json"}} {
		logger, err := NewLogger(cfg)
		if err != nil {
			t.Fatalf("%+v: %v", cfg, err)
		}
		logger.Info("hello")
	}
	if _, err := NewLogger(config.LogConfig{Level: "chatty"}); err == nil {
		t.Error("expected error for bad level")
	}
}

func TestCollector(t *testing.T) {
	src := staticMetrics{
		{ID: models.BackendGemini, Health: models.HealthHealthy, Attempts: 4, Successes: 3, Failures: 1, TotalCost: 0.5},
		{ID: models.BackendClaude, Health: models.HealthUnhealthy},
	}
	c := NewCollector(src, staticCache{stats: models.CacheStats{Entries: 2, Hits: 5, Misses: 3}}, nil)

	expected := `
# HELP relay_backend_attempts_total Invocation attempts per backend.
# TYPE relay_backend_attempts_total counter
relay_backend_attempts_total{backend="claude"} 0
relay_backend_attempts_total{backend="gemini"} 4
# HELP relay_backend_availability Availability score in [0, 1].
# TYPE relay_backend_availability gauge
relay_backend_availability{backend="claude"} 0
relay_backend_availability{backend="gemini"} 0.75
# HELP relay_cache_hits_total Cache lookups that found a result.
# TYPE relay_cache_hits_total counter
relay_cache_hits_total 5
`
	err := testutil.CollectAndCompare(c, strings.NewReader(expected),
		"relay_backend_attempts_total", "relay_backend_availability", "relay_cache_hits_total")
	if err != nil {
		t.Error(err)
	}

	// 2 backends x (5 + 3 health states) + 3 cache series.
	if n := testutil.CollectAndCount(c); n != 19 {
		t.Errorf("expected 19 series, got %d", n)
	}
}

func TestCollectorHealthState(t *testing.T) {
	c := NewCollector(staticMetrics{{ID: models.BackendOpenAI, Health: models.HealthDegraded}}, nil, nil)

	expected := `
# HELP relay_backend_health Current health state (1 for the active state).
# TYPE relay_backend_health gauge
relay_backend_health{backend="openai",state="degraded"} 1
relay_backend_health{backend="openai",state="healthy"} 0
relay_backend_health{backend="openai",state="unhealthy"} 0
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(expected), "relay_backend_health"); err != nil {
		t.Error(err)
	}
}

func TestCollectorCacheError(t *testing.T) {
	c := NewCollector(staticMetrics{}, staticCache{err: errors.New("redis down")}, nil)
	if n := testutil.CollectAndCount(c); n != 0 {
		t.Errorf("expected no series, got %d", n)
	}
}

func TestCollectorRegisters(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	c := NewCollector(staticMetrics{{ID: models.BackendGemini, Health: models.HealthHealthy}}, staticCache{}, nil)
	if err := reg.Register(c); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Gather(); err != nil {
		t.Fatal(err)
	}
}
