package telemetry

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/models"
)

// MetricsSource supplies per-backend snapshots.
type MetricsSource interface {
	AllMetrics() []models.BackendMetrics
}

// CacheSource supplies cache counters.
type CacheSource interface {
	CacheStats(ctx context.Context) (models.CacheStats, error)
}

var healthStates = []models.HealthState{models.HealthHealthy, models.HealthDegraded, models.HealthUnhealthy}

// Collector exports routing metrics on every scrape. It reads snapshots rather
// than keeping its own counters, so values always match the metrics store.
type Collector struct {
	metrics MetricsSource
	cache   CacheSource
	logger  *zap.Logger
	timeout time.Duration

	attempts     *prometheus.Desc
	successes    *prometheus.Desc
	failures     *prometheus.Desc
	cost         *prometheus.Desc
	health       *prometheus.Desc
	availability *prometheus.Desc
	cacheEntries *prometheus.Desc
	cacheHits    *prometheus.Desc
	cacheMisses  *prometheus.Desc
}

// NewCollector creates a Collector. cache may be nil.
func NewCollector(metrics MetricsSource, cache CacheSource, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	backend := []string{"backend"}
	return &Collector{
		metrics: metrics,
		cache:   cache,
		logger:  logger.With(zap.String("component", "collector")),
		timeout: 2 * time.Second,

		attempts:     prometheus.NewDesc("relay_backend_attempts_total", "Invocation attempts per backend.", backend, nil),
		successes:    prometheus.NewDesc("relay_backend_successes_total", "Successful invocations per backend.", backend, nil),
		failures:     prometheus.NewDesc("relay_backend_failures_total", "Failed or timed out invocations per backend.", backend, nil),
		cost:         prometheus.NewDesc("relay_backend_cost_total", "Accumulated cost of successful invocations.", backend, nil),
		health:       prometheus.NewDesc("relay_backend_health", "Current health state (1 for the active state).", []string{"backend", "state"}, nil),
		availability: prometheus.NewDesc("relay_backend_availability", "Availability score in [0, 1].", backend, nil),
		cacheEntries: prometheus.NewDesc("relay_cache_entries", "Cached results.", nil, nil),
		cacheHits:    prometheus.NewDesc("relay_cache_hits_total", "Cache lookups that found a result.", nil, nil),
		cacheMisses:  prometheus.NewDesc("relay_cache_misses_total", "Cache lookups that found nothing.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.attempts
	ch <- c.successes
	ch <- c.failures
	ch <- c.cost
	ch <- c.health
	ch <- c.availability
	if c.cache != nil {
		ch <- c.cacheEntries
		ch <- c.cacheHits
		ch <- c.cacheMisses
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, m := range c.metrics.AllMetrics() {
		id := string(m.ID)
		ch <- prometheus.MustNewConstMetric(c.attempts, prometheus.CounterValue, float64(m.Attempts), id)
		ch <- prometheus.MustNewConstMetric(c.successes, prometheus.CounterValue, float64(m.Successes), id)
		ch <- prometheus.MustNewConstMetric(c.failures, prometheus.CounterValue, float64(m.Failures), id)
		ch <- prometheus.MustNewConstMetric(c.cost, prometheus.CounterValue, m.TotalCost, id)
		ch <- prometheus.MustNewConstMetric(c.availability, prometheus.GaugeValue, m.Availability(), id)
		for _, st := range healthStates {
			v := 0.0
			if m.Health == st {
				v = 1
			}
			ch <- prometheus.MustNewConstMetric(c.health, prometheus.GaugeValue, v, id, string(st))
		}
	}

	if c.cache == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	stats, err := c.cache.CacheStats(ctx)
	if err != nil {
		c.logger.Warn("cache stats unavailable", zap.Error(err))
		return
	}
	ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(stats.Entries))
	ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(stats.Hits))
	ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(stats.Misses))
}
