// Package router implements ordered failover across the configured backends.
//
// A Route call fingerprints the query, answers from the result cache when it
// can, and otherwise tries each candidate backend once, in order, until one
// succeeds. Every attempt is recorded in the metrics store before Route
// returns. The router holds no lock of its own: the store and the cache guard
// their own state, and backend calls run unlocked.
package router

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/pario-ai/relay/pkg/backend"
	"github.com/pario-ai/relay/pkg/cache"
	"github.com/pario-ai/relay/pkg/cache/memory"
	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/selector"
)

const (
	DefaultAttemptTimeout   = 30 * time.Second
	DefaultProbeTimeout     = 5 * time.Second
	DefaultProbeConcurrency = 4
)

// Registration binds a backend implementation to its id.
type Registration struct {
	ID      models.BackendID
	Backend backend.Backend
}

// Options tune a single Route call.
type Options struct {
	// Candidates is the explicit try order. Nil means the strategy order; a
	// non-nil empty slice is an explicit empty list and fails with
	// ErrNoCandidates.
	Candidates []models.BackendID
	// Strategy orders the candidates when Candidates is nil. Empty means the
	// router's default strategy.
	Strategy selector.Strategy
	// NoCache skips the cache lookup. Successful results are still stored.
	NoCache bool
	// AttemptTimeout overrides the router's per-attempt timeout when positive.
	AttemptTimeout time.Duration
}

// Router routes queries across backends.
type Router struct {
	backends map[models.BackendID]backend.Backend
	order    []models.BackendID
	store    *metrics.Store
	cache    cache.Cache
	policy   *selector.Policy

	logger           *zap.Logger
	tracer           trace.Tracer
	strategy         selector.Strategy
	attemptTimeout   time.Duration
	routeTimeout     time.Duration
	probeTimeout     time.Duration
	probeConcurrency int

	coalesce bool
	flight   singleflight.Group
	audit    AuditLogger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithTracer sets the tracer used for route and attempt spans.
func WithTracer(t trace.Tracer) Option {
	return func(r *Router) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithStrategy sets the strategy used when a call names none.
func WithStrategy(s selector.Strategy) Option {
	return func(r *Router) { r.strategy = s }
}

// WithAttemptTimeout bounds each backend invocation. Zero disables the bound.
func WithAttemptTimeout(d time.Duration) Option {
	return func(r *Router) { r.attemptTimeout = d }
}

// WithRouteTimeout bounds a whole failover chain. Zero disables the bound.
func WithRouteTimeout(d time.Duration) Option {
	return func(r *Router) { r.routeTimeout = d }
}

// WithProbeTimeout bounds each health probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(r *Router) { r.probeTimeout = d }
}

// WithProbeConcurrency limits how many probes run at once.
func WithProbeConcurrency(n int) Option {
	return func(r *Router) { r.probeConcurrency = n }
}

// WithCoalescing makes concurrent identical cache misses share one failover
// chain.
func WithCoalescing(on bool) Option {
	return func(r *Router) { r.coalesce = on }
}

// New creates a Router over regs in declaration order. A nil store or cache is
// replaced by a fresh in-memory one.
func New(regs []Registration, store *metrics.Store, c cache.Cache, opts ...Option) (*Router, error) {
	r := &Router{
		backends:         make(map[models.BackendID]backend.Backend, len(regs)),
		store:            store,
		cache:            c,
		logger:           zap.NewNop(),
		tracer:           otel.Tracer("github.com/pario-ai/relay/pkg/router"),
		attemptTimeout:   DefaultAttemptTimeout,
		probeTimeout:     DefaultProbeTimeout,
		probeConcurrency: DefaultProbeConcurrency,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With(zap.String("component", "router"))

	if r.store == nil {
		r.store = metrics.NewStore()
	}
	if r.cache == nil {
		r.cache = memory.New()
	}
	if r.strategy != "" {
		if _, err := selector.ParseStrategy(string(r.strategy)); err != nil {
			return nil, fmt.Errorf("router: %w", err)
		}
	}

	candidates := make([]selector.Candidate, 0, len(regs))
	for _, reg := range regs {
		if !reg.ID.Valid() {
			return nil, fmt.Errorf("router: %w", &UnknownBackendError{ID: reg.ID})
		}
		if reg.Backend == nil {
			return nil, fmt.Errorf("router: backend %s has no implementation", reg.ID)
		}
		if _, dup := r.backends[reg.ID]; dup {
			return nil, fmt.Errorf("router: backend %s registered twice", reg.ID)
		}
		r.backends[reg.ID] = reg.Backend
		r.order = append(r.order, reg.ID)
		r.store.Register(reg.ID)
		candidates = append(candidates, selector.Candidate{
			ID:          reg.ID,
			CostPerUnit: reg.Backend.CostPerUnit(),
			LatencyHint: backend.LatencyHint(reg.Backend),
		})
	}
	r.policy = selector.New(candidates, r.store)
	return r, nil
}

// Route answers q from the cache or from the first candidate that succeeds.
func (r *Router) Route(ctx context.Context, q models.Query, opts Options) (*models.Result, error) {
	start := time.Now()
	fp := q.Fingerprint()
	ctx, span := r.tracer.Start(ctx, "relay.route", trace.WithAttributes(
		attribute.String("relay.fingerprint", fp),
	))
	defer span.End()

	if !opts.NoCache {
		if res, ok := r.cache.Get(ctx, fp); ok {
			span.SetAttributes(attribute.Bool("relay.cache_hit", true))
			r.logger.Debug("cache hit", zap.String("fingerprint", fp), zap.String("backend", string(res.Backend)))
			r.auditCached(ctx, q, fp, res, time.Since(start))
			return res, nil
		}
	}

	candidates, err := r.candidates(opts)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if r.routeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.routeTimeout)
		defer cancel()
	}

	var res *models.Result
	if r.coalesce {
		key := flightKey(fp, candidates, opts.AttemptTimeout)
		v, ferr, shared := r.flight.Do(key, func() (any, error) {
			return r.failover(ctx, q, fp, candidates, opts.AttemptTimeout)
		})
		if shared {
			span.SetAttributes(attribute.Bool("relay.coalesced", true))
		}
		err = ferr
		if v != nil {
			res = v.(*models.Result)
		}
	} else {
		res, err = r.failover(ctx, q, fp, candidates, opts.AttemptTimeout)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("relay.backend", string(res.Backend)))
	return res, nil
}

func (r *Router) failover(ctx context.Context, q models.Query, fp string, candidates []models.BackendID, attemptTimeout time.Duration) (*models.Result, error) {
	if attemptTimeout <= 0 {
		attemptTimeout = r.attemptTimeout
	}

	start := time.Now()
	attempted := make([]models.BackendID, 0, len(candidates))
	var last error
	for _, id := range candidates {
		if err := ctx.Err(); err != nil {
			if last != nil {
				err = errors.Join(err, last)
			}
			r.logger.Warn("route context ended before all candidates were tried",
				zap.String("fingerprint", fp),
				zap.Int("attempted", len(attempted)),
				zap.Int("candidates", len(candidates)),
			)
			exhausted := &ExhaustedError{Attempted: attempted, Last: err}
			r.auditExhausted(ctx, q, fp, exhausted, time.Since(start))
			return nil, exhausted
		}

		attempted = append(attempted, id)
		res, err := r.attempt(ctx, id, q, fp, attemptTimeout)
		if err != nil {
			last = &CandidateError{Backend: id, Err: err}
			if merr := r.store.RecordFailure(id, err.Error()); merr != nil {
				r.logger.Error("failed to record failure", zap.Error(merr))
			}
			r.logger.Warn("backend failed, trying next",
				zap.String("backend", string(id)),
				zap.String("fingerprint", fp),
				zap.Error(err),
			)
			continue
		}

		if merr := r.store.RecordSuccess(id, res.Cost); merr != nil {
			r.logger.Error("failed to record success", zap.Error(merr))
		}
		if perr := r.cache.Put(context.WithoutCancel(ctx), fp, res); perr != nil {
			r.logger.Error("failed to cache result", zap.String("fingerprint", fp), zap.Error(perr))
		}
		r.logger.Info("routed query",
			zap.String("backend", string(id)),
			zap.String("fingerprint", fp),
			zap.Int("attempts", len(attempted)),
			zap.Float64("cost", res.Cost),
			zap.Duration("latency", res.Latency),
		)
		r.auditSuccess(ctx, q, res, attempted)
		return res, nil
	}
	exhausted := &ExhaustedError{Attempted: attempted, Last: last}
	r.auditExhausted(ctx, q, fp, exhausted, time.Since(start))
	return nil, exhausted
}

func (r *Router) attempt(ctx context.Context, id models.BackendID, q models.Query, fp string, timeout time.Duration) (*models.Result, error) {
	ctx, span := r.tracer.Start(ctx, "relay.attempt", trace.WithAttributes(
		attribute.String("relay.backend", string(id)),
	))
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	b := r.backends[id]
	start := time.Now()
	out, err := guard(ctx, func(ctx context.Context) (*models.Result, error) {
		return b.Invoke(ctx, q)
	})
	if err == nil && out == nil {
		err = errors.New("backend returned no result")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	res := *out
	res.ID = uuid.NewString()
	res.Backend = id
	res.Fingerprint = fp
	res.Latency = time.Since(start)
	if res.CreatedAt.IsZero() {
		res.CreatedAt = time.Now().UTC()
	}
	return &res, nil
}

// guard runs fn in its own goroutine so a call that ignores ctx cannot hold
// the caller past its deadline. Panics become errors.
func guard[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{val: v, err: err}
	}()

	select {
	case o := <-done:
		return o.val, o.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func (r *Router) candidates(opts Options) ([]models.BackendID, error) {
	if opts.Candidates != nil {
		out := make([]models.BackendID, 0, len(opts.Candidates))
		for _, id := range opts.Candidates {
			if _, ok := r.backends[id]; !ok {
				return nil, &UnknownBackendError{ID: id}
			}
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
		if len(out) == 0 {
			return nil, ErrNoCandidates
		}
		return out, nil
	}

	strategy := opts.Strategy
	if strategy == "" {
		strategy = r.strategy
	}
	var order []models.BackendID
	if strategy == "" {
		order = r.policy.DefaultOrder()
	} else {
		if _, err := selector.ParseStrategy(string(strategy)); err != nil {
			return nil, err
		}
		order = r.policy.Order(strategy)
	}
	if len(order) == 0 {
		return nil, ErrNoCandidates
	}
	return order, nil
}

func flightKey(fp string, candidates []models.BackendID, timeout time.Duration) string {
	var b strings.Builder
	b.WriteString(fp)
	for _, id := range candidates {
		b.WriteByte('|')
		b.WriteString(string(id))
	}
	if timeout > 0 {
		b.WriteByte('|')
		b.WriteString(timeout.String())
	}
	return b.String()
}

// SetHealth sets a backend's health state explicitly.
func (r *Router) SetHealth(id models.BackendID, state models.HealthState) error {
	if _, ok := r.backends[id]; !ok {
		return &UnknownBackendError{ID: id}
	}
	return r.store.SetHealth(id, state)
}

// Metrics returns a snapshot of one backend's metrics.
func (r *Router) Metrics(id models.BackendID) (models.BackendMetrics, error) {
	if _, ok := r.backends[id]; !ok {
		return models.BackendMetrics{}, &UnknownBackendError{ID: id}
	}
	return r.store.Snapshot(id)
}

// AllMetrics returns snapshots for every backend in declaration order.
func (r *Router) AllMetrics() []models.BackendMetrics {
	out := make([]models.BackendMetrics, 0, len(r.order))
	for _, id := range r.order {
		if m, err := r.store.Snapshot(id); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Backends returns the configured ids in declaration order.
func (r *Router) Backends() []models.BackendID {
	return slices.Clone(r.order)
}

// Store returns the metrics store the router records into.
func (r *Router) Store() *metrics.Store { return r.store }

// Cheapest returns the backend with the lowest static cost.
func (r *Router) Cheapest() models.BackendID { return r.policy.Cheapest() }

// Healthiest returns the backend with the highest availability.
func (r *Router) Healthiest() models.BackendID { return r.policy.Healthiest() }

// Fastest returns the backend with the lowest latency hint.
func (r *Router) Fastest() models.BackendID { return r.policy.Fastest() }

// Order returns every backend sorted by strategy.
func (r *Router) Order(strategy selector.Strategy) []models.BackendID {
	return r.policy.Order(strategy)
}

// ClearCache drops every cached result.
func (r *Router) ClearCache(ctx context.Context) error {
	if err := r.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}
	r.logger.Info("cache cleared")
	return nil
}

// CacheSize returns the number of cached results.
func (r *Router) CacheSize(ctx context.Context) (int, error) {
	return r.cache.Size(ctx)
}

// CacheStats returns cache entry and hit/miss counts.
func (r *Router) CacheStats(ctx context.Context) (models.CacheStats, error) {
	return r.cache.Stats(ctx)
}
