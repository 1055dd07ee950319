package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/audit"
	"github.com/pario-ai/relay/pkg/backend"
	"github.com/pario-ai/relay/pkg/cache"
	"github.com/pario-ai/relay/pkg/cache/memory"
	rediscache "github.com/pario-ai/relay/pkg/cache/redis"
	sqlitecache "github.com/pario-ai/relay/pkg/cache/sqlite"
	"github.com/pario-ai/relay/pkg/config"
	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/router"
	"github.com/pario-ai/relay/pkg/selector"
	"github.com/pario-ai/relay/pkg/telemetry"
	"github.com/pario-ai/relay/pkg/tracker"
)

// app holds everything a command needs, built from one config file.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     *metrics.Store
	persister metrics.Persister
	cache     cache.Cache
	router    *router.Router
	audit     *audit.Logger

	closers []func() error
}

// newApp loads configPath and wires the router. A missing file is only
// tolerated for the default path.
func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.LoadOrDefault(configPath, configPath == defaultConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.Log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() error { _ = logger.Sync(); return nil })

	if err := a.wire(ctx); err != nil {
		a.close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg

	switch cfg.Metrics.Store {
	case "none":
	case "sqlite":
		p, err := tracker.New(cfg.Cache.DBPath)
		if err != nil {
			return fmt.Errorf("init metrics store: %w", err)
		}
		a.persister = p
		a.closers = append(a.closers, p.Close)
	default:
		a.persister = tracker.NewFile(cfg.Metrics.Path)
	}
	a.store = metrics.Load(ctx, a.persister, a.logger, cfg.BackendIDs()...)

	switch cfg.Cache.Driver {
	case "sqlite":
		c, err := sqlitecache.New(cfg.Cache.DBPath)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		a.cache = c
	case "redis":
		c, err := rediscache.New(ctx, cfg.Cache.Redis, a.logger)
		if err != nil {
			return fmt.Errorf("init cache: %w", err)
		}
		a.cache = c
	default:
		a.cache = memory.New()
	}
	a.closers = append(a.closers, a.cache.Close)

	regs := make([]router.Registration, 0, len(cfg.Backends))
	for _, bc := range cfg.Backends {
		b, err := backend.New(bc)
		if err != nil {
			return err
		}
		regs = append(regs, router.Registration{ID: bc.ID, Backend: b})
	}

	opts := []router.Option{
		router.WithLogger(a.logger),
		router.WithStrategy(selector.Strategy(cfg.Router.Strategy)),
		router.WithAttemptTimeout(cfg.Router.AttemptTimeout),
		router.WithRouteTimeout(cfg.Router.RouteTimeout),
		router.WithProbeTimeout(cfg.Router.ProbeTimeout),
		router.WithProbeConcurrency(cfg.Router.ProbeConcurrency),
		router.WithCoalescing(cfg.Router.Coalesce),
	}
	if cfg.Audit.Enabled {
		l, err := audit.New(cfg.Audit)
		if err != nil {
			return fmt.Errorf("init audit log: %w", err)
		}
		a.audit = l
		a.closers = append(a.closers, l.Close)
		opts = append(opts, router.WithAudit(l))
	}

	rt, err := router.New(regs, a.store, a.cache, opts...)
	if err != nil {
		return err
	}
	a.router = rt
	return nil
}

// saveMetrics persists the store, logging rather than failing.
func (a *app) saveMetrics(ctx context.Context) {
	if a.store == nil || a.persister == nil {
		return
	}
	if err := a.store.Save(context.WithoutCancel(ctx), a.persister); err != nil {
		a.logger.Error("failed to save metrics", zap.Error(err))
	}
}

// close saves metrics and releases resources in reverse order.
func (a *app) close(ctx context.Context) {
	a.saveMetrics(ctx)
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}
