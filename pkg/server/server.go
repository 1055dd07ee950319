// Package server exposes the router over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/models"
	"github.com/pario-ai/relay/pkg/proxy"
	"github.com/pario-ai/relay/pkg/router"
	"github.com/pario-ai/relay/pkg/selector"
	"github.com/pario-ai/relay/pkg/telemetry"
)

const maxBodyBytes = 1 << 20

// Server is the relay HTTP API.
type Server struct {
	addr     string
	router   *router.Router
	registry *prometheus.Registry
	logger   *zap.Logger
	mux      *http.ServeMux
}

// New creates a Server for rt listening on addr. The OpenAI-compatible chat
// completions endpoint shares the same router. Routing and cache metrics,
// plus the Go runtime collectors, are registered on a private registry served
// at /metrics.
func New(addr string, rt *router.Router, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		telemetry.NewCollector(rt, rt, logger),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s := &Server{
		addr:     addr,
		router:   rt,
		registry: reg,
		logger:   logger.With(zap.String("component", "server")),
		mux:      http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /v1/route", s.handleRoute)
	s.mux.Handle("POST /v1/chat/completions", proxy.New(rt, logger))
	s.mux.HandleFunc("GET /v1/health", s.handleHealth)
	s.mux.HandleFunc("GET /v1/metrics", s.handleAllMetrics)
	s.mux.HandleFunc("GET /v1/metrics/{backend}", s.handleMetrics)
	s.mux.HandleFunc("GET /v1/select/{strategy}", s.handleSelect)
	s.mux.HandleFunc("GET /v1/cache", s.handleCacheStats)
	s.mux.HandleFunc("DELETE /v1/cache", s.handleCacheClear)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)
	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("took", time.Since(start)),
	)
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("relay listening", zap.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// RouteRequest is the body of POST /v1/route. Omitted sampling fields take the
// query defaults.
type RouteRequest struct {
	Query          string             `json:"query"`
	Model          string             `json:"model,omitempty"`
	Temperature    *float64           `json:"temperature,omitempty"`
	MaxTokens      *int               `json:"max_tokens,omitempty"`
	SystemPrompt   string             `json:"system_prompt,omitempty"`
	Candidates     []models.BackendID `json:"candidates,omitempty"`
	Strategy       string             `json:"strategy,omitempty"`
	NoCache        bool               `json:"no_cache,omitempty"`
	AttemptTimeout string             `json:"attempt_timeout,omitempty"`
}

func (req RouteRequest) toQuery() (models.Query, router.Options, error) {
	if req.Query == "" {
		return models.Query{}, router.Options{}, errors.New("query is required")
	}
	q := models.NewQuery(req.Query)
	q.Model = req.Model
	q.SystemPrompt = req.SystemPrompt
	if req.Temperature != nil {
		q.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		q.MaxTokens = *req.MaxTokens
	}

	opts := router.Options{
		Candidates: req.Candidates,
		NoCache:    req.NoCache,
	}
	if req.Strategy != "" {
		st, err := selector.ParseStrategy(req.Strategy)
		if err != nil {
			return q, opts, err
		}
		opts.Strategy = st
	}
	if req.AttemptTimeout != "" {
		d, err := time.ParseDuration(req.AttemptTimeout)
		if err != nil {
			return q, opts, fmt.Errorf("attempt_timeout: %w", err)
		}
		opts.AttemptTimeout = d
	}
	return q, opts, nil
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	r.Body.Close()

	var req RouteRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	q, opts, err := req.toQuery()
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.router.Route(r.Context(), q, opts)
	if err != nil {
		s.writeRouteError(w, err)
		return
	}
	w.Header().Set("X-Relay-Backend", string(res.Backend))
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) writeRouteError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, router.ErrNoCandidates),
		errors.Is(err, router.ErrUnknownBackend),
		errors.Is(err, selector.ErrUnknownStrategy):
		writeJSONError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, router.ErrExhausted):
		writeJSONError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("route failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "internal error")
	}
}

// HealthResponse is returned by GET /v1/health.
type HealthResponse struct {
	Backends map[models.BackendID]bool `json:"backends"`
	Healthy  int                       `json:"healthy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	results := s.router.CheckHealth(r.Context())
	resp := HealthResponse{Backends: results}
	for _, ok := range results {
		if ok {
			resp.Healthy++
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// MetricsView adds the derived rates to a metrics snapshot.
type MetricsView struct {
	models.BackendMetrics
	SuccessRate  float64 `json:"success_rate"`
	Availability float64 `json:"availability"`
}

func viewOf(m models.BackendMetrics) MetricsView {
	return MetricsView{BackendMetrics: m, SuccessRate: m.SuccessRate(), Availability: m.Availability()}
}

func (s *Server) handleAllMetrics(w http.ResponseWriter, r *http.Request) {
	all := s.router.AllMetrics()
	views := make([]MetricsView, len(all))
	for i, m := range all {
		views[i] = viewOf(m)
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.router.Metrics(models.BackendID(r.PathValue("backend")))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, viewOf(m))
}

// SelectResponse is returned by GET /v1/select/{strategy}.
type SelectResponse struct {
	Strategy selector.Strategy  `json:"strategy"`
	Backend  models.BackendID   `json:"backend"`
	Order    []models.BackendID `json:"order"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	st, err := selector.ParseStrategy(r.PathValue("strategy"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	order := s.router.Order(st)
	resp := SelectResponse{Strategy: st, Order: order}
	if len(order) > 0 {
		resp.Backend = order[0]
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.router.CacheStats(r.Context())
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.router.ClearCache(r.Context()); err != nil {
		s.logger.Error("cache clear failed", zap.Error(err))
		writeJSONError(w, http.StatusInternalServerError, "cache unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"message":%q,"type":"relay_error","code":%d}}`, message, code)
}
