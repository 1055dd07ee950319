package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pario-ai/relay/pkg/models"
)

// AuditLogger receives one entry per completed Route call.
type AuditLogger interface {
	Log(ctx context.Context, entry models.AuditEntry) error
}

// WithAudit records every cache hit, success and exhaustion to l.
func WithAudit(l AuditLogger) Option {
	return func(r *Router) { r.audit = l }
}

func (r *Router) auditSuccess(ctx context.Context, q models.Query, res *models.Result, attempted []models.BackendID) {
	r.record(ctx, models.AuditEntry{
		RouteID:     res.ID,
		Fingerprint: res.Fingerprint,
		Outcome:     models.OutcomeSuccess,
		Backend:     res.Backend,
		Attempted:   attempted,
		Query:       q.Text,
		Units:       res.Units,
		Cost:        res.Cost,
		LatencyMs:   res.Latency.Milliseconds(),
	})
}

// Cache hits get their own route id; the cached result keeps the id of the
// call that produced it.
func (r *Router) auditCached(ctx context.Context, q models.Query, fp string, res *models.Result, elapsed time.Duration) {
	r.record(ctx, models.AuditEntry{
		RouteID:     uuid.NewString(),
		Fingerprint: fp,
		Outcome:     models.OutcomeCached,
		Backend:     res.Backend,
		Query:       q.Text,
		Units:       res.Units,
		LatencyMs:   elapsed.Milliseconds(),
	})
}

func (r *Router) auditExhausted(ctx context.Context, q models.Query, fp string, err *ExhaustedError, elapsed time.Duration) {
	r.record(ctx, models.AuditEntry{
		RouteID:     uuid.NewString(),
		Fingerprint: fp,
		Outcome:     models.OutcomeExhausted,
		Attempted:   err.Attempted,
		Query:       q.Text,
		Error:       err.Error(),
		LatencyMs:   elapsed.Milliseconds(),
	})
}

func (r *Router) record(ctx context.Context, entry models.AuditEntry) {
	if r.audit == nil {
		return
	}
	entry.CreatedAt = time.Now().UTC()
	if err := r.audit.Log(context.WithoutCancel(ctx), entry); err != nil {
		r.logger.Error("failed to write audit entry",
			zap.String("route_id", entry.RouteID),
			zap.String("outcome", string(entry.Outcome)),
			zap.Error(err),
		)
	}
}
