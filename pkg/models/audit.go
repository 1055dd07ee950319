package models

import "time"

// RouteOutcome classifies how a Route call ended.
type RouteOutcome string

const (
	OutcomeSuccess   RouteOutcome = "success"
	OutcomeCached    RouteOutcome = "cached"
	OutcomeExhausted RouteOutcome = "exhausted"
)

// AuditEntry records one completed Route call.
type AuditEntry struct {
	RouteID     string       `json:"route_id"`
	Fingerprint string       `json:"fingerprint"`
	Outcome     RouteOutcome `json:"outcome"`
	Backend     BackendID    `json:"backend,omitempty"`
	Attempted   []BackendID  `json:"attempted,omitempty"`
	Query       string       `json:"query,omitempty"`
	Error       string       `json:"error,omitempty"`
	Units       int          `json:"units"`
	Cost        float64      `json:"cost"`
	LatencyMs   int64        `json:"latency_ms"`
	CreatedAt   time.Time    `json:"created_at"`
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Backend     BackendID
	Outcome     RouteOutcome
	Fingerprint string
	RouteID     string
	Since       time.Time
	Limit       int
}

// AuditStat holds aggregate counts for a backend/outcome/day combination.
type AuditStat struct {
	Backend BackendID
	Outcome RouteOutcome
	Day     string
	Count   int
	Cost    float64
}
