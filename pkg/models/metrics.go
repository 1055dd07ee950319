package models

import "time"

// BackendMetrics is a point-in-time view of one backend's routing statistics.
type BackendMetrics struct {
	ID          BackendID   `json:"id"`
	Health      HealthState `json:"health"`
	Attempts    int64       `json:"attempts"`
	Successes   int64       `json:"successes"`
	Failures    int64       `json:"failures"`
	TotalCost   float64     `json:"total_cost"`
	LastError   string      `json:"last_error,omitempty"`
	LastChecked time.Time   `json:"last_checked"`
}

// SuccessRate returns successes/attempts, or 1.0 when nothing was attempted.
func (m BackendMetrics) SuccessRate() float64 {
	if m.Attempts <= 0 {
		return 1.0
	}
	rate := float64(m.Successes) / float64(m.Attempts)
	if rate > 1 {
		return 1
	}
	if rate < 0 {
		return 0
	}
	return rate
}

// Availability combines the health state with the observed success rate.
func (m BackendMetrics) Availability() float64 {
	switch m.Health {
	case HealthUnhealthy:
		return 0.0
	case HealthDegraded:
		return 0.5
	}
	return m.SuccessRate()
}

// Record returns the persisted subset of the metrics.
func (m BackendMetrics) Record() MetricsRecord {
	return MetricsRecord{
		Attempts:    m.Attempts,
		Successes:   m.Successes,
		Failures:    m.Failures,
		TotalCost:   m.TotalCost,
		LastChecked: m.LastChecked,
	}
}

// MetricsRecord is the flat per-backend record written by persisters.
type MetricsRecord struct {
	Attempts    int64     `json:"requests_total"`
	Successes   int64     `json:"requests_success"`
	Failures    int64     `json:"requests_failed"`
	TotalCost   float64   `json:"total_cost"`
	LastChecked time.Time `json:"last_checked"`
}
