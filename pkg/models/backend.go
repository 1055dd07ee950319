package models

import "fmt"

// BackendID identifies one of the backend variants known at configuration time.
type BackendID string

const (
	BackendGemini BackendID = "gemini"
	BackendClaude BackendID = "claude"
	BackendOpenAI BackendID = "openai"
)

// AllBackends lists every known backend in declaration order.
var AllBackends = []BackendID{BackendGemini, BackendClaude, BackendOpenAI}

// Valid reports whether id belongs to the known backend set.
func (id BackendID) Valid() bool {
	switch id {
	case BackendGemini, BackendClaude, BackendOpenAI:
		return true
	}
	return false
}

// ParseBackendID converts s to a BackendID, rejecting unknown names.
func ParseBackendID(s string) (BackendID, error) {
	id := BackendID(s)
	if !id.Valid() {
		return "", fmt.Errorf("unknown backend %q", s)
	}
	return id, nil
}

// HealthState is the explicitly checked health of a backend.
type HealthState string

const (
	HealthHealthy   HealthState = "healthy"
	HealthDegraded  HealthState = "degraded"
	HealthUnhealthy HealthState = "unhealthy"
)

// ParseHealthState converts s to a HealthState.
func ParseHealthState(s string) (HealthState, error) {
	switch st := HealthState(s); st {
	case HealthHealthy, HealthDegraded, HealthUnhealthy:
		return st, nil
	}
	return "", fmt.Errorf("unknown health state %q", s)
}
