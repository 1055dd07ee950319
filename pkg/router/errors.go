package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/models"
)

var (
	// ErrNoCandidates is returned when a call resolves to an empty candidate list.
	ErrNoCandidates = errors.New("no candidate backends")

	// ErrExhausted is matched by every *ExhaustedError.
	ErrExhausted = errors.New("all candidate backends failed")

	// ErrUnknownBackend is matched by *UnknownBackendError. It is the same
	// sentinel the metrics store uses.
	ErrUnknownBackend = metrics.ErrUnknownBackend
)

// CandidateError records one failed attempt.
type CandidateError struct {
	Backend models.BackendID
	Err     error
}

func (e *CandidateError) Error() string {
	return fmt.Sprintf("backend %s: %v", e.Backend, e.Err)
}

func (e *CandidateError) Unwrap() error { return e.Err }

// ExhaustedError is returned when every candidate failed, or when the route
// context ended before all of them were tried.
type ExhaustedError struct {
	Attempted []models.BackendID
	Last      error
}

func (e *ExhaustedError) Error() string {
	names := make([]string, len(e.Attempted))
	for i, id := range e.Attempted {
		names[i] = string(id)
	}
	return fmt.Sprintf("%v after trying [%s]: %v", ErrExhausted, strings.Join(names, ", "), e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Is makes errors.Is(err, ErrExhausted) work.
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrExhausted
}

// UnknownBackendError is returned when a caller names a backend that is not
// configured.
type UnknownBackendError struct {
	ID models.BackendID
}

func (e *UnknownBackendError) Error() string {
	return fmt.Sprintf("%v: %q", ErrUnknownBackend, string(e.ID))
}

func (e *UnknownBackendError) Is(target error) bool {
	return target == ErrUnknownBackend
}
