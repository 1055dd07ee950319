package router

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/pario-ai/relay/pkg/models"
)

type fakeAudit struct {
	mu      sync.Mutex
	entries []models.AuditEntry
	err     error
}

func (f *fakeAudit) Log(_ context.Context, e models.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return f.err
}

func (f *fakeAudit) all() []models.AuditEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.AuditEntry(nil), f.entries...)
}

func TestAuditRecordsSuccessAndCacheHit(t *testing.T) {
	a, b, c := trio()
	a.err = errors.New("down")
	log := &fakeAudit{}
	r := newTestRouter(t, a, b, c, WithAudit(log))
	ctx := context.Background()
	q := models.NewQuery("What is AI?")

	res, err := r.Route(ctx, q, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.Route(ctx, q, Options{}); err != nil {
		t.Fatal(err)
	}

	entries := log.all()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}

	first := entries[0]
	if first.Outcome != models.OutcomeSuccess || first.RouteID != res.ID || first.Backend != models.BackendClaude {
		t.Errorf("unexpected success entry: %+v", first)
	}
	if len(first.Attempted) != 2 || first.Attempted[0] != models.BackendGemini {
		t.Errorf("expected gemini then claude attempted, got %v", first.Attempted)
	}
	if first.Cost != res.Cost || first.Query != q.Text || first.CreatedAt.IsZero() {
		t.Errorf("unexpected success entry fields: %+v", first)
	}

	hit := entries[1]
	if hit.Outcome != models.OutcomeCached || hit.Backend != models.BackendClaude {
		t.Errorf("unexpected cached entry: %+v", hit)
	}
	if hit.RouteID == res.ID || hit.RouteID == "" {
		t.Errorf("cache hit should get its own route id, got %q", hit.RouteID)
	}
	if hit.Cost != 0 || len(hit.Attempted) != 0 {
		t.Errorf("cache hit should cost nothing and attempt nothing: %+v", hit)
	}
}

func TestAuditRecordsExhaustion(t *testing.T) {
	a, b, c := trio()
	a.err = errors.New("a down")
	b.err = errors.New("b down")
	c.err = errors.New("c down")
	log := &fakeAudit{}
	r := newTestRouter(t, a, b, c, WithAudit(log))

	_, err := r.Route(context.Background(), models.NewQuery("hi"), Options{})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected exhausted, got %v", err)
	}

	entries := log.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Outcome != models.OutcomeExhausted || e.Backend != "" {
		t.Errorf("unexpected entry: %+v", e)
	}
	if len(e.Attempted) != 3 || e.Error != err.Error() {
		t.Errorf("unexpected attempted/error: %v / %q", e.Attempted, e.Error)
	}
}

func TestAuditSkipsRejectedCalls(t *testing.T) {
	a, b, c := trio()
	log := &fakeAudit{}
	r := newTestRouter(t, a, b, c, WithAudit(log))

	_, err := r.Route(context.Background(), models.NewQuery("hi"), Options{Candidates: []models.BackendID{}})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("expected no candidates, got %v", err)
	}
	if n := len(log.all()); n != 0 {
		t.Errorf("expected no audit entries, got %d", n)
	}
}

func TestAuditFailureDoesNotFailRoute(t *testing.T) {
	a, b, c := trio()
	log := &fakeAudit{err: errors.New("disk full")}
	r := newTestRouter(t, a, b, c, WithAudit(log))

	if _, err := r.Route(context.Background(), models.NewQuery("hi"), Options{}); err != nil {
		t.Fatalf("audit error leaked into route: %v", err)
	}
	if n := len(log.all()); n != 1 {
		t.Errorf("expected 1 audit attempt, got %d", n)
	}
}
