package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/models"
)

func newTestPersister(t *testing.T) *SQLitePersister {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	p, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func TestSQLiteEmpty(t *testing.T) {
	p := newTestPersister(t)
	records, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected no records, got %v", records)
	}
}

func TestSQLiteSaveAndLoad(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in := map[models.BackendID]models.MetricsRecord{
		models.BackendGemini: {Attempts: 5, Successes: 4, Failures: 1, TotalCost: 0.25, LastChecked: checked},
		models.BackendClaude: {Attempts: 1, Failures: 1},
	}
	if err := p.Save(ctx, in); err != nil {
		t.Fatal(err)
	}

	out, err := p.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d", len(out))
	}
	g := out[models.BackendGemini]
	if g.Attempts != 5 || g.Successes != 4 || g.Failures != 1 || g.TotalCost != 0.25 {
		t.Errorf("unexpected gemini record: %+v", g)
	}
	if !g.LastChecked.Equal(checked) {
		t.Errorf("expected last checked %v, got %v", checked, g.LastChecked)
	}
	if !out[models.BackendClaude].LastChecked.IsZero() {
		t.Errorf("expected zero last checked for claude")
	}
}

func TestSQLiteSaveOverwrites(t *testing.T) {
	p := newTestPersister(t)
	ctx := context.Background()

	_ = p.Save(ctx, map[models.BackendID]models.MetricsRecord{models.BackendOpenAI: {Attempts: 1, Successes: 1}})
	_ = p.Save(ctx, map[models.BackendID]models.MetricsRecord{models.BackendOpenAI: {Attempts: 3, Successes: 2, Failures: 1}})

	out, err := p.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if out[models.BackendOpenAI].Attempts != 3 {
		t.Errorf("expected overwritten record, got %+v", out[models.BackendOpenAI])
	}
}

func TestSQLiteRoundTripThroughStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metrics.db")
	ctx := context.Background()

	p, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	s := metrics.NewStore(models.AllBackends...)
	_ = s.RecordSuccess(models.BackendGemini, 0.1)
	_ = s.RecordFailure(models.BackendClaude, "timeout")
	if err := s.Save(ctx, p); err != nil {
		t.Fatal(err)
	}
	p.Close()

	p2, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	defer p2.Close()

	restored := metrics.Load(ctx, p2, nil, models.AllBackends...)
	g, _ := restored.Snapshot(models.BackendGemini)
	c, _ := restored.Snapshot(models.BackendClaude)
	if g.Successes != 1 || g.TotalCost != 0.1 || c.Failures != 1 || c.Attempts != 1 {
		t.Errorf("unexpected restored metrics: %+v %+v", g, c)
	}
}
