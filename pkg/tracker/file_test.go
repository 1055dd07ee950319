package tracker

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pario-ai/relay/pkg/metrics"
	"github.com/pario-ai/relay/pkg/models"
)

func TestFileMissing(t *testing.T) {
	p := NewFile(filepath.Join(t.TempDir(), "nope", "metrics.json"))
	records, err := p.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 0 {
		t.Errorf("expected empty records, got %v", records)
	}
}

func TestFileSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay_data", "metrics.json")
	p := NewFile(path)
	ctx := context.Background()
	checked := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	in := map[models.BackendID]models.MetricsRecord{
		models.BackendGemini: {Attempts: 2, Successes: 1, Failures: 1, TotalCost: 0.5, LastChecked: checked},
	}
	if err := p.Save(ctx, in); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"requests_total", "requests_success", "requests_failed", "total_cost", "last_checked"} {
		if _, ok := raw["gemini"][key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}

	out, err := p.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	g := out[models.BackendGemini]
	if g.Attempts != 2 || g.TotalCost != 0.5 || !g.LastChecked.Equal(checked) {
		t.Errorf("unexpected record: %+v", g)
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}
}

func TestFileAcceptsNaiveTimestampsAndPartialRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	data := `{
  "gemini": {"requests_total": 10, "requests_success": 9, "requests_failed": 1, "total_cost": 1.5, "last_checked": "2025-01-15T10:30:00.123456"},
  "claude": {"requests_success": 3},
  "mistral": {"requests_total": 99}
}`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	out, err := NewFile(path).Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	want := time.Date(2025, 1, 15, 10, 30, 0, 123456000, time.Local)
	if !out[models.BackendGemini].LastChecked.Equal(want) {
		t.Errorf("expected %v, got %v", want, out[models.BackendGemini].LastChecked)
	}

	s := metrics.NewStore(models.AllBackends...)
	if n := s.Restore(out); n != 2 {
		t.Errorf("expected 2 restored backends, got %d", n)
	}
	c, _ := s.Snapshot(models.BackendClaude)
	if c.Attempts != 3 || c.Successes != 3 {
		t.Errorf("partial record should be repaired: %+v", c)
	}
}

func TestFileLastCheckedFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want time.Time
	}{
		{"rfc3339", `"2025-01-15T10:30:00Z"`, time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"naive seconds", `"2025-01-15T10:30:00"`, time.Date(2025, 1, 15, 10, 30, 0, 0, time.Local)},
		{"epoch seconds", `1767225600.5`, time.Unix(1767225600, 500_000_000)},
		{"unparsable", `"yesterday"`, time.Time{}},
		{"null", `null`, time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "metrics.json")
			data := `{"gemini": {"requests_total": 4, "requests_success": 4, "last_checked": ` + tt.raw + `}}`
			if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
				t.Fatal(err)
			}
			out, err := NewFile(path).Load(context.Background())
			if err != nil {
				t.Fatal(err)
			}
			g := out[models.BackendGemini]
			if g.Attempts != 4 {
				t.Errorf("counters lost: %+v", g)
			}
			if !g.LastChecked.Equal(tt.want) {
				t.Errorf("expected %v, got %v", tt.want, g.LastChecked)
			}
		})
	}
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := NewFile(path)
	if _, err := p.Load(context.Background()); err == nil {
		t.Error("expected parse error")
	}

	s := metrics.Load(context.Background(), p, nil, models.AllBackends...)
	if len(s.All()) != 3 {
		t.Error("store should fall back to defaults")
	}
}
