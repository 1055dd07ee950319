package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pario-ai/relay/pkg/models"
)

// FilePersister stores metrics as a JSON object keyed by backend name.
type FilePersister struct {
	path string
}

// NewFile returns a persister for path. The file is created on first Save.
func NewFile(path string) *FilePersister {
	return &FilePersister{path: path}
}

type fileRecord struct {
	Attempts    int64     `json:"requests_total"`
	Successes   int64     `json:"requests_success"`
	Failures    int64     `json:"requests_failed"`
	TotalCost   float64   `json:"total_cost"`
	LastChecked checkedAt `json:"last_checked"`
}

// checkedAt accepts RFC 3339, a naive ISO 8601 timestamp in local time (as
// written by older relay installs), or seconds since the epoch. A value none of
// these match is treated as never checked instead of failing the whole file.
type checkedAt struct{ time.Time }

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (c *checkedAt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var secs float64
	if err := json.Unmarshal(data, &secs); err == nil {
		whole, frac := math.Modf(secs)
		c.Time = time.Unix(int64(whole), int64(frac*1e9)).UTC()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		c.Time = t
		return nil
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			c.Time = t
			return nil
		}
	}
	return nil
}

func (c checkedAt) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Time)
}

// Load reads the file. A missing file yields an empty set.
func (p *FilePersister) Load(context.Context) (map[models.BackendID]models.MetricsRecord, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[models.BackendID]models.MetricsRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read metrics file: %w", err)
	}

	var raw map[string]fileRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse metrics file %s: %w", p.path, err)
	}

	out := make(map[models.BackendID]models.MetricsRecord, len(raw))
	for name, rec := range raw {
		out[models.BackendID(name)] = models.MetricsRecord{
			Attempts:    rec.Attempts,
			Successes:   rec.Successes,
			Failures:    rec.Failures,
			TotalCost:   rec.TotalCost,
			LastChecked: rec.LastChecked.Time,
		}
	}
	return out, nil
}

// Save writes all records to a temp file and renames it over the target, so
// readers never observe a partial file.
func (p *FilePersister) Save(_ context.Context, records map[models.BackendID]models.MetricsRecord) error {
	raw := make(map[string]fileRecord, len(records))
	for id, rec := range records {
		raw[string(id)] = fileRecord{
			Attempts:    rec.Attempts,
			Successes:   rec.Successes,
			Failures:    rec.Failures,
			TotalCost:   rec.TotalCost,
			LastChecked: checkedAt{rec.LastChecked},
		}
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return fmt.Errorf("encode metrics: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".metrics-*.json")
	if err != nil {
		return fmt.Errorf("create temp metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close metrics: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.path); err != nil {
		return fmt.Errorf("replace metrics file: %w", err)
	}
	return nil
}
