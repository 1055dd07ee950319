// Package tracker persists the per-backend metrics record between runs.
//
// Two persisters are provided: FilePersister writes the flat metrics.json
// layout, SQLitePersister keeps one row per backend in a SQLite table.
package tracker

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/relay/pkg/models"
)

// SQLitePersister stores metrics records in a SQLite database.
type SQLitePersister struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS backend_metrics (
	backend TEXT PRIMARY KEY,
	requests_total INTEGER NOT NULL DEFAULT 0,
	requests_success INTEGER NOT NULL DEFAULT 0,
	requests_failed INTEGER NOT NULL DEFAULT 0,
	total_cost REAL NOT NULL DEFAULT 0,
	last_checked DATETIME,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// New opens dbPath and runs auto-migration.
func New(dbPath string) (*SQLitePersister, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate metrics db: %w", err)
	}

	return &SQLitePersister{db: db}, nil
}

// Load returns every stored record keyed by backend.
func (p *SQLitePersister) Load(ctx context.Context) (map[models.BackendID]models.MetricsRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT backend, requests_total, requests_success, requests_failed, total_cost, last_checked
		 FROM backend_metrics`)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	out := make(map[models.BackendID]models.MetricsRecord)
	for rows.Next() {
		var (
			id      string
			rec     models.MetricsRecord
			checked sql.NullTime
		)
		if err := rows.Scan(&id, &rec.Attempts, &rec.Successes, &rec.Failures, &rec.TotalCost, &checked); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		if checked.Valid {
			rec.LastChecked = checked.Time
		}
		out[models.BackendID(id)] = rec
	}
	return out, rows.Err()
}

// Save upserts every record in a single transaction.
func (p *SQLitePersister) Save(ctx context.Context, records map[models.BackendID]models.MetricsRecord) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metrics tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	for id, rec := range records {
		var checked any
		if !rec.LastChecked.IsZero() {
			checked = rec.LastChecked.UTC()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO backend_metrics (backend, requests_total, requests_success, requests_failed, total_cost, last_checked, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(backend) DO UPDATE SET
			   requests_total = excluded.requests_total,
			   requests_success = excluded.requests_success,
			   requests_failed = excluded.requests_failed,
			   total_cost = excluded.total_cost,
			   last_checked = excluded.last_checked,
			   updated_at = excluded.updated_at`,
			string(id), rec.Attempts, rec.Successes, rec.Failures, rec.TotalCost, checked, now,
		)
		if err != nil {
			return fmt.Errorf("save metrics for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metrics: %w", err)
	}
	return nil
}

// Close releases the database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
