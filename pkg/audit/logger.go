// Package audit keeps a queryable SQLite log of routing decisions: which
// backend answered, which candidates were tried first, and what it cost.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	_ "modernc.org/sqlite"

	"github.com/pario-ai/relay/pkg/config"
	"github.com/pario-ai/relay/pkg/models"
)

// Logger writes and queries audit entries in a dedicated SQLite database.
type Logger struct {
	db   *sql.DB
	cfg  config.AuditConfig
	done chan struct{}
	wg   sync.WaitGroup
}

// New opens the audit SQLite database, creates the schema and starts the
// hourly retention loop.
func New(cfg config.AuditConfig) (*Logger, error) {
	db, err := sql.Open("sqlite", cfg.DBPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}

	l := &Logger{
		db:   db,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	l.wg.Add(1)
	go l.retentionLoop()

	return l, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS route_audit (
		route_id    TEXT PRIMARY KEY,
		fingerprint TEXT NOT NULL,
		outcome     TEXT NOT NULL,
		backend     TEXT NOT NULL DEFAULT '',
		attempted   TEXT NOT NULL DEFAULT '',
		query       TEXT,
		error       TEXT,
		units       INTEGER NOT NULL DEFAULT 0,
		cost        REAL NOT NULL DEFAULT 0,
		latency_ms  INTEGER NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_backend ON route_audit(backend)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_created ON route_audit(created_at)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_fingerprint ON route_audit(fingerprint)`)
	return err
}

// Log inserts an audit entry. The query text is dropped unless configured.
func (l *Logger) Log(ctx context.Context, entry models.AuditEntry) error {
	if l == nil || l.db == nil {
		return nil
	}

	query := ""
	if l.cfg.IncludeQuery {
		query = entry.Query
		if l.cfg.MaxQuerySize > 0 && len(query) > l.cfg.MaxQuerySize {
			query = truncate(query, l.cfg.MaxQuerySize)
		}
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO route_audit
		(route_id, fingerprint, outcome, backend, attempted, query, error,
		 units, cost, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.RouteID, entry.Fingerprint, string(entry.Outcome), string(entry.Backend),
		joinIDs(entry.Attempted), query, entry.Error,
		entry.Units, entry.Cost, entry.LatencyMs, entry.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Query returns audit entries matching the given options, newest first.
func (l *Logger) Query(ctx context.Context, opts models.AuditQueryOpts) ([]models.AuditEntry, error) {
	q := `SELECT route_id, fingerprint, outcome, backend, attempted, query, error,
		units, cost, latency_ms, created_at
		FROM route_audit WHERE 1=1`
	var args []any

	if opts.RouteID != "" {
		q += " AND route_id = ?"
		args = append(args, opts.RouteID)
	}
	if opts.Backend != "" {
		q += " AND backend = ?"
		args = append(args, string(opts.Backend))
	}
	if opts.Outcome != "" {
		q += " AND outcome = ?"
		args = append(args, string(opts.Outcome))
	}
	if opts.Fingerprint != "" {
		q += " AND fingerprint = ?"
		args = append(args, opts.Fingerprint)
	}
	if !opts.Since.IsZero() {
		q += " AND created_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	q += " ORDER BY created_at DESC"

	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	q += " LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var (
			e         models.AuditEntry
			outcome   string
			backend   string
			attempted string
			query     sql.NullString
			errMsg    sql.NullString
		)
		if err := rows.Scan(
			&e.RouteID, &e.Fingerprint, &outcome, &backend, &attempted,
			&query, &errMsg, &e.Units, &e.Cost, &e.LatencyMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan audit row: %w", err)
		}
		e.Outcome = models.RouteOutcome(outcome)
		e.Backend = models.BackendID(backend)
		e.Attempted = splitIDs(attempted)
		e.Query = query.String
		e.Error = errMsg.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Stats returns aggregate counts grouped by backend, outcome and day.
func (l *Logger) Stats(ctx context.Context) ([]models.AuditStat, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT backend, outcome, date(created_at) as day, count(*) as cnt, coalesce(sum(cost), 0)
		 FROM route_audit GROUP BY backend, outcome, day ORDER BY day DESC, backend, outcome`)
	if err != nil {
		return nil, fmt.Errorf("audit stats: %w", err)
	}
	defer rows.Close()

	var stats []models.AuditStat
	for rows.Next() {
		var (
			s                models.AuditStat
			backend, outcome string
			day              sql.NullString
		)
		if err := rows.Scan(&backend, &outcome, &day, &s.Count, &s.Cost); err != nil {
			return nil, fmt.Errorf("scan audit stat: %w", err)
		}
		s.Backend = models.BackendID(backend)
		s.Outcome = models.RouteOutcome(outcome)
		s.Day = day.String
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup deletes entries older than the configured retention period. A
// non-positive retention keeps everything.
func (l *Logger) Cleanup(ctx context.Context) (int64, error) {
	if l.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -l.cfg.RetentionDays)
	res, err := l.db.ExecContext(ctx,
		`DELETE FROM route_audit WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("audit cleanup: %w", err)
	}
	return res.RowsAffected()
}

// Close stops the retention goroutine and closes the database.
func (l *Logger) Close() error {
	close(l.done)
	l.wg.Wait()
	return l.db.Close()
}

func (l *Logger) retentionLoop() {
	defer l.wg.Done()
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			_, _ = l.Cleanup(context.Background())
		}
	}
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func joinIDs(ids []models.BackendID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ",")
}

func splitIDs(s string) []models.BackendID {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	ids := make([]models.BackendID, len(parts))
	for i, p := range parts {
		ids[i] = models.BackendID(p)
	}
	return ids
}
