// Package history is an optional embedded audit log of resolved decisions.
//
// Every verdict the pipeline hands back — cached, precomputed, live, or
// fallback — can be recorded with its source and latency for post-battle
// review. The log rides on SQLite so embedding games carry no external
// service; failures are logged and swallowed, the log must never block or
// break decision-making.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Decision sources recorded per entry.
const (
	SourceCache       = "cache"
	SourcePrecomputed = "precomputed"
	SourceLive        = "live"
	SourceFallback    = "fallback"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id          TEXT PRIMARY KEY,
	unit_id     TEXT NOT NULL,
	action      TEXT NOT NULL,
	source      TEXT NOT NULL,
	priority    TEXT NOT NULL,
	confidence  REAL NOT NULL,
	latency_ms  REAL NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_decisions_unit ON decisions(unit_id, created_at);
`

// Entry is one recorded verdict.
type Entry struct {
	ID         uuid.UUID
	UnitID     string
	Action     string
	Source     string
	Priority   string
	Confidence float32
	LatencyMS  float64
	CreatedAt  time.Time
}

// Log is the SQLite-backed decision log.
type Log struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the log at path (":memory:" works for tests).
func Open(path string, logger *slog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %q: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Log{db: db, logger: logger}, nil
}

// Record inserts one entry. Errors are logged, never returned: the log is
// an observer of the decision path, not a participant.
func (l *Log) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO decisions (id, unit_id, action, source, priority, confidence, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.UnitID, e.Action, e.Source, e.Priority, e.Confidence, e.LatencyMS, e.CreatedAt,
	)
	if err != nil {
		l.logger.Warn("history: record failed", "unit_id", e.UnitID, "error", err)
	}
}

// Recent returns the newest entries, most recent first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, unit_id, action, source, priority, confidence, latency_ms, created_at
		 FROM decisions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: query recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var id string
		if err := rows.Scan(&id, &e.UnitID, &e.Action, &e.Source, &e.Priority, &e.Confidence, &e.LatencyMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("history: scan entry: %w", err)
		}
		e.ID, _ = uuid.Parse(id)
		out = append(out, e)
	}
	return out, rows.Err()
}

// FallbackRate reports the fraction of recorded decisions that degraded to
// fallback, a post-battle quality signal the in-process metrics reset loses.
func (l *Log) FallbackRate(ctx context.Context) (float64, error) {
	var total, degraded int64
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN source = ? THEN 1 ELSE 0 END), 0) FROM decisions`,
		SourceFallback,
	).Scan(&total, &degraded)
	if err != nil {
		return 0, fmt.Errorf("history: fallback rate: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	return float64(degraded) / float64(total), nil
}

// Close releases the database handle.
func (l *Log) Close() error {
	return l.db.Close()
}
