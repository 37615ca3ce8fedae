// Package sqlite is the default backend for the coordinator's audit
// history: a single append-only table in a file under the daemon's home
// directory.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gooseflow/coordinator/internal/history/event"
)

// Store is the SQLite implementation of history.Store.
type Store struct {
	DB *sql.DB
}

// Open opens (creating if needed) home/protected/history.sqlite and ensures
// its schema exists.
func Open(home string) (*Store, error) {
	dbPath := filepath.Join(home, "protected", "history.sqlite")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{DB: db}
	if err := s.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		`CREATE TABLE IF NOT EXISTS audit_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			workstream_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			detail TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);`,
		"CREATE INDEX IF NOT EXISTS idx_audit_events_workstream ON audit_events(workstream_id);",
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("history schema: %w", err)
		}
	}
	return nil
}

// RecordEvent implements history.Store. Write failures are logged and
// dropped; a missing audit row must never block a coordinator operation.
func (s *Store) RecordEvent(ctx context.Context, workstreamID, kind, detail string) {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO audit_events(workstream_id, kind, detail, created_at) VALUES(?, ?, ?, ?)`,
		workstreamID, kind, detail, time.Now().Unix())
	if err != nil {
		slog.Warn("history: record event failed", "workstream", workstreamID, "kind", kind, "err", err)
	}
}

// ListEvents returns the audit trail for a workstream, oldest first. Used
// only by out-of-band inspection (e.g. a CLI verb), never by the
// coordinator itself.
func (s *Store) ListEvents(ctx context.Context, workstreamID string) ([]event.Event, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT workstream_id, kind, detail, created_at FROM audit_events WHERE workstream_id = ? ORDER BY id ASC`,
		workstreamID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []event.Event
	for rows.Next() {
		var e event.Event
		var created int64
		if err := rows.Scan(&e.WorkstreamID, &e.Kind, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.Timestamp = time.Unix(created, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
