// Package postgres is the Postgres backend for the coordinator's audit
// history, selected when history.Open is given the "postgres" driver (the
// daemon's --history-driver flag).
package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gooseflow/coordinator/internal/history/event"
)

// Store is the Postgres implementation of history.Store.
type Store struct {
	Pool *pgxpool.Pool
}

// Open opens a connection pool against dsn (or DATABASE_URL if dsn is
// empty) and ensures the schema exists.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		dsn = os.Getenv("DATABASE_URL")
	}
	if dsn == "" {
		return nil, errors.New("postgres DSN or DATABASE_URL required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.MaxConns = 10
	pool, err := pgxpool.NewWithConfig(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	s := &Store{Pool: pool}
	if err := s.initSchema(context.Background()); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS audit_events (
	id BIGSERIAL PRIMARY KEY,
	workstream_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	detail TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_audit_events_workstream ON audit_events(workstream_id);
`)
	return err
}

// RecordEvent implements history.Store.
func (s *Store) RecordEvent(ctx context.Context, workstreamID, kind, detail string) {
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO audit_events(workstream_id, kind, detail) VALUES($1, $2, $3)`,
		workstreamID, kind, detail)
	if err != nil {
		slog.Warn("history: record event failed", "workstream", workstreamID, "kind", kind, "err", err)
	}
}

// ListEvents returns the audit trail for a workstream, oldest first.
func (s *Store) ListEvents(ctx context.Context, workstreamID string) ([]event.Event, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT workstream_id, kind, detail, created_at FROM audit_events WHERE workstream_id = $1 ORDER BY id ASC`,
		workstreamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []event.Event
	for rows.Next() {
		var e event.Event
		var created time.Time
		if err := rows.Scan(&e.WorkstreamID, &e.Kind, &e.Detail, &created); err != nil {
			return nil, err
		}
		e.Timestamp = created.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	s.Pool.Close()
	return nil
}
