// Package history is the coordinator's one-way audit trail: workstream
// creation, every state transition, and every notification, written to
// SQLite or Postgres depending on configuration. It is never read back to
// reconstruct coordinator state on startup; that would violate the
// in-memory-only persistence model the coordinator is built on.
package history

import (
	"context"
	"fmt"

	"github.com/gooseflow/coordinator/internal/history/event"
	"github.com/gooseflow/coordinator/internal/history/postgres"
	"github.com/gooseflow/coordinator/internal/history/sqlite"
)

// Event is one row of the audit trail.
type Event = event.Event

// Store records audit events and is eventually closed at daemon shutdown.
// RecordEvent returns no error: implementations log and drop a failed
// write, and should not panic or block their caller indefinitely.
type Store interface {
	RecordEvent(ctx context.Context, workstreamID, kind, detail string)
	Close() error
}

// Open selects and opens a backend by driver name ("sqlite", the default,
// or "postgres"). home is used by the SQLite backend; dsn is used by the
// Postgres backend (falling back to DATABASE_URL if empty).
func Open(driver, home, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		return sqlite.Open(home)
	case "postgres":
		return postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unknown history driver %q", driver)
	}
}
