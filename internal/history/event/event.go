// Package event holds the audit-trail row type shared by the history
// package and its backend implementations, kept separate to avoid an
// import cycle between them.
package event

import "time"

// Event is one row of the audit trail.
type Event struct {
	WorkstreamID string
	Kind         string
	Detail       string
	Timestamp    time.Time
}
