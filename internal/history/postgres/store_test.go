package postgres

import (
	"context"
	"os"
	"testing"
)

func TestOpenAndRecordEvent_skipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	s, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	s.RecordEvent(ctx, "ws-pg-1", "state:running", "")
	events, err := s.ListEvents(ctx, "ws-pg-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) == 0 {
		t.Fatal("expected at least one recorded event")
	}
}
