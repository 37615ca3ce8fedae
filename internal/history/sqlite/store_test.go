package sqlite

import (
	"context"
	"path/filepath"
	"testing"
)

func TestOpenAndRecordEvent(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	s, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	ctx := context.Background()
	s.RecordEvent(ctx, "ws-1", "state:running", "")
	s.RecordEvent(ctx, "ws-1", "notification:action_required", "review needed")
	s.RecordEvent(ctx, "ws-2", "state:running", "")

	events, err := s.ListEvents(ctx, "ws-1")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events for ws-1, got %d", len(events))
	}
	if events[0].Kind != "state:running" || events[1].Kind != "notification:action_required" {
		t.Errorf("unexpected event order: %+v", events)
	}
}

func TestListEventsEmptyForUnknownWorkstream(t *testing.T) {
	home := filepath.Join(t.TempDir(), "home")
	s, err := Open(home)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = s.Close() }()

	events, err := s.ListEvents(context.Background(), "nope")
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}
