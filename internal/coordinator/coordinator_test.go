package coordinator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gooseflow/coordinator/internal/transport"
)

// fakeRemote is an in-process stand-in for the remote agent: it answers
// initialize/session/new/session/prompt and lets tests push arbitrary
// inbound envelopes (tool calls, text chunks, permission requests) down
// the SSE stream.
type fakeRemote struct {
	mu       sync.Mutex
	stream   chan []byte
	posted   chan map[string]any
	srv      *httptest.Server
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{stream: make(chan []byte, 64), posted: make(chan map[string]any, 64)}
	mux := http.NewServeMux()
	mux.HandleFunc("/acp/session", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
	})
	mux.HandleFunc("/acp/session/sess-1/message", func(w http.ResponseWriter, r *http.Request) {
		var env map[string]any
		_ = json.NewDecoder(r.Body).Decode(&env)
		f.posted <- env
		if id, ok := env["id"]; ok && env["method"] != nil {
			switch env["method"] {
			case "initialize":
				f.push(map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{}})
			case "session/new":
				f.push(map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{"sessionId": "remote-sess-1"}})
			case "session/prompt":
				f.push(map[string]any{"jsonrpc": "2.0", "id": id, "result": map[string]any{}})
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/acp/session/sess-1/stream", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for {
			select {
			case <-r.Context().Done():
				return
			case msg := <-f.stream:
				w.Write([]byte("data: "))
				w.Write(msg)
				w.Write([]byte("\n\n"))
				flusher.Flush()
			}
		}
	})
	f.srv = httptest.NewServer(mux)
	return f
}

func (f *fakeRemote) push(env map[string]any) {
	b, _ := json.Marshal(env)
	f.stream <- b
}

func (f *fakeRemote) Close() { f.srv.Close() }

func newTestCoordinator(baseURL string) *Coordinator {
	return New(Options{
		ServerBaseURL: baseURL,
		UseWorktrees:  false,
		NewTransport: func(base string) *transport.Client {
			return transport.New(base, nil)
		},
	})
}

func TestCreateWorkstreamHappyPathNoWorktree(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()

	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "fix x", "do it")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}
	if snap.State != StateRunning {
		t.Fatalf("state = %v, want running", snap.State)
	}
	if snap.WorktreePath != "" {
		t.Fatalf("expected no worktree path, got %q", snap.WorktreePath)
	}
}

func TestCreateWorkstreamSanitizesName(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()

	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "Hello, World! 123", "do it")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}
	const want = "hello--world--123"
	if snap.Name != want {
		t.Fatalf("Name = %q, want %q", snap.Name, want)
	}
	got, ok := c.GetWorkstream(snap.ID)
	if !ok || got.Name != want {
		t.Fatalf("GetWorkstream Name = %q, want %q", got.Name, want)
	}
}

func TestChunkCoalescing(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()
	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "chunks", "task")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}

	var events []Event
	var mu sync.Mutex
	unsub := c.Subscribe(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})
	defer unsub()

	for _, chunk := range []string{"Hel", "lo ", "world"} {
		remote.push(map[string]any{
			"jsonrpc": "2.0",
			"method":  "session/update",
			"params": map[string]any{
				"update": map[string]any{
					"sessionUpdate": "agent_message_chunk",
					"content":       map[string]any{"text": chunk},
				},
			},
		})
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		got, _ := c.GetWorkstream(snap.ID)
		if len(got.Messages) == 1 && got.Messages[0].Content == "Hello world" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	got, _ := c.GetWorkstream(snap.ID)
	if len(got.Messages) != 1 {
		t.Fatalf("messages = %+v, want exactly one coalesced message", got.Messages)
	}
	if got.Messages[0].Content != "Hello world" {
		t.Fatalf("content = %q, want %q", got.Messages[0].Content, "Hello world")
	}

	mu.Lock()
	messageEvents := 0
	for _, ev := range events {
		if ev.Kind == EventMessage {
			messageEvents++
		}
	}
	mu.Unlock()
	if messageEvents != 1 {
		t.Fatalf("message events = %d, want 1 (only the first chunk fires one)", messageEvents)
	}
}

func TestToolLifecycle(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()
	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "tools", "task")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}

	if len(c.GetActiveTools(snap.ID)) != 0 {
		t.Fatal("expected zero active tools initially")
	}

	remote.push(map[string]any{
		"jsonrpc": "2.0", "method": "session/update",
		"params": map[string]any{"update": map[string]any{"sessionUpdate": "tool_call", "id": "t1", "title": "run", "status": "pending"}},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(c.GetActiveTools(snap.ID)) == 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(c.GetActiveTools(snap.ID)) != 1 {
		t.Fatalf("expected one active tool after tool_call")
	}

	remote.push(map[string]any{
		"jsonrpc": "2.0", "method": "session/update",
		"params": map[string]any{"update": map[string]any{"sessionUpdate": "tool_call_update", "id": "t1", "fields": map[string]any{"status": "completed"}}},
	})

	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && len(c.GetActiveTools(snap.ID)) != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	if len(c.GetActiveTools(snap.ID)) != 0 {
		t.Fatalf("expected zero active tools after terminal update")
	}
}

func TestStopWorkstreamIsIdempotent(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()
	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "stoppable", "task")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}

	if err := c.StopWorkstream(ctx, snap.ID, false); err != nil {
		t.Fatalf("first stop: %v", err)
	}
	if _, ok := c.GetWorkstream(snap.ID); ok {
		t.Fatal("workstream should be absent after stop")
	}
	if err := c.StopWorkstream(ctx, snap.ID, false); err != nil {
		t.Fatalf("second stop should be a silent no-op, got %v", err)
	}
}

func TestRespondToPermissionWithoutPendingFails(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()
	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "noperm", "task")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}
	if err := c.RespondToPermission(ctx, snap.ID, "a"); err == nil {
		t.Fatal("expected error when no permission is pending")
	}
}

func TestPermissionRoundTrip(t *testing.T) {
	remote := newFakeRemote()
	defer remote.Close()
	c := newTestCoordinator(remote.srv.URL)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	snap, err := c.CreateWorkstream(ctx, "perm", "task")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}

	// drain handshake posts (initialize, session/new) before issuing the
	// peer-initiated request_permission.
	for i := 0; i < 2; i++ {
		<-remote.posted
	}

	remote.push(map[string]any{
		"jsonrpc": "2.0", "id": json.Number("42"), "method": "request_permission",
		"params": map[string]any{
			"options": []map[string]any{
				{"id": "a", "kind": "allow_once"},
				{"id": "r", "kind": "reject_once"},
			},
			"toolCallUpdate": map[string]any{"fields": map[string]any{"title": "write file"}},
		},
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got, ok := c.GetWorkstream(snap.ID); ok && got.State == StateWaiting {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	got, _ := c.GetWorkstream(snap.ID)
	if got.State != StateWaiting {
		t.Fatalf("state = %v, want waiting", got.State)
	}
	pending, ok := c.GetPendingPermission(snap.ID)
	if !ok {
		t.Fatal("expected a pending permission entry")
	}
	if string(pending.RequestID) != "42" {
		t.Fatalf("RequestID = %q, want %q", pending.RequestID, "42")
	}

	if err := c.RespondToPermission(ctx, snap.ID, "a"); err != nil {
		t.Fatalf("RespondToPermission: %v", err)
	}

	var reply map[string]any
	deadline = time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case reply = <-remote.posted:
		default:
		}
		if reply != nil {
			if _, hasResult := reply["result"]; hasResult {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	if reply == nil {
		t.Fatal("expected a response envelope to be posted back")
	}

	got, _ = c.GetWorkstream(snap.ID)
	if got.State != StateRunning {
		t.Fatalf("state after respond = %v, want running", got.State)
	}
	if _, ok := c.GetPendingPermission(snap.ID); ok {
		t.Fatal("pending permission table should be empty")
	}
}
