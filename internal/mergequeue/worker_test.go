package mergequeue

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gooseflow/coordinator/internal/coordinator"
	"github.com/gooseflow/coordinator/internal/transport"
	"github.com/gooseflow/coordinator/internal/worktree"
)

// fakeRemote is a minimal ACP stand-in: enough to get a workstream to
// running (initialize/session/new/session/prompt all succeed immediately).
type fakeRemote struct {
	srv    *httptest.Server
	stream chan []byte
}

func newFakeRemote() *fakeRemote {
	f := &fakeRemote{stream: make(chan []byte, 8)}
	mux := http.NewServeMux()
	mux.HandleFunc("/acp/session", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"session_id": "sess-1"})
	})
	mux.HandleFunc("/acp/session/sess-1/message", func(w http.ResponseWriter, r *http.Request) {
		var env map[string]any
		_ = json.NewDecoder(r.Body).Decode(&env)
		if id, ok := env["id"]; ok && env["method"] != nil {
			result := map[string]any{}
			if env["method"] == "session/new" {
				result = map[string]any{"sessionId": "remote-sess-1"}
			}
			b, _ := json.Marshal(map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
			f.stream <- b
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

func (f *fakeRemote) Close() { f.srv.Close() }

// fakeWorktree satisfies coordinator.WorktreeProvider and records calls the
// merge worker makes against it.
type fakeWorktree struct {
	mergedBranch string
	mergeErr     error
	removed      string
	diff         string
}

func (f *fakeWorktree) IsAvailable(ctx context.Context) bool { return true }
func (f *fakeWorktree) Ensure() error                        { return nil }
func (f *fakeWorktree) Create(ctx context.Context, name, baseBranch string) (worktree.Info, error) {
	return worktree.Info{Path: "/repo/.goose-worktrees/" + name, Branch: "goose/" + name}, nil
}
func (f *fakeWorktree) Remove(ctx context.Context, name string) error {
	f.removed = name
	return nil
}
func (f *fakeWorktree) Commit(ctx context.Context, path, message, author string) bool { return true }
func (f *fakeWorktree) Diff(ctx context.Context, path string) string                  { return f.diff }
func (f *fakeWorktree) Status(ctx context.Context, path string) string                { return "" }
func (f *fakeWorktree) RunTestCommand(ctx context.Context, path, testCmd string) error {
	return nil
}
func (f *fakeWorktree) MergeFastForward(ctx context.Context, branch string) error {
	f.mergedBranch = branch
	return f.mergeErr
}

func setupCompletedWorkstream(t *testing.T, wt *fakeWorktree) (*coordinator.Coordinator, coordinator.Snapshot, func()) {
	t.Helper()
	remote := newFakeRemote()
	wt.diff = "diff --git a/x b/x\n+hi\n"

	c := coordinator.New(coordinator.Options{
		ServerBaseURL: remote.srv.URL,
		UseWorktrees:  true,
		Worktree:      wt,
		NewTransport: func(base string) *transport.Client {
			return transport.New(base, nil)
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	snap, err := c.CreateWorkstream(ctx, "fix bug", "do it")
	if err != nil {
		t.Fatalf("CreateWorkstream: %v", err)
	}
	if err := c.RequestReview(ctx, snap.ID); err != nil {
		t.Fatalf("RequestReview: %v", err)
	}
	if err := c.SubmitReview(ctx, snap.ID, coordinator.ReviewApproved, "lgtm"); err != nil {
		t.Fatalf("SubmitReview: %v", err)
	}
	snap, _ = c.GetWorkstream(snap.ID)
	if snap.State != coordinator.StateCompleted {
		t.Fatalf("state = %v, want completed", snap.State)
	}
	return c, snap, remote.Close
}

func TestWorkerMergesCompletedWorkstream(t *testing.T) {
	wt := &fakeWorktree{}
	c, snap, closeRemote := setupCompletedWorkstream(t, wt)
	defer closeRemote()

	w := &Worker{Coordinator: c, Worktree: wt}
	w.runOnce(context.Background())

	if wt.mergedBranch != snap.BranchName {
		t.Fatalf("mergedBranch = %q, want %q", wt.mergedBranch, snap.BranchName)
	}
	if wt.removed != snap.Name {
		t.Fatalf("removed = %q, want %q", wt.removed, snap.Name)
	}
	if _, ok := c.GetWorkstream(snap.ID); ok {
		t.Fatal("expected workstream to be removed after merge")
	}
}

func TestWorkerLeavesWorkstreamOnNonFastForward(t *testing.T) {
	wt := &fakeWorktree{mergeErr: errNotFastForward}
	c, snap, closeRemote := setupCompletedWorkstream(t, wt)
	defer closeRemote()

	w := &Worker{Coordinator: c, Worktree: wt}
	w.runOnce(context.Background())

	got, ok := c.GetWorkstream(snap.ID)
	if !ok {
		t.Fatal("expected workstream to remain after failed merge")
	}
	if got.State != coordinator.StateCompleted {
		t.Fatalf("state = %v, want completed", got.State)
	}
}

var errNotFastForward = &mergeError{"not a fast-forward"}

type mergeError struct{ msg string }

func (e *mergeError) Error() string { return e.msg }
