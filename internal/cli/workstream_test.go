package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWorkstreamCreate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/workstreams" || r.Method != http.MethodPost {
			t.Errorf("request: %s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"ws1","name":"fix-bug","state":"running"}`))
	}))
	defer srv.Close()

	root := NewRootCmd("")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"workstream", "create", "--name", "fix-bug", "--task", "fix it", "--addr", srv.URL})
	if err := root.Execute(); err != nil {
		t.Fatalf("workstream create: %v", err)
	}
	if !strings.Contains(buf.String(), "ws1") {
		t.Errorf("expected output to mention the created workstream ID, got %q", buf.String())
	}
}

func TestWorkstreamCreate_missingFlags(t *testing.T) {
	root := NewRootCmd("")
	root.SetArgs([]string{"workstream", "create"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when --name/--task are missing")
	}
}

func TestWorkstreamList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"ws1","name":"fix-bug","state":"running","branchName":"agent/fix-bug"}]`))
	}))
	defer srv.Close()

	root := NewRootCmd("")
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs([]string{"workstream", "list", "--addr", srv.URL})
	if err := root.Execute(); err != nil {
		t.Fatalf("workstream list: %v", err)
	}
	if !strings.Contains(buf.String(), "ws1") || !strings.Contains(buf.String(), "agent/fix-bug") {
		t.Errorf("expected listing to include id and branch, got %q", buf.String())
	}
}

func TestWorkstreamReview_requiresOneFlag(t *testing.T) {
	root := NewRootCmd("")
	root.SetArgs([]string{"workstream", "review", "ws1", "--addr", "http://unused"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Fatal("expected error when neither --request, --approve, nor --changes-requested is set")
	}
}
