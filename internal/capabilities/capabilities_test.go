package capabilities

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

var _ coordinator.NotifierRegistry = (*Registry)(nil)

func TestRegistry_RegisterGet(t *testing.T) {
	reg := NewRegistry()
	c := SlackWebhook{WebhookURL: "https://example.com"}
	reg.Register(c)
	got := reg.Get("slack")
	if got != c {
		t.Fatalf("Get(slack): got %+v", got)
	}
	if reg.Get("nonexistent") != nil {
		t.Fatal("Get(nonexistent) should be nil")
	}
}

func TestRegistry_NotifyAll(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	reg := NewRegistry()
	reg.Register(SlackWebhook{WebhookURL: srv.URL})
	reg.Register(GitHubNotifier{}) // missing config; NotifyAll should log and continue
	reg.NotifyAll(context.Background(), "workstream needs review")
	if hits != 1 {
		t.Fatalf("expected slack webhook hit once, got %d", hits)
	}
}

func TestSlackWebhook_Notify_mockHTTP(t *testing.T) {
	var received string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: %s", r.Method)
		}
		received = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := SlackWebhook{WebhookURL: srv.URL}
	ctx := context.Background()
	if err := c.Notify(ctx, "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if received != "" {
		t.Logf("request received at %s", received)
	}
}

func TestSlackWebhook_Notify_emptyURL(t *testing.T) {
	c := SlackWebhook{}
	ctx := context.Background()
	if err := c.Notify(ctx, "msg"); err == nil {
		t.Fatal("expected error when webhook URL empty")
	}
}

func TestGitHubNotifier_Notify(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	g := GitHubNotifier{Token: "x", OwnerRepo: "owner/repo", Issue: 7, APIBase: srv.URL}
	ctx := context.Background()
	if err := g.Notify(ctx, "msg"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if path != "/repos/owner/repo/issues/7/comments" {
		t.Fatalf("path = %q", path)
	}
}

func TestGitHubNotifier_Notify_missingConfig(t *testing.T) {
	g := GitHubNotifier{}
	ctx := context.Background()
	if err := g.Notify(ctx, "msg"); err == nil {
		t.Fatal("expected error when token or owner/repo not set")
	}
}

func TestGitHubNotifier_Notify_missingIssue(t *testing.T) {
	g := GitHubNotifier{Token: "x", OwnerRepo: "owner/repo"}
	ctx := context.Background()
	if err := g.Notify(ctx, "msg"); err == nil {
		t.Fatal("expected error when no tracking issue configured")
	}
}
