// Package capabilities implements outbound notification integrations
// (Slack, GitHub) satisfying coordinator.NotifierRegistry.
package capabilities

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
)

// Capability is an integration that can deliver a notification message.
type Capability interface {
	Name() string
	Notify(ctx context.Context, message string) error
}

// Registry holds loaded capabilities by name and fans a message out to all
// of them. It satisfies coordinator.NotifierRegistry.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.Name()] = c
}

func (r *Registry) Get(name string) Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// Notify delivers a message through a single named capability.
func (r *Registry) Notify(ctx context.Context, name, message string) error {
	c := r.Get(name)
	if c == nil {
		return fmt.Errorf("capability %q not found", name)
	}
	return c.Notify(ctx, message)
}

// NotifyAll delivers message through every registered capability,
// best-effort. A failing capability is logged and does not block the rest.
func (r *Registry) NotifyAll(ctx context.Context, message string) {
	r.mu.RLock()
	targets := make([]Capability, 0, len(r.caps))
	for _, c := range r.caps {
		targets = append(targets, c)
	}
	r.mu.RUnlock()
	for _, c := range targets {
		if err := c.Notify(ctx, message); err != nil {
			log.Printf("capabilities: %s notify failed: %v", c.Name(), err)
		}
	}
}

// SlackWebhook sends messages to a Slack channel via incoming webhook URL.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, message string) error {
	if s.WebhookURL == "" {
		return fmt.Errorf("slack webhook URL not set")
	}
	payload := map[string]any{"text": message}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned %d", resp.StatusCode)
	}
	return nil
}

// GitHubNotifier posts a comment on a tracking issue when action is needed.
type GitHubNotifier struct {
	Token     string
	OwnerRepo string // e.g. "owner/repo"
	Issue     int

	// APIBase overrides the GitHub API root; empty means api.github.com.
	// Exposed for tests.
	APIBase string
}

func (g GitHubNotifier) Name() string { return "github" }

func (g GitHubNotifier) Notify(ctx context.Context, message string) error {
	if g.Token == "" || g.OwnerRepo == "" {
		return fmt.Errorf("github token or owner/repo not set")
	}
	if g.Issue == 0 {
		return fmt.Errorf("github notifier: no tracking issue configured")
	}
	base := g.APIBase
	if base == "" {
		base = "https://api.github.com"
	}
	url := fmt.Sprintf("%s/repos/%s/issues/%d/comments", base, g.OwnerRepo, g.Issue)
	body, err := json.Marshal(map[string]string{"body": message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+g.Token)
	req.Header.Set("Accept", "application/vnd.github+json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github comment returned %d", resp.StatusCode)
	}
	return nil
}
