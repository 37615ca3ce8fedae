// Package client provides a Go SDK for the coordinator control API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/gooseflow/coordinator/pkg/models"
)

// Client calls the coordinator control API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:4173"
	APIKey     string       // optional; sent as X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL. APIKey is optional.
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	u := c.BaseURL + path
	req, err := http.NewRequestWithContext(ctx, method, u, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return fmt.Errorf("api %s %s: %s", method, path, errBody.Error)
		}
		return fmt.Errorf("api %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func workstreamPath(id, suffix string) string {
	p := "/workstreams/" + url.PathEscape(id)
	if suffix != "" {
		p += "/" + suffix
	}
	return p
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// ListWorkstreams returns every tracked workstream.
func (c *Client) ListWorkstreams(ctx context.Context) ([]models.Workstream, error) {
	var out []models.Workstream
	err := c.doJSON(ctx, http.MethodGet, "/workstreams", nil, &out)
	return out, err
}

// CreateWorkstream creates a workstream and starts its agent task.
func (c *Client) CreateWorkstream(ctx context.Context, name, task string) (*models.Workstream, error) {
	var out models.Workstream
	err := c.doJSON(ctx, http.MethodPost, "/workstreams", map[string]string{"Name": name, "Task": task}, &out)
	return &out, err
}

// GetWorkstream returns one workstream by ID.
func (c *Client) GetWorkstream(ctx context.Context, id string) (*models.Workstream, error) {
	var out models.Workstream
	err := c.doJSON(ctx, http.MethodGet, workstreamPath(id, ""), nil, &out)
	return &out, err
}

// SendMessage forwards a prompt to the workstream's agent session.
func (c *Client) SendMessage(ctx context.Context, id, text string) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "message"), map[string]string{"Text": text}, nil)
}

// Pause pauses a running workstream.
func (c *Client) Pause(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "pause"), nil, nil)
}

// Resume resumes a paused workstream.
func (c *Client) Resume(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "resume"), nil, nil)
}

// Stop tears down a workstream's session and removes its record; with
// cleanup it also reclaims the workstream's worktree.
func (c *Client) Stop(ctx context.Context, id string, cleanup bool) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "stop"), map[string]bool{"Cleanup": cleanup}, nil)
}

// ActiveTools returns the workstream's currently pending tool calls.
func (c *Client) ActiveTools(ctx context.Context, id string) ([]models.ToolCall, error) {
	var out []models.ToolCall
	err := c.doJSON(ctx, http.MethodGet, workstreamPath(id, "tools"), nil, &out)
	return out, err
}

// Diff returns the workstream's uncommitted working-copy diff.
func (c *Client) Diff(ctx context.Context, id string) (string, error) {
	var out struct {
		Diff string `json:"diff"`
	}
	err := c.doJSON(ctx, http.MethodGet, workstreamPath(id, "diff"), nil, &out)
	return out.Diff, err
}

// Status returns the workstream's working-copy status (git status --short).
func (c *Client) Status(ctx context.Context, id string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	err := c.doJSON(ctx, http.MethodGet, workstreamPath(id, "status"), nil, &out)
	return out.Status, err
}

// Commit commits the workstream's working-copy changes under the
// operator's detected identity.
func (c *Client) Commit(ctx context.Context, id, message string) (committed bool, err error) {
	var out struct {
		Committed bool `json:"committed"`
	}
	err = c.doJSON(ctx, http.MethodPost, workstreamPath(id, "commit"), map[string]string{"Message": message}, &out)
	return out.Committed, err
}

// PendingPermission returns the workstream's outstanding permission
// request, if any (nil, nil when there is none).
func (c *Client) PendingPermission(ctx context.Context, id string) (*models.PendingPermission, error) {
	var out *models.PendingPermission
	err := c.doJSON(ctx, http.MethodGet, workstreamPath(id, "permission"), nil, &out)
	return out, err
}

// RespondToPermission resolves a pending permission with the chosen option ID.
func (c *Client) RespondToPermission(ctx context.Context, id, optionID string) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "permission/respond"), map[string]string{"optionId": optionID}, nil)
}

// RequestReview moves a workstream into the reviewing state.
func (c *Client) RequestReview(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "review"), map[string]string{}, nil)
}

// SubmitReview records the operator's review verdict (models.ReviewApproved
// or models.ReviewChangesRequested).
func (c *Client) SubmitReview(ctx context.Context, id, outcome, comment string) error {
	return c.doJSON(ctx, http.MethodPost, workstreamPath(id, "review"), map[string]string{
		"outcome": outcome,
		"comment": comment,
	}, nil)
}

// UnreadNotifications returns unread notifications across every workstream.
func (c *Client) UnreadNotifications(ctx context.Context) ([]models.Notification, error) {
	var out []models.Notification
	err := c.doJSON(ctx, http.MethodGet, "/notifications", nil, &out)
	return out, err
}
