package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gooseflow/coordinator/internal/protocol"
	"github.com/gooseflow/coordinator/internal/transport"
	"github.com/gooseflow/coordinator/internal/worktree"
)

// Options configures a Coordinator. ServerBaseURL, RepoPath, and
// UseWorktrees mirror the coordinator's external configuration inputs;
// everything else is optional ambient wiring.
type Options struct {
	ServerBaseURL string
	RepoPath      string
	UseWorktrees  bool

	Worktree   WorktreeProvider
	Identity   IdentityResolver
	History    HistorySink
	Notifier   NotifierRegistry
	Transcript TranscriptSink
	Metrics    MetricsRecorder
	Policy     AutoApprovalPolicy
	MCPServers []MCPServerConfig

	NewTransport func(baseURL string) *transport.Client
}

// Coordinator is the workstream orchestrator. It exclusively owns the
// workstream table; no other component mutates it.
type Coordinator struct {
	opts Options

	mu          sync.Mutex
	workstreams map[string]*Workstream
	sessions    map[string]*session

	obsMu          sync.Mutex
	observers      map[int]ObserverFunc
	nextObserverID int
}

// New constructs a Coordinator. A nil Worktree provider, or UseWorktrees
// false, means every workstream runs against the shared RepoPath checkout.
func New(opts Options) *Coordinator {
	if opts.NewTransport == nil {
		opts.NewTransport = func(baseURL string) *transport.Client {
			return transport.New(baseURL, nil)
		}
	}
	return &Coordinator{
		opts:        opts,
		workstreams: make(map[string]*Workstream),
		sessions:    make(map[string]*session),
		observers:   make(map[int]ObserverFunc),
	}
}

func (c *Coordinator) recordHistory(ctx context.Context, id, kind, detail string) {
	if c.opts.History != nil {
		c.opts.History.RecordEvent(ctx, id, kind, detail)
	}
}

// notify appends a notification to w, emits an observer event, records
// history, and forwards action-required/error notifications to the
// NotifierRegistry. The caller must hold c.mu.
func (c *Coordinator) notify(ctx context.Context, w *Workstream, kind NotificationKind, title, body string) {
	n := Notification{
		ID: uuid.NewString(), Kind: kind, Title: title, Body: body,
		Timestamp: time.Now().UTC(), WorkstreamID: w.ID,
	}
	w.Notifications = append(w.Notifications, n)
	c.emit(Event{Kind: EventNotification, WorkstreamID: w.ID, Notification: &n})
	c.recordHistory(ctx, w.ID, "notification:"+string(kind), title)
	if (kind == NotificationActionRequired || kind == NotificationError) && c.opts.Notifier != nil {
		c.opts.Notifier.NotifyAll(ctx, fmt.Sprintf("[%s] %s: %s", w.Name, title, body))
	}
}

// setState updates w's state, records history, updates the state-change
// metric, and emits an observer event. The caller must hold c.mu.
func (c *Coordinator) setState(ctx context.Context, w *Workstream, s State) {
	w.State = s
	c.recordHistory(ctx, w.ID, "state", string(s))
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordStateChange(s)
	}
	c.emit(Event{Kind: EventStateChanged, WorkstreamID: w.ID, State: s})
}

// CreateWorkstream mints a new workstream record, provisions a working
// copy if configured, and connects its transport session.
func (c *Coordinator) CreateWorkstream(ctx context.Context, name, task string) (Snapshot, error) {
	id := uuid.NewString()
	w := &Workstream{
		ID: id, Name: sanitizeDisplayName(name), Task: task,
		State: StateStarting, CreatedAt: time.Now().UTC(), LastActivity: time.Now().UTC(),
		Activity: "Starting...",
	}

	c.mu.Lock()
	c.workstreams[id] = w
	c.sessions[id] = &session{activeTools: make(map[string]*ToolCall)}
	c.mu.Unlock()

	c.recordHistory(ctx, id, "created", name)
	c.emit(Event{Kind: EventStateChanged, WorkstreamID: id, State: StateStarting})

	if c.opts.UseWorktrees && c.opts.Worktree != nil && c.opts.Worktree.IsAvailable(ctx) {
		info, err := c.opts.Worktree.Create(ctx, w.Name, "")
		c.mu.Lock()
		if err != nil {
			c.notify(ctx, w, NotificationError, "worktree creation failed", err.Error())
		} else {
			w.WorktreePath = info.Path
			w.BranchName = info.Branch
		}
		c.mu.Unlock()
	}

	if err := c.connectWorkstream(ctx, w); err != nil {
		c.mu.Lock()
		c.setState(ctx, w, StateError)
		c.notify(ctx, w, NotificationError, "connect failed", err.Error())
		snap := w.snapshot()
		c.mu.Unlock()
		return snap, err
	}

	c.mu.Lock()
	snap := w.snapshot()
	c.mu.Unlock()
	return snap, nil
}

func (c *Coordinator) connectWorkstream(ctx context.Context, w *Workstream) error {
	client := c.opts.NewTransport(c.opts.ServerBaseURL)

	c.mu.Lock()
	sess := c.sessions[w.ID]
	c.mu.Unlock()
	sess.mu.Lock()
	sess.client = client
	sess.mu.Unlock()

	wsID := w.ID
	client.OnMessage(func(env *protocol.Envelope) {
		c.handleProtocolEnvelope(context.Background(), wsID, env)
	})
	client.OnError(func(err error) {
		c.handleTransportError(wsID, err)
	})
	client.RegisterRequestHandler("request_permission", func(ctx context.Context, id, params json.RawMessage) (any, error) {
		return c.handlePermissionRequest(ctx, wsID, id, params)
	})

	sessionID, err := client.Connect(ctx)
	if err != nil {
		return err
	}

	if _, err := client.SendRequest(ctx, "initialize", map[string]any{
		"protocolVersion": "2025-01-01",
		"clientInfo":      map[string]string{"name": "gooseflow-coordinator", "version": "1"},
	}); err != nil {
		return err
	}

	cwd := c.opts.RepoPath
	if w.WorktreePath != "" {
		cwd = w.WorktreePath
	}
	mcpServers := c.opts.MCPServers
	if mcpServers == nil {
		mcpServers = []MCPServerConfig{}
	}
	sessionResult, err := client.SendRequest(ctx, "session/new", map[string]any{
		"cwd":        cwd,
		"mcpServers": mcpServers,
	})
	if err != nil {
		return err
	}
	var parsed struct {
		SessionID string `json:"sessionId"`
	}
	_ = json.Unmarshal(sessionResult, &parsed)
	if parsed.SessionID == "" {
		parsed.SessionID = sessionID
	}

	c.mu.Lock()
	w.SessionID = parsed.SessionID
	c.setState(ctx, w, StateRunning)
	w.Activity = "Idle - awaiting next instruction"
	c.mu.Unlock()
	return nil
}

// sanitizeDisplayName applies the same lower-case/[a-z0-9-]/50-char rule the
// worktree provider applies to branch and path names, so Workstream.Name is
// sanitized everywhere it's stored, not just where it becomes a filesystem
// path.
func sanitizeDisplayName(name string) string {
	safe := worktree.SanitizeName(name)
	if safe == "" {
		return "workstream"
	}
	return safe
}

func (c *Coordinator) handleTransportError(workstreamID string, err error) {
	c.mu.Lock()
	w, ok := c.workstreams[workstreamID]
	if !ok {
		c.mu.Unlock()
		return
	}
	ctx := context.Background()
	c.setState(ctx, w, StateError)
	c.notify(ctx, w, NotificationError, "connection error", err.Error())
	c.mu.Unlock()
	c.emit(Event{Kind: EventError, WorkstreamID: workstreamID, Err: err.Error()})
}

const worktreeFramingTemplate = "You are working in a git worktree at: %s (branch: %s)\n\n%s"

// StartTask is a convenience wrapper: if the workstream has a worktree, it
// prepends a fixed framing paragraph announcing the worktree path and
// branch before delegating to SendPrompt.
func (c *Coordinator) StartTask(ctx context.Context, id string) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}
	text := w.Task
	if w.WorktreePath != "" {
		text = fmt.Sprintf(worktreeFramingTemplate, w.WorktreePath, w.BranchName, w.Task)
	}
	return c.SendPrompt(ctx, id, text)
}

// SendPrompt appends an operator message to history, transitions state to
// running, and sends session/prompt. It fails for a paused workstream.
func (c *Coordinator) SendPrompt(ctx context.Context, id, text string) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	sess := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}

	c.mu.Lock()
	if w.State == StatePaused {
		c.mu.Unlock()
		return fmt.Errorf("workstream %s is paused", id)
	}
	w.Messages = append(w.Messages, ConversationMessage{Role: RoleOperator, Content: text, Timestamp: time.Now().UTC()})
	c.setState(ctx, w, StateRunning)
	w.Activity = "Processing..."
	sessionID := w.SessionID
	c.mu.Unlock()
	if c.opts.Transcript != nil {
		c.opts.Transcript.Append(id, w.Messages[len(w.Messages)-1])
	}

	sess.mu.Lock()
	client := sess.client
	sess.mu.Unlock()
	if client == nil {
		return fmt.Errorf("not connected")
	}

	start := time.Now()
	_, err := client.SendRequest(ctx, "session/prompt", map[string]any{
		"sessionId": sessionID,
		"prompt":    []map[string]string{{"type": "text", "text": text}},
	})
	if c.opts.Metrics != nil {
		c.opts.Metrics.RecordPromptDuration(time.Since(start))
	}
	if err != nil {
		c.mu.Lock()
		c.setState(ctx, w, StateError)
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	if w.State == StateRunning {
		w.Activity = "Idle - awaiting next instruction"
	}
	c.mu.Unlock()
	return nil
}

// PauseWorkstream transitions a running workstream to paused. The
// transport remains open; SendPrompt refuses new operator prompts while
// the workstream is paused.
func (c *Coordinator) PauseWorkstream(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workstreams[id]
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}
	c.setState(ctx, w, StatePaused)
	return nil
}

// ResumeWorkstream transitions a paused workstream back to running.
func (c *Coordinator) ResumeWorkstream(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workstreams[id]
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}
	c.setState(ctx, w, StateRunning)
	return nil
}

// StopWorkstream disconnects the transport, optionally reclaims the
// working copy, and removes the workstream record. Calling it twice is a
// no-op on the second call.
func (c *Coordinator) StopWorkstream(ctx context.Context, id string, cleanup bool) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	sess := c.sessions[id]
	if !ok {
		c.mu.Unlock()
		return nil
	}
	delete(c.workstreams, id)
	delete(c.sessions, id)
	c.mu.Unlock()

	sess.mu.Lock()
	client := sess.client
	resolver := sess.resolver
	sess.mu.Unlock()

	if resolver != nil {
		resolver <- permissionOutcome{err: fmt.Errorf("workstream stopped")}
	}
	if client != nil {
		client.Disconnect()
	}

	if cleanup && w.WorktreePath != "" && c.opts.Worktree != nil {
		_ = c.opts.Worktree.Remove(ctx, w.Name)
	}

	c.recordHistory(ctx, id, "stopped", fmt.Sprintf("cleanup=%v", cleanup))
	c.emit(Event{Kind: EventRemoved, WorkstreamID: id})
	return nil
}

// Notify raises a notification on behalf of an external subsystem (e.g.
// the merge-back worker) that observes workstream state through the public
// API rather than mutating the table directly.
func (c *Coordinator) Notify(ctx context.Context, id string, kind NotificationKind, title, body string) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}
	c.mu.Lock()
	c.notify(ctx, w, kind, title, body)
	c.mu.Unlock()
	return nil
}

// GetWorkstream returns the current snapshot of a workstream.
func (c *Coordinator) GetWorkstream(id string) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w, ok := c.workstreams[id]
	if !ok {
		return Snapshot{}, false
	}
	return w.snapshot(), true
}

// GetAllWorkstreams returns a snapshot of every tracked workstream.
func (c *Coordinator) GetAllWorkstreams() []Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Snapshot, 0, len(c.workstreams))
	for _, w := range c.workstreams {
		out = append(out, w.snapshot())
	}
	return out
}

// GetActiveTools returns the currently pending tool calls for a workstream.
func (c *Coordinator) GetActiveTools(id string) []ToolCall {
	c.mu.Lock()
	sess, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	out := make([]ToolCall, 0, len(sess.activeTools))
	for _, t := range sess.activeTools {
		out = append(out, *t)
	}
	return out
}

// GetUnreadNotifications returns every unread notification across all
// workstreams.
func (c *Coordinator) GetUnreadNotifications() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Notification
	for _, w := range c.workstreams {
		for _, n := range w.Notifications {
			if !n.Read {
				out = append(out, n)
			}
		}
	}
	return out
}

// GetWorkstreamDiff returns the working copy's diff, or empty if none.
func (c *Coordinator) GetWorkstreamDiff(ctx context.Context, id string) string {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok || w.WorktreePath == "" || c.opts.Worktree == nil {
		return ""
	}
	return c.opts.Worktree.Diff(ctx, w.WorktreePath)
}

// GetWorkstreamStatus returns the working copy's short status.
func (c *Coordinator) GetWorkstreamStatus(ctx context.Context, id string) string {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok || w.WorktreePath == "" || c.opts.Worktree == nil {
		return ""
	}
	return c.opts.Worktree.Status(ctx, w.WorktreePath)
}

// CommitWorkstreamChanges commits the working copy's changes. Returns
// false on any failure; never errors.
func (c *Coordinator) CommitWorkstreamChanges(ctx context.Context, id, message string) bool {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok || w.WorktreePath == "" || c.opts.Worktree == nil {
		return false
	}
	author := ""
	if c.opts.Identity != nil {
		name, email := c.opts.Identity(c.opts.RepoPath)
		if name != "" && email != "" {
			author = fmt.Sprintf("%s <%s>", name, email)
		}
	}
	return c.opts.Worktree.Commit(ctx, w.WorktreePath, message, author)
}
