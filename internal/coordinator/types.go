// Package coordinator is the orchestrator: it owns the workstream table,
// the per-workstream transport client, the lifecycle state machine, the
// pending-permission table, and the event fan-out to observers.
package coordinator

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gooseflow/coordinator/internal/transport"
)

// State is a workstream's lifecycle state.
type State string

const (
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateWaiting   State = "waiting"
	StateReviewing State = "reviewing"
	StatePaused    State = "paused"
	StateCompleted State = "completed"
	StateError     State = "error"
)

// IsTerminal reports whether s is a terminal state.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateError
}

// Role is the originator of a ConversationMessage.
type Role string

const (
	RoleOperator Role = "operator"
	RoleAgent    Role = "agent"
	RoleSystem   Role = "system"
)

// ConversationMessage is one entry in a workstream's message history.
// Consecutive agent-role messages are coalesced into the trailing entry
// (invariant M1) rather than producing new ones.
type ConversationMessage struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationKind classifies a Notification.
type NotificationKind string

const (
	NotificationActionRequired NotificationKind = "action-required"
	NotificationReviewReady    NotificationKind = "review-ready"
	NotificationError          NotificationKind = "error"
	NotificationInfo           NotificationKind = "info"
)

// Notification is a short-lived, user-facing event attached to a workstream.
type Notification struct {
	ID          string            `json:"id"`
	Kind        NotificationKind  `json:"kind"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Timestamp   time.Time         `json:"timestamp"`
	Read        bool              `json:"read"`
	WorkstreamID string           `json:"workstreamId"`
}

// ToolStatus is the lifecycle status of a ToolCall.
type ToolStatus string

const (
	ToolPending   ToolStatus = "pending"
	ToolCompleted ToolStatus = "completed"
	ToolFailed    ToolStatus = "failed"
)

// ToolCall is an agent-invoked external action reported via streaming
// updates. Kept in a workstream's active-tools map only while pending
// (invariant T1); a terminal status removes it.
type ToolCall struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Status ToolStatus `json:"status"`
}

// PendingPermission is a server-initiated permission prompt awaiting a
// human decision. At most one exists per workstream (invariant P1).
type PendingPermission struct {
	RequestID json.RawMessage             `json:"requestId"`
	ToolTitle string                      `json:"toolTitle"`
	RawInput  json.RawMessage             `json:"rawInput"`
	Options   []PermissionOption          `json:"options"`
}

// PermissionOption is one selectable outcome of a PendingPermission.
type PermissionOption struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// permissionResolver is the out-parameter channel held while a workstream
// is blocked on a permission decision. Exactly one exists iff a
// PendingPermission exists for that workstream (P1 <->).
type permissionResolver chan permissionOutcome

type permissionOutcome struct {
	optionID string
	err      error
}

// Workstream is the central entity: an independent agent task with its own
// session, branch, and working copy.
type Workstream struct {
	ID           string
	Name         string
	Task         string
	State        State
	WorktreePath string
	BranchName   string
	SessionID    string
	CreatedAt    time.Time
	LastActivity time.Time
	Activity     string

	Notifications []Notification
	Messages      []ConversationMessage
}

// Snapshot is an immutable, JSON-serializable copy of a Workstream safe to
// hand to observers without holding the coordinator's lock.
type Snapshot struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Task         string                 `json:"task"`
	State        State                  `json:"state"`
	WorktreePath string                 `json:"worktreePath,omitempty"`
	BranchName   string                 `json:"branchName,omitempty"`
	SessionID    string                 `json:"sessionId,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
	LastActivity time.Time              `json:"lastActivity"`
	Activity     string                 `json:"activity"`
	Notifications []Notification        `json:"notifications"`
	Messages     []ConversationMessage  `json:"messages"`
}

func (w *Workstream) snapshot() Snapshot {
	notifications := make([]Notification, len(w.Notifications))
	copy(notifications, w.Notifications)
	messages := make([]ConversationMessage, len(w.Messages))
	copy(messages, w.Messages)
	return Snapshot{
		ID: w.ID, Name: w.Name, Task: w.Task, State: w.State,
		WorktreePath: w.WorktreePath, BranchName: w.BranchName, SessionID: w.SessionID,
		CreatedAt: w.CreatedAt, LastActivity: w.LastActivity, Activity: w.Activity,
		Notifications: notifications, Messages: messages,
	}
}

// session bundles everything the coordinator keeps per connected workstream
// outside of the Workstream record itself: the transport client, its
// active tool table, and its pending permission (if any).
type session struct {
	mu         sync.Mutex
	client     *transport.Client
	activeTools map[string]*ToolCall

	pending  *PendingPermission
	resolver permissionResolver
}
