// Package models provides shared types for the coordinator control API and
// external tools. These types mirror the API JSON and are stable for use by
// pkg/client and other consumers.
package models

import (
	"encoding/json"
	"time"
)

// Workstream is a snapshot of one orchestrated coding-agent task: its
// lifecycle state, working-copy location, and accumulated notifications and
// conversation history.
type Workstream struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Task         string    `json:"task"`
	State        string    `json:"state"`
	WorktreePath string    `json:"worktreePath,omitempty"`
	BranchName   string    `json:"branchName,omitempty"`
	SessionID    string    `json:"sessionId,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActivity time.Time `json:"lastActivity"`
	Activity     string    `json:"activity"`

	Notifications []Notification         `json:"notifications"`
	Messages      []ConversationMessage   `json:"messages"`
}

// ConversationMessage is one entry in a workstream's message history.
type ConversationMessage struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Notification is a short-lived, user-facing event attached to a workstream.
type Notification struct {
	ID           string    `json:"id"`
	Kind         string    `json:"kind"`
	Title        string    `json:"title"`
	Body         string    `json:"body"`
	Timestamp    time.Time `json:"timestamp"`
	Read         bool      `json:"read"`
	WorkstreamID string    `json:"workstreamId"`
}

// ToolCall is an agent-invoked external action reported via streaming
// updates while it remains pending.
type ToolCall struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// PendingPermission is a server-initiated permission prompt awaiting a
// human decision.
type PendingPermission struct {
	RequestID json.RawMessage    `json:"requestId"`
	ToolTitle string             `json:"toolTitle"`
	RawInput  json.RawMessage    `json:"rawInput"`
	Options   []PermissionOption `json:"options"`
}

// PermissionOption is one selectable outcome of a PendingPermission.
type PermissionOption struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}
