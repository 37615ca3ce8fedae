package coordinator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gooseflow/coordinator/internal/worktree"
)

// WorktreeProvider is the narrow interface the coordinator needs from a
// working-copy provider. worktree.Provider satisfies it structurally.
type WorktreeProvider interface {
	IsAvailable(ctx context.Context) bool
	Ensure() error
	Create(ctx context.Context, name, baseBranch string) (worktree.Info, error)
	Remove(ctx context.Context, name string) error
	Commit(ctx context.Context, path, message, author string) bool
	Diff(ctx context.Context, path string) string
	Status(ctx context.Context, path string) string
	RunTestCommand(ctx context.Context, path, testCmd string) error
	MergeFastForward(ctx context.Context, branch string) error
}

// IdentityResolver resolves the commit author identity for a repository
// root, returning empty strings if none could be determined.
type IdentityResolver func(repoPath string) (name, email string)

// HistorySink records a one-way audit trail of coordinator activity. It is
// never consulted to reconstruct workstream state.
type HistorySink interface {
	RecordEvent(ctx context.Context, workstreamID, kind, detail string)
}

// NotifierRegistry delivers best-effort outbound notifications (Slack,
// GitHub, ...) for action-required/error notifications.
type NotifierRegistry interface {
	NotifyAll(ctx context.Context, message string)
}

// TranscriptSink mirrors appended conversation messages to a durable,
// human-readable journal. Never read back by the coordinator.
type TranscriptSink interface {
	Append(workstreamID string, msg ConversationMessage)
}

// MetricsRecorder captures coordinator telemetry.
type MetricsRecorder interface {
	RecordStateChange(state State)
	RecordToolCall()
	RecordPermissionWait(d time.Duration)
	RecordPromptDuration(d time.Duration)
}

// AutoApprovalPolicy is consulted before a permission request blocks on a
// human decision. A true ok return resolves the request immediately.
type AutoApprovalPolicy interface {
	Decide(toolTitle string, rawInput json.RawMessage, options []PermissionOption) (optionID string, ok bool)
}

// MCPServerConfig describes one MCP server forwarded into session/new.
type MCPServerConfig struct {
	Name    string            `json:"name"`
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}
