// Package observer defines the contract by which an external presenter
// subscribes to coordinator events, issues commands, and resolves pending
// permissions. It holds no implementation of its own; *coordinator.Coordinator
// satisfies Coordinator structurally.
package observer

import (
	"context"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

// Coordinator is the subset of the workstream coordinator a presenter
// needs: commands that mutate workstream state, and pure reads over the
// in-memory model that never block on remote I/O.
type Coordinator interface {
	CreateWorkstream(ctx context.Context, name, task string) (coordinator.Snapshot, error)
	StartTask(ctx context.Context, id string) error
	SendPrompt(ctx context.Context, id, text string) error
	PauseWorkstream(ctx context.Context, id string) error
	ResumeWorkstream(ctx context.Context, id string) error
	StopWorkstream(ctx context.Context, id string, cleanup bool) error
	RespondToPermission(ctx context.Context, id, optionID string) error
	RequestReview(ctx context.Context, id string) error
	SubmitReview(ctx context.Context, id string, outcome coordinator.ReviewOutcome, comment string) error

	GetWorkstream(id string) (coordinator.Snapshot, bool)
	GetAllWorkstreams() []coordinator.Snapshot
	GetActiveTools(id string) []coordinator.ToolCall
	GetUnreadNotifications() []coordinator.Notification
	GetPendingPermission(id string) (*coordinator.PendingPermission, bool)
	GetWorkstreamDiff(ctx context.Context, id string) string
	GetWorkstreamStatus(ctx context.Context, id string) string
	CommitWorkstreamChanges(ctx context.Context, id, message string) bool

	Subscribe(fn coordinator.ObserverFunc) coordinator.Unsubscribe
}

var _ Coordinator = (*coordinator.Coordinator)(nil)
