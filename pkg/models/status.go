package models

// Workstream lifecycle states, mirroring coordinator.State.
const (
	StateStarting  = "starting"
	StateRunning   = "running"
	StateWaiting   = "waiting"
	StateReviewing = "reviewing"
	StatePaused    = "paused"
	StateCompleted = "completed"
	StateError     = "error"
)

// Review outcomes accepted by POST /workstreams/{id}/review.
const (
	ReviewApproved         = "approved"
	ReviewChangesRequested = "changes_requested"
)

// Conversation message roles.
const (
	RoleOperator = "operator"
	RoleAgent    = "agent"
	RoleSystem   = "system"
)

// Notification kinds.
const (
	NotificationActionRequired = "action-required"
	NotificationReviewReady    = "review-ready"
	NotificationError          = "error"
	NotificationInfo           = "info"
)

// DefaultMaxRequestBodyBytes bounds request bodies accepted by the control API.
const DefaultMaxRequestBodyBytes = 1 << 20
