package coordinator

import (
	"context"
	"fmt"
)

// ReviewOutcome is the operator's verdict on a workstream submitted for
// review.
type ReviewOutcome string

const (
	ReviewApproved         ReviewOutcome = "approved"
	ReviewChangesRequested ReviewOutcome = "changes_requested"
)

// RequestReview transitions a running workstream to reviewing. For a
// workstream with a worktree it is rejected if that worktree has no changes
// to review; a workstream without a worktree is not diff-checked.
func (c *Coordinator) RequestReview(ctx context.Context, id string) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}
	if w.WorktreePath != "" && c.opts.Worktree != nil {
		if diff := c.opts.Worktree.Diff(ctx, w.WorktreePath); diff == "" {
			return fmt.Errorf("nothing to review: working copy has no changes")
		}
	}
	c.mu.Lock()
	c.setState(ctx, w, StateReviewing)
	c.notify(ctx, w, NotificationReviewReady, "Ready for review", w.Task)
	c.mu.Unlock()
	return nil
}

// SubmitReview records the operator's review outcome. Approval completes
// the workstream; a changes-requested verdict returns it to running and
// carries the comment forward as the next prompt's context.
func (c *Coordinator) SubmitReview(ctx context.Context, id string, outcome ReviewOutcome, comment string) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}
	c.mu.Lock()
	state := w.State
	c.mu.Unlock()
	if state != StateReviewing {
		return fmt.Errorf("workstream %s is not under review", id)
	}

	switch outcome {
	case ReviewApproved:
		c.mu.Lock()
		c.setState(ctx, w, StateCompleted)
		c.notify(ctx, w, NotificationInfo, "Review approved", comment)
		c.mu.Unlock()
		return nil
	case ReviewChangesRequested:
		c.mu.Lock()
		c.setState(ctx, w, StateRunning)
		c.notify(ctx, w, NotificationInfo, "Changes requested", comment)
		c.mu.Unlock()
		if comment != "" {
			return c.SendPrompt(ctx, id, "Reviewer requested changes: "+comment)
		}
		return nil
	default:
		return fmt.Errorf("unknown review outcome: %s", outcome)
	}
}
