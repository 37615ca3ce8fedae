// Package mergequeue implements the background worker that fast-forward
// merges a completed workstream's branch back into the base branch once its
// test command (if any) passes. It never rebases or resolves conflicts:
// that remains the operator's job. A workstream whose test command or merge
// fails stays completed and is attempted again on every later tick.
package mergequeue

import (
	"context"
	"log/slog"
	"time"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

const defaultInterval = 15 * time.Second

// Worktree is the subset of coordinator.WorktreeProvider the worker needs.
type Worktree interface {
	RunTestCommand(ctx context.Context, path, testCmd string) error
	MergeFastForward(ctx context.Context, branch string) error
}

// Worker scans completed workstreams once per tick and merges them back.
type Worker struct {
	Coordinator *coordinator.Coordinator
	Worktree    Worktree

	// TestCommand, if set, is run in the workstream's worktree before
	// attempting the merge. An empty command skips straight to merge.
	TestCommand string

	// Interval between poll rounds; defaults to 15s.
	Interval time.Duration
}

// Run polls until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	for _, snap := range w.Coordinator.GetAllWorkstreams() {
		if snap.State != coordinator.StateCompleted || snap.WorktreePath == "" || snap.BranchName == "" {
			continue
		}
		w.processWorkstream(ctx, snap)
	}
}

func (w *Worker) processWorkstream(ctx context.Context, snap coordinator.Snapshot) {
	if w.TestCommand != "" {
		if err := w.Worktree.RunTestCommand(ctx, snap.WorktreePath, w.TestCommand); err != nil {
			slog.Warn("mergequeue: test command failed", "workstream", snap.ID, "err", err)
			_ = w.Coordinator.Notify(ctx, snap.ID, coordinator.NotificationError, "merge-back test failed", err.Error())
			return
		}
	}

	if err := w.Worktree.MergeFastForward(ctx, snap.BranchName); err != nil {
		slog.Warn("mergequeue: fast-forward merge failed", "workstream", snap.ID, "err", err)
		_ = w.Coordinator.Notify(ctx, snap.ID, coordinator.NotificationError, "merge-back failed", err.Error())
		return
	}

	slog.Info("mergequeue: merged workstream", "workstream", snap.ID, "branch", snap.BranchName)
	_ = w.Coordinator.Notify(ctx, snap.ID, coordinator.NotificationInfo, "merged", "branch "+snap.BranchName+" fast-forwarded and working copy reclaimed")
	_ = w.Coordinator.StopWorkstream(ctx, snap.ID, true)
}
