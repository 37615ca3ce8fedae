package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// handlePermissionRequest is the deferred request handler registered
// against the transport client for "request_permission". It returns only
// once RespondToPermission resolves the one-shot channel stashed under
// the workstream id, the pattern for a peer request whose reply depends
// on an out-of-band human decision. requestID is the remote's envelope id
// for this request, carried through to PendingPermission/Event so a
// presenter can correlate the prompt with the exchange that raised it.
func (c *Coordinator) handlePermissionRequest(ctx context.Context, workstreamID string, requestID json.RawMessage, params json.RawMessage) (any, error) {
	c.mu.Lock()
	w, ok := c.workstreams[workstreamID]
	sess := c.sessions[workstreamID]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("workstream not found: %s", workstreamID)
	}

	var p struct {
		Options        []PermissionOption `json:"options"`
		ToolCallUpdate struct {
			Fields struct {
				Title string          `json:"title"`
				Input json.RawMessage `json:"rawInput"`
			} `json:"fields"`
		} `json:"toolCallUpdate"`
	}
	_ = json.Unmarshal(params, &p)

	if c.opts.Policy != nil {
		if optionID, ok := c.opts.Policy.Decide(p.ToolCallUpdate.Fields.Title, p.ToolCallUpdate.Fields.Input, p.Options); ok {
			return map[string]any{"outcome": map[string]any{"selected": map[string]string{"optionId": optionID}}}, nil
		}
	}

	pending := &PendingPermission{
		RequestID: requestID,
		ToolTitle: p.ToolCallUpdate.Fields.Title,
		RawInput:  p.ToolCallUpdate.Fields.Input,
		Options:   p.Options,
	}

	// Invariant P1: refuse a second concurrent pending permission for the
	// same workstream rather than silently overwriting the earlier one.
	sess.mu.Lock()
	if sess.pending != nil {
		sess.mu.Unlock()
		return nil, fmt.Errorf("permission request already pending for workstream %s", workstreamID)
	}
	resolver := make(permissionResolver, 1)
	sess.pending = pending
	sess.resolver = resolver
	sess.mu.Unlock()

	c.mu.Lock()
	c.setState(ctx, w, StateWaiting)
	w.Activity = "Permission needed: " + pending.ToolTitle
	c.notify(ctx, w, NotificationActionRequired, "Permission needed", pending.ToolTitle)
	c.mu.Unlock()
	c.emit(Event{Kind: EventPermissionRequest, WorkstreamID: workstreamID, Permission: pending, RequestID: string(requestID)})

	waitStart := time.Now()
	select {
	case outcome := <-resolver:
		if c.opts.Metrics != nil {
			c.opts.Metrics.RecordPermissionWait(time.Since(waitStart))
		}
		if outcome.err != nil {
			return nil, outcome.err
		}
		return map[string]any{"outcome": map[string]any{"selected": map[string]string{"optionId": outcome.optionID}}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RespondToPermission resolves the pending permission for a workstream
// with the operator's chosen option id. It fails if no pending resolver
// exists.
func (c *Coordinator) RespondToPermission(ctx context.Context, id, optionID string) error {
	c.mu.Lock()
	w, ok := c.workstreams[id]
	sess := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("workstream not found: %s", id)
	}

	sess.mu.Lock()
	if sess.pending == nil || sess.resolver == nil {
		sess.mu.Unlock()
		return fmt.Errorf("no pending permission request")
	}
	resolver := sess.resolver
	sess.pending = nil
	sess.resolver = nil
	sess.mu.Unlock()

	resolver <- permissionOutcome{optionID: optionID}

	c.mu.Lock()
	c.setState(ctx, w, StateRunning)
	c.mu.Unlock()
	return nil
}

// GetPendingPermission returns the pending permission for a workstream, if
// any.
func (c *Coordinator) GetPendingPermission(id string) (*PendingPermission, bool) {
	c.mu.Lock()
	sess, ok := c.sessions[id]
	c.mu.Unlock()
	if !ok {
		return nil, false
	}
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.pending == nil {
		return nil, false
	}
	cp := *sess.pending
	return &cp, true
}
