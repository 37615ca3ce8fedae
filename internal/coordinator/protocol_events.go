package coordinator

import (
	"context"
	"time"

	"github.com/gooseflow/coordinator/internal/protocol"
)

// handleProtocolEnvelope classifies one inbound notification envelope and
// updates the owning workstream's in-memory model, emitting observer
// events in the order inbound messages were processed. Every inbound
// event updates lastActivity.
func (c *Coordinator) handleProtocolEnvelope(ctx context.Context, workstreamID string, env *protocol.Envelope) {
	c.mu.Lock()
	w, ok := c.workstreams[workstreamID]
	sess := c.sessions[workstreamID]
	c.mu.Unlock()
	if !ok {
		return
	}

	classified := protocol.Classify(env)

	c.mu.Lock()
	w.LastActivity = time.Now().UTC()
	c.mu.Unlock()

	switch classified.Kind {
	case protocol.KindText:
		c.appendAgentText(w, classified.Text)

	case protocol.KindThought:
		c.mu.Lock()
		if len(classified.Text) > 100 {
			w.Activity = classified.Text[:100]
		} else {
			w.Activity = classified.Text
		}
		c.mu.Unlock()

	case protocol.KindToolCall:
		tc := &ToolCall{ID: classified.ToolCall.ID, Title: classified.ToolCall.Title, Status: ToolPending}
		sess.mu.Lock()
		sess.activeTools[tc.ID] = tc
		sess.mu.Unlock()
		c.mu.Lock()
		w.Activity = tc.Title
		c.mu.Unlock()
		if c.opts.Metrics != nil {
			c.opts.Metrics.RecordToolCall()
		}
		c.emit(Event{Kind: EventToolCall, WorkstreamID: workstreamID, Tool: tc})

	case protocol.KindToolUpdate:
		status := ToolStatus(classified.ToolUpdate.Status)
		sess.mu.Lock()
		tc, exists := sess.activeTools[classified.ToolUpdate.ID]
		if exists {
			tc.Status = status
			if status == ToolCompleted || status == ToolFailed {
				delete(sess.activeTools, classified.ToolUpdate.ID)
			}
		}
		sess.mu.Unlock()
		if exists {
			snapshot := *tc
			c.emit(Event{Kind: EventToolUpdate, WorkstreamID: workstreamID, Tool: &snapshot})
		}

	case protocol.KindUnknown:
		// malformed or unrecognized discriminator: never fatal, ignored.
	}
}

// appendAgentText implements invariant M1: consecutive agent chunks are
// coalesced into the trailing message rather than producing new ones. The
// observer "message" event fires only for the first chunk of a run.
func (c *Coordinator) appendAgentText(w *Workstream, text string) {
	c.mu.Lock()
	var isNew bool
	if n := len(w.Messages); n > 0 && w.Messages[n-1].Role == RoleAgent {
		w.Messages[n-1].Content += text
	} else {
		w.Messages = append(w.Messages, ConversationMessage{Role: RoleAgent, Content: text, Timestamp: time.Now().UTC()})
		isNew = true
	}
	if len(text) > 0 {
		if len(text) > 100 {
			w.Activity = text[:100]
		} else {
			w.Activity = text
		}
	}
	msg := w.Messages[len(w.Messages)-1]
	c.mu.Unlock()

	if c.opts.Transcript != nil {
		c.opts.Transcript.Append(w.ID, msg)
	}
	if isNew {
		c.emit(Event{Kind: EventMessage, WorkstreamID: w.ID, Message: &msg})
	}
}
