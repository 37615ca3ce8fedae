package protocol

import (
	"encoding/json"
	"testing"
)

func TestClassifyTextChunk(t *testing.T) {
	env := &Envelope{
		Method: "session/update",
		Params: json.RawMessage(`{"update":{"sessionUpdate":"agent_message_chunk","content":{"text":"hello"}}}`),
	}
	c := Classify(env)
	if c.Kind != KindText {
		t.Fatalf("kind = %v, want text", c.Kind)
	}
	if c.Text != "hello" {
		t.Fatalf("text = %q, want hello", c.Text)
	}
}

func TestClassifyMissingNestedFields(t *testing.T) {
	env := &Envelope{
		Method: "session/update",
		Params: json.RawMessage(`{"update":{"sessionUpdate":"agent_message_chunk"}}`),
	}
	c := Classify(env)
	if c.Kind != KindText || c.Text != "" {
		t.Fatalf("got %+v, want empty text chunk", c)
	}
}

func TestClassifyToolCall(t *testing.T) {
	env := &Envelope{
		Method: "session/update",
		Params: json.RawMessage(`{"update":{"sessionUpdate":"tool_call","id":"t1","title":"run","status":"pending"}}`),
	}
	c := Classify(env)
	if c.Kind != KindToolCall || c.ToolCall == nil || c.ToolCall.ID != "t1" {
		t.Fatalf("got %+v", c)
	}
}

func TestClassifyToolCallUpdate(t *testing.T) {
	env := &Envelope{
		Method: "session/update",
		Params: json.RawMessage(`{"update":{"sessionUpdate":"tool_call_update","id":"t1","fields":{"status":"completed","content":[{"type":"text","text":"done"}]}}}`),
	}
	c := Classify(env)
	if c.Kind != KindToolUpdate || c.ToolUpdate == nil {
		t.Fatalf("got %+v", c)
	}
	if c.ToolUpdate.ID != "t1" {
		t.Fatalf("ID = %q, want t1", c.ToolUpdate.ID)
	}
	if c.ToolUpdate.Status != "completed" {
		t.Fatalf("Status = %q, want completed (nested under fields)", c.ToolUpdate.Status)
	}
	if string(c.ToolUpdate.Content) != `[{"type":"text","text":"done"}]` {
		t.Fatalf("Content = %s, want the fields.content array", c.ToolUpdate.Content)
	}
}

func TestClassifyToolCallUpdateMissingFields(t *testing.T) {
	env := &Envelope{
		Method: "session/update",
		Params: json.RawMessage(`{"update":{"sessionUpdate":"tool_call_update","id":"t1"}}`),
	}
	c := Classify(env)
	if c.Kind != KindToolUpdate || c.ToolUpdate == nil || c.ToolUpdate.Status != "" {
		t.Fatalf("got %+v, want empty status when fields is absent", c)
	}
}

func TestClassifyPermissionRequest(t *testing.T) {
	env := &Envelope{
		Method: "request_permission",
		ID:     json.RawMessage(`42`),
		Params: json.RawMessage(`{"options":[{"id":"a","kind":"allow_once"}],"toolCallUpdate":{"fields":{"title":"write file","rawInput":{"path":"x"}}}}`),
	}
	c := Classify(env)
	if c.Kind != KindPermissionRequest || c.Permission == nil {
		t.Fatalf("got %+v", c)
	}
	if c.Permission.ToolTitle != "write file" {
		t.Fatalf("toolTitle = %q", c.Permission.ToolTitle)
	}
	if len(c.Permission.Options) != 1 || c.Permission.Options[0].ID != "a" {
		t.Fatalf("options = %+v", c.Permission.Options)
	}
}

func TestClassifyUnknown(t *testing.T) {
	env := &Envelope{Method: "something/else", Params: json.RawMessage(`{}`)}
	if c := Classify(env); c.Kind != KindUnknown {
		t.Fatalf("kind = %v, want unknown", c.Kind)
	}
}

func TestEnvelopeShapeHelpers(t *testing.T) {
	resp := &Envelope{ID: json.RawMessage(`1`), Result: json.RawMessage(`{}`)}
	if !resp.IsResponse() || resp.IsPeerRequest() || resp.IsNotification() {
		t.Fatalf("response misclassified: %+v", resp)
	}
	req := &Envelope{ID: json.RawMessage(`2`), Method: "request_permission"}
	if !req.IsPeerRequest() || req.IsResponse() || req.IsNotification() {
		t.Fatalf("peer request misclassified: %+v", req)
	}
	note := &Envelope{Method: "session/update"}
	if !note.IsNotification() || note.IsResponse() || note.IsPeerRequest() {
		t.Fatalf("notification misclassified: %+v", note)
	}
}
