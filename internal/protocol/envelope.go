// Package protocol classifies inbound ACP envelopes into a small tagged set
// that the coordinator can act on without re-parsing JSON at every call site.
package protocol

import "encoding/json"

// Envelope is the JSON-RPC-shaped message carried over the transport in
// both directions.
type Envelope struct {
	JSONRPC string          `json:"jsonrpc,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

// EnvelopeError is the error object of a JSON-RPC-shaped response.
type EnvelopeError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsResponse reports whether e carries an id but no method: a reply to a
// request this side initiated.
func (e *Envelope) IsResponse() bool {
	return len(e.ID) > 0 && e.Method == ""
}

// IsPeerRequest reports whether e carries both a method and an id: a
// request the remote initiated that expects a reply with the same id.
func (e *Envelope) IsPeerRequest() bool {
	return e.Method != "" && len(e.ID) > 0
}

// IsNotification reports whether e carries a method and no id.
func (e *Envelope) IsNotification() bool {
	return e.Method != "" && len(e.ID) == 0
}

// Kind is the tagged classification of an inbound envelope.
type Kind string

const (
	KindText               Kind = "text"
	KindThought            Kind = "thought"
	KindToolCall           Kind = "tool_call"
	KindToolUpdate         Kind = "tool_update"
	KindPermissionRequest  Kind = "permission_request"
	KindUnknown            Kind = "unknown"
)

// ToolCallInfo is the surfaced payload of a tool_call classification.
type ToolCallInfo struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// ToolUpdateInfo is the surfaced payload of a tool_update classification.
type ToolUpdateInfo struct {
	ID      string          `json:"id"`
	Status  string          `json:"status"`
	Content json.RawMessage `json:"content"`
}

// PermissionOption is one selectable outcome of a permission request.
type PermissionOption struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
}

// PermissionRequestInfo is the surfaced payload of a permission_request
// classification, preserving the full params so a presenter can render
// options and raw tool input.
type PermissionRequestInfo struct {
	RequestID json.RawMessage    `json:"requestId"`
	ToolTitle string             `json:"toolTitle"`
	RawInput  json.RawMessage    `json:"rawInput"`
	Options   []PermissionOption `json:"options"`
	Raw       json.RawMessage    `json:"raw"`
}

// Classification is the result of classifying one inbound envelope.
type Classification struct {
	Kind           Kind
	Text           string
	ToolCall       *ToolCallInfo
	ToolUpdate     *ToolUpdateInfo
	Permission     *PermissionRequestInfo
}

type sessionUpdateParams struct {
	Update struct {
		SessionUpdate string `json:"sessionUpdate"`
		Content       struct {
			Text string `json:"text"`
		} `json:"content"`
		ID     string          `json:"id"`
		Title  string          `json:"title"`
		Status string          `json:"status"`
		Fields json.RawMessage `json:"fields"`
	} `json:"update"`
}

type requestPermissionParams struct {
	Options         []PermissionOption `json:"options"`
	ToolCallUpdate  struct {
		Fields json.RawMessage `json:"fields"`
	} `json:"toolCallUpdate"`
}

// Classify is a pure function over an inbound envelope. It never mutates
// state and tolerates missing nested fields, returning empty strings for
// absent chunk text rather than erroring.
func Classify(env *Envelope) Classification {
	switch env.Method {
	case "session/update":
		var p sessionUpdateParams
		_ = json.Unmarshal(env.Params, &p)
		switch p.Update.SessionUpdate {
		case "agent_message_chunk":
			return Classification{Kind: KindText, Text: p.Update.Content.Text}
		case "agent_thought_chunk":
			return Classification{Kind: KindThought, Text: p.Update.Content.Text}
		case "tool_call":
			return Classification{Kind: KindToolCall, ToolCall: &ToolCallInfo{
				ID: p.Update.ID, Title: p.Update.Title, Status: p.Update.Status,
			}}
		case "tool_call_update":
			var fields struct {
				Status  string          `json:"status"`
				Content json.RawMessage `json:"content"`
			}
			_ = json.Unmarshal(p.Update.Fields, &fields)
			return Classification{Kind: KindToolUpdate, ToolUpdate: &ToolUpdateInfo{
				ID: p.Update.ID, Status: fields.Status, Content: fields.Content,
			}}
		}
		return Classification{Kind: KindUnknown}
	case "request_permission":
		var p requestPermissionParams
		_ = json.Unmarshal(env.Params, &p)
		var toolTitle string
		var rawInput json.RawMessage
		if len(p.ToolCallUpdate.Fields) > 0 {
			var fields struct {
				Title string          `json:"title"`
				Input json.RawMessage `json:"rawInput"`
			}
			_ = json.Unmarshal(p.ToolCallUpdate.Fields, &fields)
			toolTitle = fields.Title
			rawInput = fields.Input
		}
		return Classification{Kind: KindPermissionRequest, Permission: &PermissionRequestInfo{
			RequestID: env.ID,
			ToolTitle: toolTitle,
			RawInput:  rawInput,
			Options:   p.Options,
			Raw:       env.Params,
		}}
	default:
		return Classification{Kind: KindUnknown}
	}
}
