// Package transport implements the per-workstream bidirectional client: it
// opens a session against the remote agent, pumps its inbound SSE event
// stream, sends outbound requests/notifications over HTTP POST, matches
// responses to callers by id, and dispatches peer-initiated requests to
// registered handlers.
package transport

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gooseflow/coordinator/internal/protocol"
)

// RequestHandler answers a peer-initiated request and returns the value to
// place in the result field of the reply envelope. id is the peer's request
// id, verbatim, for handlers that need to surface it (e.g. attaching it to
// a PendingPermission). It may block indefinitely; the permission-request
// handler is the reference case, deferred until a human resolves it.
type RequestHandler func(ctx context.Context, id json.RawMessage, params json.RawMessage) (any, error)

// Client is one transport session, owned 1-to-1 by a workstream.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.Mutex
	sessionID string
	nextID    int64
	pending   map[string]chan rpcResult

	handlersMu sync.Mutex
	handlers   map[string]RequestHandler

	messageHandlersMu sync.Mutex
	messageHandlers   []func(*protocol.Envelope)

	errorHandlersMu sync.Mutex
	errorHandlers   []func(error)

	connected atomic.Bool
	cancelPump context.CancelFunc
	pumpDone   chan struct{}
}

type rpcResult struct {
	result json.RawMessage
	err    error
}

// New constructs a transport client pointed at baseURL, e.g.
// "http://localhost:4242".
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		pending:    make(map[string]chan rpcResult),
		handlers:   make(map[string]RequestHandler),
	}
}

// RegisterRequestHandler installs the handler invoked for peer-initiated
// requests with the given method.
func (c *Client) RegisterRequestHandler(method string, h RequestHandler) {
	c.handlersMu.Lock()
	defer c.handlersMu.Unlock()
	c.handlers[method] = h
}

// OnMessage registers a handler invoked for every inbound envelope that is
// not a response to a call this client initiated and has no registered
// request handler for its method (i.e. notifications, plus unhandled
// peer requests forwarded verbatim).
func (c *Client) OnMessage(h func(*protocol.Envelope)) {
	c.messageHandlersMu.Lock()
	defer c.messageHandlersMu.Unlock()
	c.messageHandlers = append(c.messageHandlers, h)
}

// OnError registers a handler invoked when the SSE pump fails. The pump
// does not automatically reconnect; the caller decides what to do with
// the owning workstream.
func (c *Client) OnError(h func(error)) {
	c.errorHandlersMu.Lock()
	defer c.errorHandlersMu.Unlock()
	c.errorHandlers = append(c.errorHandlers, h)
}

type createSessionResponse struct {
	SessionID string `json:"session_id"`
}

// Connect opens the session and starts the inbound SSE pump. It returns
// once the session id is known; the pump continues in the background
// until ctx is cancelled, Disconnect is called, or the stream fails.
func (c *Client) Connect(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/acp/session", nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("create session: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("create session: %s", resp.Status)
	}
	var out createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("create session: decode response: %w", err)
	}

	c.mu.Lock()
	c.sessionID = out.SessionID
	c.mu.Unlock()

	pumpCtx, cancel := context.WithCancel(ctx)
	c.cancelPump = cancel
	c.pumpDone = make(chan struct{})
	c.connected.Store(true)
	go c.pump(pumpCtx)

	return out.SessionID, nil
}

func (c *Client) pump(ctx context.Context) {
	defer close(c.pumpDone)
	defer c.connected.Store(false)

	url := fmt.Sprintf("%s/acp/session/%s/stream", c.baseURL, c.sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.emitError(err)
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.emitError(fmt.Errorf("open stream: %w", err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		c.emitError(fmt.Errorf("open stream: %s", resp.Status))
		return
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var data bytes.Buffer
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "data:"):
			chunk := strings.TrimPrefix(line, "data:")
			chunk = strings.TrimPrefix(chunk, " ")
			data.WriteString(chunk)
		case line == "":
			if data.Len() > 0 {
				payload := data.Bytes()
				data.Reset()
				c.handleInbound(ctx, payload)
			}
		default:
			// comments / other SSE fields (event:, id:, retry:) are ignored.
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.emitError(fmt.Errorf("stream read: %w", err))
	}
}

func (c *Client) handleInbound(ctx context.Context, raw []byte) {
	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		// malformed envelope, dropped rather than surfaced as fatal.
		return
	}

	switch {
	case env.IsResponse():
		id := string(env.ID)
		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			return
		}
		if env.Error != nil {
			ch <- rpcResult{err: fmt.Errorf("%s", env.Error.Message)}
		} else {
			ch <- rpcResult{result: env.Result}
		}

	case env.IsPeerRequest():
		c.handlersMu.Lock()
		h, ok := c.handlers[env.Method]
		c.handlersMu.Unlock()
		if !ok {
			c.forward(&env)
			return
		}
		go func() {
			result, err := h(ctx, env.ID, env.Params)
			c.replyToPeer(ctx, env.ID, result, err)
		}()

	default:
		c.forward(&env)
	}
}

func (c *Client) forward(env *protocol.Envelope) {
	c.messageHandlersMu.Lock()
	handlers := append([]func(*protocol.Envelope){}, c.messageHandlers...)
	c.messageHandlersMu.Unlock()
	for _, h := range handlers {
		h(env)
	}
}

func (c *Client) emitError(err error) {
	c.errorHandlersMu.Lock()
	handlers := append([]func(error){}, c.errorHandlers...)
	c.errorHandlersMu.Unlock()
	for _, h := range handlers {
		h(err)
	}
}

func (c *Client) replyToPeer(ctx context.Context, id json.RawMessage, result any, err error) {
	env := protocol.Envelope{JSONRPC: "2.0", ID: id}
	if err != nil {
		env.Error = &protocol.EnvelopeError{Code: -32000, Message: err.Error()}
	} else {
		b, marshalErr := json.Marshal(result)
		if marshalErr != nil {
			env.Error = &protocol.EnvelopeError{Code: -32000, Message: marshalErr.Error()}
		} else {
			env.Result = b
		}
	}
	_ = c.postEnvelope(ctx, &env)
}

// SendRequest sends a client-initiated request and blocks for the matching
// response envelope.
func (c *Client) SendRequest(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !c.connected.Load() {
		return nil, fmt.Errorf("not connected")
	}
	id := atomic.AddInt64(&c.nextID, 1)
	idBytes, _ := json.Marshal(id)

	ch := make(chan rpcResult, 1)
	c.mu.Lock()
	c.pending[string(idBytes)] = ch
	c.mu.Unlock()

	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	env := protocol.Envelope{JSONRPC: "2.0", ID: idBytes, Method: method, Params: paramsBytes}
	if err := c.postEnvelope(ctx, &env); err != nil {
		c.mu.Lock()
		delete(c.pending, string(idBytes))
		c.mu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, string(idBytes))
		c.mu.Unlock()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, r.err
		}
		return r.result, nil
	}
}

// SendNotification sends a one-way notification (no id, no response).
func (c *Client) SendNotification(ctx context.Context, method string, params any) error {
	if !c.connected.Load() {
		return fmt.Errorf("not connected")
	}
	paramsBytes, err := json.Marshal(params)
	if err != nil {
		return err
	}
	env := protocol.Envelope{JSONRPC: "2.0", Method: method, Params: paramsBytes}
	return c.postEnvelope(ctx, &env)
}

func (c *Client) postEnvelope(ctx context.Context, env *protocol.Envelope) error {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()
	if sessionID == "" {
		return fmt.Errorf("not connected")
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/acp/session/%s/message", c.baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("post message: %s", resp.Status)
	}
	return nil
}

// SessionID returns the session id assigned by Connect, or "" before it
// completes.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Disconnect closes the event stream. Pending calls are abandoned rather
// than rejected; the coordinator treats the owning workstream as
// terminated.
func (c *Client) Disconnect() {
	if c.cancelPump != nil {
		c.cancelPump()
		<-c.pumpDone
	}
	c.connected.Store(false)
}
