// Package controlapi is the coordinator's external HTTP+SSE surface: the
// interface an out-of-process observer (CLI, dashboard) uses to drive
// workstreams and subscribe to their events. It is distinct from the
// per-workstream transport that talks to the remote agent (internal/transport).
package controlapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/gooseflow/coordinator/internal/coordinator"
)

const defaultMaxRequestBodyBytes = 1 << 20

// ServerOptions configures the control API.
type ServerOptions struct {
	Addr           string
	APIKey         string
	MetricsHandler http.Handler
	UseOtelHTTP    bool

	// OnSubscribe/OnUnsubscribe, if set, are invoked whenever an SSE client
	// connects/disconnects from the event hub, so the daemon can wire them
	// to a connection-count metric.
	OnSubscribe   func()
	OnUnsubscribe func()
}

// App bundles the HTTP server and its SSE hub.
type App struct {
	Server *http.Server
	Hub    *Hub
}

// NewApp builds the control API app wired to coord.
func NewApp(opts ServerOptions, coord *coordinator.Coordinator) *App {
	hub := NewHub(opts.OnSubscribe, opts.OnUnsubscribe)
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})

	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	}

	mux.HandleFunc("/events", hub.Handler())

	mux.HandleFunc("/workstreams", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, coord.GetAllWorkstreams())
		case http.MethodPost:
			var body struct{ Name, Task string }
			if !decodeJSON(w, r, &body) {
				return
			}
			// The workstream's transport session outlives this request;
			// only StopWorkstream ends it.
			snap, err := coord.CreateWorkstream(context.WithoutCancel(r.Context()), body.Name, body.Task)
			if err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			if err := coord.StartTask(r.Context(), snap.ID); err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			writeJSON(w, http.StatusCreated, snap)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/notifications", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, coord.GetUnreadNotifications())
	})

	registerWorkstreamSubroutes(mux, coord)

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(defaultMaxRequestBodyBytes, handler)
	handler = requestLogMiddleware(handler)
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "controlapi")
	}

	unsub := coord.Subscribe(func(ev coordinator.Event) {
		hub.PublishJSON(ev)
	})
	_ = unsub // lifetime tied to the App; a Close method would call it

	return &App{
		Server: &http.Server{Addr: opts.Addr, Handler: handler},
		Hub:    hub,
	}
}

// registerWorkstreamSubroutes wires every /workstreams/{id}/... endpoint.
// Routing is done by hand with the stdlib mux, matching on prefix and suffix
// rather than pulling in a router for one level of nested sub-resources.
func registerWorkstreamSubroutes(mux *http.ServeMux, coord *coordinator.Coordinator) {
	mux.HandleFunc("/workstreams/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/workstreams/")
		parts := strings.SplitN(rest, "/", 2)
		id := parts[0]
		if id == "" {
			http.NotFound(w, r)
			return
		}
		if len(parts) == 1 {
			handleWorkstreamRoot(w, r, coord, id)
			return
		}
		switch parts[1] {
		case "message":
			handleMessage(w, r, coord, id)
		case "pause":
			handleSimpleAction(w, r, coord, id, coord.PauseWorkstream)
		case "resume":
			handleSimpleAction(w, r, coord, id, coord.ResumeWorkstream)
		case "stop":
			handleStop(w, r, coord, id)
		case "tools":
			writeJSON(w, http.StatusOK, coord.GetActiveTools(id))
		case "diff":
			writeJSON(w, http.StatusOK, map[string]string{"diff": coord.GetWorkstreamDiff(r.Context(), id)})
		case "status":
			writeJSON(w, http.StatusOK, map[string]string{"status": coord.GetWorkstreamStatus(r.Context(), id)})
		case "commit":
			handleCommit(w, r, coord, id)
		case "permission":
			handlePermissionGet(w, r, coord, id)
		case "permission/respond":
			handlePermissionRespond(w, r, coord, id)
		case "review":
			handleReview(w, r, coord, id)
		default:
			http.NotFound(w, r)
		}
	})
}

func handleWorkstreamRoot(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	snap, ok := coord.GetWorkstream(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func handleMessage(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	var body struct{ Text string }
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := coord.SendPrompt(r.Context(), id, body.Text); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func handleSimpleAction(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string, action func(context.Context, string) error) {
	if err := action(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleStop(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	var body struct{ Cleanup bool }
	_ = decodeJSONOptional(r, &body)
	if err := coord.StopWorkstream(r.Context(), id, body.Cleanup); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleCommit(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	var body struct{ Message string }
	if !decodeJSON(w, r, &body) {
		return
	}
	ok := coord.CommitWorkstreamChanges(r.Context(), id, body.Message)
	writeJSON(w, http.StatusOK, map[string]bool{"committed": ok})
}

func handlePermissionGet(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	p, ok := coord.GetPendingPermission(id)
	if !ok {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func handlePermissionRespond(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	var body struct{ OptionID string `json:"optionId"` }
	if !decodeJSON(w, r, &body) {
		return
	}
	if err := coord.RespondToPermission(r.Context(), id, body.OptionID); err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleReview(w http.ResponseWriter, r *http.Request, coord *coordinator.Coordinator, id string) {
	switch r.Method {
	case http.MethodPost:
		var body struct {
			Outcome string `json:"outcome"`
			Comment string `json:"comment"`
		}
		if !decodeJSON(w, r, &body) {
			return
		}
		if body.Outcome == "" {
			if err := coord.RequestReview(r.Context(), id); err != nil {
				writeError(w, http.StatusConflict, err)
			} else {
				w.WriteHeader(http.StatusNoContent)
			}
			return
		}
		if err := coord.SubmitReview(r.Context(), id, coordinator.ReviewOutcome(body.Outcome), body.Comment); err != nil {
			writeError(w, http.StatusConflict, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func decodeJSONOptional(r *http.Request, v any) error {
	if r.ContentLength == 0 {
		return nil
	}
	return json.NewDecoder(r.Body).Decode(v)
}

func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

func apiKeyMiddleware(key string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		got := r.Header.Get("X-API-Key")
		if got == "" {
			got = r.URL.Query().Get("api_key")
		}
		if got != key {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Info("request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
