package controlapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Hub fans coordinator events out to subscribed HTTP clients. Sends are
// non-blocking: a subscriber whose buffer is full misses that event rather
// than stalling every other subscriber; it stays subscribed.
type Hub struct {
	mu   sync.RWMutex
	subs map[chan []byte]struct{}

	onSubscribe   func()
	onUnsubscribe func()
}

// NewHub constructs an empty Hub. onSubscribe/onUnsubscribe, if non-nil,
// are invoked for connection-count metrics.
func NewHub(onSubscribe, onUnsubscribe func()) *Hub {
	return &Hub{subs: make(map[chan []byte]struct{}), onSubscribe: onSubscribe, onUnsubscribe: onUnsubscribe}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 256)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	if h.onSubscribe != nil {
		h.onSubscribe()
	}
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
		if h.onUnsubscribe != nil {
			h.onUnsubscribe()
		}
	}
	h.mu.Unlock()
}

// PublishJSON marshals v and fans it out to every current subscriber.
func (h *Hub) PublishJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

// Handler returns an http.HandlerFunc serving this hub as an SSE stream.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		ch := h.Subscribe()
		defer h.Unsubscribe(ch)

		_, _ = fmt.Fprintf(w, "data: %s\n\n", `{"type":"connected"}`)
		flusher.Flush()

		keepalive := time.NewTicker(30 * time.Second)
		defer keepalive.Stop()

		ctx := r.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-keepalive.C:
				_, _ = fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			case msg, ok := <-ch:
				if !ok {
					return
				}
				_, _ = fmt.Fprintf(w, "data: %s\n\n", string(msg))
				flusher.Flush()
			}
		}
	}
}
