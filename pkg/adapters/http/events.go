package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/aretw0/callflow/pkg/domain"
	"github.com/go-chi/chi/v5"
)

// StreamManager fans engine events out to SSE subscribers, keyed by flow identity.
type StreamManager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan<- domain.Event]struct{}
}

func NewStreamManager() *StreamManager {
	return &StreamManager{
		subscribers: make(map[string]map[chan<- domain.Event]struct{}),
	}
}

// Subscribe registers a buffered channel for identity. The returned function
// unregisters and closes it.
func (sm *StreamManager) Subscribe(identity string) (<-chan domain.Event, func()) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	ch := make(chan domain.Event, 10)
	if _, ok := sm.subscribers[identity]; !ok {
		sm.subscribers[identity] = make(map[chan<- domain.Event]struct{})
	}
	sm.subscribers[identity][ch] = struct{}{}

	return ch, func() {
		sm.mu.Lock()
		defer sm.mu.Unlock()
		if subs, ok := sm.subscribers[identity]; ok {
			delete(subs, ch)
			close(ch)
			if len(subs) == 0 {
				delete(sm.subscribers, identity)
			}
		}
	}
}

// Observe is a domain.Observer. It never blocks: slow subscribers lose events.
func (sm *StreamManager) Observe(e domain.Event) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for ch := range sm.subscribers[e.Identity] {
		select {
		case ch <- e:
		default:
			slog.Warn("SSE: client buffer full, dropping event", "identity", e.Identity, "type", e.Type)
		}
	}
}

type eventPayload struct {
	domain.Event
	Error string `json:"error,omitempty"`
}

// SubscribeEvents handles GET /sessions/{id}/events. The optional types
// query parameter is a comma separated filter of event types.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	fs, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	var filter map[domain.EventType]bool
	if raw := r.URL.Query().Get("types"); raw != "" {
		filter = make(map[domain.EventType]bool)
		for _, t := range strings.Split(raw, ",") {
			filter[domain.EventType(strings.TrimSpace(t))] = true
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := s.streams.Subscribe(fs.Identity())
	defer cancel()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "identity", fs.Identity())
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if filter != nil && !filter[e.Type] {
				continue
			}
			payload := eventPayload{Event: e}
			if e.Err != nil {
				payload.Error = domain.Describe(e.Err)
			}
			data, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, data)
			flusher.Flush()
		}
	}
}
