package server

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ShayCichocki/railmind/internal/orchestrator"
)

const (
	// subscriberBuffer is how many events a slow stream may fall behind
	// before events are dropped for it.
	subscriberBuffer = 64
	heartbeatEvery   = 30 * time.Second
)

// eventHub fans one orchestrator event channel out to every open stream.
type eventHub struct {
	mu     sync.Mutex
	subs   map[chan orchestrator.OrchestratorEvent]struct{}
	closed bool
}

func newEventHub(src <-chan orchestrator.OrchestratorEvent) *eventHub {
	h := &eventHub{subs: make(map[chan orchestrator.OrchestratorEvent]struct{})}
	go h.pump(src)
	return h
}

// pump runs until src is closed, then closes every subscriber.
func (h *eventHub) pump(src <-chan orchestrator.OrchestratorEvent) {
	for ev := range src {
		h.mu.Lock()
		for ch := range h.subs {
			select {
			case ch <- ev:
			default:
			}
		}
		h.mu.Unlock()
	}

	h.mu.Lock()
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
	h.mu.Unlock()
}

// subscribe returns a channel of events and a func that releases it.
// The channel is closed at once if the source has ended.
func (h *eventHub) subscribe() (<-chan orchestrator.OrchestratorEvent, func()) {
	ch := make(chan orchestrator.OrchestratorEvent, subscriberBuffer)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
}

// streamEvent is the JSON form of an orchestrator event.
type streamEvent struct {
	Type       string    `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	TaskID     string    `json:"task_id,omitempty"`
	Agent      string    `json:"agent,omitempty"`
	TaskIDs    []string  `json:"task_ids,omitempty"`
	Iteration  int       `json:"iteration,omitempty"`
	Status     string    `json:"status,omitempty"`
	Message    string    `json:"message,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

func toStreamEvent(ev orchestrator.OrchestratorEvent) streamEvent {
	out := streamEvent{
		Type:       string(ev.Type),
		RunID:      ev.RunID,
		TaskID:     ev.TaskID,
		Agent:      ev.Agent,
		TaskIDs:    ev.TaskIDs,
		Iteration:  ev.Iteration,
		Status:     ev.Status,
		Message:    ev.Message,
		DurationMS: ev.Duration.Milliseconds(),
		Timestamp:  ev.Timestamp,
	}
	if ev.Error != nil {
		out.Error = ev.Error.Error()
	}
	return out
}

// handleEvents streams orchestrator events until the client goes away.
// An optional run_id query parameter limits the stream to one run.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	events, release := s.events.subscribe()
	defer release()

	runID := r.URL.Query().Get("run_id")
	if err := sendEvent(w, flusher, 0, "connected", map[string]string{"status": "connected"}); err != nil {
		return
	}

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	var id uint64
	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			id++
			if err := sendEvent(w, flusher, id, "heartbeat", map[string]any{}); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if runID != "" && ev.RunID != runID {
				continue
			}
			id++
			if err := sendEvent(w, flusher, id, string(ev.Type), toStreamEvent(ev)); err != nil {
				return
			}
		}
	}
}

func sendEvent(w http.ResponseWriter, flusher http.Flusher, id uint64, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("[server] encode event: %v", err)
		return nil
	}
	if _, err := fmt.Fprintf(w, "event: %s\n", event); err != nil {
		return fmt.Errorf("write event type: %w", err)
	}
	if id > 0 {
		if _, err := fmt.Fprintf(w, "id: %d\n", id); err != nil {
			return fmt.Errorf("write event id: %w", err)
		}
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return fmt.Errorf("write event data: %w", err)
	}
	flusher.Flush()
	return nil
}
