package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/groblegark/ksilo/internal/events"
)

const (
	// sseReplayLimit is the number of recent events kept for Last-Event-ID
	// reconnection.
	sseReplayLimit = 1000

	// sseKeepaliveInterval is how often keepalive comments are sent to hold
	// idle connections open through proxies.
	sseKeepaliveInterval = 15 * time.Second
)

// sseEvent is one mirrored mutation as seen by SSE consumers. Silo is the
// tenant the mutation belongs to, extracted from the payload, so clients can
// follow a single silo's stream.
type sseEvent struct {
	ID    uint64
	Topic string
	Silo  string
	Data  []byte // JSON-encoded payload
}

// sseClient is a single connected consumer with its subscription filters.
type sseClient struct {
	topics []string // topic glob patterns (empty = all topics)
	silo   string   // tenant filter (empty = all silos)
	ch     chan *sseEvent
}

// sseHub fans mirrored events out to connected clients and keeps a bounded
// replay buffer so a reconnecting client can resume from its last event id.
type sseHub struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}

	bufMu  sync.Mutex
	buf    []*sseEvent // ascending by ID
	lastID uint64
}

func newSSEHub() *sseHub {
	return &sseHub{
		clients: make(map[*sseClient]struct{}),
	}
}

// broadcast records the event for replay and delivers it to every client
// whose filters match. Slow clients are skipped rather than blocking the
// write path.
func (h *sseHub) broadcast(topic, silo string, payload []byte) {
	h.bufMu.Lock()
	h.lastID++
	evt := &sseEvent{ID: h.lastID, Topic: topic, Silo: silo, Data: payload}
	h.buf = append(h.buf, evt)
	if len(h.buf) >= 2*sseReplayLimit {
		h.buf = append(h.buf[:0:0], h.buf[len(h.buf)-sseReplayLimit:]...)
	}
	h.bufMu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.matches(topic, silo) {
			continue
		}
		select {
		case c.ch <- evt:
		default:
		}
	}
}

// subscribe registers a consumer. Call unsubscribe when the connection ends.
func (h *sseHub) subscribe(topics []string, silo string) *sseClient {
	c := &sseClient{
		topics: topics,
		silo:   silo,
		ch:     make(chan *sseEvent, 64),
	}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *sseHub) unsubscribe(c *sseClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

// eventsSince returns buffered events with ID > lastID, oldest first. IDs are
// assigned in ascending order, so the cut point is found by binary search.
// Events older than the buffer are gone; the client resumes from what's left.
func (h *sseHub) eventsSince(lastID uint64) []*sseEvent {
	h.bufMu.Lock()
	defer h.bufMu.Unlock()

	i := sort.Search(len(h.buf), func(i int) bool { return h.buf[i].ID > lastID })
	if i == len(h.buf) {
		return nil
	}
	return append([]*sseEvent(nil), h.buf[i:]...)
}

// matches reports whether an event passes the client's silo and topic
// filters. Events without a silo (system-level) pass any silo filter.
func (c *sseClient) matches(topic, silo string) bool {
	if c.silo != "" && silo != "" && silo != c.silo {
		return false
	}
	if len(c.topics) == 0 {
		return true
	}
	for _, pattern := range c.topics {
		if matchTopicPattern(pattern, topic) {
			return true
		}
	}
	return false
}

// matchTopicPattern matches a dot-separated topic against a pattern.
// Supports "*" as a single-segment wildcard and ">" as a multi-segment
// suffix wildcard (NATS-style).
func matchTopicPattern(pattern, topic string) bool {
	if pattern == topic {
		return true
	}

	patParts := strings.Split(pattern, ".")
	topParts := strings.Split(topic, ".")

	for i, pp := range patParts {
		if pp == ">" {
			// ">" matches one or more remaining segments.
			return i < len(topParts)
		}
		if i >= len(topParts) {
			return false
		}
		if pp != "*" && pp != topParts[i] {
			return false
		}
	}

	return len(patParts) == len(topParts)
}

// handleEventStream handles GET /v1/events/stream. Clients can narrow the
// stream with ?topics= (comma-separated globs) and ?silo=, and resume after a
// disconnect by sending Last-Event-ID.
func (s *SiloServer) handleEventStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	q := r.URL.Query()
	var topics []string
	for _, t := range strings.Split(q.Get("topics"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			topics = append(topics, t)
		}
	}

	client := s.sseHub.subscribe(topics, q.Get("silo"))
	defer s.sseHub.unsubscribe(client)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if lastID, err := strconv.ParseUint(lastIDStr, 10, 64); err == nil {
			for _, evt := range s.sseHub.eventsSince(lastID) {
				if client.matches(evt.Topic, evt.Silo) {
					writeSSEEvent(w, evt)
				}
			}
			flusher.Flush()
		}
	}

	ctx := r.Context()
	keepalive := time.NewTicker(sseKeepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-client.ch:
			writeSSEEvent(w, evt)
			flusher.Flush()
		case <-keepalive.C:
			fmt.Fprintf(w, ":keepalive\n\n")
			flusher.Flush()
		}
	}
}

func writeSSEEvent(w http.ResponseWriter, evt *sseEvent) {
	fmt.Fprintf(w, "id:%d\n", evt.ID)
	fmt.Fprintf(w, "event:%s\n", evt.Topic)
	fmt.Fprintf(w, "data:%s\n\n", evt.Data)
}

// eventSilo pulls the tenant out of a mirrored payload so clients following a
// single silo only see that silo's mutations.
func eventSilo(event any) string {
	switch e := event.(type) {
	case events.ObjectWritten:
		return e.Write.Ref.Silo
	case events.ObjectDerived:
		return e.Write.Ref.Silo
	case events.EventAppended:
		if e.Event != nil {
			return e.Event.Silo
		}
	case events.SessionClosed:
		return e.Silo
	case events.NotifyRequested:
		return e.Silo
	}
	return ""
}

// broadcastEvent is called by mirror to fan mutations out to SSE clients.
func (s *SiloServer) broadcastEvent(topic string, event any) {
	if s.sseHub == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Warn("failed to marshal event for SSE broadcast", "topic", topic, "error", err)
		return
	}
	s.sseHub.broadcast(topic, eventSilo(event), payload)
}
