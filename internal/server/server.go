// Package server exposes the silo document store over HTTP.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/groblegark/ksilo/internal/eventlog"
	"github.com/groblegark/ksilo/internal/events"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/notify"
	"github.com/groblegark/ksilo/internal/sessions"
	"github.com/groblegark/ksilo/internal/store"
	"github.com/groblegark/ksilo/internal/trigger"
)

// SiloServer ties the document store, the trigger dispatcher, the event log,
// and the notification assembler together behind the HTTP surface.
type SiloServer struct {
	store      store.Store
	publisher  events.Publisher
	dispatcher *trigger.Dispatcher
	eventlog   *eventlog.Service
	replies    *notify.ReplySender
	tracker    *sessions.Tracker
	sseHub     *sseHub
	logger     *slog.Logger
}

// Options carries the collaborators a SiloServer needs. Store, EventLog, and
// Logger are required; the rest may be nil and the corresponding surface
// degrades to a no-op.
type Options struct {
	Store      store.Store
	Publisher  events.Publisher
	Dispatcher *trigger.Dispatcher
	EventLog   *eventlog.Service
	Replies    *notify.ReplySender
	Tracker    *sessions.Tracker
	Logger     *slog.Logger
}

// NewSiloServer returns a SiloServer wired to the given collaborators.
func NewSiloServer(opts Options) *SiloServer {
	pub := opts.Publisher
	if pub == nil {
		pub = &events.NoopPublisher{}
	}
	return &SiloServer{
		store:      opts.Store,
		publisher:  pub,
		dispatcher: opts.Dispatcher,
		eventlog:   opts.EventLog,
		replies:    opts.Replies,
		tracker:    opts.Tracker,
		sseHub:     newSSEHub(),
		logger:     opts.Logger,
	}
}

// mirror publishes an event to the bus and the SSE stream. Both are
// best-effort; failures are logged but never block the caller.
func (s *SiloServer) mirror(ctx context.Context, topic string, event any) {
	if err := s.publisher.Publish(ctx, topic, event); err != nil {
		s.logger.Warn("failed to publish event", "topic", topic, "error", err)
	}
	s.broadcastEvent(topic, event)
}

// dispatch hands a committed write to the trigger dispatcher. Enqueueing uses
// a short deadline so a saturated queue surfaces in the logs instead of
// stalling the request forever.
func (s *SiloServer) dispatch(ctx context.Context, w model.Write) {
	if s.dispatcher == nil {
		return
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.dispatcher.Dispatch(dispatchCtx, w); err != nil {
		s.logger.Error("trigger dispatch failed",
			"structure", w.Ref.Structure, "key", w.Ref.Key, "error", err)
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
