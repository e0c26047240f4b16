package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/groblegark/ksilo/internal/events"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/notify"
	"github.com/groblegark/ksilo/internal/store"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health) must include
// a valid Authorization: Bearer <token> header. The log read surface is
// additionally gated by adminToken: without a matching X-Admin-Token header
// the request is rejected before any store read happens.
func (s *SiloServer) NewHTTPHandler(authToken, adminToken string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/objects", s.handleSetObject)
	mux.HandleFunc("GET /v1/objects/{silo}/{structure}/{instance}/{type}/{key}", s.handleGetObject)
	mux.HandleFunc("GET /v1/objects/{silo}/{structure}/{instance}/{type}", s.handleListObjects)
	mux.HandleFunc("POST /v1/events", s.handleAppendEvent)
	mux.HandleFunc("GET /v1/log/events", AdminMiddleware(adminToken, s.handleGetLogEvents))
	mux.HandleFunc("GET /v1/log/sessions", AdminMiddleware(adminToken, s.handleGetSessions))
	mux.HandleFunc("POST /v1/sessions/{key}/close", s.handleCloseSession)
	mux.HandleFunc("POST /v1/notify/reply", s.handleNotifyReply)
	mux.HandleFunc("GET /v1/events/stream", s.handleEventStream)
	mux.HandleFunc("GET /v1/health", s.handleHealth)

	var handler http.Handler = mux
	handler = AuthMiddleware(authToken, handler)
	handler = LoggingMiddleware(s.logger, handler)
	handler = RecoveryMiddleware(s.logger, handler)
	return handler
}

// handleHealth handles GET /v1/health.
func (s *SiloServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// setObjectRequest is the body of POST /v1/objects.
type setObjectRequest struct {
	Silo      string          `json:"silo"`
	Structure string          `json:"structure"`
	Instance  string          `json:"instance"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
}

// handleSetObject handles POST /v1/objects. The write commits first; trigger
// dispatch and the bus mirror happen after, so a handler failure can never
// fail the write.
func (s *SiloServer) handleSetObject(w http.ResponseWriter, r *http.Request) {
	var req setObjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Silo == "" || req.Structure == "" || req.Instance == "" || req.Type == "" || req.Key == "" {
		writeError(w, http.StatusBadRequest, "silo, structure, instance, type, and key are required")
		return
	}
	if len(req.Value) == 0 {
		writeError(w, http.StatusBadRequest, "value is required")
		return
	}

	write := model.Write{
		Ref: model.ObjectRef{
			Silo: req.Silo, Structure: req.Structure, Instance: req.Instance,
			Type: req.Type, Key: req.Key,
		},
		Value: req.Value,
	}
	if err := s.store.SetObject(r.Context(), write); err != nil {
		s.logger.Error("set object failed", "key", req.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store object")
		return
	}

	s.dispatch(r.Context(), write)
	s.mirror(r.Context(), events.TopicObjectWritten, events.ObjectWritten{Write: write})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func refFromPath(r *http.Request) model.ObjectRef {
	return model.ObjectRef{
		Silo:      r.PathValue("silo"),
		Structure: r.PathValue("structure"),
		Instance:  r.PathValue("instance"),
		Type:      r.PathValue("type"),
		Key:       r.PathValue("key"),
	}
}

// handleGetObject handles GET /v1/objects/{silo}/{structure}/{instance}/{type}/{key}.
func (s *SiloServer) handleGetObject(w http.ResponseWriter, r *http.Request) {
	obj, err := s.store.GetObject(r.Context(), refFromPath(r))
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "object not found")
		return
	}
	if err != nil {
		s.logger.Error("get object failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load object")
		return
	}
	writeJSON(w, http.StatusOK, obj)
}

// handleListObjects handles GET /v1/objects/{silo}/{structure}/{instance}/{type}.
func (s *SiloServer) handleListObjects(w http.ResponseWriter, r *http.Request) {
	ref := refFromPath(r)
	objects, err := s.store.ListObjects(r.Context(), ref.Silo, ref.Structure, ref.Instance, ref.Type)
	if err != nil {
		s.logger.Error("list objects failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list objects")
		return
	}
	if objects == nil {
		objects = []*model.Object{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"objects": objects})
}

// handleAppendEvent handles POST /v1/events.
func (s *SiloServer) handleAppendEvent(w http.ResponseWriter, r *http.Request) {
	var e model.Event
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if e.EventType == "" {
		writeError(w, http.StatusBadRequest, "eventType is required")
		return
	}

	if err := s.eventlog.Append(r.Context(), &e); err != nil {
		s.logger.Error("append event failed", "type", e.EventType, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}

	if s.tracker != nil {
		s.tracker.Touch(e.SessionKey, e.Time)
	}
	s.mirror(r.Context(), events.TopicEventAppended, events.EventAppended{Event: &e})

	writeJSON(w, http.StatusOK, map[string]string{"key": e.Key})
}

// handleGetLogEvents handles GET /v1/log/events. Reached only after the
// admin gate passed.
func (s *SiloServer) handleGetLogEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := model.EventFilter{
		SessionKey: q.Get("sessionKey"),
		Silo:       q.Get("silo"),
		EventType:  q.Get("eventType"),
	}

	list, err := s.eventlog.GetLogEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("get log events failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": list})
}

// handleGetSessions handles GET /v1/log/sessions. Reached only after the
// admin gate passed.
func (s *SiloServer) handleGetSessions(w http.ResponseWriter, r *http.Request) {
	list, err := s.eventlog.GetSessions(r.Context())
	if err != nil {
		s.logger.Error("get sessions failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": list})
}

// handleCloseSession handles POST /v1/sessions/{key}/close.
func (s *SiloServer) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	if err := s.eventlog.CloseSession(r.Context(), key); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.logger.Error("close session failed", "session", key, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to close session")
		return
	}

	if s.tracker != nil {
		s.tracker.Forget(key)
	}

	session, err := s.store.GetSession(r.Context(), key)
	if err == nil && session.EndTime != nil {
		s.mirror(r.Context(), events.TopicSessionClosed, events.SessionClosed{
			SessionKey: key, Silo: session.Silo, EndTime: *session.EndTime,
		})
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// notifyReplyRequest is the body of POST /v1/notify/reply.
type notifyReplyRequest struct {
	Silo      string `json:"silo"`
	Structure string `json:"structure"`
	Instance  string `json:"instance"`
	notify.ReplyRequest
}

// handleNotifyReply handles POST /v1/notify/reply: an explicit trigger of the
// reply-notification pipeline, useful for retries and backfills.
func (s *SiloServer) handleNotifyReply(w http.ResponseWriter, r *http.Request) {
	if s.replies == nil {
		writeError(w, http.StatusNotImplemented, "notifications not configured")
		return
	}

	var req notifyReplyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Silo == "" || req.Instance == "" || req.ParentKey == "" || req.ReplyKey == "" {
		writeError(w, http.StatusBadRequest, "silo, instance, parentKey, and replyKey are required")
		return
	}
	if req.Structure == "" {
		req.Structure = "simplecomments"
	}

	scope := &store.Scope{
		Store: s.store, Silo: req.Silo, Structure: req.Structure, Instance: req.Instance,
	}
	if err := s.replies.Send(r.Context(), scope, req.ReplyRequest); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		s.logger.Error("reply notification failed", "reply", req.ReplyKey, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to send notification")
		return
	}

	s.mirror(r.Context(), events.TopicNotifyRequest, events.NotifyRequested{
		Silo: req.Silo, Structure: req.Structure, Instance: req.Instance,
		ParentKey: req.ParentKey, ReplyKey: req.ReplyKey,
	})

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
