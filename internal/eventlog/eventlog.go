// Package eventlog ingests analytics events and serves the log query surface.
package eventlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/groblegark/ksilo/internal/idgen"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

// Service owns the event log: appending events (with session aggregation in
// the same transaction), listing events and sessions, and closing sessions.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates an event log service over the given store.
func NewService(s store.Store, logger *slog.Logger) *Service {
	return &Service{store: s, logger: logger}
}

// Append stores an immutable event and folds it into its session aggregate
// inside one transaction. Events without a key get a generated one; events
// without a time are stamped with the current UTC time. Events without a
// session key skip aggregation.
func (s *Service) Append(ctx context.Context, e *model.Event) error {
	if e.EventType == "" {
		return fmt.Errorf("append event: missing event type")
	}
	if e.Key == "" {
		key, err := idgen.NewEventKey()
		if err != nil {
			return fmt.Errorf("append event: %w", err)
		}
		e.Key = key
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}

	return s.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.AppendEvent(ctx, e); err != nil {
			return err
		}
		if e.SessionKey == "" {
			return nil
		}

		session, err := tx.GetSession(ctx, e.SessionKey)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		updated := ApplyEvent(session, e)
		return tx.UpsertSession(ctx, updated)
	})
}

// GetLogEvents returns every event matching the filter, newest first. An
// empty result is not an error.
func (s *Service) GetLogEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	events, err := s.store.ListEvents(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("get log events: %w", err)
	}
	if events == nil {
		events = []*model.Event{}
	}
	return events, nil
}

// GetSessions returns all sessions, most recently active first.
func (s *Service) GetSessions(ctx context.Context) ([]*model.Session, error) {
	sessions, err := s.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("get sessions: %w", err)
	}
	if sessions == nil {
		sessions = []*model.Session{}
	}
	return sessions, nil
}

// CloseSession marks a session ended. The end time is the latest event time
// recorded for the session; a session with no events closes at its start time.
func (s *Service) CloseSession(ctx context.Context, key string) error {
	events, err := s.store.ListEvents(ctx, model.EventFilter{SessionKey: key})
	if err != nil {
		return fmt.Errorf("close session %s: %w", key, err)
	}

	var end time.Time
	if len(events) > 0 {
		end = events[0].Time
	} else {
		session, err := s.store.GetSession(ctx, key)
		if err != nil {
			return fmt.Errorf("close session %s: %w", key, err)
		}
		end = session.StartTime
	}

	if err := s.store.CloseSession(ctx, key, end); err != nil {
		return fmt.Errorf("close session %s: %w", key, err)
	}
	s.logger.Info("eventlog: session closed", "session", key, "end", end)
	return nil
}
