package store

import (
	"context"
	"errors"
	"time"

	"github.com/groblegark/ksilo/internal/model"
)

// ErrNotFound is returned when a referenced document is absent. Callers
// decide whether absence is fatal (required context) or substituted with a
// fallback (optional context).
var ErrNotFound = errors.New("not found")

// Store defines the persistence interface for the document store, the event
// log, and derived session records.
type Store interface {
	// Objects (per-object last-write-wins, no cross-object transactions)
	GetObject(ctx context.Context, ref model.ObjectRef) (*model.Object, error)
	SetObject(ctx context.Context, w model.Write) error
	SetDerivedObject(ctx context.Context, w model.DerivedWrite) error
	ListObjects(ctx context.Context, silo, structure, instance, objectType string) ([]*model.Object, error)

	// Events (append-only)
	AppendEvent(ctx context.Context, event *model.Event) error
	ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)

	// Sessions
	GetSession(ctx context.Context, key string) (*model.Session, error)
	UpsertSession(ctx context.Context, session *model.Session) error
	ListSessions(ctx context.Context) ([]*model.Session, error)
	CloseSession(ctx context.Context, key string, end time.Time) error

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
