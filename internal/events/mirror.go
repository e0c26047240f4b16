package events

import (
	"context"
	"log/slog"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

// StoreMirror decorates a store so derived writes are announced on the bus
// after they commit. The dispatcher hands it to trigger handlers, which keeps
// the silo.object.derived topic in step with what the handlers actually
// stored. Publishing is best-effort: a bus failure is logged, never returned,
// so it cannot fail the derived write.
type StoreMirror struct {
	store.Store

	publisher Publisher
	logger    *slog.Logger
}

// NewStoreMirror wraps s so every committed SetDerivedObject is published to
// TopicObjectDerived.
func NewStoreMirror(s store.Store, p Publisher, logger *slog.Logger) *StoreMirror {
	return &StoreMirror{Store: s, publisher: p, logger: logger}
}

func (m *StoreMirror) SetDerivedObject(ctx context.Context, w model.DerivedWrite) error {
	if err := m.Store.SetDerivedObject(ctx, w); err != nil {
		return err
	}
	if err := m.publisher.Publish(ctx, TopicObjectDerived, ObjectDerived{Write: w}); err != nil {
		m.logger.Warn("events: derived mirror publish failed",
			"structure", w.Ref.Structure, "key", w.Ref.Key, "error", err)
	}
	return nil
}
