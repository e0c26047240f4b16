package trigger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/groblegark/ksilo/internal/events"
)

// BusFeed drives a dispatcher from the event bus instead of the local write
// path. It is used by instances that run trigger workers separately from the
// node accepting writes: the writer mirrors every commit to the bus, and the
// feed re-dispatches it here. Do not enable on a node that also dispatches
// locally, or every write is handled twice.
type BusFeed struct {
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewBusFeed creates a feed delivering bus writes into d.
func NewBusFeed(d *Dispatcher, logger *slog.Logger) *BusFeed {
	return &BusFeed{dispatcher: d, logger: logger}
}

// Run subscribes to mirrored object writes and dispatches each one. It blocks
// until ctx is cancelled or the subscription closes.
func (f *BusFeed) Run(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicObjectWritten)
	if err != nil {
		return fmt.Errorf("trigger: subscribe: %w", err)
	}
	defer cancel()

	f.logger.Info("trigger: bus feed started", "topic", events.TopicObjectWritten)

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("trigger: bus feed stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				f.logger.Info("trigger: bus subscription closed")
				return nil
			}

			var ev events.ObjectWritten
			if err := json.Unmarshal(raw, &ev); err != nil {
				f.logger.Warn("trigger: bad bus payload", "err", err)
				continue
			}

			if err := f.dispatcher.Dispatch(ctx, ev.Write); err != nil {
				f.logger.Error("trigger: bus dispatch failed",
					"structure", ev.Write.Ref.Structure,
					"key", ev.Write.Ref.Key,
					"err", err)
			}
		}
	}
}
