package events

import (
	"context"
	"sync"
)

// NoopPublisher discards every event. It stands in for the bus when
// SILO_NATS_URL is not set, so callers can mirror unconditionally.
type NoopPublisher struct{}

func (n *NoopPublisher) Publish(ctx context.Context, topic string, event any) error {
	return nil
}

func (n *NoopPublisher) Close() error { return nil }

// Published is a single captured publish call.
type Published struct {
	Topic string
	Event any
}

// CapturePublisher records publishes in memory. Tests use it to assert on
// mirrored topics without a running bus.
type CapturePublisher struct {
	mu        sync.Mutex
	published []Published
}

func (c *CapturePublisher) Publish(ctx context.Context, topic string, event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, Published{Topic: topic, Event: event})
	return nil
}

func (c *CapturePublisher) Close() error { return nil }

// Captured returns every publish recorded for the topic, in order. An empty
// topic returns everything.
func (c *CapturePublisher) Captured(topic string) []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Published
	for _, p := range c.published {
		if topic == "" || p.Topic == topic {
			out = append(out, p)
		}
	}
	return out
}
