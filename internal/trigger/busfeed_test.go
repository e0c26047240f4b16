package trigger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/groblegark/ksilo/internal/events"
)

// chanSubscriber feeds canned payloads into a BusFeed.
type chanSubscriber struct {
	ch chan []byte
}

func (s *chanSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	return s.ch, func() {}, nil
}

func (s *chanSubscriber) Close() error { return nil }

func TestBusFeed_DispatchesMirroredWrites(t *testing.T) {
	reg := NewRegistry()
	got := make(chan WriteEvent, 1)
	reg.Register("simplecomments", "comment", HandlerFunc{
		HandlerName: "capture",
		Func: func(ctx context.Context, ev WriteEvent) error {
			got <- ev
			return nil
		},
	})

	d := NewDispatcher(reg, &mockStore{}, testLogger(), 1, 4, time.Second)
	defer d.Stop()

	sub := &chanSubscriber{ch: make(chan []byte, 1)}
	payload, err := json.Marshal(events.ObjectWritten{Write: testWrite()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	sub.ch <- payload

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feedDone := make(chan error, 1)
	go func() {
		feedDone <- NewBusFeed(d, testLogger()).Run(ctx, sub)
	}()

	select {
	case ev := <-got:
		if ev.Write.Ref.Key != "c1" {
			t.Errorf("handler saw key %q, want c1", ev.Write.Ref.Key)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked from bus payload")
	}

	cancel()
	select {
	case err := <-feedDone:
		if err != nil {
			t.Errorf("feed returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("feed did not stop on cancel")
	}
}

func TestBusFeed_SkipsBadPayload(t *testing.T) {
	reg := NewRegistry()
	got := make(chan WriteEvent, 1)
	reg.Register("simplecomments", "comment", HandlerFunc{
		HandlerName: "capture",
		Func: func(ctx context.Context, ev WriteEvent) error {
			got <- ev
			return nil
		},
	})

	d := NewDispatcher(reg, &mockStore{}, testLogger(), 1, 4, time.Second)
	defer d.Stop()

	sub := &chanSubscriber{ch: make(chan []byte, 2)}
	sub.ch <- []byte("{not json")
	payload, _ := json.Marshal(events.ObjectWritten{Write: testWrite()})
	sub.ch <- payload

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go NewBusFeed(d, testLogger()).Run(ctx, sub)

	// The bad payload is logged and skipped; the good one still arrives.
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatal("good payload was not delivered after bad one")
	}
}
