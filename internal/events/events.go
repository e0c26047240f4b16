package events

import (
	"context"
	"time"

	"github.com/groblegark/ksilo/internal/model"
)

// Event topic constants. Every committed mutation is mirrored to the bus.
const (
	TopicObjectWritten = "silo.object.written"
	TopicObjectDerived = "silo.object.derived"
	TopicEventAppended = "silo.event.appended"
	TopicSessionClosed = "silo.session.closed"
	TopicNotifyRequest = "silo.notify.request"
)

// ObjectWritten is published after a user write commits.
type ObjectWritten struct {
	Write model.Write `json:"write"`
}

// ObjectDerived is published after a trigger handler stores a derived copy.
type ObjectDerived struct {
	Write model.DerivedWrite `json:"write"`
}

// EventAppended is published after an analytics event is stored.
type EventAppended struct {
	Event *model.Event `json:"event"`
}

// SessionClosed is published when a session is closed, explicitly or by
// the idle sweeper.
type SessionClosed struct {
	SessionKey string    `json:"sessionKey"`
	Silo       string    `json:"silo,omitempty"`
	EndTime    time.Time `json:"endTime"`
}

// NotifyRequested is published when a reply-notification request has been
// accepted and delivered (or skipped as a self-reply).
type NotifyRequested struct {
	Silo      string `json:"silo"`
	Structure string `json:"structure"`
	Instance  string `json:"instance"`
	ParentKey string `json:"parentKey"`
	ReplyKey  string `json:"replyKey"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
