// Package client provides a transport-agnostic interface for the silo service
// and an HTTP/JSON implementation that talks to the silod REST API.
package client

import (
	"context"
	"encoding/json"

	"github.com/groblegark/ksilo/internal/model"
)

// SiloClient is the interface that all silo CLI commands use to communicate
// with the server. It is implemented by HTTPClient (default) and can be
// backed by any transport.
type SiloClient interface {
	// Objects
	SetObject(ctx context.Context, req *SetObjectRequest) error
	GetObject(ctx context.Context, ref model.ObjectRef) (*model.Object, error)
	ListObjects(ctx context.Context, silo, structure, instance, objectType string) ([]*model.Object, error)

	// Event log
	AppendEvent(ctx context.Context, e *model.Event) (string, error)
	GetLogEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error)
	GetSessions(ctx context.Context) ([]*model.Session, error)
	CloseSession(ctx context.Context, key string) error

	// Notifications
	NotifyReply(ctx context.Context, req *NotifyReplyRequest) error

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// SetObjectRequest holds parameters for writing an object.
type SetObjectRequest struct {
	Silo      string          `json:"silo"`
	Structure string          `json:"structure"`
	Instance  string          `json:"instance"`
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value"`
}

// NotifyReplyRequest holds parameters for triggering a reply notification.
type NotifyReplyRequest struct {
	Silo      string `json:"silo"`
	Structure string `json:"structure,omitempty"`
	Instance  string `json:"instance"`
	ParentKey string `json:"parentKey"`
	ReplyKey  string `json:"replyKey"`
	Language  string `json:"language,omitempty"`
}
