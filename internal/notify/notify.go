// Package notify assembles and delivers templated user notifications.
package notify

import (
	"context"
	"log/slog"
)

// Message is a fully resolved notification handed to a Notifier. Subject and
// Body are rendered before the send; Fields carries the raw values used.
type Message struct {
	TemplateID string
	Language   string
	Silo       string
	Structure  string
	Instance   string
	Recipient  string // recipient user id
	Subject    string
	Body       string
	Fields     map[string]string
}

// Notifier delivers a rendered message to its recipient. Implementations own
// the transport (push, email, log).
type Notifier interface {
	SendTemplatedMessage(ctx context.Context, msg Message) error
}

// LogNotifier writes notifications to the log instead of delivering them.
// Used in development and as the default when no transport is configured.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) SendTemplatedMessage(ctx context.Context, msg Message) error {
	n.Logger.Info("notify: message",
		"template", msg.TemplateID,
		"language", msg.Language,
		"silo", msg.Silo,
		"recipient", msg.Recipient,
		"subject", msg.Subject,
		"body", msg.Body)
	return nil
}

// NoopNotifier discards all messages.
type NoopNotifier struct{}

func (NoopNotifier) SendTemplatedMessage(ctx context.Context, msg Message) error { return nil }
