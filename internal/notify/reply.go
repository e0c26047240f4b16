package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/groblegark/ksilo/internal/fanout"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
	"github.com/groblegark/ksilo/internal/trigger"
)

// TemplateCommentReply is the catalog id used for reply notifications.
const TemplateCommentReply = "comment-reply"

// UnnamedConversation is used when a conversation has no display name set.
const UnnamedConversation = "Unnamed Conversation"

// ReplyRequest identifies the parent and reply comments within a scope.
type ReplyRequest struct {
	ParentKey string `json:"parentKey"`
	ReplyKey  string `json:"replyKey"`
	Language  string `json:"language,omitempty"`
}

// commentValue is the subset of a comment document the assembler needs.
type commentValue struct {
	From     string `json:"from"`
	Text     string `json:"text"`
	ReplyTo  string `json:"replyTo"`
	Language string `json:"language"`
}

// ReplySender assembles reply notifications. All context reads fan out
// concurrently and join before anything is sent; if any required read fails,
// nothing is sent.
type ReplySender struct {
	notifier Notifier
	catalog  *Catalog
	logger   *slog.Logger
	timeout  time.Duration
}

// NewReplySender creates a reply-notification assembler. A zero timeout
// disables the join deadline.
func NewReplySender(n Notifier, c *Catalog, logger *slog.Logger, timeout time.Duration) *ReplySender {
	return &ReplySender{notifier: n, catalog: c, logger: logger, timeout: timeout}
}

// Register attaches the sender to comment writes; only writes carrying a
// replyTo reference produce a notification.
func (s *ReplySender) Register(reg *trigger.Registry) error {
	return reg.Register("simplecomments", "comment", s)
}

func (s *ReplySender) Name() string { return "reply-notifier" }

// Handle inspects a comment write and sends a reply notification when the
// comment references a parent.
func (s *ReplySender) Handle(ctx context.Context, ev trigger.WriteEvent) error {
	var c commentValue
	if err := json.Unmarshal(ev.Write.Value, &c); err != nil {
		return fmt.Errorf("decode comment %s: %w", ev.Write.Ref.Key, err)
	}
	if c.ReplyTo == "" {
		return nil
	}
	return s.Send(ctx, ev.Scope, ReplyRequest{
		ParentKey: c.ReplyTo,
		ReplyKey:  ev.Write.Ref.Key,
		Language:  c.Language,
	})
}

// Send fetches the parent comment, the reply comment, the conversation name,
// and the silo name concurrently, resolves both personas, and delivers a
// rendered message to the parent comment's author. A missing parent or reply
// is fatal; missing display names fall back to defaults.
func (s *ReplySender) Send(ctx context.Context, scope *store.Scope, req ReplyRequest) error {
	var (
		parentRaw json.RawMessage
		replyRaw  json.RawMessage
		convName  string
		siloName  string
	)

	err := fanout.Join(ctx, s.timeout,
		fanout.Fetch(&parentRaw, func(ctx context.Context) (json.RawMessage, error) {
			return scope.GetObject(ctx, "comment", req.ParentKey)
		}),
		fanout.Fetch(&replyRaw, func(ctx context.Context) (json.RawMessage, error) {
			return scope.GetObject(ctx, "comment", req.ReplyKey)
		}),
		func(ctx context.Context) error {
			name, err := scope.GetGlobalProperty(ctx, "name")
			if errors.Is(err, store.ErrNotFound) || (err == nil && name == "") {
				convName = UnnamedConversation
				return nil
			}
			if err != nil {
				return fmt.Errorf("conversation name: %w", err)
			}
			convName = name
			return nil
		},
		func(ctx context.Context) error {
			name, err := scope.GetModulePublic(ctx, "admin", "name")
			if errors.Is(err, store.ErrNotFound) || (err == nil && name == "") {
				siloName = strings.ToUpper(scope.Silo)
				return nil
			}
			if err != nil {
				return fmt.Errorf("silo name: %w", err)
			}
			siloName = name
			return nil
		},
	)
	if err != nil {
		return fmt.Errorf("assemble reply notification %s->%s: %w", req.ReplyKey, req.ParentKey, err)
	}

	var parent, reply commentValue
	if err := json.Unmarshal(parentRaw, &parent); err != nil {
		return fmt.Errorf("decode parent comment %s: %w", req.ParentKey, err)
	}
	if err := json.Unmarshal(replyRaw, &reply); err != nil {
		return fmt.Errorf("decode reply comment %s: %w", req.ReplyKey, err)
	}

	if parent.From == "" {
		s.logger.Debug("notify: parent comment has no author, skipping",
			"parent", req.ParentKey)
		return nil
	}
	if parent.From == reply.From {
		s.logger.Debug("notify: self reply, skipping",
			"user", parent.From, "reply", req.ReplyKey)
		return nil
	}

	var author, recipient *model.Persona
	err = fanout.Join(ctx, s.timeout,
		fanout.Fetch(&author, func(ctx context.Context) (*model.Persona, error) {
			return s.resolvePersona(ctx, scope, reply.From)
		}),
		fanout.Fetch(&recipient, func(ctx context.Context) (*model.Persona, error) {
			return s.resolvePersona(ctx, scope, parent.From)
		}),
	)
	if err != nil {
		return fmt.Errorf("resolve personas for %s: %w", req.ReplyKey, err)
	}

	fields := map[string]string{
		"authorName":       personaName(author),
		"recipientName":    personaName(recipient),
		"conversationName": convName,
		"siloName":         siloName,
		"replyText":        reply.Text,
		"parentText":       parent.Text,
	}

	subject, body, err := s.catalog.Render(TemplateCommentReply, req.Language, fields)
	if err != nil {
		return fmt.Errorf("render reply notification: %w", err)
	}

	msg := Message{
		TemplateID: TemplateCommentReply,
		Language:   req.Language,
		Silo:       scope.Silo,
		Structure:  scope.Structure,
		Instance:   scope.Instance,
		Recipient:  parent.From,
		Subject:    subject,
		Body:       body,
		Fields:     fields,
	}
	if err := s.notifier.SendTemplatedMessage(ctx, msg); err != nil {
		return fmt.Errorf("send reply notification to %s: %w", parent.From, err)
	}

	s.logger.Info("notify: reply notification sent",
		"recipient", parent.From, "reply", req.ReplyKey, "parent", req.ParentKey)
	return nil
}

// resolvePersona looks up a persona, falling back to a bare persona carrying
// only the user id when none is stored.
func (s *ReplySender) resolvePersona(ctx context.Context, scope *store.Scope, userID string) (*model.Persona, error) {
	p, err := scope.GetPersona(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return &model.Persona{Key: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func personaName(p *model.Persona) string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Key
}

var _ trigger.Handler = (*ReplySender)(nil)
