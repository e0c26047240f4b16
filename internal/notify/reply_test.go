package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
	"github.com/groblegark/ksilo/internal/trigger"
)

type mockStore struct {
	store.Store

	mu      sync.Mutex
	objects map[model.ObjectRef]json.RawMessage
}

func newMockStore() *mockStore {
	return &mockStore{objects: make(map[model.ObjectRef]json.RawMessage)}
}

func (m *mockStore) put(ref model.ObjectRef, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[ref] = json.RawMessage(value)
}

func (m *mockStore) GetObject(ctx context.Context, ref model.ObjectRef) (*model.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.objects[ref]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &model.Object{ObjectRef: ref, Value: value}, nil
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []Message
	err      error
}

func (n *recordingNotifier) SendTemplatedMessage(ctx context.Context, msg Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) sent() []Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Message(nil), n.messages...)
}

func commentRef(key string) model.ObjectRef {
	return model.ObjectRef{
		Silo: "acme", Structure: "simplecomments", Instance: "conv1",
		Type: "comment", Key: key,
	}
}

func personaRef(userID string) model.ObjectRef {
	return model.ObjectRef{
		Silo: "acme", Structure: model.StructurePeople, Instance: store.InstanceSiloWide,
		Type: model.TypePersona, Key: userID,
	}
}

func testScope(s store.Store) *store.Scope {
	return &store.Scope{Store: s, Silo: "acme", Structure: "simplecomments", Instance: "conv1"}
}

func newTestSender(n Notifier) *ReplySender {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewReplySender(n, DefaultCatalog(), logger, time.Second)
}

func TestSend_FullAssembly(t *testing.T) {
	ms := newMockStore()
	ms.put(commentRef("c1"), `{"text":"original","from":"alice"}`)
	ms.put(commentRef("c2"), `{"text":"a reply","from":"bob","replyTo":"c1"}`)
	ms.put(model.ObjectRef{
		Silo: "acme", Structure: "simplecomments", Instance: "conv1",
		Type: model.TypeGlobal, Key: "name",
	}, `"Launch Plans"`)
	ms.put(model.ObjectRef{
		Silo: "acme", Structure: model.StructureModulePublic, Instance: "admin",
		Type: model.TypePublic, Key: "name",
	}, `"Acme Corp"`)
	ms.put(personaRef("alice"), `{"name":"Alice","photo":"a.png"}`)
	ms.put(personaRef("bob"), `{"name":"Bob"}`)

	n := &recordingNotifier{}
	s := newTestSender(n)

	err := s.Send(context.Background(), testScope(ms), ReplyRequest{ParentKey: "c1", ReplyKey: "c2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := n.sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	msg := sent[0]
	if msg.Recipient != "alice" {
		t.Errorf("recipient = %q, want alice", msg.Recipient)
	}
	if msg.Silo != "acme" || msg.Structure != "simplecomments" || msg.Instance != "conv1" {
		t.Errorf("message coordinates = %s/%s/%s", msg.Silo, msg.Structure, msg.Instance)
	}
	if msg.Fields["authorName"] != "Bob" {
		t.Errorf("authorName = %q, want Bob", msg.Fields["authorName"])
	}
	if msg.Fields["conversationName"] != "Launch Plans" {
		t.Errorf("conversationName = %q", msg.Fields["conversationName"])
	}
	if msg.Fields["siloName"] != "Acme Corp" {
		t.Errorf("siloName = %q", msg.Fields["siloName"])
	}
	if !strings.Contains(msg.Body, "a reply") {
		t.Errorf("body %q does not include reply text", msg.Body)
	}
	if !strings.Contains(msg.Subject, "Bob") {
		t.Errorf("subject %q does not name the author", msg.Subject)
	}
}

func TestSend_NameFallbacks(t *testing.T) {
	ms := newMockStore()
	ms.put(commentRef("c1"), `{"text":"original","from":"alice"}`)
	ms.put(commentRef("c2"), `{"text":"a reply","from":"bob","replyTo":"c1"}`)
	// No conversation name, no silo name, no personas stored.

	n := &recordingNotifier{}
	s := newTestSender(n)

	err := s.Send(context.Background(), testScope(ms), ReplyRequest{ParentKey: "c1", ReplyKey: "c2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := n.sent()
	if len(sent) != 1 {
		t.Fatalf("got %d messages, want 1", len(sent))
	}
	msg := sent[0]
	if msg.Fields["conversationName"] != UnnamedConversation {
		t.Errorf("conversationName = %q, want %q", msg.Fields["conversationName"], UnnamedConversation)
	}
	if msg.Fields["siloName"] != "ACME" {
		t.Errorf("siloName = %q, want upper-cased silo key", msg.Fields["siloName"])
	}
	// Absent personas fall back to the bare user id.
	if msg.Fields["authorName"] != "bob" {
		t.Errorf("authorName = %q, want bob", msg.Fields["authorName"])
	}
}

func TestSend_MissingParentIsFatal(t *testing.T) {
	ms := newMockStore()
	ms.put(commentRef("c2"), `{"text":"a reply","from":"bob","replyTo":"c1"}`)

	n := &recordingNotifier{}
	s := newTestSender(n)

	err := s.Send(context.Background(), testScope(ms), ReplyRequest{ParentKey: "c1", ReplyKey: "c2"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(n.sent()) != 0 {
		t.Error("message sent despite missing parent")
	}
}

func TestSend_MissingReplyIsFatal(t *testing.T) {
	ms := newMockStore()
	ms.put(commentRef("c1"), `{"text":"original","from":"alice"}`)

	n := &recordingNotifier{}
	s := newTestSender(n)

	err := s.Send(context.Background(), testScope(ms), ReplyRequest{ParentKey: "c1", ReplyKey: "c2"})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(n.sent()) != 0 {
		t.Error("message sent despite missing reply")
	}
}

func TestSend_SelfReplySkipped(t *testing.T) {
	ms := newMockStore()
	ms.put(commentRef("c1"), `{"text":"original","from":"alice"}`)
	ms.put(commentRef("c2"), `{"text":"following up","from":"alice","replyTo":"c1"}`)

	n := &recordingNotifier{}
	s := newTestSender(n)

	err := s.Send(context.Background(), testScope(ms), ReplyRequest{ParentKey: "c1", ReplyKey: "c2"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(n.sent()) != 0 {
		t.Error("self reply produced a notification")
	}
}

func TestHandle_IgnoresNonReplies(t *testing.T) {
	ms := newMockStore()
	n := &recordingNotifier{}
	s := newTestSender(n)

	ev := trigger.WriteEvent{
		Write: model.Write{
			Ref:   commentRef("c1"),
			Value: json.RawMessage(`{"text":"top level","from":"alice"}`),
		},
		Scope: testScope(ms),
	}
	if err := s.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(n.sent()) != 0 {
		t.Error("notification sent for a comment without replyTo")
	}
}

func TestHandle_SendsForReplies(t *testing.T) {
	ms := newMockStore()
	ms.put(commentRef("c1"), `{"text":"original","from":"alice"}`)
	ms.put(commentRef("c2"), `{"text":"a reply","from":"bob","replyTo":"c1"}`)

	n := &recordingNotifier{}
	s := newTestSender(n)

	ev := trigger.WriteEvent{
		Write: model.Write{
			Ref:   commentRef("c2"),
			Value: json.RawMessage(`{"text":"a reply","from":"bob","replyTo":"c1"}`),
		},
		Scope: testScope(ms),
	}
	if err := s.Handle(context.Background(), ev); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(n.sent()) != 1 {
		t.Fatalf("got %d messages, want 1", len(n.sent()))
	}
}

func TestCatalog_LanguageFallback(t *testing.T) {
	c := DefaultCatalog()
	fields := map[string]string{
		"authorName": "Bob", "conversationName": "Plans",
		"siloName": "Acme", "replyText": "hi",
	}

	subject, _, err := c.Render(TemplateCommentReply, "fr", fields)
	if err != nil {
		t.Fatalf("render with unknown language: %v", err)
	}
	if !strings.Contains(subject, "Bob") {
		t.Errorf("subject = %q", subject)
	}

	if _, _, err := c.Render("no-such-template", "en", fields); err == nil {
		t.Error("expected error for unknown template id")
	}
}

func TestParseCatalog_CustomTemplates(t *testing.T) {
	data := []byte(`
[[template]]
id = "comment-reply"
language = "de"
subject = "{{.authorName}} hat geantwortet"
body = "{{.replyText}}"
`)
	c, err := parseCatalog(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	subject, body, err := c.Render("comment-reply", "de", map[string]string{
		"authorName": "Bob", "replyText": "hallo",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Bob hat geantwortet" || body != "hallo" {
		t.Errorf("rendered %q / %q", subject, body)
	}
}
