package backup

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

type mockStore struct {
	store.Store

	events   []*model.Event
	sessions []*model.Session
	listErr  error
}

func (m *mockStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	return m.events, nil
}

func (m *mockStore) ListSessions(ctx context.Context) ([]*model.Session, error) {
	return m.sessions, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeLines(t *testing.T, data []byte) []map[string]any {
	t.Helper()
	var lines []map[string]any
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		var m map[string]any
		if err := json.Unmarshal(sc.Bytes(), &m); err != nil {
			t.Fatalf("bad JSONL line %q: %v", sc.Text(), err)
		}
		lines = append(lines, m)
	}
	return lines
}

func TestExportJSONL(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	end := now.Add(time.Hour)
	ms := &mockStore{
		events: []*model.Event{
			{Key: "ev-2", Time: now.Add(time.Minute), EventType: "pageview", SessionKey: "sn-1"},
			{Key: "ev-1", Time: now, EventType: "login", SessionKey: "sn-1"},
		},
		sessions: []*model.Session{
			{Key: "sn-1", StartTime: now, EndTime: &end},
		},
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header + 2 events + 1 session)", len(lines))
	}

	if lines[0]["type"] != "header" {
		t.Errorf("first line type = %v, want header", lines[0]["type"])
	}
	if lines[0]["event_count"] != float64(2) || lines[0]["session_count"] != float64(1) {
		t.Errorf("header counts = %v/%v", lines[0]["event_count"], lines[0]["session_count"])
	}
	if lines[1]["type"] != "event" || lines[3]["type"] != "session" {
		t.Errorf("record types = %v, %v, %v", lines[1]["type"], lines[2]["type"], lines[3]["type"])
	}
}

func TestExportJSONL_EmptyStore(t *testing.T) {
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), &mockStore{}, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}
	lines := decodeLines(t, buf.Bytes())
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want header only", len(lines))
	}
}

func TestSnapshotMetadata(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	ms := &mockStore{
		events:   []*model.Event{{Key: "ev-1", Time: now, EventType: "login"}},
		sessions: []*model.Session{{Key: "sn-1", StartTime: now}},
	}

	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err != nil {
		t.Fatalf("export: %v", err)
	}

	meta := snapshotMetadata(buf.Bytes())
	if meta == nil {
		t.Fatal("no metadata extracted from a valid snapshot")
	}
	if meta["silo-event-count"] != "1" || meta["silo-session-count"] != "1" {
		t.Errorf("counts = %s/%s, want 1/1", meta["silo-event-count"], meta["silo-session-count"])
	}
	if meta["silo-export-version"] != "1" {
		t.Errorf("version = %q, want 1", meta["silo-export-version"])
	}
	if _, err := time.Parse(time.RFC3339, meta["silo-exported-at"]); err != nil {
		t.Errorf("exported-at %q is not RFC3339: %v", meta["silo-exported-at"], err)
	}
}

func TestSnapshotMetadata_UnrecognizedPayload(t *testing.T) {
	if m := snapshotMetadata([]byte("not json\n")); m != nil {
		t.Errorf("metadata for junk payload = %v, want nil", m)
	}
	if m := snapshotMetadata([]byte(`{"type":"event"}` + "\n")); m != nil {
		t.Errorf("metadata for headerless payload = %v, want nil", m)
	}
}

func TestExportJSONL_StoreError(t *testing.T) {
	ms := &mockStore{listErr: errors.New("db down")}
	var buf bytes.Buffer
	if err := ExportJSONL(context.Background(), ms, &buf); err == nil {
		t.Error("expected error from failing store")
	}
}

// captureDestination records the payloads written to it.
type captureDestination struct {
	mu     sync.Mutex
	writes [][]byte
}

func (d *captureDestination) Write(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := append([]byte(nil), data...)
	d.writes = append(d.writes, cp)
	return nil
}

func (d *captureDestination) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func TestScheduler_RunsInitialBackup(t *testing.T) {
	ms := &mockStore{
		events: []*model.Event{{Key: "ev-1", Time: time.Now().UTC(), EventType: "a"}},
	}
	dest := &captureDestination{}

	sched := NewScheduler(ms, []Destination{dest}, time.Hour, testLogger())
	sched.Start()
	defer sched.Stop()

	deadline := time.After(2 * time.Second)
	for dest.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("initial backup never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}

	lines := decodeLines(t, dest.writes[0])
	if lines[0]["type"] != "header" {
		t.Errorf("payload does not start with a header: %v", lines[0])
	}
}

func TestScheduler_FailingDestinationDoesNotStopOthers(t *testing.T) {
	ms := &mockStore{}
	good := &captureDestination{}
	bad := destinationFunc(func(ctx context.Context, data []byte) error {
		return errors.New("unreachable")
	})

	sched := NewScheduler(ms, []Destination{bad, good}, time.Hour, testLogger())
	sched.Start()
	defer sched.Stop()

	deadline := time.After(2 * time.Second)
	for good.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("second destination never written")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

type destinationFunc func(ctx context.Context, data []byte) error

func (f destinationFunc) Write(ctx context.Context, data []byte) error { return f(ctx, data) }

func TestFileDestination_Write(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "backup.jsonl")
	dest := NewFileDestination(path)

	payload := []byte(`{"type":"header"}` + "\n")
	if err := dest.Write(context.Background(), payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("file contents = %q", got)
	}

	// Overwrite replaces the previous backup.
	next := []byte(`{"type":"header","n":2}` + "\n")
	if err := dest.Write(context.Background(), next); err != nil {
		t.Fatalf("second write: %v", err)
	}
	got, _ = os.ReadFile(path)
	if !bytes.Equal(got, next) {
		t.Errorf("file contents after overwrite = %q", got)
	}
}
