package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

// newMockDB creates a sqlmock database with automatic cleanup and expectation checking.
func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unfulfilled expectations: %v", err)
		}
		db.Close()
	})
	return db, mock
}

// objectRowColumns is the column list for scanObject results.
var objectRowColumns = []string{
	"silo", "structure", "instance", "otype", "okey", "value",
	"derived", "source_structure", "source_instance", "updated_at",
}

// eventRowColumns is the column list for scanEvent results.
var eventRowColumns = []string{
	"key", "time", "event_type", "user_id", "user_name", "user_photo",
	"session_key", "silo", "structure", "instance", "device", "extra",
}

// sessionRowColumns is the column list for scanSession results.
var sessionRowColumns = []string{
	"key", "silo", "user_id", "user_name", "user_photo",
	"start_time", "end_time", "device",
}

func testRef() model.ObjectRef {
	return model.ObjectRef{
		Silo: "acme", Structure: "simplecomments", Instance: "conv1",
		Type: "comment", Key: "c1",
	}
}

func TestGetObject(t *testing.T) {
	db, mock := newMockDB(t)
	ref := testRef()
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM objects").
		WithArgs(ref.Silo, ref.Structure, ref.Instance, ref.Type, ref.Key).
		WillReturnRows(sqlmock.NewRows(objectRowColumns).
			AddRow(ref.Silo, ref.Structure, ref.Instance, ref.Type, ref.Key,
				[]byte(`{"text":"hi"}`), false, nil, nil, now))

	obj, err := queryGetObject(context.Background(), db, ref)
	if err != nil {
		t.Fatalf("queryGetObject error: %v", err)
	}
	if obj.Key != "c1" || string(obj.Value) != `{"text":"hi"}` {
		t.Errorf("unexpected object: %+v", obj)
	}
	if obj.Derived {
		t.Error("expected non-derived object")
	}
}

func TestGetObject_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	ref := testRef()

	mock.ExpectQuery("SELECT .+ FROM objects").
		WithArgs(ref.Silo, ref.Structure, ref.Instance, ref.Type, ref.Key).
		WillReturnError(sql.ErrNoRows)

	_, err := queryGetObject(context.Background(), db, ref)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSetObject_ClearsDerivedFlag(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectExec("INSERT INTO objects").
		WithArgs("acme", "simplecomments", "conv1", "comment", "c1",
			[]byte(`{"text":"hi"}`), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := querySetObject(context.Background(), db, model.Write{
		Ref:   testRef(),
		Value: json.RawMessage(`{"text":"hi"}`),
	})
	if err != nil {
		t.Fatalf("querySetObject error: %v", err)
	}
}

func TestSetDerivedObject_Idempotent(t *testing.T) {
	db, mock := newMockDB(t)

	w := model.DerivedWrite{
		Ref: model.ObjectRef{
			Silo: "acme", Structure: "profile", Instance: "u1",
			Type: "comment", Key: "c1",
		},
		Value:           json.RawMessage(`{"text":"hi"}`),
		SourceStructure: "simplecomments",
		SourceInstance:  "conv1",
	}

	// Applying the identical write twice runs the same upsert both times;
	// ON CONFLICT DO UPDATE leaves the row in the same state.
	for i := 0; i < 2; i++ {
		mock.ExpectExec("INSERT INTO objects").
			WithArgs("acme", "profile", "u1", "comment", "c1",
				[]byte(`{"text":"hi"}`), "simplecomments", "conv1", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
	}

	for i := 0; i < 2; i++ {
		if err := querySetDerivedObject(context.Background(), db, w); err != nil {
			t.Fatalf("querySetDerivedObject attempt %d error: %v", i+1, err)
		}
	}
}

func TestAppendEvent(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO events").
		WithArgs("ev-1", now, "pageview", "u1", "Alice", sqlmock.AnyArg(),
			"sn-1", "acme", "simplecomments", "conv1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := queryAppendEvent(context.Background(), db, &model.Event{
		Key: "ev-1", Time: now, EventType: "pageview",
		UserID: "u1", UserName: "Alice",
		SessionKey: "sn-1", Silo: "acme",
		Structure: "simplecomments", Instance: "conv1",
	})
	if err != nil {
		t.Fatalf("queryAppendEvent error: %v", err)
	}
}

func TestListEvents_FilterClauses(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM events WHERE session_key = \$1 AND silo = \$2 AND event_type = \$3 ORDER BY time DESC, key DESC`).
		WithArgs("sn-1", "acme", "pageview").
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow("ev-2", now, "pageview", nil, nil, nil, "sn-1", "acme", nil, nil, nil, nil).
			AddRow("ev-1", now.Add(-time.Minute), "pageview", nil, nil, nil, "sn-1", "acme", nil, nil, nil, nil))

	events, err := queryListEvents(context.Background(), db, model.EventFilter{
		SessionKey: "sn-1", Silo: "acme", EventType: "pageview",
	})
	if err != nil {
		t.Fatalf("queryListEvents error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Key != "ev-2" {
		t.Errorf("first event = %q, want ev-2 (newest first)", events[0].Key)
	}
}

func TestListEvents_NoFilter(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT .+ FROM events ORDER BY time DESC, key DESC`).
		WillReturnRows(sqlmock.NewRows(eventRowColumns))

	events, err := queryListEvents(context.Background(), db, model.EventFilter{})
	if err != nil {
		t.Fatalf("queryListEvents error: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want 0", len(events))
	}
}

func TestListEvents_DecodesDevice(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM events ORDER BY time DESC, key DESC`).
		WillReturnRows(sqlmock.NewRows(eventRowColumns).
			AddRow("ev-1", now, "login", "u1", "Alice", nil, "sn-1", "acme", nil, nil,
				[]byte(`{"browserName":"Firefox","isMobile":true}`), []byte(`{"url":"/x"}`)))

	events, err := queryListEvents(context.Background(), db, model.EventFilter{})
	if err != nil {
		t.Fatalf("queryListEvents error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	d := events[0].DeviceInfo
	if d == nil || d.BrowserName != "Firefox" || !d.IsMobile {
		t.Errorf("device info = %+v", d)
	}
	if string(events[0].Extra) != `{"url":"/x"}` {
		t.Errorf("extra = %s", events[0].Extra)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	db, mock := newMockDB(t)

	mock.ExpectQuery("SELECT .+ FROM sessions WHERE key").
		WithArgs("sn-missing").
		WillReturnError(sql.ErrNoRows)

	_, err := queryGetSession(context.Background(), db, "sn-missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpsertSession(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("sn-1", "acme", "u1", "Alice", sqlmock.AnyArg(),
			now, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := queryUpsertSession(context.Background(), db, &model.Session{
		Key: "sn-1", Silo: "acme", UserID: "u1", UserName: "Alice", StartTime: now,
	})
	if err != nil {
		t.Fatalf("queryUpsertSession error: %v", err)
	}
}

func TestUpsertSession_MergesOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	// Two appends racing on a fresh session key both take the insert path and
	// collide on the primary key. The conflict clause must merge the rows the
	// same way ApplyEvent does in memory: identity fields set-once, earliest
	// start time, sticky end time, device maps combined. A wholesale
	// overwrite here would let the later writer erase what the earlier one
	// recorded.
	mock.ExpectExec(`ON CONFLICT \(key\) DO UPDATE SET `+
		`silo = COALESCE\(sessions\.silo, EXCLUDED\.silo\), `+
		`user_id = COALESCE\(sessions\.user_id, EXCLUDED\.user_id\), `+
		`user_name = COALESCE\(sessions\.user_name, EXCLUDED\.user_name\), `+
		`user_photo = COALESCE\(sessions\.user_photo, EXCLUDED\.user_photo\), `+
		`start_time = LEAST\(sessions\.start_time, EXCLUDED\.start_time\), `+
		`end_time = COALESCE\(sessions\.end_time, EXCLUDED\.end_time\), `+
		`device = CASE WHEN sessions\.device IS NULL THEN EXCLUDED\.device `+
		`WHEN EXCLUDED\.device IS NULL THEN sessions\.device `+
		`ELSE sessions\.device \|\| EXCLUDED\.device END`).
		WithArgs("sn-1", "acme", "u1", sqlmock.AnyArg(), sqlmock.AnyArg(),
			now, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := queryUpsertSession(context.Background(), db, &model.Session{
		Key: "sn-1", Silo: "acme", UserID: "u1", StartTime: now,
		DeviceInfo: &model.DeviceInfo{BrowserName: "Firefox", IsMobile: true},
	})
	if err != nil {
		t.Fatalf("queryUpsertSession error: %v", err)
	}
}

func TestListSessions_RecencyOrder(t *testing.T) {
	db, mock := newMockDB(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT .+ FROM sessions ORDER BY COALESCE\(end_time, start_time\) DESC`).
		WillReturnRows(sqlmock.NewRows(sessionRowColumns).
			AddRow("sn-2", "acme", nil, nil, nil, now, nil, nil).
			AddRow("sn-1", "acme", nil, nil, nil, now.Add(-time.Hour), now.Add(-30*time.Minute), nil))

	sessions, err := queryListSessions(context.Background(), db)
	if err != nil {
		t.Fatalf("queryListSessions error: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("got %d sessions, want 2", len(sessions))
	}
	if sessions[0].Key != "sn-2" {
		t.Errorf("first session = %q, want sn-2", sessions[0].Key)
	}
	if sessions[1].EndTime == nil {
		t.Error("expected closed session to carry end time")
	}
}

func TestCloseSession(t *testing.T) {
	db, mock := newMockDB(t)
	end := time.Now().UTC()

	mock.ExpectExec("UPDATE sessions SET end_time").
		WithArgs("sn-1", end).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := queryCloseSession(context.Background(), db, "sn-1", end); err != nil {
		t.Fatalf("queryCloseSession error: %v", err)
	}
}

func TestCloseSession_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	end := time.Now().UTC()

	mock.ExpectExec("UPDATE sessions SET end_time").
		WithArgs("sn-missing", end).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := queryCloseSession(context.Background(), db, "sn-missing", end)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRunInTransaction_Commit(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return tx.AppendEvent(context.Background(), &model.Event{
			Key: "ev-1", Time: time.Now().UTC(), EventType: "login",
		})
	})
	if err != nil {
		t.Fatalf("RunInTransaction error: %v", err)
	}
}

func TestRunInTransaction_Rollback(t *testing.T) {
	db, mock := newMockDB(t)
	s := &PostgresStore{db: db}

	mock.ExpectBegin()
	mock.ExpectRollback()

	wantErr := errors.New("boom")
	err := s.RunInTransaction(context.Background(), func(tx store.Store) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped fn error, got %v", err)
	}
}
