package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

// objectColumns is the column list used for SELECT statements on the objects table.
const objectColumns = `silo, structure, instance, otype, okey, value,
	derived, source_structure, source_instance, updated_at`

// eventColumns is the column list used for SELECT statements on the events table.
const eventColumns = `key, time, event_type, user_id, user_name, user_photo,
	session_key, silo, structure, instance, device, extra`

// sessionColumns is the column list used for SELECT statements on the sessions table.
const sessionColumns = `key, silo, user_id, user_name, user_photo,
	start_time, end_time, device`

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryGetObject(ctx context.Context, db executor, ref model.ObjectRef) (*model.Object, error) {
	row := db.QueryRowContext(ctx, `SELECT `+objectColumns+` FROM objects
		WHERE silo = $1 AND structure = $2 AND instance = $3 AND otype = $4 AND okey = $5`,
		ref.Silo, ref.Structure, ref.Instance, ref.Type, ref.Key)
	obj, err := scanObject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	return obj, nil
}

// querySetObject upserts an object wholesale (last-write-wins). A user write
// over a derived coordinate clears the derived flag and back-reference.
func querySetObject(ctx context.Context, db executor, w model.Write) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO objects (silo, structure, instance, otype, okey, value,
			derived, source_structure, source_instance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, NULL, NULL, $7)
		ON CONFLICT (silo, structure, instance, otype, okey) DO UPDATE SET
			value = EXCLUDED.value,
			derived = FALSE,
			source_structure = NULL,
			source_instance = NULL,
			updated_at = EXCLUDED.updated_at`,
		w.Ref.Silo, w.Ref.Structure, w.Ref.Instance, w.Ref.Type, w.Ref.Key,
		jsonbBytes(w.Value), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set object: %w", err)
	}
	return nil
}

// querySetDerivedObject upserts a derived copy wholesale. Applying the same
// write twice leaves the same stored state.
func querySetDerivedObject(ctx context.Context, db executor, w model.DerivedWrite) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO objects (silo, structure, instance, otype, okey, value,
			derived, source_structure, source_instance, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7, $8, $9)
		ON CONFLICT (silo, structure, instance, otype, okey) DO UPDATE SET
			value = EXCLUDED.value,
			derived = TRUE,
			source_structure = EXCLUDED.source_structure,
			source_instance = EXCLUDED.source_instance,
			updated_at = EXCLUDED.updated_at`,
		w.Ref.Silo, w.Ref.Structure, w.Ref.Instance, w.Ref.Type, w.Ref.Key,
		jsonbBytes(w.Value), nullString(w.SourceStructure), nullString(w.SourceInstance),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("set derived object: %w", err)
	}
	return nil
}

func queryListObjects(ctx context.Context, db executor, silo, structure, instance, objectType string) ([]*model.Object, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+objectColumns+` FROM objects
		WHERE silo = $1 AND structure = $2 AND instance = $3 AND otype = $4
		ORDER BY updated_at DESC`,
		silo, structure, instance, objectType)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer rows.Close()
	return scanObjects(rows)
}

// queryAppendEvent inserts an immutable event. Re-appending the same key is a
// no-op, which makes ingestion safe to retry.
func queryAppendEvent(ctx context.Context, db executor, e *model.Event) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO events (key, time, event_type, user_id, user_name, user_photo,
			session_key, silo, structure, instance, device, extra)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (key) DO NOTHING`,
		e.Key, e.Time, e.EventType,
		nullString(e.UserID), nullString(e.UserName), nullString(e.UserPhoto),
		nullString(e.SessionKey), nullString(e.Silo), nullString(e.Structure),
		nullString(e.Instance), deviceBytes(e.DeviceInfo), jsonbBytes(e.Extra),
	)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// queryListEvents returns every event matching the filter, newest first.
// The key tiebreak keeps the order stable across equal timestamps.
func queryListEvents(ctx context.Context, db executor, filter model.EventFilter) ([]*model.Event, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.SessionKey != "" {
		whereClauses = append(whereClauses, "session_key = "+nextArg())
		args = append(args, filter.SessionKey)
	}
	if filter.Silo != "" {
		whereClauses = append(whereClauses, "silo = "+nextArg())
		args = append(args, filter.Silo)
	}
	if filter.EventType != "" {
		whereClauses = append(whereClauses, "event_type = "+nextArg())
		args = append(args, filter.EventType)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	rows, err := db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events"+whereSQL+" ORDER BY time DESC, key DESC",
		args...)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func queryGetSession(ctx context.Context, db executor, key string) (*model.Session, error) {
	row := db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE key = $1`, key)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// queryUpsertSession folds a session aggregate into the sessions table. The
// conflict clause merges instead of overwriting: identity fields are set-once,
// start_time keeps the earliest value, end_time survives once set, and device
// maps are combined with last-seen-wins per key. Two appends racing on the
// same session key at read committed therefore cannot erase each other's
// fields, whichever one inserts first.
func queryUpsertSession(ctx context.Context, db executor, s *model.Session) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO sessions (key, silo, user_id, user_name, user_photo,
			start_time, end_time, device)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (key) DO UPDATE SET
			silo = COALESCE(sessions.silo, EXCLUDED.silo),
			user_id = COALESCE(sessions.user_id, EXCLUDED.user_id),
			user_name = COALESCE(sessions.user_name, EXCLUDED.user_name),
			user_photo = COALESCE(sessions.user_photo, EXCLUDED.user_photo),
			start_time = LEAST(sessions.start_time, EXCLUDED.start_time),
			end_time = COALESCE(sessions.end_time, EXCLUDED.end_time),
			device = CASE
				WHEN sessions.device IS NULL THEN EXCLUDED.device
				WHEN EXCLUDED.device IS NULL THEN sessions.device
				ELSE sessions.device || EXCLUDED.device
			END`,
		s.Key, nullString(s.Silo), nullString(s.UserID), nullString(s.UserName),
		nullString(s.UserPhoto), s.StartTime, nullTimePtr(s.EndTime), deviceBytes(s.DeviceInfo),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// queryListSessions returns all sessions, most recently active first.
func queryListSessions(ctx context.Context, db executor) ([]*model.Session, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		ORDER BY COALESCE(end_time, start_time) DESC, key DESC`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func queryCloseSession(ctx context.Context, db executor, key string, end time.Time) error {
	res, err := db.ExecContext(ctx,
		`UPDATE sessions SET end_time = $2 WHERE key = $1`, key, end)
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("close session: %w", err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
