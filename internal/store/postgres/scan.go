package postgres

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/groblegark/ksilo/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanObject scans a single row into a model.Object.
// The row must contain columns in the order defined by objectColumns.
func scanObject(row scannable) (*model.Object, error) {
	var o model.Object
	var (
		sourceStructure sql.NullString
		sourceInstance  sql.NullString
		value           []byte
	)

	err := row.Scan(
		&o.Silo,
		&o.Structure,
		&o.Instance,
		&o.Type,
		&o.Key,
		&value,
		&o.Derived,
		&sourceStructure,
		&sourceInstance,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.SourceStructure = sourceStructure.String
	o.SourceInstance = sourceInstance.String
	if len(value) > 0 {
		o.Value = json.RawMessage(value)
	}

	return &o, nil
}

// scanObjects scans multiple rows into a slice of model.Object pointers.
func scanObjects(rows *sql.Rows) ([]*model.Object, error) {
	var objects []*model.Object
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, err
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return objects, nil
}

// scanEvent scans a single row into a model.Event.
func scanEvent(row scannable) (*model.Event, error) {
	var e model.Event
	var (
		userID     sql.NullString
		userName   sql.NullString
		userPhoto  sql.NullString
		sessionKey sql.NullString
		silo       sql.NullString
		structure  sql.NullString
		instance   sql.NullString
		device     []byte
		extra      []byte
	)

	err := row.Scan(
		&e.Key,
		&e.Time,
		&e.EventType,
		&userID,
		&userName,
		&userPhoto,
		&sessionKey,
		&silo,
		&structure,
		&instance,
		&device,
		&extra,
	)
	if err != nil {
		return nil, err
	}

	e.UserID = userID.String
	e.UserName = userName.String
	e.UserPhoto = userPhoto.String
	e.SessionKey = sessionKey.String
	e.Silo = silo.String
	e.Structure = structure.String
	e.Instance = instance.String

	if len(device) > 0 {
		var d model.DeviceInfo
		if err := json.Unmarshal(device, &d); err != nil {
			return nil, fmt.Errorf("decode device info for %s: %w", e.Key, err)
		}
		e.DeviceInfo = &d
	}
	if len(extra) > 0 {
		e.Extra = json.RawMessage(extra)
	}

	return &e, nil
}

// scanEvents scans multiple rows into a slice of model.Event pointers.
func scanEvents(rows *sql.Rows) ([]*model.Event, error) {
	var events []*model.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// scanSession scans a single row into a model.Session.
func scanSession(row scannable) (*model.Session, error) {
	var s model.Session
	var (
		silo      sql.NullString
		userID    sql.NullString
		userName  sql.NullString
		userPhoto sql.NullString
		endTime   sql.NullTime
		device    []byte
	)

	err := row.Scan(
		&s.Key,
		&silo,
		&userID,
		&userName,
		&userPhoto,
		&s.StartTime,
		&endTime,
		&device,
	)
	if err != nil {
		return nil, err
	}

	s.Silo = silo.String
	s.UserID = userID.String
	s.UserName = userName.String
	s.UserPhoto = userPhoto.String

	if endTime.Valid {
		t := endTime.Time
		s.EndTime = &t
	}
	if len(device) > 0 {
		var d model.DeviceInfo
		if err := json.Unmarshal(device, &d); err != nil {
			return nil, fmt.Errorf("decode device info for %s: %w", s.Key, err)
		}
		s.DeviceInfo = &d
	}

	return &s, nil
}

// scanSessions scans multiple rows into a slice of model.Session pointers.
func scanSessions(rows *sql.Rows) ([]*model.Session, error) {
	var sessions []*model.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

// nullTimePtr converts a *time.Time to a sql.NullTime.
func nullTimePtr(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// nullString converts a string to sql.NullString; empty string is null.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// jsonbBytes converts json.RawMessage to a []byte suitable for JSONB columns.
func jsonbBytes(m json.RawMessage) []byte {
	if len(m) == 0 {
		return nil
	}
	return []byte(m)
}

// deviceBytes marshals device info for a JSONB column; nil stays null.
func deviceBytes(d *model.DeviceInfo) []byte {
	if d == nil {
		return nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil
	}
	return b
}
