package eventlog

import (
	"github.com/groblegark/ksilo/internal/model"
)

// ApplyEvent folds one event into a session aggregate. A nil session starts a
// new one: the event's time becomes the start time and the event's identity
// fields seed the session. On an existing session, identity fields are
// set-once (the first event carrying a value wins) and device info merges
// field-by-field with later non-zero values winning.
func ApplyEvent(session *model.Session, e *model.Event) *model.Session {
	if session == nil {
		return &model.Session{
			Key:        e.SessionKey,
			Silo:       e.Silo,
			UserID:     e.UserID,
			UserName:   e.UserName,
			UserPhoto:  e.UserPhoto,
			StartTime:  e.Time,
			DeviceInfo: (*model.DeviceInfo)(nil).Merge(e.DeviceInfo),
		}
	}

	out := *session
	if out.Silo == "" {
		out.Silo = e.Silo
	}
	if out.UserID == "" {
		out.UserID = e.UserID
	}
	if out.UserName == "" {
		out.UserName = e.UserName
	}
	if out.UserPhoto == "" {
		out.UserPhoto = e.UserPhoto
	}
	if e.Time.Before(out.StartTime) {
		out.StartTime = e.Time
	}
	out.DeviceInfo = out.DeviceInfo.Merge(e.DeviceInfo)
	return &out
}
