package model

import (
	"encoding/json"
	"time"
)

// Event is an immutable, append-only activity record. Events are never
// mutated or deleted after creation.
type Event struct {
	Key        string          `json:"key"`
	Time       time.Time       `json:"time"`
	EventType  string          `json:"eventType"`
	UserID     string          `json:"userId,omitempty"`
	UserName   string          `json:"userName,omitempty"`
	UserPhoto  string          `json:"userPhoto,omitempty"`
	SessionKey string          `json:"sessionKey,omitempty"`
	Silo       string          `json:"siloKey,omitempty"`
	Structure  string          `json:"structureKey,omitempty"`
	Instance   string          `json:"instanceKey,omitempty"`
	DeviceInfo *DeviceInfo     `json:"deviceInfo,omitempty"`
	Extra      json.RawMessage `json:"extra,omitempty"`
}

// EventFilter holds criteria for querying the event log. Empty fields impose
// no constraint; non-empty fields are ANDed.
type EventFilter struct {
	SessionKey string `json:"sessionKey,omitempty"`
	Silo       string `json:"siloKey,omitempty"`
	EventType  string `json:"eventType,omitempty"`
}

// Matches reports whether the event satisfies every non-empty filter field.
func (f EventFilter) Matches(e *Event) bool {
	if f.SessionKey != "" && e.SessionKey != f.SessionKey {
		return false
	}
	if f.Silo != "" && e.Silo != f.Silo {
		return false
	}
	if f.EventType != "" && e.EventType != f.EventType {
		return false
	}
	return true
}
