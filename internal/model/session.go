package model

import "time"

// Session summarizes one user visit: all events sharing a session key.
// EndTime stays nil while the session is open. Sessions are never deleted.
type Session struct {
	Key        string      `json:"key"`
	Silo       string      `json:"siloKey,omitempty"`
	UserID     string      `json:"userId,omitempty"`
	UserName   string      `json:"userName,omitempty"`
	UserPhoto  string      `json:"userPhoto,omitempty"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    *time.Time  `json:"endTime,omitempty"`
	DeviceInfo *DeviceInfo `json:"deviceInfo,omitempty"`
}

// DeviceInfo describes the client device that produced an event.
type DeviceInfo struct {
	IsMobile       bool   `json:"isMobile,omitempty"`
	BrowserName    string `json:"browserName,omitempty"`
	BrowserVersion string `json:"browserVersion,omitempty"`
	OS             string `json:"os,omitempty"`
	ScreenWidth    int    `json:"screenWidth,omitempty"`
	ScreenHeight   int    `json:"screenHeight,omitempty"`
}

// Merge overlays non-zero fields of other onto d, returning the result.
// Later events win field-by-field; zero values never override. IsMobile is
// sticky: once a session has been seen on a mobile device it stays mobile.
func (d *DeviceInfo) Merge(other *DeviceInfo) *DeviceInfo {
	if other == nil {
		return d
	}
	if d == nil {
		cp := *other
		return &cp
	}
	merged := *d
	if other.BrowserName != "" {
		merged.BrowserName = other.BrowserName
	}
	if other.BrowserVersion != "" {
		merged.BrowserVersion = other.BrowserVersion
	}
	if other.OS != "" {
		merged.OS = other.OS
	}
	if other.ScreenWidth != 0 {
		merged.ScreenWidth = other.ScreenWidth
	}
	if other.ScreenHeight != 0 {
		merged.ScreenHeight = other.ScreenHeight
	}
	if other.IsMobile {
		merged.IsMobile = true
	}
	return &merged
}
