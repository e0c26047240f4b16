package model

import (
	"testing"
	"time"
)

func TestEventFilter_Matches(t *testing.T) {
	ev := &Event{
		Key:        "ev-1",
		Time:       time.Now(),
		EventType:  "pageview",
		SessionKey: "sn-1",
		Silo:       "acme",
	}

	for _, tc := range []struct {
		name   string
		filter EventFilter
		want   bool
	}{
		{"empty filter matches all", EventFilter{}, true},
		{"event type match", EventFilter{EventType: "pageview"}, true},
		{"event type mismatch", EventFilter{EventType: "login"}, false},
		{"session match", EventFilter{SessionKey: "sn-1"}, true},
		{"session mismatch", EventFilter{SessionKey: "sn-2"}, false},
		{"silo match", EventFilter{Silo: "acme"}, true},
		{"silo mismatch", EventFilter{Silo: "other"}, false},
		{"all fields match", EventFilter{SessionKey: "sn-1", Silo: "acme", EventType: "pageview"}, true},
		{"one of three mismatches", EventFilter{SessionKey: "sn-1", Silo: "acme", EventType: "login"}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(ev); got != tc.want {
				t.Errorf("Matches() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeviceInfo_Merge(t *testing.T) {
	base := &DeviceInfo{
		BrowserName:    "Firefox",
		BrowserVersion: "130",
		OS:             "Linux",
		ScreenWidth:    1920,
		ScreenHeight:   1080,
	}

	t.Run("later non-zero fields win", func(t *testing.T) {
		got := base.Merge(&DeviceInfo{BrowserName: "Chrome", BrowserVersion: "140"})
		if got.BrowserName != "Chrome" || got.BrowserVersion != "140" {
			t.Errorf("browser fields not overridden: %+v", got)
		}
		if got.OS != "Linux" || got.ScreenWidth != 1920 {
			t.Errorf("unrelated fields changed: %+v", got)
		}
	})

	t.Run("zero values never override", func(t *testing.T) {
		got := base.Merge(&DeviceInfo{ScreenWidth: 0, OS: ""})
		if got.ScreenWidth != 1920 || got.OS != "Linux" {
			t.Errorf("zero values overrode earlier fields: %+v", got)
		}
	})

	t.Run("nil receiver copies other", func(t *testing.T) {
		var d *DeviceInfo
		got := d.Merge(&DeviceInfo{OS: "iOS", IsMobile: true})
		if got == nil || got.OS != "iOS" || !got.IsMobile {
			t.Errorf("got %+v", got)
		}
	})

	t.Run("nil other keeps receiver", func(t *testing.T) {
		if got := base.Merge(nil); got != base {
			t.Errorf("expected receiver back, got %+v", got)
		}
	})

	t.Run("mobile is sticky", func(t *testing.T) {
		mobile := base.Merge(&DeviceInfo{IsMobile: true})
		got := mobile.Merge(&DeviceInfo{BrowserName: "Safari"})
		if !got.IsMobile {
			t.Error("IsMobile reset by later merge")
		}
	})

	t.Run("merge does not mutate receiver", func(t *testing.T) {
		_ = base.Merge(&DeviceInfo{BrowserName: "Edge"})
		if base.BrowserName != "Firefox" {
			t.Errorf("receiver mutated: %+v", base)
		}
	})
}
