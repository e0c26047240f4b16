// Package sessions supplies the idle-closure signal for open sessions.
//
// The Tracker maintains an in-memory map of sessions that have produced
// events recently, updated by the server as events arrive. A background
// sweeper closes sessions that have gone idle past a configurable
// threshold by invoking the OnIdle callback, which is wired to the
// event log's CloseSession path. Session end times always come from the
// last recorded event, not from the sweep time, so a late sweep never
// inflates a session's duration.
package sessions

import (
	"log/slog"
	"sync"
	"time"
)

// SweepConfig configures the background idle sweeper.
type SweepConfig struct {
	// IdleThreshold is how long a session must be silent before it is
	// considered over. Default: 30 minutes.
	IdleThreshold time.Duration

	// SweepInterval is how often the sweeper scans for idle sessions.
	// Default: 60 seconds.
	SweepInterval time.Duration

	// OnIdle is called for each session newly found idle, outside the
	// lock. Blocking calls are safe.
	OnIdle func(sessionKey string)
}

// Tracker maintains last-activity timestamps for open sessions.
type Tracker struct {
	mu     sync.Mutex
	active map[string]time.Time
	logger *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// New creates an empty tracker.
func New(logger *slog.Logger) *Tracker {
	return &Tracker{
		active: make(map[string]time.Time),
		logger: logger,
	}
}

// Touch records activity for a session. Called by the server whenever an
// event carrying a session key is appended.
func (t *Tracker) Touch(sessionKey string, at time.Time) {
	if sessionKey == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if last, ok := t.active[sessionKey]; !ok || at.After(last) {
		t.active[sessionKey] = at
	}
}

// Forget drops a session from tracking, used when a client closes its
// session explicitly so the sweeper does not close it a second time.
func (t *Tracker) Forget(sessionKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, sessionKey)
}

// Active returns the number of sessions currently tracked.
func (t *Tracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}

// StartSweeper launches the background goroutine that closes idle
// sessions. Call Stop to shut it down.
func (t *Tracker) StartSweeper(cfg *SweepConfig) {
	if cfg == nil {
		cfg = &SweepConfig{}
	}
	if cfg.IdleThreshold == 0 {
		cfg.IdleThreshold = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 60 * time.Second
	}

	t.stop = make(chan struct{})
	t.done = make(chan struct{})

	go t.sweepLoop(cfg)
	t.logger.Info("sessions: idle sweeper started",
		"idle_threshold", cfg.IdleThreshold,
		"sweep_interval", cfg.SweepInterval)
}

// Stop shuts down the sweeper goroutine.
func (t *Tracker) Stop() {
	if t.stop != nil {
		close(t.stop)
		<-t.done
		t.stop = nil
		t.done = nil
	}
}

func (t *Tracker) sweepLoop(cfg *SweepConfig) {
	defer close(t.done)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep(cfg, time.Now())
		}
	}
}

func (t *Tracker) sweep(cfg *SweepConfig, now time.Time) {
	var idle []string

	t.mu.Lock()
	for key, last := range t.active {
		if now.Sub(last) > cfg.IdleThreshold {
			idle = append(idle, key)
			delete(t.active, key)
		}
	}
	t.mu.Unlock()

	for _, key := range idle {
		t.logger.Info("sessions: closing idle session",
			"session", key, "threshold", cfg.IdleThreshold)
		if cfg.OnIdle != nil {
			cfg.OnIdle(key)
		}
	}
}
