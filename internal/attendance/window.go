package attendance

import (
	"sync"
	"time"
)

// WindowState is the per-session check-in window state machine:
// NotStarted -> Open -> Closed, with Closed terminal.
type WindowState int

const (
	WindowNotStarted WindowState = iota
	WindowOpen
	WindowClosed
)

func (s WindowState) String() string {
	switch s {
	case WindowOpen:
		return "open"
	case WindowClosed:
		return "closed"
	default:
		return "not_started"
	}
}

// Tracker owns the window state for one meeting session. The session's
// ticker drives it; the QR protocol reads it. Transitions only move
// forward: once Tick has observed the close instant the tracker stays
// closed no matter what the clock does afterwards.
type Tracker struct {
	opensAt  time.Time
	closesAt time.Time

	mu    sync.Mutex
	state WindowState
}

// NewTracker builds a tracker for a meeting scheduled at scheduledAt with
// a check-in window of duration w.
func NewTracker(scheduledAt time.Time, w time.Duration) *Tracker {
	return &Tracker{
		opensAt:  scheduledAt,
		closesAt: scheduledAt.Add(w),
		state:    WindowNotStarted,
	}
}

// Tick advances the state machine to the given instant. justClosed is true
// exactly once, on the tick that crosses the close boundary.
func (t *Tracker) Tick(now time.Time) (state WindowState, justClosed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == WindowClosed {
		return WindowClosed, false
	}
	if !now.Before(t.closesAt) {
		justClosed = true
		t.state = WindowClosed
	} else if !now.Before(t.opensAt) && t.state == WindowNotStarted {
		t.state = WindowOpen
	}
	return t.state, justClosed
}

// State returns the last observed state without advancing the machine.
func (t *Tracker) State() WindowState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Remaining is the time left until close, floored at zero; used for the
// countdown display.
func (t *Tracker) Remaining(now time.Time) time.Duration {
	if t.State() == WindowClosed {
		return 0
	}
	d := t.closesAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// ClosesAt exposes the close instant for display.
func (t *Tracker) ClosesAt() time.Time {
	return t.closesAt
}
