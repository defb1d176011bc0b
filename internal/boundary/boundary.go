// Package boundary implements the safety boundary tracker: a per-caller
// bounded sliding window of denial outcomes that quarantines a caller after
// repeated denials across any guardrail. Windows are operation-count based,
// not wall-clock, so behavior is deterministic under test and immune to clock
// manipulation.
package boundary

import (
	"errors"
	"fmt"
	"sync"
)

// Domain errors
var (
	ErrBadConfig = errors.New("invalid boundary tracker config")
)

// Defaults for the sliding window.
const (
	DefaultWindow  = 10
	DefaultTrigger = 3
)

// Actions reported in Enforcement.
const (
	ActionNone       = "none"
	ActionQuarantine = "quarantine"
)

// Enforcement is the outcome of recording one decision.
type Enforcement struct {
	Triggered bool   `json:"triggered"`
	Action    string `json:"action"`
	HitCount  int    `json:"hit_count"`
}

// Tracker keeps one sliding window per caller key.
type Tracker struct {
	mu      sync.Mutex
	window  int
	trigger int
	callers map[string]*callerWindow
}

// callerWindow is a fixed-size ring of denial booleans.
type callerWindow struct {
	denials []bool
	head    int
	size    int
	hits    int
}

// NewTracker creates a tracker with the given window size and trigger count.
func NewTracker(window, trigger int) (*Tracker, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive (got %d): %w", window, ErrBadConfig)
	}
	if trigger <= 0 || trigger > window {
		return nil, fmt.Errorf("trigger must be in [1, window] (got %d): %w", trigger, ErrBadConfig)
	}
	return &Tracker{
		window:  window,
		trigger: trigger,
		callers: make(map[string]*callerWindow),
	}, nil
}

// RecordDecision pushes the denial outcome of one check into the caller's
// window (oldest entry drops when full) and reports quarantine when the
// denial count within the window reaches the trigger.
func (t *Tracker) RecordDecision(key string, allowed bool) Enforcement {
	t.mu.Lock()
	defer t.mu.Unlock()

	w, ok := t.callers[key]
	if !ok {
		w = &callerWindow{denials: make([]bool, t.window)}
		t.callers[key] = w
	}

	denied := !allowed
	if w.size == len(w.denials) {
		if w.denials[w.head] {
			w.hits--
		}
	} else {
		w.size++
	}
	w.denials[w.head] = denied
	if denied {
		w.hits++
	}
	w.head = (w.head + 1) % len(w.denials)

	if w.hits >= t.trigger {
		return Enforcement{Triggered: true, Action: ActionQuarantine, HitCount: w.hits}
	}
	return Enforcement{Action: ActionNone, HitCount: w.hits}
}

// HitCount returns the current denial count in the caller's window.
func (t *Tracker) HitCount(key string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.callers[key]; ok {
		return w.hits
	}
	return 0
}

// Quarantined reports whether the caller's window currently meets the trigger.
func (t *Tracker) Quarantined(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if w, ok := t.callers[key]; ok {
		return w.hits >= t.trigger
	}
	return false
}

// Reset clears the caller's window. Operator escape hatch: quarantine does not
// expire on its own.
func (t *Tracker) Reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.callers, key)
}

// Callers returns the number of tracked caller keys.
func (t *Tracker) Callers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.callers)
}
