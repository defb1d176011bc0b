// Package phase provides the wake/sleep phase oracle consumed by the event
// pipeline. The engine only depends on the Oracle interface; the concrete
// rhythm (a time-driven cycle in production, a fixed value in tests) is an
// external wiring decision.
package phase

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrBadPeriod is returned for non-positive cycle periods.
var ErrBadPeriod = errors.New("cycle period must be positive")

// Oracle reports the current rhythm phase in [0, 1).
type Oracle interface {
	Phase() float64
}

// Cycle is a time-driven oracle: the phase is the fraction of the period
// elapsed since the epoch, wrapping at 1.
type Cycle struct {
	period time.Duration
	epoch  time.Time
	now    func() time.Time
}

// NewCycle creates a cycle oracle with the given period, starting now.
func NewCycle(period time.Duration) (*Cycle, error) {
	if period <= 0 {
		return nil, fmt.Errorf("period %v: %w", period, ErrBadPeriod)
	}
	return &Cycle{period: period, epoch: time.Now(), now: time.Now}, nil
}

// Phase returns the elapsed fraction of the current cycle.
func (c *Cycle) Phase() float64 {
	elapsed := c.now().Sub(c.epoch) % c.period
	if elapsed < 0 {
		elapsed += c.period
	}
	return float64(elapsed) / float64(c.period)
}

// Window is the receptive band around the oracle's current phase. Events
// whose phase falls outside the band are rejected before any filtering or
// memory mutation happens.
type Window struct {
	Tolerance float64
}

// Accepts reports whether eventPhase lies within the band around current.
// A tolerance of 1 or more accepts every phase.
func (w Window) Accepts(current, eventPhase float64) bool {
	d := current - eventPhase
	if d < 0 {
		d = -d
	}
	return d <= w.Tolerance
}

// Fixed is an oracle pinned to a constant phase. Used in tests and in
// deployments that disable the rhythm.
type Fixed struct {
	mu    sync.Mutex
	value float64
}

// NewFixed returns an oracle that always reports value.
func NewFixed(value float64) *Fixed {
	return &Fixed{value: value}
}

// Phase returns the pinned value.
func (f *Fixed) Phase() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set repins the oracle. Test helper.
func (f *Fixed) Set(value float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.value = value
}
