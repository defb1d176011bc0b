// Package drift implements the policy drift monitor: a monotonic four-state
// escalation machine that watches acceptance-threshold movement against an
// externally supplied budget and permanently clamps the filter once the hard
// budget is exceeded. It is a one-way circuit breaker: recovery requires
// reconstructing the monitor from a new verified baseline, never automatic.
package drift

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sentra-io/sentra/internal/vecmath"
)

// Domain errors
var (
	ErrBadBudget = errors.New("invalid drift budget")
)

// State classifies threshold drift severity. Ordinal and monotonic
// non-decreasing for the lifetime of a monitor instance.
type State int

const (
	StateOK State = iota
	StateWarn
	StateDegraded
	StateHalt
)

// String returns the wire name of the state.
func (s State) String() string {
	switch s {
	case StateOK:
		return "ok"
	case StateWarn:
		return "warn"
	case StateDegraded:
		return "degraded"
	case StateHalt:
		return "halt"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// ParseState converts a wire name into a State.
func ParseState(name string) (State, error) {
	switch name {
	case "ok":
		return StateOK, nil
	case "warn":
		return StateWarn, nil
	case "degraded":
		return StateDegraded, nil
	case "halt":
		return StateHalt, nil
	default:
		return 0, fmt.Errorf("unknown drift state %q", name)
	}
}

// Budget is the externally supplied drift budget, produced by a verified
// policy bundle and read-only to the monitor.
type Budget struct {
	MaxDrift     float64
	WarnAt       float64
	DegradedAt   float64
	MinThreshold float64
	MaxThreshold float64
}

// Validate checks budget ordering: 0 < WarnAt < DegradedAt < MaxDrift and
// MinThreshold < MaxThreshold.
func (b Budget) Validate() error {
	if b.MaxDrift <= 0 {
		return fmt.Errorf("max_drift must be positive: %w", ErrBadBudget)
	}
	if b.WarnAt <= 0 || b.WarnAt >= b.DegradedAt || b.DegradedAt >= b.MaxDrift {
		return fmt.Errorf("want 0 < warn_at < degraded_at < max_drift: %w", ErrBadBudget)
	}
	if b.MinThreshold >= b.MaxThreshold {
		return fmt.Errorf("min_threshold must be below max_threshold: %w", ErrBadBudget)
	}
	return nil
}

// Decision is the outcome of one Evaluate call.
type Decision struct {
	State            State
	Drift            float64
	Ratio            float64 // drift as a fraction of the hard budget
	Action           string  // "none" or "clamp"
	ClampedThreshold float64
}

// Actions reported in Decision.
const (
	ActionNone  = "none"
	ActionClamp = "clamp"
)

// Monitor tracks drift of one filter's threshold from a baseline captured at
// construction. Bound 1:1 to a filter instance.
type Monitor struct {
	mu       sync.Mutex
	budget   Budget
	baseline float64
	state    State
	halted   bool
}

// NewMonitor captures the baseline threshold and validates the budget.
func NewMonitor(budget Budget, baselineThreshold float64) (*Monitor, error) {
	if err := budget.Validate(); err != nil {
		return nil, err
	}
	return &Monitor{budget: budget, baseline: baselineThreshold}, nil
}

// Baseline returns the threshold captured at construction.
func (m *Monitor) Baseline() float64 { return m.baseline }

// Halted reports whether the monitor has latched into HALT.
func (m *Monitor) Halted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.halted
}

// State returns the current (monotonic) drift state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restore replaces the monitor state with a persisted value. Escalation stays
// monotonic across restarts: a restored HALT latches exactly as a live one.
func (m *Monitor) Restore(s State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s > m.state {
		m.state = s
	}
	if m.state == StateHalt {
		m.halted = true
	}
}

// Evaluate classifies the drift of newThreshold from the baseline. The stored
// state only ever escalates: a lower fresh classification is ignored once a
// higher state has been recorded. The first transition into HALT latches the
// monitor; from then on every call returns a clamp action pinning the filter
// to the budget-clamped baseline.
func (m *Monitor) Evaluate(newThreshold, emaValue float64) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	drift := newThreshold - m.baseline
	if drift < 0 {
		drift = -drift
	}

	fresh := StateOK
	switch {
	case drift > m.budget.MaxDrift:
		fresh = StateHalt
	case drift > m.budget.DegradedAt:
		fresh = StateDegraded
	case drift > m.budget.WarnAt:
		fresh = StateWarn
	}

	if fresh > m.state {
		m.state = fresh
	}

	clamped := vecmath.Clamp(m.baseline, m.budget.MinThreshold, m.budget.MaxThreshold)
	if m.state == StateHalt && !m.halted {
		m.halted = true
	}

	action := ActionNone
	if m.halted {
		action = ActionClamp
	}

	return Decision{
		State:            m.state,
		Drift:            drift,
		Ratio:            drift / m.budget.MaxDrift,
		Action:           action,
		ClampedThreshold: clamped,
	}
}
