// Package synaptic implements the multi-level decaying synaptic memory: three
// same-dimension vectors with per-level exponential decay and threshold-gated
// consolidation from fast to slow levels.
package synaptic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sentra-io/sentra/internal/vecmath"
)

// Domain errors
var (
	ErrBadConfig = errors.New("invalid synaptic config")
)

// Overhead multiplier applied to the raw vector footprint when reporting
// memory usage. Empirically measured at 1.4x (slice headers, mutex, padding).
const usageOverheadFactor = 1.4

// Config holds decay rates and consolidation thresholds for the three levels.
// Lambda1 > Lambda2 > Lambda3: level 1 forgets fastest.
type Config struct {
	Dim              int
	Lambda1          float64
	Lambda2          float64
	Lambda3          float64
	Theta1           float64 // consolidate L1 -> L2 when norm(L1) exceeds this
	Theta2           float64 // consolidate L2 -> L3 when norm(L2) exceeds this
	TransferFraction float64 // fraction of the source level moved on consolidation
}

// DefaultConfig returns decay and consolidation settings tuned for
// conversational event rates.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:              dim,
		Lambda1:          0.30,
		Lambda2:          0.05,
		Lambda3:          0.01,
		Theta1:           5.0,
		Theta2:           10.0,
		TransferFraction: 0.5,
	}
}

func (c Config) validate() error {
	if c.Dim <= 0 {
		return fmt.Errorf("dim must be positive (got %d): %w", c.Dim, ErrBadConfig)
	}
	if !(c.Lambda1 > c.Lambda2 && c.Lambda2 > c.Lambda3) {
		return fmt.Errorf("decay rates must satisfy lambda1 > lambda2 > lambda3: %w", ErrBadConfig)
	}
	for _, l := range []float64{c.Lambda1, c.Lambda2, c.Lambda3} {
		if l <= 0 || l >= 1 {
			return fmt.Errorf("decay rates must be in (0, 1): %w", ErrBadConfig)
		}
	}
	if c.Theta1 <= 0 || c.Theta2 <= 0 {
		return fmt.Errorf("consolidation thresholds must be positive: %w", ErrBadConfig)
	}
	if c.TransferFraction <= 0 || c.TransferFraction > 1 {
		return fmt.Errorf("transfer fraction must be in (0, 1]: %w", ErrBadConfig)
	}
	return nil
}

// Memory owns the three level vectors exclusively. All mutation goes through
// Update; State hands out copies so callers cannot reach the live arrays.
type Memory struct {
	mu     sync.Mutex
	cfg    Config
	l1     []float32
	l2     []float32
	l3     []float32
	events uint64
}

// NewMemory creates a zeroed three-level memory of the configured dimension.
func NewMemory(cfg Config) (*Memory, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Memory{
		cfg: cfg,
		l1:  make([]float32, cfg.Dim),
		l2:  make([]float32, cfg.Dim),
		l3:  make([]float32, cfg.Dim),
	}, nil
}

// Dim returns the fixed vector dimension.
func (m *Memory) Dim() int { return m.cfg.Dim }

// Update applies decay-then-accumulate on every level, then runs threshold-gated
// consolidation. A dimension mismatch or non-finite event is rejected before
// any level is touched.
func (m *Memory) Update(event []float32) error {
	if err := vecmath.Validate(event, m.cfg.Dim); err != nil {
		return fmt.Errorf("synaptic update: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	decayAccumulate(m.l1, event, m.cfg.Lambda1)
	decayAccumulate(m.l2, event, m.cfg.Lambda2)
	decayAccumulate(m.l3, event, m.cfg.Lambda3)

	if vecmath.Norm(m.l1) > m.cfg.Theta1 {
		transfer(m.l1, m.l2, m.cfg.TransferFraction)
	}
	if vecmath.Norm(m.l2) > m.cfg.Theta2 {
		transfer(m.l2, m.l3, m.cfg.TransferFraction)
	}
	m.events++
	return nil
}

// State returns copies of the three level vectors (L1, L2, L3).
func (m *Memory) State() (l1, l2, l3 []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.l1), clone(m.l2), clone(m.l3)
}

// Events returns the number of accepted updates applied so far.
func (m *Memory) Events() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

// Restore replaces the level vectors and event count with persisted values.
// Used when resuming from a snapshot; each vector must match the configured
// dimension.
func (m *Memory) Restore(l1, l2, l3 []float32, events uint64) error {
	for _, v := range [][]float32{l1, l2, l3} {
		if err := vecmath.Validate(v, m.cfg.Dim); err != nil {
			return fmt.Errorf("synaptic restore: %w", err)
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copy(m.l1, l1)
	copy(m.l2, l2)
	copy(m.l3, l3)
	m.events = events
	return nil
}

// MemoryUsageBytes reports the raw vector footprint times a fixed overhead
// multiplier. This is a capacity-planning estimate, not a hard limit.
func (m *Memory) MemoryUsageBytes() uint64 {
	raw := 3 * m.cfg.Dim * 4
	return uint64(float64(raw) * usageOverheadFactor)
}

// decayAccumulate applies level = level*(1-lambda) + event in place.
func decayAccumulate(level, event []float32, lambda float64) {
	keep := float32(1 - lambda)
	for i := range level {
		level[i] = level[i]*keep + event[i]
	}
}

// transfer moves fraction of src into dst, removing it from src.
func transfer(src, dst []float32, fraction float64) {
	f := float32(fraction)
	for i := range src {
		moved := src[i] * f
		dst[i] += moved
		src[i] -= moved
	}
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
