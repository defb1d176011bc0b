// Package moral implements the adaptive acceptance filter. A fast path
// compares a declared moral score against the current threshold with no
// allocation and no bookkeeping; the adaptation path moves the threshold by a
// bounded step driven by an exponential moving average of the acceptance
// rate, under the supervision of the policy drift monitor.
package moral

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/sentra-io/sentra/internal/drift"
	"github.com/sentra-io/sentra/internal/vecmath"
)

// Domain errors
var (
	ErrBadConfig = errors.New("invalid filter config")
)

// Defaults for the adaptation loop.
const (
	DefaultAlpha      = 0.1
	DefaultGain       = 0.1
	DefaultDeadBand   = 0.05
	DefaultAdaptDelta = 0.05
	targetAcceptRate  = 0.5
)

// Config tunes the filter. MinThreshold/MaxThreshold are hard bounds enforced
// after every adaptation step regardless of input.
type Config struct {
	InitialThreshold float64
	MinThreshold     float64
	MaxThreshold     float64
	Alpha            float64 // EMA smoothing factor
	Gain             float64 // proportional gain on the accept-rate error
	DeadBand         float64 // no adaptation while |ema - 0.5| is inside this band
	AdaptDelta       float64 // maximum threshold movement per Adapt call
	Diagnostics      bool    // log threshold movement on every Adapt
}

// DefaultConfig returns the standard adaptation settings around an initial
// threshold of 0.5.
func DefaultConfig() Config {
	return Config{
		InitialThreshold: 0.5,
		MinThreshold:     0.1,
		MaxThreshold:     0.9,
		Alpha:            DefaultAlpha,
		Gain:             DefaultGain,
		DeadBand:         DefaultDeadBand,
		AdaptDelta:       DefaultAdaptDelta,
	}
}

func (c Config) validate() error {
	if c.MinThreshold >= c.MaxThreshold {
		return fmt.Errorf("min threshold must be below max: %w", ErrBadConfig)
	}
	if c.InitialThreshold < c.MinThreshold || c.InitialThreshold > c.MaxThreshold {
		return fmt.Errorf("initial threshold %v outside [%v, %v]: %w",
			c.InitialThreshold, c.MinThreshold, c.MaxThreshold, ErrBadConfig)
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("alpha must be in (0, 1): %w", ErrBadConfig)
	}
	if c.AdaptDelta <= 0 {
		return fmt.Errorf("adapt delta must be positive: %w", ErrBadConfig)
	}
	if c.Gain <= 0 || c.DeadBand < 0 {
		return fmt.Errorf("gain must be positive and dead band non-negative: %w", ErrBadConfig)
	}
	return nil
}

// Decision is the fast-path outcome for one request. Value type, never stored.
type Decision struct {
	Accepted  bool
	Score     float64
	Threshold float64
}

// ThresholdState is a read-only snapshot of the filter's adaptive state.
type ThresholdState struct {
	Threshold     float64
	EMAAcceptRate float64
	DriftLockdown bool
}

// Filter owns one ThresholdState. The sole mutator is Adapt; once the drift
// monitor halts, Adapt becomes a no-op forever and the threshold stays pinned
// at the monitor's clamped safe value.
type Filter struct {
	mu        sync.Mutex
	cfg       Config
	monitor   *drift.Monitor
	threshold float64
	ema       float64
	lockdown  bool
}

// NewFilter builds a filter bound 1:1 to the given drift monitor. The monitor
// must have been constructed with this filter's initial threshold as its
// baseline.
func NewFilter(cfg Config, monitor *drift.Monitor) (*Filter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if monitor == nil {
		return nil, fmt.Errorf("drift monitor is required: %w", ErrBadConfig)
	}
	return &Filter{
		cfg:       cfg,
		monitor:   monitor,
		threshold: cfg.InitialThreshold,
		ema:       targetAcceptRate,
	}, nil
}

// Filter is the fast path: accept iff score >= threshold. No allocation, no
// drift bookkeeping.
func (f *Filter) Filter(score float64) Decision {
	f.mu.Lock()
	th := f.threshold
	f.mu.Unlock()
	return Decision{Accepted: score >= th, Score: score, Threshold: th}
}

// Adapt feeds one accept/reject outcome into the EMA and moves the threshold
// by at most AdaptDelta, clamped to the configured bounds, then reports the
// movement to the drift monitor. A HALT verdict locks the filter down
// permanently.
func (f *Filter) Adapt(accepted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.lockdown {
		return
	}

	sample := 0.0
	if accepted {
		sample = 1.0
	}
	f.ema = f.ema*(1-f.cfg.Alpha) + sample*f.cfg.Alpha

	old := f.threshold
	errVal := f.ema - targetAcceptRate
	if errVal > f.cfg.DeadBand || errVal < -f.cfg.DeadBand {
		delta := vecmath.Clamp(errVal*f.cfg.Gain, -f.cfg.AdaptDelta, f.cfg.AdaptDelta)
		f.threshold = vecmath.Clamp(f.threshold+delta, f.cfg.MinThreshold, f.cfg.MaxThreshold)
	}

	dec := f.monitor.Evaluate(f.threshold, f.ema)
	if dec.Action == drift.ActionClamp {
		f.lockdown = true
		f.threshold = dec.ClampedThreshold
	}

	if f.cfg.Diagnostics {
		log.Debug().
			Float64("threshold_old", old).
			Float64("threshold_new", f.threshold).
			Float64("ema_accept_rate", f.ema).
			Str("drift_state", dec.State.String()).
			Bool("lockdown", f.lockdown).
			Msg("moral filter adapted")
	}
}

// Restore replaces the adaptive state with persisted values. The threshold is
// clamped to the configured bounds; a restored lockdown stays latched.
func (f *Filter) Restore(state ThresholdState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = vecmath.Clamp(state.Threshold, f.cfg.MinThreshold, f.cfg.MaxThreshold)
	f.ema = state.EMAAcceptRate
	f.lockdown = state.DriftLockdown
}

// State returns a snapshot of the adaptive state.
func (f *Filter) State() ThresholdState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ThresholdState{
		Threshold:     f.threshold,
		EMAAcceptRate: f.ema,
		DriftLockdown: f.lockdown,
	}
}
