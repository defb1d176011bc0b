// Package engine orchestrates the event pipeline: phase gating, moral
// filtering, provenance-gated memory writes, threshold adaptation, drift
// supervision, and per-caller boundary enforcement. One Engine owns one
// synaptic memory, one ring store, one filter with its drift monitor, and one
// boundary tracker; everything is dependency-injected, there is no
// process-wide singleton.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sentra-io/sentra/internal/boundary"
	"github.com/sentra-io/sentra/internal/drift"
	"github.com/sentra-io/sentra/internal/llm"
	"github.com/sentra-io/sentra/internal/moral"
	sentraotel "github.com/sentra-io/sentra/internal/otel"
	"github.com/sentra-io/sentra/internal/pelm"
	"github.com/sentra-io/sentra/internal/phase"
	"github.com/sentra-io/sentra/internal/policy"
	"github.com/sentra-io/sentra/internal/provenance"
	"github.com/sentra-io/sentra/internal/snapshot"
	"github.com/sentra-io/sentra/internal/synaptic"
	"github.com/sentra-io/sentra/internal/vecmath"
)

var tracer = sentraotel.Tracer("github.com/sentra-io/sentra/internal/engine")

// Domain errors
var (
	ErrBadDeps           = errors.New("incomplete engine dependencies")
	ErrCallerQuarantined = errors.New("caller is quarantined")
	ErrNoVector          = errors.New("event has no vector and no embedder is configured")
	ErrNoProvider        = errors.New("no generation provider is configured")
	ErrCallerKeyRequired = errors.New("caller key is required")
	ErrScoreOutOfRange   = errors.New("moral score must be in [0, 1]")
	ErrEventPhaseRange   = errors.New("event phase must be in [0, 1]")
	ErrSnapshotsDisabled = errors.New("no snapshot store is configured")
)

// Deps are the injected collaborators. Synaptic, Ring, Filter, Monitor,
// Boundary, and Oracle are required; Policy, Embedder, Provider, and
// Snapshots are optional capabilities.
type Deps struct {
	Synaptic  *synaptic.Memory
	Ring      *pelm.Store
	Filter    *moral.Filter
	Monitor   *drift.Monitor
	Boundary  *boundary.Tracker
	Oracle    phase.Oracle
	Admission provenance.AdmissionPolicy

	Policy    *policy.Engine
	Embedder  llm.Embedder
	Provider  llm.Provider
	Snapshots *snapshot.Store

	// PhaseTolerance is the receptive window around the oracle phase.
	// Zero means phase gating is effectively exact-phase; 1 disables gating.
	PhaseTolerance float64

	// GenerationModel and GenerationConfidence govern how backend output is
	// fed back through the pipeline. A confidence below the quarantine line
	// keeps generated memories quarantined by default.
	GenerationModel      string
	GenerationConfidence float64
}

// Engine is the event pipeline orchestrator.
type Engine struct {
	synaptic  *synaptic.Memory
	ring      *pelm.Store
	filter    *moral.Filter
	monitor   *drift.Monitor
	boundary  *boundary.Tracker
	oracle    phase.Oracle
	admission provenance.AdmissionPolicy
	window    phase.Window

	policy    *policy.Engine
	embedder  llm.Embedder
	provider  llm.Provider
	snapshots *snapshot.Store

	generationModel      string
	generationConfidence float64
}

// New validates the dependency set and builds an engine. The synaptic memory
// and the ring must share one dimension.
func New(deps Deps) (*Engine, error) {
	switch {
	case deps.Synaptic == nil:
		return nil, fmt.Errorf("synaptic memory: %w", ErrBadDeps)
	case deps.Ring == nil:
		return nil, fmt.Errorf("ring store: %w", ErrBadDeps)
	case deps.Filter == nil:
		return nil, fmt.Errorf("moral filter: %w", ErrBadDeps)
	case deps.Monitor == nil:
		return nil, fmt.Errorf("drift monitor: %w", ErrBadDeps)
	case deps.Boundary == nil:
		return nil, fmt.Errorf("boundary tracker: %w", ErrBadDeps)
	case deps.Oracle == nil:
		return nil, fmt.Errorf("phase oracle: %w", ErrBadDeps)
	}
	if deps.Synaptic.Dim() != deps.Ring.Dim() {
		return nil, fmt.Errorf("synaptic dim %d != ring dim %d: %w",
			deps.Synaptic.Dim(), deps.Ring.Dim(), ErrBadDeps)
	}
	if deps.Embedder != nil && deps.Embedder.Dim() != deps.Ring.Dim() {
		return nil, fmt.Errorf("embedder dim %d != ring dim %d: %w",
			deps.Embedder.Dim(), deps.Ring.Dim(), ErrBadDeps)
	}
	if deps.PhaseTolerance < 0 {
		return nil, fmt.Errorf("phase tolerance must be non-negative: %w", ErrBadDeps)
	}

	genConfidence := deps.GenerationConfidence
	if genConfidence == 0 {
		genConfidence = 0.6
	}
	return &Engine{
		synaptic:             deps.Synaptic,
		ring:                 deps.Ring,
		filter:               deps.Filter,
		monitor:              deps.Monitor,
		boundary:             deps.Boundary,
		oracle:               deps.Oracle,
		admission:            deps.Admission,
		window:               phase.Window{Tolerance: deps.PhaseTolerance},
		policy:               deps.Policy,
		embedder:             deps.Embedder,
		provider:             deps.Provider,
		snapshots:            deps.Snapshots,
		generationModel:      deps.GenerationModel,
		generationConfidence: genConfidence,
	}, nil
}

// Event is one candidate interaction entering the pipeline. Vector may be nil
// when Text is set and an embedder is configured.
type Event struct {
	CallerKey string
	Text      string
	Vector    []float32
	Phase     float64
	Score     float64
	Prov      provenance.Provenance
}

// Snapshot is the pipeline outcome for one event.
type Snapshot struct {
	EventID       string               `json:"event_id"`
	Accepted      bool                 `json:"accepted"`
	PhaseRejected bool                 `json:"phase_rejected"`
	PolicyDenied  bool                 `json:"policy_denied"`
	Reasons       []string             `json:"reasons,omitempty"`
	Score         float64              `json:"score"`
	Threshold     float64              `json:"threshold"`
	MemoryIndex   int                  `json:"memory_index"`
	Quarantined   bool                 `json:"quarantined"`
	DriftState    string               `json:"drift_state"`
	Enforcement   boundary.Enforcement `json:"enforcement"`
}

// ProcessEvent runs one event through the full pipeline. Rejected events
// (phase, moral, policy, or admission) never mutate the synaptic levels or
// the ring; adaptation and boundary accounting run on every non-phase-gated
// outcome.
func (e *Engine) ProcessEvent(ctx context.Context, ev Event) (*Snapshot, error) {
	ctx, span := tracer.Start(ctx, "engine.process_event",
		trace.WithAttributes(attribute.String("source", ev.Prov.Source.String())))
	defer span.End()

	if ev.CallerKey == "" {
		return nil, ErrCallerKeyRequired
	}
	if e.boundary.Quarantined(ev.CallerKey) {
		return nil, fmt.Errorf("caller %q: %w", ev.CallerKey, ErrCallerQuarantined)
	}
	if ev.Score < 0 || ev.Score > 1 {
		return nil, fmt.Errorf("score %v: %w", ev.Score, ErrScoreOutOfRange)
	}
	if ev.Phase < 0 || ev.Phase > 1 {
		return nil, fmt.Errorf("phase %v: %w", ev.Phase, ErrEventPhaseRange)
	}
	if err := ev.Prov.Validate(); err != nil {
		return nil, fmt.Errorf("event provenance: %w", err)
	}

	vector := ev.Vector
	if vector == nil {
		if e.embedder == nil || ev.Text == "" {
			return nil, ErrNoVector
		}
		var err error
		vector, err = e.embedder.Embed(ctx, ev.Text)
		if err != nil {
			return nil, fmt.Errorf("embedding event text: %w", err)
		}
	}
	if err := vecmath.Validate(vector, e.ring.Dim()); err != nil {
		return nil, fmt.Errorf("event vector: %w", err)
	}

	snap := &Snapshot{
		EventID:     "evt_" + uuid.New().String()[:12],
		Score:       ev.Score,
		MemoryIndex: pelm.RejectedIndex,
	}
	span.SetAttributes(attribute.String("engine.event_id", snap.EventID))

	if !e.window.Accepts(e.oracle.Phase(), ev.Phase) {
		snap.PhaseRejected = true
		snap.Threshold = e.filter.State().Threshold
		e.finish(ctx, span, ev.CallerKey, snap)
		return snap, nil
	}

	dec := e.filter.Filter(ev.Score)
	snap.Accepted = dec.Accepted
	snap.Threshold = dec.Threshold

	if dec.Accepted {
		if err := e.admitWrite(ctx, vector, ev, snap); err != nil {
			return nil, err
		}
	}

	e.filter.Adapt(dec.Accepted)
	e.finish(ctx, span, ev.CallerKey, snap)
	return snap, nil
}

// admitWrite runs the optional policy evaluator and, when allowed, writes the
// event into both memories. Admission rejection by the ring is a normal
// outcome reported through the snapshot, not an error.
func (e *Engine) admitWrite(ctx context.Context, vector []float32, ev Event, snap *Snapshot) error {
	if e.policy != nil {
		dec, err := e.policy.EvaluateWrite(ctx, ev.Prov)
		if err != nil {
			return fmt.Errorf("policy evaluation: %w", err)
		}
		if !dec.Allowed {
			snap.PolicyDenied = true
			snap.Reasons = dec.Reasons
			return nil
		}
	}

	idx, err := e.ring.Entangle(ctx, vector, ev.Phase, ev.Prov)
	if errors.Is(err, pelm.ErrNotAdmitted) {
		snap.Reasons = append(snap.Reasons, err.Error())
		return nil
	}
	if err != nil {
		return err
	}

	if err := e.synaptic.Update(vector); err != nil {
		return fmt.Errorf("synaptic update: %w", err)
	}
	snap.MemoryIndex = idx
	_, snap.Quarantined = e.admission.Admit(ev.Prov)
	return nil
}

// finish records the boundary decision and drift state and bumps counters.
func (e *Engine) finish(ctx context.Context, span trace.Span, callerKey string, snap *Snapshot) {
	snap.Enforcement = e.boundary.RecordDecision(callerKey, snap.Accepted)
	snap.DriftState = e.monitor.State().String()

	eventsTotal.Add(ctx, 1)
	if snap.Accepted {
		acceptedTotal.Add(ctx, 1)
	} else {
		rejectedTotal.Add(ctx, 1)
	}
	span.SetAttributes(
		attribute.Bool("engine.accepted", snap.Accepted),
		attribute.Bool("engine.phase_rejected", snap.PhaseRejected),
		attribute.String("engine.drift_state", snap.DriftState),
	)
}

// Retrieve runs a governed read against the ring at the oracle's current
// phase. Quarantined records stay hidden unless opts says otherwise.
func (e *Engine) Retrieve(ctx context.Context, query []float32, topK int, opts pelm.Options) ([]pelm.Record, error) {
	return e.ring.Retrieve(ctx, query, e.oracle.Phase(), topK, opts)
}

// RetrieveText embeds the query text and retrieves against the result.
func (e *Engine) RetrieveText(ctx context.Context, text string, topK int, opts pelm.Options) ([]pelm.Record, error) {
	if e.embedder == nil {
		return nil, ErrNoVector
	}
	query, err := e.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}
	return e.Retrieve(ctx, query, topK, opts)
}

// CallerQuarantined reports whether the caller's boundary window currently
// meets the quarantine trigger.
func (e *Engine) CallerQuarantined(callerKey string) bool {
	return e.boundary.Quarantined(callerKey)
}

// ResetCaller clears a caller's boundary window and quarantine. Operator
// escape hatch.
func (e *Engine) ResetCaller(callerKey string) {
	e.boundary.Reset(callerKey)
}
