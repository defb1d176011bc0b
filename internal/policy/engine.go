package policy

import (
	"context"
	"embed"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
	"github.com/rs/zerolog/log"

	"github.com/sentra-io/sentra/internal/provenance"
)

//go:embed rego/*.rego
var regoFS embed.FS

// Decision is the outcome of an admission evaluation.
type Decision struct {
	Allowed bool
	Reasons []string
}

// Engine evaluates memory-write admission against the embedded Rego policy,
// parameterized by the verified bundle's admission section. Queries are
// prepared once at construction so the hot path is evaluation only.
type Engine struct {
	admissionQuery rego.PreparedEvalQuery
}

// NewEngine compiles the embedded admission policy with the bundle's
// admission config as OPA data.
func NewEngine(ctx context.Context, cfg AdmissionConfig) (*Engine, error) {
	module, err := regoFS.ReadFile("rego/admission.rego")
	if err != nil {
		return nil, fmt.Errorf("reading admission policy: %w", err)
	}

	store := inmem.NewFromObject(map[string]interface{}{
		"admission": map[string]interface{}{
			"min_trust_tier":       cfg.MinTrustTier,
			"store_min_confidence": cfg.StoreMinConfidence,
		},
	})

	query, err := rego.New(
		rego.Query("data.sentra.admission.deny"),
		rego.Module("admission.rego", string(module)),
		rego.Store(store),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("preparing admission query: %w", err)
	}
	return &Engine{admissionQuery: query}, nil
}

// EvaluateWrite decides whether a candidate with this provenance may be
// written to memory. A deny decision lists every reason that fired.
func (e *Engine) EvaluateWrite(ctx context.Context, p provenance.Provenance) (*Decision, error) {
	input := map[string]interface{}{
		"source":     p.Source.String(),
		"confidence": p.Confidence,
		"trust_tier": p.TrustTier,
	}
	reasons, err := e.denyReasons(ctx, input)
	if err != nil {
		return nil, err
	}
	return &Decision{Allowed: len(reasons) == 0, Reasons: reasons}, nil
}

// denyReasons evaluates the prepared deny query and extracts the deny set.
func (e *Engine) denyReasons(ctx context.Context, input map[string]interface{}) ([]string, error) {
	results, err := e.admissionQuery.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("evaluating admission policy: %w", err)
	}

	var reasons []string
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				log.Warn().
					Str("type", fmt.Sprintf("%T", expr.Value)).
					Msg("unexpected deny set shape from admission policy")
				continue
			}
			for _, item := range denySet {
				if msg, ok := item.(string); ok {
					reasons = append(reasons, msg)
				}
			}
		}
	}
	return reasons, nil
}
