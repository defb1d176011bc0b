// Package policy loads and verifies the drift-budget policy bundle. The
// runtime core never reads policy files itself: it consumes the numeric
// budget produced here, exactly once at startup. Verification is a pure
// function of the bundle bytes (parse, schema-validate, check the HMAC-SHA256
// fingerprint) and is decoupled from the drift state machine.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sentra-io/sentra/internal/drift"
	"github.com/sentra-io/sentra/internal/provenance"
)

// Domain errors
var (
	ErrIntegrity = errors.New("policy bundle fingerprint mismatch")
	ErrSchema    = errors.New("policy bundle schema violation")
)

// Bundle is the parsed on-disk policy bundle.
type Bundle struct {
	Version     string          `yaml:"version" json:"version"`
	Fingerprint string          `yaml:"fingerprint" json:"fingerprint"`
	Budget      BudgetConfig    `yaml:"budget" json:"budget"`
	Admission   AdmissionConfig `yaml:"admission" json:"admission"`
}

// BudgetConfig is the YAML shape of the drift budget.
type BudgetConfig struct {
	MaxDrift     float64 `yaml:"max_drift" json:"max_drift"`
	WarnAt       float64 `yaml:"warn_at" json:"warn_at"`
	DegradedAt   float64 `yaml:"degraded_at" json:"degraded_at"`
	MinThreshold float64 `yaml:"min_threshold" json:"min_threshold"`
	MaxThreshold float64 `yaml:"max_threshold" json:"max_threshold"`
}

// AdmissionConfig is the YAML shape of the memory admission policy.
type AdmissionConfig struct {
	StoreMinConfidence   float64  `yaml:"store_min_confidence" json:"store_min_confidence"`
	QuarantineConfidence float64  `yaml:"quarantine_confidence" json:"quarantine_confidence"`
	QuarantinedSources   []string `yaml:"quarantined_sources" json:"quarantined_sources"`
	MinTrustTier         int      `yaml:"min_trust_tier" json:"min_trust_tier"`
}

// DriftBudget converts the bundle's budget section.
func (b *Bundle) DriftBudget() drift.Budget {
	return drift.Budget{
		MaxDrift:     b.Budget.MaxDrift,
		WarnAt:       b.Budget.WarnAt,
		DegradedAt:   b.Budget.DegradedAt,
		MinThreshold: b.Budget.MinThreshold,
		MaxThreshold: b.Budget.MaxThreshold,
	}
}

// AdmissionPolicy converts the bundle's admission section. Unknown source
// names are a schema-level error caught by Verify, so the conversion here
// cannot fail.
func (b *Bundle) AdmissionPolicy() provenance.AdmissionPolicy {
	sources := make(map[provenance.Source]bool, len(b.Admission.QuarantinedSources))
	for _, name := range b.Admission.QuarantinedSources {
		if src, err := provenance.ParseSource(name); err == nil {
			sources[src] = true
		}
	}
	quarantine := b.Admission.QuarantineConfidence
	if quarantine == 0 {
		quarantine = provenance.DefaultQuarantineConfidence
	}
	return provenance.AdmissionPolicy{
		StoreMinConfidence:   b.Admission.StoreMinConfidence,
		QuarantineConfidence: quarantine,
		QuarantinedSources:   sources,
	}
}

// bundleSchema is the JSON Schema for the policy bundle. The YAML is first
// converted to JSON because gojsonschema operates on JSON.
const bundleSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "Sentra policy bundle",
  "type": "object",
  "required": ["version", "fingerprint", "budget"],
  "additionalProperties": false,
  "properties": {
    "version": {"type": "string", "minLength": 1},
    "fingerprint": {"type": "string", "pattern": "^hmac-sha256:[0-9a-f]{64}$"},
    "budget": {
      "type": "object",
      "required": ["max_drift", "warn_at", "degraded_at", "min_threshold", "max_threshold"],
      "additionalProperties": false,
      "properties": {
        "max_drift": {"type": "number", "exclusiveMinimum": 0},
        "warn_at": {"type": "number", "exclusiveMinimum": 0},
        "degraded_at": {"type": "number", "exclusiveMinimum": 0},
        "min_threshold": {"type": "number", "minimum": 0, "maximum": 1},
        "max_threshold": {"type": "number", "minimum": 0, "maximum": 1}
      }
    },
    "admission": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "store_min_confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "quarantine_confidence": {"type": "number", "minimum": 0, "maximum": 1},
        "quarantined_sources": {
          "type": "array",
          "items": {
            "type": "string",
            "enum": ["user_input", "system_prompt", "llm_generation", "tool_output", "operator"]
          }
        },
        "min_trust_tier": {"type": "integer", "minimum": 0, "maximum": 100}
      }
    }
  }
}`

// Verify parses, schema-validates, and fingerprint-checks bundle bytes, then
// validates the numeric budget ordering. The fingerprint covers the canonical
// JSON of the bundle with the fingerprint field cleared.
func Verify(bundleBytes []byte, signingKey string) (*Bundle, error) {
	if err := validateBundleSchema(bundleBytes); err != nil {
		return nil, err
	}

	var bundle Bundle
	if err := yaml.Unmarshal(bundleBytes, &bundle); err != nil {
		return nil, fmt.Errorf("parsing policy bundle: %w", err)
	}

	signer, err := NewSigner(signingKey)
	if err != nil {
		return nil, fmt.Errorf("policy signer: %w", err)
	}
	payload, err := canonicalPayload(&bundle)
	if err != nil {
		return nil, err
	}
	if !signer.Verify(payload, bundle.Fingerprint) {
		return nil, fmt.Errorf("bundle %q: %w", bundle.Version, ErrIntegrity)
	}

	if err := bundle.DriftBudget().Validate(); err != nil {
		return nil, fmt.Errorf("bundle budget: %w", err)
	}
	return &bundle, nil
}

// Load reads and verifies the bundle at path.
func Load(path, signingKey string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy bundle: %w", err)
	}
	return Verify(data, signingKey)
}

// Fingerprint computes the fingerprint a bundle at this content should carry.
// Used by `sentra validate --sign` to stamp bundles.
func Fingerprint(bundleBytes []byte, signingKey string) (string, error) {
	var bundle Bundle
	if err := yaml.Unmarshal(bundleBytes, &bundle); err != nil {
		return "", fmt.Errorf("parsing policy bundle: %w", err)
	}
	signer, err := NewSigner(signingKey)
	if err != nil {
		return "", fmt.Errorf("policy signer: %w", err)
	}
	payload, err := canonicalPayload(&bundle)
	if err != nil {
		return "", err
	}
	return signer.Sign(payload)
}

// canonicalPayload serializes the bundle as JSON with the fingerprint field
// cleared. encoding/json emits struct fields in declaration order, which makes
// the payload deterministic.
func canonicalPayload(b *Bundle) ([]byte, error) {
	clone := *b
	clone.Fingerprint = ""
	payload, err := json.Marshal(&clone)
	if err != nil {
		return nil, fmt.Errorf("canonicalizing policy bundle: %w", err)
	}
	return payload, nil
}
