// Package provenance tags candidate memory items with origin, confidence,
// and content hash, and decides write admission and quarantine.
package provenance

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// Domain errors
var (
	ErrUnknownSource     = errors.New("unknown memory source")
	ErrConfidenceRange   = errors.New("confidence must be in [0, 1]")
	ErrZeroTimestamp     = errors.New("timestamp is required")
	ErrMissingProvenance = errors.New("provenance is required")
)

// Source identifies where a candidate memory item originated. It is a closed
// enum: admission code matches exhaustively and unknown values are rejected,
// never silently admitted.
type Source int

const (
	SourceUserInput Source = iota
	SourceSystemPrompt
	SourceLlmGeneration
	SourceToolOutput
	SourceOperator
)

// String returns the wire name of the source.
func (s Source) String() string {
	switch s {
	case SourceUserInput:
		return "user_input"
	case SourceSystemPrompt:
		return "system_prompt"
	case SourceLlmGeneration:
		return "llm_generation"
	case SourceToolOutput:
		return "tool_output"
	case SourceOperator:
		return "operator"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Valid reports whether the source is one of the recognized values.
func (s Source) Valid() bool {
	return s >= SourceUserInput && s <= SourceOperator
}

// ParseSource converts a wire name into a Source.
func ParseSource(name string) (Source, error) {
	switch name {
	case "user_input":
		return SourceUserInput, nil
	case "system_prompt":
		return SourceSystemPrompt, nil
	case "llm_generation":
		return SourceLlmGeneration, nil
	case "tool_output":
		return SourceToolOutput, nil
	case "operator":
		return SourceOperator, nil
	default:
		return 0, fmt.Errorf("source %q: %w", name, ErrUnknownSource)
	}
}

// Trust tiers by source. Operator and user input are trusted; generated
// content is not trusted until reviewed.
var trustTiers = map[Source]int{
	SourceOperator:      100,
	SourceUserInput:     90,
	SourceSystemPrompt:  80,
	SourceToolOutput:    50,
	SourceLlmGeneration: 30,
}

// DeriveTrustTier returns the default trust tier for the given source.
func DeriveTrustTier(s Source) int {
	if tier, ok := trustTiers[s]; ok {
		return tier
	}
	return 0
}

// Provenance describes the origin and trustworthiness of a memory item.
// Immutable once constructed; attached 1:1 to a stored record at write time.
type Provenance struct {
	Source      Source
	Confidence  float64
	Timestamp   time.Time
	ContentHash string
	TrustTier   int
}

// New builds a validated Provenance. The content hash is the SHA-256 of the
// originating text; the trust tier is derived from the source.
func New(source Source, confidence float64, content string, now time.Time) (Provenance, error) {
	if !source.Valid() {
		return Provenance{}, fmt.Errorf("source %d: %w", int(source), ErrUnknownSource)
	}
	if confidence < 0 || confidence > 1 {
		return Provenance{}, fmt.Errorf("confidence %v: %w", confidence, ErrConfidenceRange)
	}
	if now.IsZero() {
		return Provenance{}, ErrZeroTimestamp
	}
	return Provenance{
		Source:      source,
		Confidence:  confidence,
		Timestamp:   now.UTC(),
		ContentHash: HashContent(content),
		TrustTier:   DeriveTrustTier(source),
	}, nil
}

// Validate checks an externally constructed Provenance.
func (p Provenance) Validate() error {
	if !p.Source.Valid() {
		return fmt.Errorf("source %d: %w", int(p.Source), ErrUnknownSource)
	}
	if p.Confidence < 0 || p.Confidence > 1 {
		return fmt.Errorf("confidence %v: %w", p.Confidence, ErrConfidenceRange)
	}
	if p.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}
	return nil
}

// HashContent returns the SHA-256 hex fingerprint of content.
func HashContent(content string) string {
	h := sha256.Sum256([]byte(content))
	return hex.EncodeToString(h[:])
}
