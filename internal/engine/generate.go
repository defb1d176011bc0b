package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/sentra-io/sentra/internal/llm"
	"github.com/sentra-io/sentra/internal/provenance"
)

// GenerateRequest is one governed generation call.
type GenerateRequest struct {
	CallerKey string
	Prompt    string
	Score     float64 // declared moral score of the prompt
	Phase     float64
}

// GenerateResult pairs the backend output with the pipeline outcomes for both
// sides of the exchange. When the prompt is refused, Content is empty and
// only the prompt snapshot is set.
type GenerateResult struct {
	Content       string    `json:"content"`
	Model         string    `json:"model"`
	Refused       bool      `json:"refused"`
	CostEUR       float64   `json:"cost_eur"`
	PromptOutcome *Snapshot `json:"prompt_outcome"`
	MemoryOutcome *Snapshot `json:"memory_outcome,omitempty"`
}

// Generate runs a prompt through the pipeline, calls the backend when the
// prompt is accepted, and feeds the generated text back through the pipeline
// as an llm_generation event so its memory admission is governed like any
// other write.
func (e *Engine) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	ctx, span := tracer.Start(ctx, "engine.generate")
	defer span.End()

	if e.provider == nil {
		return nil, ErrNoProvider
	}

	promptProv, err := provenance.New(provenance.SourceUserInput, 1.0, req.Prompt, time.Now())
	if err != nil {
		return nil, fmt.Errorf("prompt provenance: %w", err)
	}
	promptSnap, err := e.ProcessEvent(ctx, Event{
		CallerKey: req.CallerKey,
		Text:      req.Prompt,
		Phase:     req.Phase,
		Score:     req.Score,
		Prov:      promptProv,
	})
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{PromptOutcome: promptSnap}
	if !promptSnap.Accepted {
		result.Refused = true
		span.SetAttributes(attribute.Bool("engine.refused", true))
		return result, nil
	}

	resp, err := e.provider.Generate(ctx, &llm.Request{
		Model:    e.generationModel,
		Messages: []llm.Message{{Role: "user", Content: req.Prompt}},
	})
	if err != nil {
		return nil, fmt.Errorf("backend generation: %w", err)
	}
	result.Content = resp.Content
	result.Model = resp.Model
	result.CostEUR = e.provider.EstimateCost(resp.Model, resp.InputTokens, resp.OutputTokens)

	genProv, err := provenance.New(provenance.SourceLlmGeneration, e.generationConfidence, resp.Content, time.Now())
	if err != nil {
		return nil, fmt.Errorf("generation provenance: %w", err)
	}
	memorySnap, err := e.ProcessEvent(ctx, Event{
		CallerKey: req.CallerKey,
		Text:      resp.Content,
		Phase:     req.Phase,
		Score:     req.Score,
		Prov:      genProv,
	})
	if err != nil {
		return nil, err
	}
	result.MemoryOutcome = memorySnap

	span.SetAttributes(
		attribute.Bool("engine.memory_quarantined", memorySnap.Quarantined),
		attribute.String("engine.model", result.Model),
	)
	return result, nil
}
