// Package llm holds the generative backend and embedding providers the engine
// governs. The engine never talks to a vendor SDK directly; everything flows
// through the Provider and Embedder interfaces so a deployment can swap
// OpenAI, a local Ollama instance, or the deterministic fallback embedder
// without touching the pipeline.
package llm

import (
	"context"
	"errors"
	"time"
)

// Timeouts for LLM operations.
const (
	TimeoutLLMCall = 60 * time.Second
)

// Domain errors for the LLM package.
var (
	ErrProviderNotAvailable = errors.New("provider not available")
	ErrEmptyInput           = errors.New("empty input text")
)

// Provider is the interface all generative backends must implement.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai", "ollama").
	Name() string
	// Generate sends a completion request to the backend and returns the response.
	Generate(ctx context.Context, req *Request) (*Response, error)
	// EstimateCost estimates the cost in EUR for the given model and token counts.
	EstimateCost(model string, inputTokens, outputTokens int) float64
}

// Embedder converts text into the fixed-dimension vectors the memory stores.
type Embedder interface {
	// Name returns the embedder identifier.
	Name() string
	// Dim returns the dimension of produced vectors.
	Dim() int
	// Embed converts one text into a vector of exactly Dim components.
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Request represents a generation request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Message represents a chat message.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents a generation response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
