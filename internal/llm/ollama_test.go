package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaProvider_Generate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		assert.False(t, req.Stream)
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		resp := ollamaResponse{}
		resp.Message.Content = "governed reply"
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer server.Close()

	p := NewOllamaProvider(server.URL)
	resp, err := p.Generate(context.Background(), &Request{
		Model: "llama3",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "governed reply", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Positive(t, resp.OutputTokens)
}

func TestOllamaProvider_DefaultBaseURL(t *testing.T) {
	p := NewOllamaProvider("")
	assert.Equal(t, "http://localhost:11434", p.baseURL)
}

func TestOllamaProvider_ServerDown(t *testing.T) {
	p := NewOllamaProvider("http://127.0.0.1:1")
	_, err := p.Generate(context.Background(), &Request{Model: "llama3"})
	assert.Error(t, err)
}

func TestOllamaProvider_EstimateCost(t *testing.T) {
	p := NewOllamaProvider("")
	assert.Zero(t, p.EstimateCost("llama3", 1000, 1000))
}
