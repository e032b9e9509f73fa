package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhara/stagecraft/types"
)

func TestOllamaClientComplete(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{
				"role":    "assistant",
				"content": "<think>hmm</think>The answer.",
			},
			"done": true,
		})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, 10*time.Second)
	out, err := c.Complete(context.Background(), Request{
		Model:       "qwen3:14b",
		System:      "You are terse.",
		Prompt:      "Answer.",
		Temperature: 0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "The answer.", out, "reasoning block is stripped")

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "You are terse.", got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.False(t, got.Stream)
	assert.Equal(t, "qwen3:14b", got.Model)
	assert.InDelta(t, 0.2, got.Options["temperature"].(float64), 1e-9)
}

func TestOllamaClientVisionImages(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"content": "PASSED"},
		})
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, 10*time.Second)
	out, err := c.Complete(context.Background(), Request{
		Model:  "qwen2.5vl:7b",
		Prompt: "Inspect the plot.",
		Images: []string{"aGVsbG8="},
	})
	require.NoError(t, err)
	assert.Equal(t, "PASSED", out)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, []string{"aGVsbG8="}, got.Messages[0].Images)
}

func TestOllamaClientServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewOllamaClient(server.URL, 10*time.Second)
	_, err := c.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeExternalService, types.CodeOf(err))
}

func TestOllamaClientUnreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", time.Second)
	_, err := c.Complete(context.Background(), Request{Model: "m", Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeExternalService, types.CodeOf(err))

	// The sentinel helper folds the same failure into state-safe text.
	out := CompleteOrSentinel(context.Background(), c, Request{Model: "m", Prompt: "p"})
	assert.True(t, IsErrorSentinel(out))
}

func TestOllamaClientValidation(t *testing.T) {
	c := NewOllamaClient("http://localhost:11434", time.Second)
	_, err := c.Complete(context.Background(), Request{Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeValidationFailure, types.CodeOf(err))
}
