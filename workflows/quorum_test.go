package workflows

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhara/stagecraft/llm"
)

// TestQuorumRounds verifies the panel runs for exactly the configured
// number of rounds and that every round sees both personas before the
// refiner rewrites the draft.
func TestQuorumRounds(t *testing.T) {
	var mu sync.Mutex
	var calls []string
	refines := 0

	client := llmFunc(func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(req.Prompt, "preliminary answer"):
			calls = append(calls, "drafter")
			return "draft zero", nil
		case strings.Contains(req.Prompt, "The Skeptic"):
			calls = append(calls, "skeptic")
			return "weak argument in paragraph two", nil
		case strings.Contains(req.Prompt, "The Structuralist"):
			calls = append(calls, "structuralist")
			return "needs headers", nil
		case strings.Contains(req.Prompt, "Lead Editor"):
			calls = append(calls, "refiner")
			refines++
			return fmt.Sprintf("refined answer %d", refines), nil
		default:
			t.Fatalf("unexpected prompt: %.60s", req.Prompt)
			return "", nil
		}
	})

	deps := testDeps(client)
	deps.Limits.QuorumRounds = 2

	wf, err := NewQuorum(deps)
	require.NoError(t, err)

	rec := runWorkflow(t, wf, "why is the sky blue?")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{
		"drafter",
		"skeptic", "structuralist", "refiner",
		"skeptic", "structuralist", "refiner",
	}, calls)

	assert.Equal(t, "refined answer 2", rec.String("current_answer"))
	assert.Equal(t, 2, rec.Int("iteration"))
	assert.Empty(t, rec.Strings("critiques"))
}

// The refiner must see the critiques of its own round, prefixed by
// persona, and clear them afterwards.
func TestQuorumCritiquesReachRefiner(t *testing.T) {
	var refinerPrompt string

	client := llmFunc(func(ctx context.Context, req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "Lead Editor"):
			refinerPrompt = req.Prompt
			return "final", nil
		case strings.Contains(req.Prompt, "The Skeptic"):
			return "too vague", nil
		case strings.Contains(req.Prompt, "The Structuralist"):
			return "no flow", nil
		default:
			return "first draft", nil
		}
	})

	deps := testDeps(client)
	deps.Limits.QuorumRounds = 1

	wf, err := NewQuorum(deps)
	require.NoError(t, err)
	runWorkflow(t, wf, "question")

	assert.Contains(t, refinerPrompt, "Skeptic's Feedback: too vague")
	assert.Contains(t, refinerPrompt, "Structuralist's Feedback: no flow")
}
