package workflows

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/sandbox"
)

// TestMathArbiterRouting drives the proof loop with a failing compiler
// (no lean binary in the workspace) and a scripted arbiter: the first
// failure is classified LOGIC and must re-run the theorist, later ones
// SYNTAX and must re-run only the formalizer, until the repair bound
// ends the session.
func TestMathArbiterRouting(t *testing.T) {
	var mu sync.Mutex
	counts := map[string]int{}

	client := llmFunc(func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(req.System, "INFORMAL proof sketch"):
			counts["theorist"]++
			return "Proof sketch: induction on n.", nil
		case strings.Contains(req.System, "Lean4 Expert"):
			counts["formalizer"]++
			return "```lean\ntheorem t : True := trivial\n```", nil
		case strings.Contains(req.System, "Debugger for Lean4"):
			counts["arbiter"]++
			if counts["arbiter"] == 1 {
				return "TYPE: LOGIC\nCRITIQUE: the strategy is flawed", nil
			}
			return "TYPE: SYNTAX\nCRITIQUE: unknown identifier", nil
		default:
			t.Fatalf("unexpected request: %q", req.System)
			return "", nil
		}
	})

	deps := testDeps(client)
	deps.Limits.MathRepairs = 3
	deps.Sandbox = sandbox.New()
	deps.Workspace = t.TempDir()

	wf, err := NewMath(deps)
	require.NoError(t, err)

	rec := runWorkflow(t, wf, "forall n, n + 0 = n")

	mu.Lock()
	defer mu.Unlock()
	// LOGIC sent the run back through the theorist once; the SYNTAX
	// repairs re-entered at the formalizer only.
	assert.Equal(t, 2, counts["theorist"])
	assert.Equal(t, 3, counts["formalizer"])
	assert.Equal(t, 3, counts["arbiter"])

	assert.False(t, rec.Bool("success"))
	assert.Equal(t, "SYNTAX", rec.String("error_type"))
	assert.Equal(t, 3, rec.Int("iterations"))
	assert.Equal(t, "theorem t : True := trivial", rec.String("lean_code"))
	assert.Contains(t, rec.String("critique"), "unknown identifier")
}

// An arbiter reply hedging with both markers must route to the
// theorist: a flawed strategy makes any syntax fix pointless.
func TestMathFailureLabelsPreferLogic(t *testing.T) {
	assert.Equal(t, engine.RouteLabel("LOGIC"),
		mathFailureLabels.Parse("TYPE: SYNTAX was my first guess, but actually TYPE: LOGIC"))
	assert.Equal(t, engine.RouteLabel("SYNTAX"),
		mathFailureLabels.Parse("CRITIQUE: could not tell"))
}

func TestMathRequiresSandbox(t *testing.T) {
	_, err := NewMath(testDeps(llmFunc(func(context.Context, llm.Request) (string, error) {
		return "", nil
	})))
	require.Error(t, err)
}
