package workflows

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhara/stagecraft/fetch"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/search"
)

// TestReportNestedLoops drives the two-level graph end to end: a
// two-section outline, one research round per section, then the final
// editor. It checks the outer loop visits every section in order and
// that the inner loop's working state restarts per section.
func TestReportNestedLoops(t *testing.T) {
	provider := &recordingSearch{results: []search.Result{
		{Title: "Hit", URL: "https://example.org/hit", Snippet: "detail"},
	}}

	var mu sync.Mutex
	counts := map[string]int{}
	var sectionTopics []string

	client := llmFunc(func(ctx context.Context, req llm.Request) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case strings.Contains(req.Prompt, "Create a logical outline"):
			counts["global_planner"]++
			return "- Section A\n- Section B", nil
		case strings.Contains(req.Prompt, "Generate 3 highly specific search queries"):
			counts["section_planner"]++
			return "query", nil
		case strings.Contains(req.Prompt, "Return the single best URL"):
			counts["selector"]++
			return "no usable link", nil
		case strings.Contains(req.Prompt, "Write this specific section"):
			counts["writer"]++
			for _, line := range strings.Split(req.Prompt, "\n") {
				if after, ok := strings.CutPrefix(line, "Current Section to write: "); ok {
					sectionTopics = append(sectionTopics, after)
				}
			}
			return "section draft", nil
		case strings.Contains(req.Prompt, "Identify one weak/unverified claim"):
			counts["skeptic_query"]++
			return "check claim", nil
		case strings.Contains(req.Prompt, "Critique the draft based on this evidence"):
			counts["skeptic"]++
			return "needs stronger evidence", nil
		case strings.Contains(req.Prompt, "Rewrite the draft to address critiques"):
			counts["refiner"]++
			return "polished section", nil
		case strings.Contains(req.Prompt, "Write a strong Introduction"):
			counts["final_editor"]++
			return "# Full Report", nil
		default:
			t.Fatalf("unexpected request: %.60s", req.Prompt)
			return "", nil
		}
	})

	deps := testDeps(client)
	deps.Search = provider
	deps.Fetcher = fetch.New()
	deps.Limits.SectionLoops = 1

	wf, err := NewReport(deps)
	require.NoError(t, err)

	rec := runWorkflow(t, wf, "big topic")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["global_planner"])
	assert.Equal(t, 2, counts["section_planner"])
	assert.Equal(t, 2, counts["writer"])
	assert.Equal(t, 2, counts["refiner"])
	assert.Equal(t, 1, counts["final_editor"])
	assert.Equal(t, []string{"Section A", "Section B"}, sectionTopics)

	// One plan query and one skeptic check per section.
	assert.Equal(t, []string{"query", "check claim", "query", "check claim"}, provider.seen())

	completed := rec.Strings("completed_sections")
	require.Len(t, completed, 2)
	assert.Contains(t, completed[0], "## Section A")
	assert.Contains(t, completed[1], "## Section B")
	assert.Contains(t, completed[0], "polished section")

	assert.Equal(t, 2, rec.Int("section_idx"))
	assert.Equal(t, "# Full Report", rec.String("final_report"))
}

// A second research round per section must target the quorum's gaps
// instead of planning from scratch.
func TestReportInnerLoopReplans(t *testing.T) {
	provider := &recordingSearch{results: []search.Result{}}
	var gapPrompt string

	client := llmFunc(func(ctx context.Context, req llm.Request) (string, error) {
		switch {
		case strings.Contains(req.Prompt, "Create a logical outline"):
			return "Only Section", nil
		case strings.Contains(req.Prompt, "Generate 3 highly specific search queries"):
			return "first pass query", nil
		case strings.Contains(req.Prompt, "Generate 2 NEW search queries"):
			gapPrompt = req.Prompt
			return "gap query", nil
		case strings.Contains(req.Prompt, "Return the single best URL"):
			return "nothing relevant", nil
		case strings.Contains(req.Prompt, "Identify one weak/unverified claim"):
			return "verify claim", nil
		case strings.Contains(req.Prompt, "Critique the draft based on this evidence"):
			return "missing numbers", nil
		case strings.Contains(req.Prompt, "Rewrite the draft to address critiques"):
			return "revised", nil
		case strings.Contains(req.Prompt, "Write this specific section"),
			strings.Contains(req.Prompt, "Refine the section"):
			return "draft", nil
		case strings.Contains(req.Prompt, "Write a strong Introduction"):
			return "report", nil
		default:
			return "", nil
		}
	})

	deps := testDeps(client)
	deps.Search = provider
	deps.Fetcher = fetch.New()
	deps.Limits.SectionLoops = 2

	wf, err := NewReport(deps)
	require.NoError(t, err)
	runWorkflow(t, wf, "topic")

	require.NotEmpty(t, gapPrompt)
	assert.Contains(t, gapPrompt, "missing numbers")
}
