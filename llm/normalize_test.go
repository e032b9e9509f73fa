package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripReasoning(t *testing.T) {
	in := "<think>\nlet me work this out...\n</think>\nThe answer is 4."
	assert.Equal(t, "The answer is 4.", StripReasoning(in))

	multi := "<think>a</think>x<think>b</think>y"
	assert.Equal(t, "xy", StripReasoning(multi))

	assert.Equal(t, "no blocks here", StripReasoning("  no blocks here  "))
}

func TestExtractFencedPrefersLanguageTag(t *testing.T) {
	text := "Here is the test first:\n```text\nnot this\n```\nand the code:\n```python\nprint(\"hi\")\n```\n"
	assert.Equal(t, `print("hi")`, ExtractFenced(text, "python"))
}

func TestExtractFencedFallsBackToGenericFence(t *testing.T) {
	text := "Some prose.\n```\nx = 1\n```\ntrailing"
	assert.Equal(t, "x = 1", ExtractFenced(text, "python"))

	tagged := "```lean\ntheorem t : True := trivial\n```"
	assert.Equal(t, "theorem t : True := trivial", ExtractFenced(tagged, "python"))
}

func TestExtractFencedFallsBackToRawText(t *testing.T) {
	assert.Equal(t, "just code, no fences",
		ExtractFenced("  just code, no fences \n", "python"))
}

type failingClient struct{ err error }

func (c failingClient) Complete(ctx context.Context, req Request) (string, error) {
	return "", c.err
}

type fixedClient struct{ out string }

func (c fixedClient) Complete(ctx context.Context, req Request) (string, error) {
	return c.out, nil
}

func TestCompleteOrSentinel(t *testing.T) {
	ctx := context.Background()

	out := CompleteOrSentinel(ctx, failingClient{err: errors.New("connection refused")}, Request{})
	assert.True(t, IsErrorSentinel(out))
	assert.Contains(t, out, "connection refused")

	out = CompleteOrSentinel(ctx, fixedClient{out: "fine"}, Request{})
	assert.False(t, IsErrorSentinel(out))
	assert.Equal(t, "fine", out)
}

func TestEstimator(t *testing.T) {
	e := NewEstimator()
	assert.Equal(t, 0, e.Count(""))
	assert.Greater(t, e.Count("a reasonably sized sentence of text"), 0)
	assert.Equal(t, "", e.Truncate("anything", 0))
	assert.Equal(t, "short", e.Truncate("short", 100))
}
