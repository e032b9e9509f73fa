package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
)

// Request is one completion call. Images carry base64-encoded payloads
// for vision models.
type Request struct {
	Model       string
	System      string
	Prompt      string
	Temperature float64
	Images      []string
}

// Client produces a completion for a request. Implementations return
// normalized text with reasoning blocks already stripped.
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// errorSentinelPrefix marks a completion that failed. Stages store the
// sentinel in state instead of aborting the graph, so a run degrades
// gracefully when a model is down.
const errorSentinelPrefix = "LLM Error: "

// CompleteOrSentinel runs the request and folds any failure into a
// sentinel string, never an error.
func CompleteOrSentinel(ctx context.Context, c Client, req Request) string {
	out, err := c.Complete(ctx, req)
	if err != nil {
		return errorSentinelPrefix + err.Error()
	}
	return out
}

// IsErrorSentinel reports whether text is a failed-completion sentinel.
func IsErrorSentinel(text string) bool {
	return strings.HasPrefix(text, errorSentinelPrefix)
}

// EncodeImageFile reads a local image and returns its base64 payload for
// a vision request.
func EncodeImageFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image %s: %w", path, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
