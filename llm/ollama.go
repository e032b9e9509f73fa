package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/okhara/stagecraft/internal/metrics"
	"github.com/okhara/stagecraft/types"
)

// OllamaClient talks to a local ollama server over its /api/chat
// endpoint.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collector
	estimator  *Estimator
}

// OllamaOption configures the client.
type OllamaOption func(*OllamaClient)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) OllamaOption {
	return func(c *OllamaClient) { c.logger = logger }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(m *metrics.Collector) OllamaOption {
	return func(c *OllamaClient) { c.metrics = m }
}

// WithHTTPClient overrides the transport (tests).
func WithHTTPClient(hc *http.Client) OllamaOption {
	return func(c *OllamaClient) { c.httpClient = hc }
}

// NewOllamaClient creates a client for the server at baseURL
// (e.g. http://localhost:11434). timeout bounds a single completion.
func NewOllamaClient(baseURL string, timeout time.Duration, opts ...OllamaOption) *OllamaClient {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	c := &OllamaClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     zap.NewNop(),
		estimator:  NewEstimator(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.With(zap.String("component", "llm"))
	return c
}

type chatMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []chatMessage  `json:"messages"`
	Stream   bool           `json:"stream"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Complete sends the chat request and returns the assistant's reply with
// reasoning blocks stripped.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	if req.Model == "" {
		return "", types.NewError(types.ErrCodeValidationFailure, "empty model name")
	}

	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{
		Role:    "user",
		Content: req.Prompt,
		Images:  req.Images,
	})

	body, err := json.Marshal(chatRequest{
		Model:    req.Model,
		Messages: messages,
		Stream:   false,
		Options:  map[string]any{"temperature": req.Temperature},
	})
	if err != nil {
		return "", err
	}

	started := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.metrics.RecordLLM(req.Model, "error")
		return "", types.NewErrorf(types.ErrCodeExternalService,
			"ollama request for model %s", req.Model).WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.RecordLLM(req.Model, "error")
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", types.NewErrorf(types.ErrCodeExternalService,
			"ollama returned status %d: %s", resp.StatusCode, string(payload)).
			WithRetryable(resp.StatusCode >= 500)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		c.metrics.RecordLLM(req.Model, "error")
		return "", types.NewError(types.ErrCodeExternalService,
			"ollama returned malformed response").WithCause(err)
	}

	out := StripReasoning(parsed.Message.Content)
	c.metrics.RecordLLM(req.Model, "ok")
	c.logger.Debug("completion finished",
		zap.String("model", req.Model),
		zap.Int("prompt_tokens_est", c.estimator.Count(req.Prompt)),
		zap.Int("reply_tokens_est", c.estimator.Count(out)),
		zap.Duration("duration", time.Since(started)))
	return out, nil
}

// BaseURL returns the configured server address.
func (c *OllamaClient) BaseURL() string { return c.baseURL }

var _ Client = (*OllamaClient)(nil)
