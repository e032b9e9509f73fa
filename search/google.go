package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/okhara/stagecraft/internal/metrics"
	"github.com/okhara/stagecraft/types"
)

const googleEndpoint = "https://www.googleapis.com/customsearch/v1"

// GoogleProvider queries the Google Custom Search JSON API.
type GoogleProvider struct {
	apiKey     string
	engineID   string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewGoogleProvider creates a provider for the given API key and custom
// search engine id.
func NewGoogleProvider(apiKey, engineID string, opts Options) *GoogleProvider {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = googleEndpoint
	}
	return &GoogleProvider{
		apiKey:     apiKey,
		engineID:   engineID,
		endpoint:   endpoint,
		httpClient: opts.httpClient(),
		logger:     opts.logger("google"),
		metrics:    opts.Metrics,
	}
}

func (p *GoogleProvider) Name() string { return "google" }

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (p *GoogleProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if p.apiKey == "" || p.engineID == "" {
		return nil, types.NewError(types.ErrCodeExternalService, "google cse not configured")
	}

	// The API caps num at 10.
	num := maxResults
	if num > 10 {
		num = 10
	}
	q := url.Values{}
	q.Set("key", p.apiKey)
	q.Set("cx", p.engineID)
	q.Set("q", query)
	q.Set("num", strconv.Itoa(num))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewError(types.ErrCodeExternalService, "google request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewErrorf(types.ErrCodeExternalService,
			"google returned status %d", resp.StatusCode).WithRetryable(resp.StatusCode >= 500)
	}

	var parsed googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, fmt.Errorf("google response decode: %w", err)
	}

	results := make([]Result, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, Result{Title: item.Title, URL: item.Link, Snippet: item.Snippet})
		if len(results) >= maxResults {
			break
		}
	}
	p.metrics.RecordSearch(p.Name(), "ok")
	p.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

var _ Provider = (*GoogleProvider)(nil)
