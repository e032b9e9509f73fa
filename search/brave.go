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

const braveEndpoint = "https://api.search.brave.com/res/v1/web/search"

// BraveProvider queries the Brave Search API.
type BraveProvider struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewBraveProvider creates a provider; apiKey is required at call time,
// not construction time, so a keyless setup just fails over in the chain.
func NewBraveProvider(apiKey string, opts Options) *BraveProvider {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = braveEndpoint
	}
	return &BraveProvider{
		apiKey:     apiKey,
		endpoint:   endpoint,
		httpClient: opts.httpClient(),
		logger:     opts.logger("brave"),
		metrics:    opts.Metrics,
	}
}

func (p *BraveProvider) Name() string { return "brave" }

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

func (p *BraveProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if p.apiKey == "" {
		return nil, types.NewError(types.ErrCodeExternalService, "brave api key not configured")
	}

	q := url.Values{}
	q.Set("q", query)
	q.Set("count", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewError(types.ErrCodeExternalService, "brave request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewErrorf(types.ErrCodeExternalService,
			"brave returned status %d", resp.StatusCode).WithRetryable(resp.StatusCode >= 500)
	}

	var parsed braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, fmt.Errorf("brave response decode: %w", err)
	}

	results := make([]Result, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		results = append(results, Result{Title: r.Title, URL: r.URL, Snippet: r.Description})
		if len(results) >= maxResults {
			break
		}
	}
	p.metrics.RecordSearch(p.Name(), "ok")
	p.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

var _ Provider = (*BraveProvider)(nil)
