package search

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/okhara/stagecraft/internal/metrics"
)

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Provider runs one query. maxResults caps the returned slice.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Options configures a concrete provider. The zero value uses production
// endpoints and a default HTTP client.
type Options struct {
	// Endpoint overrides the provider's API endpoint (tests).
	Endpoint string
	// HTTPClient overrides the transport.
	HTTPClient *http.Client
	Logger     *zap.Logger
	Metrics    *metrics.Collector
}

func (o Options) httpClient() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 15 * time.Second}
}

func (o Options) logger(provider string) *zap.Logger {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger.With(zap.String("component", "search"), zap.String("provider", provider))
}

type rateLimited struct {
	inner   Provider
	limiter *rate.Limiter
}

// RateLimited wraps a provider with a token-bucket limit, so a research
// loop cannot burn through an API quota in one pass.
func RateLimited(p Provider, perMinute int) Provider {
	if perMinute <= 0 {
		return p
	}
	return &rateLimited{
		inner:   p,
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
	}
}

func (r *rateLimited) Name() string { return r.inner.Name() }

func (r *rateLimited) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.inner.Search(ctx, query, maxResults)
}
