package search

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/okhara/stagecraft/internal/metrics"
	"github.com/okhara/stagecraft/types"
)

const duckDuckGoEndpoint = "https://html.duckduckgo.com/html/"

// DuckDuckGoProvider scrapes the keyless DuckDuckGo HTML endpoint. It is
// the last link of the fallback chain because it needs no credentials.
type DuckDuckGoProvider struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Collector
}

// NewDuckDuckGoProvider creates the provider.
func NewDuckDuckGoProvider(opts Options) *DuckDuckGoProvider {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = duckDuckGoEndpoint
	}
	return &DuckDuckGoProvider{
		endpoint:   endpoint,
		httpClient: opts.httpClient(),
		logger:     opts.logger("duckduckgo"),
		metrics:    opts.Metrics,
	}
}

func (p *DuckDuckGoProvider) Name() string { return "duckduckgo" }

func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	q := url.Values{}
	q.Set("q", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stagecraft)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewError(types.ErrCodeExternalService, "duckduckgo request failed").
			WithCause(err).WithRetryable(true)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewErrorf(types.ErrCodeExternalService,
			"duckduckgo returned status %d", resp.StatusCode).WithRetryable(true)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		p.metrics.RecordSearch(p.Name(), "error")
		return nil, types.NewError(types.ErrCodeExternalService, "duckduckgo page parse").WithCause(err)
	}

	results := parseDuckDuckGoResults(doc, maxResults)
	p.metrics.RecordSearch(p.Name(), "ok")
	p.logger.Debug("search finished", zap.String("query", query), zap.Int("results", len(results)))
	return results, nil
}

// parseDuckDuckGoResults walks the result list: anchors with class
// result__a carry title and link, elements with class result__snippet
// carry the snippet for the preceding anchor.
func parseDuckDuckGoResults(doc *html.Node, maxResults int) []Result {
	var results []Result

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if len(results) >= maxResults && maxResults > 0 {
			return
		}
		if n.Type == html.ElementNode {
			if n.Data == "a" && hasClass(n, "result__a") {
				results = append(results, Result{
					Title: strings.TrimSpace(textContent(n)),
					URL:   resolveDuckDuckGoHref(attr(n, "href")),
				})
			} else if hasClass(n, "result__snippet") && len(results) > 0 &&
				results[len(results)-1].Snippet == "" {
				results[len(results)-1].Snippet = strings.TrimSpace(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	if maxResults > 0 && len(results) > maxResults {
		results = results[:maxResults]
	}
	return results
}

// resolveDuckDuckGoHref unwraps the redirect links the HTML endpoint
// serves (//duckduckgo.com/l/?uddg=<encoded target>).
func resolveDuckDuckGoHref(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		if decoded, err := url.QueryUnescape(target); err == nil {
			return decoded
		}
	}
	return href
}

func hasClass(n *html.Node, class string) bool {
	for _, a := range n.Attr {
		if a.Key != "class" {
			continue
		}
		for _, c := range strings.Fields(a.Val) {
			if c == class {
				return true
			}
		}
	}
	return false
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

var _ Provider = (*DuckDuckGoProvider)(nil)
