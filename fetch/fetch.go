// Package fetch retrieves a web page as clean text for research stages.
package fetch

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// DefaultMaxChars caps extracted text so one long page cannot flood a
// prompt.
const DefaultMaxChars = 10000

var skipElements = map[string]struct{}{
	"script": {}, "style": {}, "nav": {}, "footer": {}, "iframe": {},
}

var whitespaceRE = regexp.MustCompile(`\s+`)

// Fetcher downloads pages and extracts readable text.
type Fetcher struct {
	httpClient *http.Client
	maxChars   int
	logger     *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient overrides the transport (tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Fetcher) { f.httpClient = hc }
}

// WithMaxChars overrides the extraction cap.
func WithMaxChars(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxChars = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) { f.logger = logger }
}

// New creates a Fetcher with a 20s request timeout and the default cap.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		httpClient: &http.Client{Timeout: 20 * time.Second},
		maxChars:   DefaultMaxChars,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.With(zap.String("component", "fetch"))
	return f
}

// Fetch downloads url and returns its visible text: boilerplate elements
// stripped, whitespace collapsed, capped at the configured limit. Any
// failure comes back as a descriptive string rather than an error, so a
// research stage records what happened and keeps going.
func (f *Fetcher) Fetch(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Sprintf("Error scraping site: %v", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; stagecraft)")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.Warn("fetch failed", zap.String("url", url), zap.Error(err))
		return fmt.Sprintf("Error scraping site: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.logger.Warn("fetch returned non-200", zap.String("url", url), zap.Int("status", resp.StatusCode))
		return fmt.Sprintf("Error scraping site: status %d", resp.StatusCode)
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return fmt.Sprintf("Error scraping site: %v", err)
	}

	text := whitespaceRE.ReplaceAllString(extractText(doc), " ")
	text = strings.TrimSpace(text)
	if len(text) > f.maxChars {
		cut := f.maxChars
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
	}
	f.logger.Debug("fetched page", zap.String("url", url), zap.Int("chars", len(text)))
	return text
}

// extractText collects text nodes, skipping boilerplate subtrees.
func extractText(n *html.Node) string {
	if n.Type == html.ElementNode {
		if _, skip := skipElements[n.Data]; skip {
			return ""
		}
	}
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(extractText(c))
		sb.WriteString(" ")
	}
	return sb.String()
}
