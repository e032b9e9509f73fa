package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okhara/stagecraft/types"
)

func TestBraveProviderParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Subscription-Token"))
		assert.Equal(t, "go channels", r.URL.Query().Get("q"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"web":{"results":[
			{"title":"Effective Go","url":"https://go.dev/doc/effective_go","description":"channels"},
			{"title":"Tour","url":"https://go.dev/tour","description":"more"}
		]}}`))
	}))
	defer server.Close()

	p := NewBraveProvider("secret", Options{Endpoint: server.URL})
	results, err := p.Search(context.Background(), "go channels", 1)
	require.NoError(t, err)
	require.Len(t, results, 1, "maxResults caps the slice")
	assert.Equal(t, "Effective Go", results[0].Title)
	assert.Equal(t, "https://go.dev/doc/effective_go", results[0].URL)
	assert.Equal(t, "channels", results[0].Snippet)
}

func TestBraveProviderWithoutKeyErrors(t *testing.T) {
	p := NewBraveProvider("", Options{})
	_, err := p.Search(context.Background(), "q", 3)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeExternalService, types.CodeOf(err))
}

func TestGoogleProviderParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "key1", q.Get("key"))
		assert.Equal(t, "cse1", q.Get("cx"))
		assert.Equal(t, "10", q.Get("num"), "api caps num at 10")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Raft paper","link":"https://raft.github.io","snippet":"consensus"}
		]}`))
	}))
	defer server.Close()

	p := NewGoogleProvider("key1", "cse1", Options{Endpoint: server.URL})
	results, err := p.Search(context.Background(), "raft", 25)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "https://raft.github.io", results[0].URL)
}

func TestGoogleProviderServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	}))
	defer server.Close()

	p := NewGoogleProvider("key1", "cse1", Options{Endpoint: server.URL})
	_, err := p.Search(context.Background(), "raft", 3)
	require.Error(t, err)
	assert.Equal(t, types.ErrCodeExternalService, types.CodeOf(err))
}

const ddgFixture = `<html><body>
<div class="results">
  <div class="result">
    <h2><a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fgo.dev%2Fblog%2Fcontext">Go Concurrency Patterns: Context</a></h2>
    <a class="result__snippet" href="#">Pipelines and cancellation with context.</a>
  </div>
  <div class="result">
    <h2><a class="result__a" href="https://pkg.go.dev/context">context package</a></h2>
    <a class="result__snippet" href="#">Package context defines the Context type.</a>
  </div>
</div>
</body></html>`

func TestDuckDuckGoProviderParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		assert.Equal(t, "go context", r.URL.Query().Get("q"))
		_, _ = w.Write([]byte(ddgFixture))
	}))
	defer server.Close()

	p := NewDuckDuckGoProvider(Options{Endpoint: server.URL})
	results, err := p.Search(context.Background(), "go context", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Redirect links are unwrapped to the target URL.
	assert.Equal(t, "https://go.dev/blog/context", results[0].URL)
	assert.Equal(t, "Go Concurrency Patterns: Context", results[0].Title)
	assert.Equal(t, "Pipelines and cancellation with context.", results[0].Snippet)

	assert.Equal(t, "https://pkg.go.dev/context", results[1].URL)
}

func TestDuckDuckGoProviderRespectsMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(ddgFixture))
	}))
	defer server.Close()

	p := NewDuckDuckGoProvider(Options{Endpoint: server.URL})
	results, err := p.Search(context.Background(), "go context", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
