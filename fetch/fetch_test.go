package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestFetchStripsBoilerplate(t *testing.T) {
	page := `<html><head><style>body { color: red }</style></head><body>
		<nav>Home | About</nav>
		<script>alert("no")</script>
		<p>Useful   paragraph
		one.</p>
		<iframe src="x"></iframe>
		<p>Paragraph two.</p>
		<footer>copyright</footer>
	</body></html>`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(page))
	}))
	defer server.Close()

	text := New().Fetch(context.Background(), server.URL)
	assert.Contains(t, text, "Useful paragraph one.")
	assert.Contains(t, text, "Paragraph two.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Home | About")
	assert.NotContains(t, text, "copyright")
	assert.NotContains(t, text, "\n")
}

func TestFetchCapsLength(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("word ", 5000) + "</p></body></html>"))
	}))
	defer server.Close()

	text := New(WithMaxChars(100)).Fetch(context.Background(), server.URL)
	assert.Len(t, text, 100)
}

func TestFetchCapKeepsRuneBoundary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>" + strings.Repeat("é", 200) + "</p></body></html>"))
	}))
	defer server.Close()

	// An odd cap lands mid-rune in the two-byte text; the cut must back
	// off to the previous rune start instead of emitting a broken byte.
	text := New(WithMaxChars(101)).Fetch(context.Background(), server.URL)
	assert.True(t, utf8.ValidString(text))
	assert.Len(t, text, 100)
}

func TestFetchErrorsBecomeText(t *testing.T) {
	// Connection refused.
	text := New().Fetch(context.Background(), "http://127.0.0.1:1/")
	assert.True(t, strings.HasPrefix(text, "Error scraping site:"), text)

	// Non-200.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()
	text = New().Fetch(context.Background(), server.URL)
	assert.Contains(t, text, "status 404")
}
