// Package search provides web search with a provider fallback chain:
// Brave first, then Google Custom Search, then DuckDuckGo. The chain
// degrades to an empty result list when every provider fails, so research
// stages keep moving without network access.
package search
