package workflows

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/okhara/stagecraft/checkpoint"
	"github.com/okhara/stagecraft/config"
	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/search"
)

// llmFunc adapts a function to llm.Client.
type llmFunc func(ctx context.Context, req llm.Request) (string, error)

func (f llmFunc) Complete(ctx context.Context, req llm.Request) (string, error) {
	return f(ctx, req)
}

// recordingSearch returns fixed hits and records every query.
type recordingSearch struct {
	mu      sync.Mutex
	queries []string
	results []search.Result
}

func (s *recordingSearch) Name() string { return "recording" }

func (s *recordingSearch) Search(ctx context.Context, query string, maxResults int) ([]search.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)
	return s.results, nil
}

func (s *recordingSearch) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

func testDeps(client llm.Client) Deps {
	cfg := config.Default()
	return Deps{
		LLM:    client,
		Models: cfg.Models,
		Limits: cfg.Limits,
	}
}

// runWorkflow drives a fresh session through the workflow on an
// in-memory store and returns the terminal record.
func runWorkflow(t *testing.T, wf *Workflow, input string) engine.Record {
	t.Helper()
	store := checkpoint.NewMemoryStore()
	t.Cleanup(func() { _ = store.Close() })

	eng, err := engine.New(wf.Name, wf.Graph, store)
	require.NoError(t, err)

	_, rec, err := eng.Start(context.Background(), "", wf.Initial(input))
	require.NoError(t, err)
	return rec
}
