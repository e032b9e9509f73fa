package workflows

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/okhara/stagecraft/config"
	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/fetch"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/sandbox"
	"github.com/okhara/stagecraft/search"
	"github.com/okhara/stagecraft/types"
)

// Deps carries the shared services a workflow's stages close over.
type Deps struct {
	LLM     llm.Client
	Search  search.Provider
	Fetcher *fetch.Fetcher
	Sandbox *sandbox.Runner

	Models config.ModelsConfig
	Limits config.LimitsConfig

	// Workspace receives generated scripts, proof files and plots.
	Workspace string

	Logger *zap.Logger
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger.With(zap.String("component", "workflows"))
}

// complete runs one completion and folds failures into the sentinel
// string, so a downed model degrades the run instead of aborting it.
func (d Deps) complete(ctx context.Context, model, system, prompt string, temperature float64) string {
	return llm.CompleteOrSentinel(ctx, d.LLM, llm.Request{
		Model:       model,
		System:      system,
		Prompt:      prompt,
		Temperature: temperature,
	})
}

// Workflow is one runnable configuration: a graph over its own schema,
// plus the adapters the CLI needs to start a session and extract the
// final artifact.
type Workflow struct {
	Name  string
	Graph *engine.Graph

	// InputPrompt is shown when asking the user for the initial input.
	InputPrompt string

	// Initial maps the user's input onto the schema's entry partial.
	Initial func(input string) engine.Partial

	// Output extracts the final artifact from the terminal record.
	Output func(rec engine.Record) string

	// OutputFile names the artifact file for a session.
	OutputFile func(sessionID string) string
}

type builder func(deps Deps) (*Workflow, error)

var registry = map[string]builder{
	"coding":       NewCoding,
	"math":         NewMath,
	"quorum":       NewQuorum,
	"research":     NewResearch,
	"deepresearch": NewDeepResearch,
	"report":       NewReport,
}

// Names returns the registered workflow names, sorted.
func Names() []string {
	out := make([]string, 0, len(registry))
	for name := range registry {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// New builds the named workflow against the given dependencies.
func New(name string, deps Deps) (*Workflow, error) {
	b, ok := registry[name]
	if !ok {
		return nil, types.NewErrorf(types.ErrCodeValidationFailure,
			"unknown workflow %q (have %v)", name, Names())
	}
	if deps.LLM == nil {
		return nil, types.NewError(types.ErrCodeValidationFailure, "workflow requires an LLM client")
	}
	return b(deps)
}

func (d Deps) requireSearch(workflow string) error {
	if d.Search == nil {
		return types.NewErrorf(types.ErrCodeValidationFailure,
			"workflow %q requires a search provider", workflow)
	}
	return nil
}

func (d Deps) requireSandbox(workflow string) error {
	if d.Sandbox == nil {
		return types.NewErrorf(types.ErrCodeValidationFailure,
			"workflow %q requires a sandbox runner", workflow)
	}
	return nil
}

func (d Deps) requireFetcher(workflow string) error {
	if d.Fetcher == nil {
		return types.NewErrorf(types.ErrCodeValidationFailure,
			"workflow %q requires a page fetcher", workflow)
	}
	return nil
}

func artifactName(prefix, ext string) func(sessionID string) string {
	return func(sessionID string) string {
		return fmt.Sprintf("%s_%s.%s", prefix, sessionID, ext)
	}
}
