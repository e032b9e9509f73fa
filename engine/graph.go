package engine

import (
	"context"
	"sort"

	"github.com/okhara/stagecraft/types"
)

// Terminal is the pseudo-stage name that ends a traversal. It is valid as
// an edge target but never as a stage name.
const Terminal = "__end__"

// RouteLabel is a value from a router's closed outcome set.
type RouteLabel string

// StageFunc executes one stage. It receives a snapshot of the current
// record and returns a partial update. External-service failures must be
// absorbed into sentinel state values; a returned error aborts the run.
type StageFunc func(ctx context.Context, rec Record) (Partial, error)

// Router inspects the latest record and picks a label from a closed set.
type Router func(rec Record) RouteLabel

type conditional struct {
	router   Router
	outcomes map[RouteLabel]string
}

type edge struct {
	static string
	cond   *conditional
}

// Graph is an immutable workflow graph: a schema, named stages, and one
// outgoing edge per stage.
type Graph struct {
	schema *Schema
	entry  string
	stages map[string]StageFunc
	edges  map[string]edge
}

// GraphBuilder accumulates stages and edges; Build validates the result.
type GraphBuilder struct {
	schema *Schema
	entry  string
	stages map[string]StageFunc
	edges  map[string]edge
	err    error
}

// NewGraph starts building a graph over the given state schema.
func NewGraph(schema *Schema) *GraphBuilder {
	return &GraphBuilder{
		schema: schema,
		stages: make(map[string]StageFunc),
		edges:  make(map[string]edge),
	}
}

func (b *GraphBuilder) fail(err *types.Error) *GraphBuilder {
	if b.err == nil {
		b.err = err
	}
	return b
}

// AddStage registers a named stage.
func (b *GraphBuilder) AddStage(name string, fn StageFunc) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if name == "" || name == Terminal {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "invalid stage name %q", name))
	}
	if fn == nil {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q has nil handler", name))
	}
	if _, dup := b.stages[name]; dup {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q declared twice", name))
	}
	b.stages[name] = fn
	return b
}

// SetEntry declares the stage a fresh session starts at.
func (b *GraphBuilder) SetEntry(name string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	b.entry = name
	return b
}

// AddEdge declares a static edge from one stage to the next (or Terminal).
func (b *GraphBuilder) AddEdge(from, to string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if _, dup := b.edges[from]; dup {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q has two outgoing edges", from))
	}
	b.edges[from] = edge{static: to}
	return b
}

// AddConditionalEdge declares a routed edge: after the stage runs, router
// picks a label and the outcome map resolves it to the next stage.
func (b *GraphBuilder) AddConditionalEdge(from string, router Router, outcomes map[RouteLabel]string) *GraphBuilder {
	if b.err != nil {
		return b
	}
	if router == nil {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q has nil router", from))
	}
	if len(outcomes) == 0 {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q has empty outcome set", from))
	}
	if _, dup := b.edges[from]; dup {
		return b.fail(types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q has two outgoing edges", from))
	}
	cp := make(map[RouteLabel]string, len(outcomes))
	for k, v := range outcomes {
		cp[k] = v
	}
	b.edges[from] = edge{cond: &conditional{router: router, outcomes: cp}}
	return b
}

// Build validates the graph: an entry must be set and exist, every edge
// endpoint must exist (or be Terminal), and every stage must have exactly
// one outgoing edge.
func (b *GraphBuilder) Build() (*Graph, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.schema == nil {
		return nil, types.NewError(types.ErrCodeGraphInvalid, "graph has no schema")
	}
	if b.entry == "" {
		return nil, types.NewError(types.ErrCodeGraphInvalid, "graph has no entry stage")
	}
	if _, ok := b.stages[b.entry]; !ok {
		return nil, types.NewErrorf(types.ErrCodeGraphInvalid, "entry stage %q not declared", b.entry)
	}
	for from, e := range b.edges {
		if _, ok := b.stages[from]; !ok {
			return nil, types.NewErrorf(types.ErrCodeGraphInvalid, "edge from undeclared stage %q", from)
		}
		targets := []string{}
		if e.cond == nil {
			targets = append(targets, e.static)
		} else {
			for _, to := range e.cond.outcomes {
				targets = append(targets, to)
			}
		}
		for _, to := range targets {
			if to == Terminal {
				continue
			}
			if _, ok := b.stages[to]; !ok {
				return nil, types.NewErrorf(types.ErrCodeGraphInvalid,
					"edge from %q targets undeclared stage %q", from, to)
			}
		}
	}
	for name := range b.stages {
		if _, ok := b.edges[name]; !ok {
			return nil, types.NewErrorf(types.ErrCodeGraphInvalid,
				"stage %q has no outgoing edge", name)
		}
	}
	return &Graph{schema: b.schema, entry: b.entry, stages: b.stages, edges: b.edges}, nil
}

// MustBuild is Build for statically-declared graphs.
func (b *GraphBuilder) MustBuild() *Graph {
	g, err := b.Build()
	if err != nil {
		panic(err)
	}
	return g
}

// Schema returns the graph's state schema.
func (g *Graph) Schema() *Schema { return g.schema }

// Entry returns the entry stage name.
func (g *Graph) Entry() string { return g.entry }

// Stages returns the declared stage names, sorted.
func (g *Graph) Stages() []string {
	out := make([]string, 0, len(g.stages))
	for name := range g.stages {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (g *Graph) stage(name string) (StageFunc, bool) {
	fn, ok := g.stages[name]
	return fn, ok
}

// next resolves the outgoing edge of a stage against the latest record.
// It returns the chosen route label for conditional edges ("" for static)
// so callers can log the decision.
func (g *Graph) next(from string, rec Record) (string, RouteLabel, error) {
	e, ok := g.edges[from]
	if !ok {
		return "", "", types.NewErrorf(types.ErrCodeGraphInvalid, "stage %q has no outgoing edge", from)
	}
	if e.cond == nil {
		return e.static, "", nil
	}
	label := e.cond.router(rec)
	to, ok := e.cond.outcomes[label]
	if !ok {
		return "", label, types.NewErrorf(types.ErrCodeUnknownRoute,
			"router at stage %q returned label %q outside its outcome set", from, label)
	}
	return to, label, nil
}
