package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/okhara/stagecraft/engine"
)

const (
	routeResearch engine.RouteLabel = "research"
	routeWrite    engine.RouteLabel = "write"
)

// NewResearch builds the basic cited-research pipeline: a planner
// generates search queries, a researcher consumes them one per pass
// (self-looping until the queue is empty) and a writer compiles a cited
// report from the accumulated notes.
func NewResearch(deps Deps) (*Workflow, error) {
	if err := deps.requireSearch("research"); err != nil {
		return nil, err
	}

	schema := engine.NewSchema().
		Field("topic", engine.Overwrite).
		Field("plan", engine.Overwrite).
		Field("content", engine.AppendOrdered).
		Field("final_report", engine.Overwrite).
		MustBuild()

	r := &researchStages{deps: deps}

	graph, err := engine.NewGraph(schema).
		AddStage("planner", r.planner).
		AddStage("researcher", r.researcher).
		AddStage("writer", r.writer).
		SetEntry("planner").
		AddEdge("planner", "researcher").
		AddConditionalEdge("researcher", r.route, map[engine.RouteLabel]string{
			routeResearch: "researcher",
			routeWrite:    "writer",
		}).
		AddEdge("writer", engine.Terminal).
		Build()
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:        "research",
		Graph:       graph,
		InputPrompt: "Enter research topic",
		Initial: func(input string) engine.Partial {
			return engine.Partial{"topic": input, "plan": []string{}}
		},
		Output:     func(rec engine.Record) string { return rec.String("final_report") },
		OutputFile: artifactName("cited_report", "md"),
	}, nil
}

type researchStages struct {
	deps Deps
}

func (r *researchStages) route(rec engine.Record) engine.RouteLabel {
	if len(rec.Strings("plan")) > 0 {
		return routeResearch
	}
	return routeWrite
}

func (r *researchStages) planner(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	system := "You are a research planning assistant. Given a topic, generate a list " +
		"of 3 targeted search queries to gather comprehensive information. " +
		"Return ONLY the queries, separated by newlines."

	resp := r.deps.complete(ctx, r.deps.Models.Planner, system, rec.String("topic"), 0.1)
	return engine.Partial{"plan": SplitPlanLines(resp)}, nil
}

// researcher pops one query per pass; search failures are folded into
// the results text so the summarizer still produces a note.
func (r *researchStages) researcher(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	plan := rec.Strings("plan")
	if len(plan) == 0 {
		return engine.Partial{}, nil
	}
	query, remaining := plan[0], plan[1:]

	var resultsText string
	results, err := r.deps.Search.Search(ctx, query, r.deps.Limits.SearchResults)
	if err != nil {
		resultsText = fmt.Sprintf("Error: %v", err)
	} else {
		resultsText = FormatResults(results)
	}

	prompt := "You are a researcher. Your goal is to extract facts from the search results below. " +
		"IMPORTANT: You must include the source URL for every fact you extract. " +
		"Format your notes like this:\n" +
		"- [Fact or finding] (Source: [URL])\n\n" +
		fmt.Sprintf("Search Results:\n%s\n\nResearch Notes:", resultsText)
	summary := r.deps.complete(ctx, r.deps.Models.Researcher, "", prompt, 0.1)

	note := fmt.Sprintf("### Sources for '%s':\n%s\n\n", query, summary)
	return engine.Partial{
		"plan":    remaining,
		"content": []string{note},
	}, nil
}

func (r *researchStages) writer(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	prompt := fmt.Sprintf("You are a technical writer. Write a detailed markdown report on '%s'.\n\n", rec.String("topic")) +
		"RULES FOR CITATION:\n" +
		"1. You MUST use inline citations in the text like [1], [2].\n" +
		"2. You MUST create a 'References' section at the very end.\n" +
		"3. Every [n] citation must correspond to a real URL provided in the Research Notes.\n" +
		"4. Do not make up links. Only use the ones provided.\n\n" +
		fmt.Sprintf("Research Notes:\n%s\n\nFinal Report:", strings.Join(rec.Strings("content"), "\n"))

	report := r.deps.complete(ctx, r.deps.Models.Writer, "", prompt, 0.1)
	return engine.Partial{"final_report": report}, nil
}
