package workflows

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/okhara/stagecraft/engine"
)

const (
	routeLoop    engine.RouteLabel = "loop"
	routeCompile engine.RouteLabel = "compile"
)

// NewDeepResearch builds the critique-driven research workflow: a
// planner generates queries (gap-filling ones after the first pass), a
// researcher reads the best source per query, a writer drafts, a quorum
// of skeptics searches for counter-evidence, and a refiner applies the
// critiques. The loop re-plans until the round bound is spent.
func NewDeepResearch(deps Deps) (*Workflow, error) {
	if err := deps.requireSearch("deepresearch"); err != nil {
		return nil, err
	}
	if err := deps.requireFetcher("deepresearch"); err != nil {
		return nil, err
	}

	schema := engine.NewSchema().
		Field("topic", engine.Overwrite).
		Field("research_plan", engine.Overwrite).
		Field("research_notes", engine.AppendOrdered).
		Field("current_draft", engine.Overwrite).
		Field("critiques", engine.Overwrite).
		Field("loop_count", engine.Overwrite).
		MustBuild()

	loops := engine.LoopScope{Field: "loop_count", Max: deps.Limits.QuorumRounds}
	d := &deepResearchStages{deps: deps, loops: loops}

	graph, err := engine.NewGraph(schema).
		AddStage("planner", d.planner).
		AddStage("researcher", d.researcher).
		AddStage("writer", d.writer).
		AddStage("quorum", d.quorum).
		AddStage("refiner", d.refiner).
		SetEntry("planner").
		AddEdge("planner", "researcher").
		AddEdge("researcher", "writer").
		AddEdge("writer", "quorum").
		AddEdge("quorum", "refiner").
		AddConditionalEdge("refiner", d.route, map[engine.RouteLabel]string{
			routeLoop:   "planner",
			routeFinish: engine.Terminal,
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:        "deepresearch",
		Graph:       graph,
		InputPrompt: "Enter research topic",
		Initial: func(input string) engine.Partial {
			return engine.Partial{"topic": input, "loop_count": 0}
		},
		Output:     func(rec engine.Record) string { return rec.String("current_draft") },
		OutputFile: artifactName("report", "md"),
	}, nil
}

type deepResearchStages struct {
	deps  Deps
	loops engine.LoopScope
}

func (d *deepResearchStages) route(rec engine.Record) engine.RouteLabel {
	if d.loops.Exhausted(rec) {
		return routeFinish
	}
	return routeLoop
}

func (d *deepResearchStages) planner(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	topic := rec.String("topic")

	var prompt string
	if rec.Int("loop_count") == 0 {
		prompt = fmt.Sprintf(
			"Topic: %s\nGenerate 3 highly specific search queries to gather deep technical or historical context.\nReturn ONLY the queries as a list, separated by newlines.",
			topic)
	} else {
		prompt = fmt.Sprintf(
			"Topic: %s\nAddress these gaps identified by the Skeptic: %s\nGenerate 2 NEW search queries to fill these specific gaps.\nReturn ONLY the queries as a list, separated by newlines.",
			topic, strings.Join(rec.Strings("critiques"), "\n"))
	}

	resp := d.deps.complete(ctx, d.deps.Models.Planner, "", prompt, 0.1)
	return engine.Partial{"research_plan": SplitPlanLines(resp)}, nil
}

func (d *deepResearchStages) researcher(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	notes := investigate(ctx, d.deps, rec.Strings("research_plan"))
	return engine.Partial{"research_notes": notes}, nil
}

func (d *deepResearchStages) writer(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	system := "You are a report generation engine. Output Markdown only. No conversational text."
	flatNotes := strings.Join(rec.Strings("research_notes"), "\n")

	var prompt string
	if rec.Int("loop_count") == 0 {
		prompt = fmt.Sprintf(
			"Write a definitive, long-form report on: %s.\nResearch Notes:\n%s\n\n",
			rec.String("topic"), flatNotes) +
			"Requirements:\n" +
			"1. Deeply detailed, academic tone.\n" +
			"2. Use H2 and H3 headers.\n" +
			"3. Cite sources inline [1] matching the URLs in the notes.\n" +
			"4. Output ONLY the report."
	} else {
		prompt = fmt.Sprintf(
			"Expand the report on %s.\nCurrent Draft:\n%s\n\nNew Research Notes:\n%s\n\nIntegrate the new findings. Make the report longer and more comprehensive.\nOutput the FULL updated report.",
			rec.String("topic"), rec.String("current_draft"), flatNotes)
	}

	content := d.deps.complete(ctx, d.deps.Models.Writer, system, prompt, 0.3)
	return engine.Partial{"current_draft": content}, nil
}

// quorum hunts counter-evidence: the skeptic turns the draft's weakest
// claim into a search query and critiques the draft against what it
// finds; the editor reviews structure without searching.
func (d *deepResearchStages) quorum(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	draft := rec.String("current_draft")
	var critiques []string

	identifyPrompt := fmt.Sprintf("Read this draft:\n%s\n\n", clip(draft, 4000)) +
		"Identify the single most questionable empirical claim that lacks citation or seems biased.\n" +
		"Generate a search query to FIND COUNTER-EVIDENCE for this claim.\n" +
		"Output ONLY the search query."
	query := strings.ReplaceAll(strings.TrimSpace(
		d.deps.complete(ctx, d.deps.Models.Skeptic, "", identifyPrompt, 0.1)), `"`, "")

	var evidence string
	results, err := d.deps.Search.Search(ctx, query, d.deps.Limits.SearchResults)
	if err != nil {
		evidence = fmt.Sprintf("Error: %v", err)
	} else {
		evidence = FormatResults(results)
	}

	critiquePrompt := fmt.Sprintf(
		"Draft Text:\n%s\n\nExternal Evidence Found via '%s':\n%s\n\n",
		clip(draft, 4000), query, evidence) +
		"Write a critique of the draft explicitly referencing this external evidence.\n" +
		"Point out where the draft contradicts reality or lacks nuance based on the search results."
	skeptic := d.deps.complete(ctx, d.deps.Models.Skeptic, "", critiquePrompt, 0.3)
	critiques = append(critiques, "### Skeptic Critique:\n"+skeptic)

	editorPrompt := fmt.Sprintf(
		"Critique the structure. Is the introduction strong? Are the headers logical?\n%s",
		clip(draft, 6000))
	editor := d.deps.complete(ctx, d.deps.Models.Editor, "", editorPrompt, 0.1)
	critiques = append(critiques, "### Editor Critique:\n"+editor)

	return engine.Partial{"critiques": critiques}, nil
}

func (d *deepResearchStages) refiner(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	system := "You are a specialized academic editor."
	prompt := fmt.Sprintf(
		"Original Draft:\n%s\n\nCritiques to Apply:\n%s\n\nReference Notes (for citations):\n%s\n\n",
		rec.String("current_draft"),
		strings.Join(rec.Strings("critiques"), "\n"),
		strings.Join(rec.Strings("research_notes"), "\n")) +
		"Instructions:\n" +
		"1. Rewrite the draft to address the critiques.\n" +
		"2. CRITICAL: You must PRESERVE or RE-INSERT inline citations (e.g., [1], [2]) for every specific claim (numbers, dates, study results).\n" +
		"3. DO NOT summarize the citations at the end. You must append a full 'References' section listing the actual URLs/Titles from the Reference Notes.\n" +
		"4. If a claim is made without a citation, check the Reference Notes and add the matching citation.\n" +
		"5. Output the full, final polished report."

	content := d.deps.complete(ctx, d.deps.Models.Refiner, system, prompt, 0.25)
	partial := d.loops.Next(rec)
	partial["current_draft"] = content
	return partial, nil
}

// investigate runs the research plan: per query it searches, asks the
// planner model to pick the best source, reads it and extracts cited
// findings. Queries without a usable link keep the raw results as notes
// so a failed selection still contributes something.
func investigate(ctx context.Context, deps Deps, queries []string) []string {
	logger := deps.logger()
	var notes []string

	for _, query := range queries {
		var resultsText string
		results, err := deps.Search.Search(ctx, query, deps.Limits.SearchResults)
		if err != nil {
			logger.Warn("search failed", zap.String("query", query), zap.Error(err))
			resultsText = fmt.Sprintf("Error: %v", err)
		} else {
			resultsText = FormatResults(results)
		}

		selectorPrompt := fmt.Sprintf("Query: %s\nSearch Results: %s\n\n", query, resultsText) +
			"Analyze the results. Return the single best URL that is likely to contain detailed, long-form information.\n" +
			"Return ONLY the URL. Nothing else."
		reply := deps.complete(ctx, deps.Models.Planner, "", selectorPrompt, 0.1)

		url, ok := SelectURL(reply)
		if !ok {
			notes = append(notes, fmt.Sprintf("### Findings for '%s':\n%s\n", query, resultsText))
			continue
		}

		page := deps.Fetcher.Fetch(ctx, url)
		extractionPrompt := fmt.Sprintf(
			"Query: %s\nSource URL: %s\nPage Content (Truncated): %s\n\n",
			query, url, page) +
			"Extract comprehensive, detailed findings, statistics, and arguments from this text.\n" +
			"Capture specific numbers and dates.\n" +
			"Format: [Fact] (Source: URL)"
		summary := deps.complete(ctx, deps.Models.Researcher, "", extractionPrompt, 0.1)
		notes = append(notes, fmt.Sprintf("### Deep Dive on '%s':\n%s\n", query, summary))
	}
	return notes
}
