package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/types"
)

const (
	routeNextSection engine.RouteLabel = "next_section"
	routeFinalize    engine.RouteLabel = "finalize"
)

// NewReport builds the sectioned long-report workflow, a two-level loop:
// a global planner produces the outline, then each section runs its own
// bounded research/write/critique cycle before a compiler appends it and
// advances the section index. A final editor stitches the sections into
// one report. The inner loop's working fields are reset at every section
// entry; only the completed sections accumulate.
func NewReport(deps Deps) (*Workflow, error) {
	if err := deps.requireSearch("report"); err != nil {
		return nil, err
	}
	if err := deps.requireFetcher("report"); err != nil {
		return nil, err
	}

	schema := engine.NewSchema().
		Field("main_topic", engine.Overwrite).
		Field("section_plan", engine.Overwrite).
		Field("completed_sections", engine.AppendOrdered).
		Field("section_idx", engine.Overwrite).
		Field("final_report", engine.Overwrite).
		Field("topic", engine.Overwrite).
		Field("research_plan", engine.Overwrite).
		Field("research_notes", engine.Overwrite).
		Field("current_draft", engine.Overwrite).
		Field("critiques", engine.Overwrite).
		Field("loop_count", engine.Overwrite).
		MustBuild()

	sectionLoops := engine.LoopScope{Field: "loop_count", Max: deps.Limits.SectionLoops}
	r := &reportStages{deps: deps, loops: sectionLoops}

	graph, err := engine.NewGraph(schema).
		AddStage("global_planner", r.globalPlanner).
		AddStage("section_initiator", r.sectionInitiator).
		AddStage("deep_researcher", r.deepResearcher).
		AddStage("researcher", r.researcher).
		AddStage("writer", r.writer).
		AddStage("quorum", r.quorum).
		AddStage("refiner", r.refiner).
		AddStage("section_compiler", r.sectionCompiler).
		AddStage("final_editor", r.finalEditor).
		SetEntry("global_planner").
		AddEdge("global_planner", "section_initiator").
		AddEdge("section_initiator", "deep_researcher").
		AddEdge("deep_researcher", "researcher").
		AddEdge("researcher", "writer").
		AddEdge("writer", "quorum").
		AddEdge("quorum", "refiner").
		AddConditionalEdge("refiner", r.routeSection, map[engine.RouteLabel]string{
			routeLoop:    "deep_researcher",
			routeCompile: "section_compiler",
		}).
		AddConditionalEdge("section_compiler", r.routeGlobal, map[engine.RouteLabel]string{
			routeNextSection: "section_initiator",
			routeFinalize:    "final_editor",
		}).
		AddEdge("final_editor", engine.Terminal).
		Build()
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:        "report",
		Graph:       graph,
		InputPrompt: "Enter the main research topic",
		Initial: func(input string) engine.Partial {
			return engine.Partial{"main_topic": input, "section_idx": 0}
		},
		Output:     func(rec engine.Record) string { return rec.String("final_report") },
		OutputFile: artifactName("final_report", "md"),
	}, nil
}

type reportStages struct {
	deps  Deps
	loops engine.LoopScope
}

func (r *reportStages) routeSection(rec engine.Record) engine.RouteLabel {
	if r.loops.Exhausted(rec) {
		return routeCompile
	}
	return routeLoop
}

func (r *reportStages) routeGlobal(rec engine.Record) engine.RouteLabel {
	if rec.Int("section_idx") < len(rec.Strings("section_plan")) {
		return routeNextSection
	}
	return routeFinalize
}

// globalPlanner produces the table of contents.
func (r *reportStages) globalPlanner(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	prompt := fmt.Sprintf("Topic: %s\n", rec.String("main_topic")) +
		"Create a logical outline for a comprehensive report on this topic.\n" +
		"Return a list of 4 to 6 distinct section headers (e.g., 'Historical Context', 'Technical Implementation').\n" +
		"Do NOT include an Introduction or Conclusion in this list (I will add those automatically).\n" +
		"CRITICAL RULE: Your outline must be NEUTRAL and INVESTIGATIVE.\n" +
		" - BAD: 'The Benefits of X' (Assumes there are benefits)\n" +
		" - GOOD: 'Analysis of Impact of X' (Allows for positive or negative findings)\n" +
		" - BAD: 'How X Solves Y' (Assumes it solves it)\n" +
		" - GOOD: 'Evaluation of X as a Solution for Y'\n" +
		"Return ONLY the list of headers, separated by newlines."

	resp := r.deps.complete(ctx, r.deps.Models.Planner, "", prompt, 0.1)
	sections := SplitPlanLines(resp)
	if len(sections) == 0 {
		return nil, types.NewError(types.ErrCodeExternalService,
			"global planner produced an empty outline").WithRetryable(true)
	}
	return engine.Partial{"section_plan": sections, "section_idx": 0}, nil
}

// sectionInitiator resets the inner loop's working fields for the
// section at the current index.
func (r *reportStages) sectionInitiator(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	idx := rec.Int("section_idx")
	sections := rec.Strings("section_plan")
	if idx >= len(sections) {
		return nil, types.NewErrorf(types.ErrCodeUnknownRoute,
			"section index %d out of range (%d sections)", idx, len(sections))
	}

	partial := r.loops.Enter()
	partial["topic"] = sections[idx]
	partial["research_plan"] = []string{}
	partial["research_notes"] = []string{}
	partial["current_draft"] = ""
	partial["critiques"] = []string{}
	return partial, nil
}

// deepResearcher plans queries for the current section; after the first
// pass it targets the gaps the quorum identified.
func (r *reportStages) deepResearcher(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	topic := rec.String("topic")

	var prompt string
	if rec.Int("loop_count") == 0 {
		prompt = fmt.Sprintf(
			"Main Report Topic: %s\nCurrent Section: %s\n",
			rec.String("main_topic"), topic) +
			"Generate 3 highly specific search queries to gather information specifically for this section.\n" +
			"Return ONLY the queries as a list, separated by newlines.\n" +
			"Make the queries in few words and use KEYWORDS only to make the search."
	} else {
		prompt = fmt.Sprintf(
			"Section: %s\nAddress these gaps: %s\n",
			topic, strings.Join(rec.Strings("critiques"), "\n")) +
			"Generate 2 NEW search queries to fill these gaps.\n" +
			"Return ONLY the queries as a list, separated by newlines.\n" +
			"Make the queries in few words and use KEYWORDS only to make the search."
	}

	resp := r.deps.complete(ctx, r.deps.Models.Planner, "", prompt, 0.1)
	return engine.Partial{"research_plan": SplitPlanLines(resp)}, nil
}

// researcher appends to the section's notes explicitly; the field resets
// at section entry rather than accumulating across sections.
func (r *reportStages) researcher(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	notes := investigate(ctx, r.deps, rec.Strings("research_plan"))
	combined := append(rec.Strings("research_notes"), notes...)
	return engine.Partial{"research_notes": combined}, nil
}

func (r *reportStages) writer(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	system := "You are a technical writer."
	flatNotes := strings.Join(rec.Strings("research_notes"), "\n")

	var prompt string
	if rec.Int("loop_count") == 0 {
		prompt = fmt.Sprintf(
			"Context: Writing a report on '%s'.\nCurrent Section to write: %s\nResearch Notes:\n%s\n\n",
			rec.String("main_topic"), rec.String("topic"), flatNotes) +
			"Write this specific section. Do not write a whole intro/conclusion for the whole report, just this part.\n" +
			"Use information from ONLY the research notes.\n" +
			"If no research notes are relevant, then write a factual paragraph stating no relevant information was found, and write that more research is needed.\n" +
			"Use academic tone. Cite sources inline [1].\n" +
			"Output ONLY the section text."
	} else {
		prompt = fmt.Sprintf(
			"Refine the section: %s.\nCurrent Draft:\n%s\n\nNew Notes:\n%s\n\n",
			rec.String("topic"), rec.String("current_draft"), flatNotes) +
			"Integrate new findings. Output the updated section.\n" +
			"Determine if the critiques are valid first before integrating them.\n" +
			"Use information from ONLY the research notes.\n" +
			"If no research notes are relevant, then write a factual paragraph stating no relevant information was found, and write that more research is needed.\n" +
			"Also make sure to retain all cited sources and their inline citations [1]."
	}

	content := r.deps.complete(ctx, r.deps.Models.Writer, system, prompt, 0.3)
	return engine.Partial{"current_draft": content}, nil
}

func (r *reportStages) quorum(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	draft := rec.String("current_draft")

	identifyPrompt := fmt.Sprintf("Draft:\n%s\n\n", clip(draft, 4000)) +
		"Identify one weak/unverified claim. Generate a search query to check it.\n" +
		"Output ONLY the search query.\n" +
		"Make the query in few words and use KEYWORDS only to make the search."
	query := strings.ReplaceAll(strings.TrimSpace(
		r.deps.complete(ctx, r.deps.Models.Skeptic, "", identifyPrompt, 0.1)), `"`, "")

	var evidence string
	results, err := r.deps.Search.Search(ctx, query, r.deps.Limits.SearchResults)
	if err != nil {
		evidence = fmt.Sprintf("Error: %v", err)
	} else {
		evidence = FormatResults(results)
	}

	critiquePrompt := fmt.Sprintf(
		"Draft:\n%s\nEvidence found for '%s':\n%s\n\n",
		clip(draft, 4000), query, evidence) +
		"Critique the draft based on this evidence. Be harsh but constructive.\n" +
		"If the source is not relevant then critique the draft based on weak links.\n" +
		"Include all the critiques that you can think of."
	critique := r.deps.complete(ctx, r.deps.Models.Skeptic, "", critiquePrompt, 0.3)

	return engine.Partial{"critiques": []string{"### Skeptic Critique:\n" + critique}}, nil
}

func (r *reportStages) refiner(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	prompt := fmt.Sprintf(
		"Original Draft:\n%s\n\nCritiques:\n%s\n\nNotes:\n%s\n\n",
		rec.String("current_draft"),
		strings.Join(rec.Strings("critiques"), "\n"),
		strings.Join(rec.Strings("research_notes"), "\n")) +
		"Rewrite the draft to address critiques. Preserve citations. Output the final section text.\n" +
		"First determine if the critique is worth addressing before addressing them."

	content := r.deps.complete(ctx, r.deps.Models.Writer, "", prompt, 0.25)
	partial := r.loops.Next(rec)
	partial["current_draft"] = content
	return partial, nil
}

// sectionCompiler freezes the finished section and moves the index.
func (r *reportStages) sectionCompiler(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	section := fmt.Sprintf("## %s\n\n%s\n\n", rec.String("topic"), rec.String("current_draft"))
	return engine.Partial{
		"completed_sections": []string{section},
		"section_idx":        rec.Int("section_idx") + 1,
	}, nil
}

func (r *reportStages) finalEditor(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	prompt := fmt.Sprintf(
		"Topic: %s\nHere are the drafted sections:\n%s\n\n",
		rec.String("main_topic"), strings.Join(rec.Strings("completed_sections"), "\n")) +
		"Instructions:\n" +
		"1. Write a strong Introduction summarizing the topic.\n" +
		"2. Include the provided sections in order.\n" +
		"3. Write a Conclusion.\n" +
		"4. Smooth out transitions between sections if they feel disjointed.\n" +
		"5. Compile a 'References' section at the bottom based on the URLs found in the text.\n" +
		"6. Preserve the citations [1] where they belong.\n" +
		"7. Turn bullet points into FULL PARAGRAPHS.\n" +
		"Output the final Markdown report."

	report := r.deps.complete(ctx, r.deps.Models.Editor, "", prompt, 0.2)
	return engine.Partial{"final_report": report}, nil
}
