package workflows

import (
	"context"
	"fmt"
	"strings"

	"github.com/okhara/stagecraft/engine"
)

const (
	routeCritique engine.RouteLabel = "critique"
	routeFinish   engine.RouteLabel = "finish"
)

// NewQuorum builds the answer-refinement workflow: a drafter answers the
// question, a panel of personas critiques the draft sequentially, and a
// refiner rewrites it. The panel runs for a fixed number of rounds.
func NewQuorum(deps Deps) (*Workflow, error) {
	schema := engine.NewSchema().
		Field("question", engine.Overwrite).
		Field("current_answer", engine.Overwrite).
		Field("critiques", engine.Overwrite).
		Field("iteration", engine.Overwrite).
		MustBuild()

	rounds := engine.LoopScope{Field: "iteration", Max: deps.Limits.QuorumRounds}
	q := &quorumStages{deps: deps, rounds: rounds}

	graph, err := engine.NewGraph(schema).
		AddStage("drafter", q.drafter).
		AddStage("quorum", q.critique).
		AddStage("refiner", q.refiner).
		SetEntry("drafter").
		AddEdge("drafter", "quorum").
		AddEdge("quorum", "refiner").
		AddConditionalEdge("refiner", q.route, map[engine.RouteLabel]string{
			routeCritique: "quorum",
			routeFinish:   engine.Terminal,
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:        "quorum",
		Graph:       graph,
		InputPrompt: "Enter your question for the quorum",
		Initial: func(input string) engine.Partial {
			return engine.Partial{"question": input, "iteration": 0}
		},
		Output:     func(rec engine.Record) string { return rec.String("current_answer") },
		OutputFile: artifactName("answer", "md"),
	}, nil
}

type quorumStages struct {
	deps   Deps
	rounds engine.LoopScope
}

func (q *quorumStages) route(rec engine.Record) engine.RouteLabel {
	if q.rounds.Exhausted(rec) {
		return routeFinish
	}
	return routeCritique
}

func (q *quorumStages) drafter(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	prompt := "You are an expert assistant. Provide a detailed, preliminary answer " +
		"to the following question. Be comprehensive but open to refinement.\n\n" +
		"Question: " + rec.String("question")

	answer := q.deps.complete(ctx, q.deps.Models.Writer, "", prompt, 0.7)
	return engine.Partial{"current_answer": answer, "iteration": 0}, nil
}

// critique runs the two personas in a fixed order; each sees the same
// draft, so their feedback is independent.
func (q *quorumStages) critique(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	question := rec.String("question")
	answer := rec.String("current_answer")

	skepticPrompt := "You are 'The Skeptic'. Your job is to find flaws, logical fallacies, " +
		"missing context, or weak arguments in the provided answer.\n" +
		"Be harsh but fair. If the answer is good, acknowledge it but find at least one improvement.\n\n" +
		fmt.Sprintf("Question: %s\nDraft Answer: %s\n\nCritique:", question, answer)
	skeptic := q.deps.complete(ctx, q.deps.Models.Skeptic, "", skepticPrompt, 0.3)

	structPrompt := "You are 'The Structuralist'. Focus ONLY on clarity, structure, formatting, " +
		"and flow. Is the answer easy to read? Does it use headers effectively?\n\n" +
		fmt.Sprintf("Draft Answer: %s\n\nCritique:", answer)
	structuralist := q.deps.complete(ctx, q.deps.Models.Editor, "", structPrompt, 0.3)

	return engine.Partial{"critiques": []string{
		"Skeptic's Feedback: " + skeptic,
		"Structuralist's Feedback: " + structuralist,
	}}, nil
}

func (q *quorumStages) refiner(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	prompt := "You are the Lead Editor. You have an original draft and a set of critiques " +
		"from a panel of experts. Your goal is to rewrite the draft to incorporate " +
		"this feedback and create the 'Final Golden Answer'.\n\n" +
		fmt.Sprintf("Original Question: %s\nCurrent Draft: %s\n\n--- Panel Feedback ---\n%s\n----------------------\n\n",
			rec.String("question"), rec.String("current_answer"), strings.Join(rec.Strings("critiques"), "\n\n")) +
		"Please provide the rewritten, improved answer below. Do not include a preamble about the changes, just the answer."

	answer := q.deps.complete(ctx, q.deps.Models.Refiner, "", prompt, 0.5)
	partial := q.rounds.Next(rec)
	partial["current_answer"] = answer
	partial["critiques"] = []string{}
	return partial, nil
}
