package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/types"
)

const mathProofFile = "proof_attempt.lean"

const (
	routeSyntax engine.RouteLabel = "syntax"
	routeLogic  engine.RouteLabel = "logic"
)

// mathFailureLabels classifies a failed compile: SYNTAX sends the run
// back to the formalizer, LOGIC back to the theorist. LOGIC is probed
// first so a reply hedging with both markers restarts the proof
// strategy rather than patching code. Unparseable arbiter output
// defaults to SYNTAX, the cheaper loop.
var mathFailureLabels = engine.MustLabelSet("TYPE:", "SYNTAX", "LOGIC", "SYNTAX")

// NewMath builds the formal-proof workflow: a theorist sketches an
// informal proof, a formalizer translates it to Lean, the kernel stage
// compiles it, and on failure an arbiter classifies the error to decide
// which of the two stages repairs it. The repair counter advances on
// every arbiter pass, so both loops share one bound.
func NewMath(deps Deps) (*Workflow, error) {
	if err := deps.requireSandbox("math"); err != nil {
		return nil, err
	}

	schema := engine.NewSchema().
		Field("objective", engine.Overwrite).
		Field("informal_proof", engine.Overwrite).
		Field("lean_code", engine.Overwrite).
		Field("compiler_output", engine.Overwrite).
		Field("error_type", engine.Overwrite).
		Field("critique", engine.Overwrite).
		Field("success", engine.Overwrite).
		Field("iterations", engine.Overwrite).
		MustBuild()

	repairs := engine.LoopScope{Field: "iterations", Max: deps.Limits.MathRepairs}
	m := &mathStages{deps: deps, repairs: repairs}

	graph, err := engine.NewGraph(schema).
		AddStage("theorist", m.theorist).
		AddStage("formalizer", m.formalizer).
		AddStage("kernel", m.kernel).
		AddStage("arbiter", m.arbiter).
		SetEntry("theorist").
		AddEdge("theorist", "formalizer").
		AddEdge("formalizer", "kernel").
		AddEdge("kernel", "arbiter").
		AddConditionalEdge("arbiter", m.route, map[engine.RouteLabel]string{
			routeDone:   engine.Terminal,
			routeGiveUp: engine.Terminal,
			routeSyntax: "formalizer",
			routeLogic:  "theorist",
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:        "math",
		Graph:       graph,
		InputPrompt: "Enter the theorem to prove",
		Initial: func(input string) engine.Partial {
			return engine.Partial{"objective": input}
		},
		Output:     func(rec engine.Record) string { return rec.String("lean_code") },
		OutputFile: artifactName("proof", "lean"),
	}, nil
}

type mathStages struct {
	deps    Deps
	repairs engine.LoopScope
}

func (m *mathStages) route(rec engine.Record) engine.RouteLabel {
	if rec.Bool("success") {
		return routeDone
	}
	if m.repairs.Exhausted(rec) {
		return routeGiveUp
	}
	switch rec.String("error_type") {
	case "SYNTAX":
		return routeSyntax
	case "LOGIC":
		return routeLogic
	}
	return routeDone
}

func (m *mathStages) theorist(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	system := "You are an expert Mathematician. Your goal is to provide a rigorous INFORMAL proof sketch.\n" +
		"1. State necessary definitions.\n" +
		"2. State the theorem clearly.\n" +
		"3. Provide a step-by-step proof in natural language + LaTeX.\n" +
		"4. DO NOT write Lean code yet."

	prompt := "Objective: " + rec.String("objective")
	if critique := rec.String("critique"); critique != "" && rec.String("error_type") == "LOGIC" {
		prompt = fmt.Sprintf(
			"Objective: %s\nPrevious Attempt Failed.\nArbiter Critique: %s\n\nPlease restructure your proof strategy to avoid this logical pitfall.",
			rec.String("objective"), critique)
	}

	proof := m.deps.complete(ctx, m.deps.Models.Theorist, system, prompt, 0.1)
	return engine.Partial{"informal_proof": proof}, nil
}

func (m *mathStages) formalizer(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	system := "You are a Lean4 Expert. Translate the informal proof into valid Lean4 code.\n" +
		"1. Use `import Mathlib` if needed.\n" +
		"2. Ensure all types and definitions are strictly declared.\n" +
		"3. Output ONLY the Lean code inside ```lean ... ``` blocks."

	var prompt string
	if rec.String("error_type") == "SYNTAX" && rec.String("lean_code") != "" {
		prompt = fmt.Sprintf(
			"The previous Lean code had a syntax/tactic error.\nError Log:\n%s\n\nArbiter Tip: %s\n\nOriginal Code:\n```lean\n%s\n```\nFix the code.",
			rec.String("compiler_output"), rec.String("critique"), rec.String("lean_code"))
	} else {
		prompt = fmt.Sprintf(
			"Objective: %s\nInformal Proof Strategy:\n%s\n\nTranslate this into a complete `.lean` file.",
			rec.String("objective"), rec.String("informal_proof"))
	}

	resp := m.deps.complete(ctx, m.deps.Models.Formalizer, system, prompt, 0.1)
	return engine.Partial{"lean_code": llm.ExtractFenced(resp, "lean")}, nil
}

// kernel compiles the current proof attempt. A missing lean binary is an
// environment problem the arbiter cannot classify, so it is reported
// verbatim in the compiler output.
func (m *mathStages) kernel(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	ws := m.deps.Workspace
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return nil, types.NewErrorf(types.ErrCodeExternalService, "create workspace %s", ws).WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(ws, mathProofFile), []byte(rec.String("lean_code")), 0o644); err != nil {
		return nil, types.NewErrorf(types.ErrCodeExternalService, "write %s", mathProofFile).WithCause(err)
	}

	res := m.deps.Sandbox.Run(ctx, ws, "lean", []string{mathProofFile}, m.deps.Limits.SandboxTimeout)

	output := res.Stdout + res.Stderr
	if res.ExitCode == -1 && !res.TimedOut && strings.Contains(res.Stderr, "executable file not found") {
		output = "Error: 'lean' executable not found. Please install Lean4."
	}
	return engine.Partial{"compiler_output": output, "success": res.Succeeded()}, nil
}

// arbiter classifies a failed compile and charges one repair against the
// shared bound. Successful compiles skip it entirely.
func (m *mathStages) arbiter(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	if rec.Bool("success") {
		return engine.Partial{}, nil
	}

	system := "You are an expert Debugger for Lean4.\n" +
		"Analyze the error log and decide if the failure is due to:\n" +
		"1. SYNTAX: The math is likely correct, but the code/tactics are wrong (e.g., 'unknown identifier', 'type mismatch').\n" +
		"2. LOGIC: The proof strategy itself is flawed or the goal is unprovable (e.g., 'goals not accomplished', 'contradiction').\n\n" +
		"Output Format:\n" +
		"TYPE: <SYNTAX or LOGIC>\n" +
		"CRITIQUE: <Short explanation of what to fix>"

	prompt := fmt.Sprintf("Lean Code:\n```lean\n%s\n```\nCompiler Output:\n%s\n",
		rec.String("lean_code"), rec.String("compiler_output"))

	resp := m.deps.complete(ctx, m.deps.Models.Arbiter, system, prompt, 0.1)

	errorType := string(mathFailureLabels.Parse(resp))
	critique := strings.TrimSpace(strings.NewReplacer(
		"TYPE: SYNTAX", "", "TYPE: LOGIC", "").Replace(resp))

	partial := m.repairs.Next(rec)
	partial["error_type"] = errorType
	partial["critique"] = critique
	return partial, nil
}
