package workflows

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/types"
)

// Generated artifacts inside the workspace.
const (
	codingScriptFile = "temp_sandbox_script.py"
	codingTestFile   = "temp_generated_tests.py"
	codingPlotFile   = "output_plot.png"
)

const (
	routeRetry  engine.RouteLabel = "retry"
	routeDone   engine.RouteLabel = "done"
	routeGiveUp engine.RouteLabel = "give_up"
)

// NewCoding builds the test-driven coding workflow: a tester writes a
// pytest suite up front, a coder writes the script, a dependency stage
// installs third-party imports, the sandbox runs script and tests, and a
// vision verifier judges the plotted output. Failures loop back to the
// coder until the repair bound is spent.
func NewCoding(deps Deps) (*Workflow, error) {
	if err := deps.requireSandbox("coding"); err != nil {
		return nil, err
	}

	schema := engine.NewSchema().
		Field("objective", engine.Overwrite).
		Field("code", engine.Overwrite).
		Field("test_code", engine.Overwrite).
		Field("output", engine.Overwrite).
		Field("verification_error", engine.Overwrite).
		Field("success", engine.Overwrite).
		Field("iterations", engine.Overwrite).
		MustBuild()

	attempts := engine.LoopScope{Field: "iterations", Max: deps.Limits.CodingRepairs}
	c := &codingStages{deps: deps, attempts: attempts, logger: deps.logger()}

	graph, err := engine.NewGraph(schema).
		AddStage("tester", c.tester).
		AddStage("coder", c.coder).
		AddStage("dependency_manager", c.dependencyManager).
		AddStage("executor", c.executor).
		AddStage("verifier", c.verifier).
		SetEntry("tester").
		AddEdge("tester", "coder").
		AddEdge("coder", "dependency_manager").
		AddEdge("dependency_manager", "executor").
		AddEdge("executor", "verifier").
		AddConditionalEdge("verifier", c.route, map[engine.RouteLabel]string{
			routeDone:   engine.Terminal,
			routeGiveUp: engine.Terminal,
			routeRetry:  "coder",
		}).
		Build()
	if err != nil {
		return nil, err
	}

	return &Workflow{
		Name:        "coding",
		Graph:       graph,
		InputPrompt: "Enter the coding objective",
		Initial: func(input string) engine.Partial {
			return engine.Partial{"objective": input}
		},
		Output:     func(rec engine.Record) string { return rec.String("code") },
		OutputFile: artifactName("script", "py"),
	}, nil
}

type codingStages struct {
	deps     Deps
	attempts engine.LoopScope
	logger   *zap.Logger
}

func (c *codingStages) route(rec engine.Record) engine.RouteLabel {
	if rec.Bool("success") {
		return routeDone
	}
	if c.attempts.Exhausted(rec) {
		return routeGiveUp
	}
	return routeRetry
}

// tester writes the suite once, before any code exists; repair passes
// keep the original tests so the target stays fixed.
func (c *codingStages) tester(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	if rec.Int("iterations") > 0 && rec.String("test_code") != "" {
		return engine.Partial{}, nil
	}

	module := strings.TrimSuffix(codingScriptFile, ".py")
	system := "You are a QA Engineer specializing in TDD (Test Driven Development).\n" +
		fmt.Sprintf("Write a `pytest` test file for a Python script named `%s`.\n", module) +
		"Requirements:\n" +
		"1. Define the expected function signatures based on the user objective.\n" +
		"2. Write comprehensive test cases (edge cases, happy paths).\n" +
		fmt.Sprintf("3. Import the module using `import %s as app`.\n", module) +
		"4. Output ONLY the python code."

	resp := c.deps.complete(ctx, c.deps.Models.Tester, system, "Objective: "+rec.String("objective"), 0.1)
	return engine.Partial{"test_code": llm.ExtractFenced(resp, "python")}, nil
}

func (c *codingStages) coder(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	objective := rec.String("objective")
	testCode := rec.String("test_code")
	iterations := c.attempts.Count(rec)
	prevOutput := rec.String("output")
	verificationError := rec.String("verification_error")

	instruction := "Requirements:\n" +
		"1. Output ONLY the code inside markdown blocks ```python ... ```\n" +
		"2. Do not use 'input()'.\n" +
		"3. ALWAYS set `matplotlib.use('Agg')` before importing pyplot.\n" +
		fmt.Sprintf("4. Save plots to '%s'.\n", codingPlotFile) +
		"5. IMPORTANT: Your code must be compatible with the provided Test Suite.\n" +
		"6. Ensure you expose the functions/classes expected by the tests.\n" +
		"7. Make sure there is a __name__ == \"__main__\" section that runs in a meaningfully useful way."

	var prompt string
	switch {
	case iterations == 0:
		prompt = fmt.Sprintf(
			"Objective: %s\n\nHere is the Test Suite you must pass:\n```python\n%s\n```\n\nWrite the script `%s` to pass these tests and solve the objective.\n%s",
			objective, testCode, codingScriptFile, instruction)
	case verificationError == "":
		// Runtime or test failure.
		prompt = fmt.Sprintf(
			"Goal: %s\nThe script failed during execution or testing:\n%s\n\nHere are the tests:\n```python\n%s\n```\nFix the code to pass the tests and resolve the crash.\nOutput ONLY the fixed code.",
			objective, prevOutput, testCode)
	default:
		// Verifier rejected the result.
		prompt = fmt.Sprintf(
			"Goal: %s\nThe output was rejected by the Verifier:\nCritique: %s\n\nPrevious Output: %s\n\nModify the code to satisfy the critique.\nOutput ONLY the fixed code.",
			objective, verificationError, prevOutput)
	}

	resp := c.deps.complete(ctx, c.deps.Models.Coder, "", prompt, 0.2)
	partial := c.attempts.Next(rec)
	partial["code"] = llm.ExtractFenced(resp, "python")
	partial["verification_error"] = ""
	return partial, nil
}

// dependencyManager installs the third-party imports of the code and its
// tests. Install failures are absorbed; the executor surfaces a missing
// module as an import error the coder can react to.
func (c *codingStages) dependencyManager(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	packages := PythonThirdPartyImports(rec.String("code"), rec.String("test_code"))
	packages = append(packages, "pytest")

	module := strings.TrimSuffix(codingScriptFile, ".py")
	for _, pkg := range packages {
		if pkg == module || pkg == "app" {
			continue
		}
		res := c.deps.Sandbox.Run(ctx, c.deps.Workspace, "poetry", []string{"add", pkg}, c.deps.Limits.SandboxTimeout)
		if !res.Succeeded() {
			c.logger.Debug("package install failed",
				zap.String("package", pkg), zap.Int("exit_code", res.ExitCode))
		}
	}
	return engine.Partial{}, nil
}

func (c *codingStages) executor(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	ws := c.deps.Workspace
	if err := os.MkdirAll(ws, 0o755); err != nil {
		return nil, types.NewErrorf(types.ErrCodeExternalService, "create workspace %s", ws).WithCause(err)
	}
	// A stale plot must not pass verification for a fresh run.
	_ = os.Remove(filepath.Join(ws, codingPlotFile))

	if err := os.WriteFile(filepath.Join(ws, codingScriptFile), []byte(rec.String("code")), 0o644); err != nil {
		return nil, types.NewErrorf(types.ErrCodeExternalService, "write %s", codingScriptFile).WithCause(err)
	}
	if err := os.WriteFile(filepath.Join(ws, codingTestFile), []byte(rec.String("test_code")), 0o644); err != nil {
		return nil, types.NewErrorf(types.ErrCodeExternalService, "write %s", codingTestFile).WithCause(err)
	}

	timeout := c.deps.Limits.SandboxTimeout
	log := "--- SCRIPT EXECUTION ---\n"

	run := c.deps.Sandbox.Run(ctx, ws, "python3", []string{codingScriptFile}, timeout)
	log += fmt.Sprintf("STDOUT: %s\nSTDERR: %s\n", run.Stdout, run.Stderr)
	if !run.Succeeded() {
		return engine.Partial{"output": log, "success": false}, nil
	}

	log += "\n--- TEST EXECUTION ---\n"
	tests := c.deps.Sandbox.Run(ctx, ws, "python3", []string{"-m", "pytest", codingTestFile}, timeout)
	log += tests.Stdout + tests.Stderr
	if !tests.Succeeded() {
		return engine.Partial{"output": log, "success": false}, nil
	}

	if _, err := os.Stat(filepath.Join(ws, codingPlotFile)); err == nil {
		log += fmt.Sprintf("\n[System Note]: '%s' was generated.", codingPlotFile)
	}
	return engine.Partial{"output": log, "success": true}, nil
}

// verifier only runs on executions the tests accepted; it judges logic
// and rigor, looking at the plot when one was produced.
func (c *codingStages) verifier(ctx context.Context, rec engine.Record) (engine.Partial, error) {
	if !rec.Bool("success") {
		return engine.Partial{}, nil
	}

	prompt := fmt.Sprintf(
		"User Objective: %s\n\n--- SOURCE CODE ---\n%s\n\n--- EXECUTION LOGS ---\n%s\n\n",
		rec.String("objective"), rec.String("code"), rec.String("output")) +
		"The automated tests PASSED. Now you must verify the LOGIC and RIGOR.\n\n" +
		"CRITICAL CHECKS:\n" +
		"1. Look at the `if __name__ == '__main__':` block at the bottom.\n" +
		"2. Are the input parameters TRIVIAL? (e.g., angles set to 0.0, time set to 0, or mass set to 0).\n" +
		"3. If the inputs are trivial/zeros, the simulation is meaningless even if it runs.\n" +
		"4. Check the LOGIC of the program. Does it actually do what it is supposed to do?\n\n" +
		"DECISION:\n" +
		"- If inputs are trivial or the plot looks like a flat line: Reply 'FAILED: <explanation>'\n" +
		"- If inputs look interesting and the plot looks valid: Reply 'PASSED'"

	req := llm.Request{
		Model:       c.deps.Models.Verifier,
		Prompt:      prompt,
		Temperature: 0.1,
	}
	if image, err := llm.EncodeImageFile(filepath.Join(c.deps.Workspace, codingPlotFile)); err == nil {
		req.Images = []string{image}
	}

	critique := llm.CompleteOrSentinel(ctx, c.deps.LLM, req)
	passed, reason := ParseVerdict(critique)
	if passed {
		return engine.Partial{"verification_error": "", "success": true}, nil
	}
	return engine.Partial{"verification_error": reason, "success": false}, nil
}
