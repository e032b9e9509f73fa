// Command stagecraft runs the built-in agent workflows: it loads the
// configuration, builds the requested workflow graph, creates or resumes
// a checkpointed session and writes the final artifact to the workspace.
//
// Usage:
//
//	stagecraft run --workflow research --input "history of RISC-V"
//	stagecraft run --workflow coding --session 4f1c2 [--config config.yaml]
//	stagecraft sessions [--config config.yaml]
//	stagecraft workflows
//	stagecraft version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/okhara/stagecraft/checkpoint"
	"github.com/okhara/stagecraft/config"
	"github.com/okhara/stagecraft/engine"
	"github.com/okhara/stagecraft/fetch"
	"github.com/okhara/stagecraft/internal/metrics"
	"github.com/okhara/stagecraft/internal/telemetry"
	"github.com/okhara/stagecraft/llm"
	"github.com/okhara/stagecraft/sandbox"
	"github.com/okhara/stagecraft/search"
	"github.com/okhara/stagecraft/types"
	"github.com/okhara/stagecraft/workflows"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "sessions":
		runSessions(os.Args[2:])
	case "workflows":
		for _, name := range workflows.Names() {
			fmt.Println(name)
		}
	case "version":
		fmt.Printf("stagecraft %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	workflowName := fs.String("workflow", "", "Workflow to run (see 'stagecraft workflows')")
	sessionID := fs.String("session", "", "Session id; an existing id resumes its checkpoint")
	input := fs.String("input", "", "Initial input; prompted for interactively when empty")
	_ = fs.Parse(args)

	if *workflowName == "" {
		fmt.Fprintln(os.Stderr, "run requires --workflow")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Telemetry.Enabled {
		shutdown, err := telemetry.Init(ctx, "stagecraft", cfg.Telemetry.Endpoint)
		if err != nil {
			logger.Warn("failed to initialize telemetry", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	collector := metrics.NewCollector(prometheus.DefaultRegisterer)

	store, err := checkpoint.NewStore(cfg.Checkpoint, logger)
	if err != nil {
		logger.Fatal("failed to open checkpoint store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	wf, err := workflows.New(*workflowName, buildDeps(cfg, logger, collector))
	if err != nil {
		logger.Fatal("failed to build workflow", zap.Error(err))
	}

	eng, err := engine.New(wf.Name, wf.Graph, store,
		engine.WithLogger(logger),
		engine.WithMetrics(collector),
	)
	if err != nil {
		logger.Fatal("failed to build engine", zap.Error(err))
	}

	sess, err := openSession(ctx, eng, wf, *sessionID, *input)
	if err != nil {
		logger.Fatal("failed to open session", zap.Error(err))
	}
	logger.Info("running session",
		zap.String("workflow", wf.Name), zap.String("session_id", sess.ID))

	rec, err := eng.Run(ctx, sess)
	if err != nil {
		logger.Fatal("run failed", zap.String("session_id", sess.ID), zap.Error(err))
	}

	artifact := wf.Output(rec)
	path := filepath.Join(cfg.Workspace, wf.OutputFile(sess.ID))
	if err := os.MkdirAll(cfg.Workspace, 0o755); err != nil {
		logger.Fatal("failed to create workspace", zap.Error(err))
	}
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		logger.Fatal("failed to write artifact", zap.String("path", path), zap.Error(err))
	}

	fmt.Printf("\nDone. Session %s finished; artifact saved to %s\n", sess.ID, path)
}

// openSession resumes an existing checkpoint when one exists for the id,
// otherwise starts a fresh session, prompting for input if none was
// given on the command line.
func openSession(ctx context.Context, eng *engine.Engine, wf *workflows.Workflow, sessionID, input string) (*engine.Session, error) {
	if sessionID != "" {
		sess, err := eng.Resume(ctx, sessionID)
		if err == nil {
			fmt.Printf("Resuming session %s\n", sessionID)
			return sess, nil
		}
		if !types.IsCode(err, types.ErrCodeSessionNotFound) {
			return nil, err
		}
		fmt.Printf("No checkpoint for %q, starting a new session\n", sessionID)
	}

	if input == "" {
		fmt.Printf("%s: ", wf.InputPrompt)
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			input = strings.TrimSpace(scanner.Text())
		}
		if input == "" {
			return nil, types.NewError(types.ErrCodeValidationFailure, "no input provided")
		}
	}
	return eng.NewSession(sessionID, wf.Initial(input))
}

func runSessions(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file (YAML)")
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	store, err := checkpoint.NewStore(cfg.Checkpoint, zap.NewNop())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open checkpoint store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ids, err := store.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		fmt.Println("No checkpointed sessions.")
		return
	}
	for _, id := range ids {
		cp, err := store.Load(context.Background(), id)
		if err != nil {
			if errors.Is(err, checkpoint.ErrNotFound) {
				continue
			}
			fmt.Fprintf(os.Stderr, "Failed to load %s: %v\n", id, err)
			continue
		}
		fmt.Printf("%s\tstage=%s\tseq=%d\tupdated=%s\n",
			cp.SessionID, cp.Stage, cp.Seq, cp.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
}

// buildDeps wires the shared workflow services from configuration. The
// search chain tries credentialed providers first and always ends at
// the keyless scraper.
func buildDeps(cfg config.Config, logger *zap.Logger, collector *metrics.Collector) workflows.Deps {
	client := llm.NewOllamaClient(cfg.Ollama.BaseURL, cfg.Ollama.Timeout,
		llm.WithLogger(logger),
		llm.WithMetrics(collector),
	)

	opts := search.Options{Logger: logger, Metrics: collector}
	var providers []search.Provider
	if cfg.Search.BraveAPIKey != "" {
		providers = append(providers, search.NewBraveProvider(cfg.Search.BraveAPIKey, opts))
	}
	if cfg.Search.GoogleAPIKey != "" && cfg.Search.GoogleEngineID != "" {
		providers = append(providers, search.NewGoogleProvider(cfg.Search.GoogleAPIKey, cfg.Search.GoogleEngineID, opts))
	}
	providers = append(providers, search.NewDuckDuckGoProvider(opts))

	provider := search.RateLimited(
		search.NewChain(logger, providers...),
		cfg.Limits.SearchPerMinute,
	)

	return workflows.Deps{
		LLM:       client,
		Search:    provider,
		Fetcher:   fetch.New(fetch.WithMaxChars(cfg.Limits.FetchMaxChars), fetch.WithLogger(logger)),
		Sandbox:   sandbox.New(sandbox.WithLogger(logger)),
		Models:    cfg.Models,
		Limits:    cfg.Limits,
		Workspace: cfg.Workspace,
		Logger:    logger,
	}
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	encoding := "json"
	if cfg.Development {
		encoding = "console"
	}
	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Development,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func printUsage() {
	fmt.Println(`stagecraft - checkpointed agent workflows

Usage:
  stagecraft <command> [options]

Commands:
  run        Run a workflow session (new or resumed)
  sessions   List checkpointed sessions
  workflows  List available workflows
  version    Show version information
  help       Show this help message

Options for 'run':
  --workflow <name>  Workflow to run (required)
  --config <path>    Path to configuration file (YAML)
  --session <id>     Session id; resumes when a checkpoint exists
  --input <text>     Initial input; prompted for when empty

Examples:
  stagecraft run --workflow research --input "history of RISC-V"
  stagecraft run --workflow report --session 4f1c2a`)
}
