// Package sandbox runs untrusted generated programs as local
// subprocesses with a hard timeout and bounded output capture.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// DefaultMaxOutputBytes bounds captured stdout/stderr per stream.
const DefaultMaxOutputBytes = 256 * 1024

// Result is the outcome of one execution. A timeout or spawn failure is
// reported here, never as a Go error: workflow stages feed the result
// back into the repair loop regardless of how the process died.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
	Duration time.Duration
}

// Succeeded reports a clean zero exit.
func (r Result) Succeeded() bool { return r.ExitCode == 0 && !r.TimedOut }

// Runner executes commands.
type Runner struct {
	maxOutputBytes int
	logger         *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxOutputBytes overrides the capture bound.
func WithMaxOutputBytes(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxOutputBytes = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a Runner.
func New(opts ...Option) *Runner {
	r := &Runner{maxOutputBytes: DefaultMaxOutputBytes, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.With(zap.String("component", "sandbox"))
	return r
}

// Run executes name with args in dir (empty for the current directory),
// killing the process after timeout. It never returns an error; failures
// are encoded in the Result.
func (r *Runner) Run(ctx context.Context, dir, name string, args []string, timeout time.Duration) Result {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, name, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	started := time.Now()
	err := cmd.Run()
	elapsed := time.Since(started)

	res := Result{
		Stdout:   truncate(stdout.String(), r.maxOutputBytes),
		Stderr:   truncate(stderr.String(), r.maxOutputBytes),
		Duration: elapsed,
	}

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		res.TimedOut = true
		res.ExitCode = -1
		if res.Stderr == "" {
			res.Stderr = "process killed: timeout after " + timeout.String()
		}
	case err == nil:
		res.ExitCode = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		} else {
			// Spawn failure (binary missing, permission denied).
			res.ExitCode = -1
			if res.Stderr == "" {
				res.Stderr = err.Error()
			}
		}
	}

	r.logger.Debug("process finished",
		zap.String("command", name),
		zap.Strings("args", args),
		zap.Int("exit_code", res.ExitCode),
		zap.Bool("timed_out", res.TimedOut),
		zap.Duration("duration", elapsed))
	return res
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... [output truncated]"
}
