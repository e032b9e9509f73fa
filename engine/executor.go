package engine

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/okhara/stagecraft/checkpoint"
	"github.com/okhara/stagecraft/internal/metrics"
	"github.com/okhara/stagecraft/types"
)

// TerminalPolicy decides what Run does with a session whose stage pointer
// is already Terminal.
type TerminalPolicy int

const (
	// TerminalNoOp returns the stored record unchanged.
	TerminalNoOp TerminalPolicy = iota
	// TerminalReenter re-enters the graph at its entry stage for another
	// pass over the preserved record.
	TerminalReenter
)

// Engine drives one graph: it owns the traversal loop, the checkpoint
// cadence and the session lease. A single Engine may run many sessions.
type Engine struct {
	name           string
	graph          *Graph
	store          checkpoint.Store
	logger         *zap.Logger
	metrics        *metrics.Collector
	terminalPolicy TerminalPolicy
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// WithMetrics sets the Prometheus collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithTerminalPolicy overrides the default TerminalNoOp.
func WithTerminalPolicy(p TerminalPolicy) Option {
	return func(e *Engine) { e.terminalPolicy = p }
}

// New creates an engine for the graph. name labels logs, metrics and
// spans; store receives a checkpoint after every stage.
func New(name string, graph *Graph, store checkpoint.Store, opts ...Option) (*Engine, error) {
	if graph == nil {
		return nil, types.NewError(types.ErrCodeGraphInvalid, "nil graph")
	}
	if store == nil {
		return nil, types.NewError(types.ErrCodeValidationFailure, "nil checkpoint store")
	}
	e := &Engine{name: name, graph: graph, store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	e.logger = e.logger.With(zap.String("component", "engine"), zap.String("workflow", name))
	return e, nil
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *Graph { return e.graph }

// Run executes the session until the stage pointer reaches Terminal,
// checkpointing after every stage. The session lease is held for the
// duration; a concurrent Run on the same id fails with SESSION_LOCKED.
func (e *Engine) Run(ctx context.Context, sess *Session) (Record, error) {
	if sess == nil {
		return nil, types.NewError(types.ErrCodeValidationFailure, "nil session")
	}
	if err := e.store.Acquire(ctx, sess.ID); err != nil {
		if errors.Is(err, checkpoint.ErrLeaseHeld) {
			return nil, types.NewErrorf(types.ErrCodeSessionLocked,
				"session %q is already being executed", sess.ID)
		}
		return nil, err
	}
	defer func() {
		_ = e.store.Release(context.WithoutCancel(ctx), sess.ID)
	}()

	logger := e.logger.With(zap.String("session_id", sess.ID))

	if sess.Stage == Terminal {
		switch e.terminalPolicy {
		case TerminalReenter:
			logger.Info("re-entering completed session", zap.String("entry", e.graph.Entry()))
			sess.Stage = e.graph.Entry()
		default:
			logger.Info("session already terminal, returning stored record")
			return sess.Record, nil
		}
	}

	tracer := otel.Tracer("stagecraft/engine")

	for sess.Stage != Terminal {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stage := sess.Stage
		fn, ok := e.graph.stage(stage)
		if !ok {
			return nil, types.NewErrorf(types.ErrCodeGraphInvalid,
				"session points at undeclared stage %q", stage)
		}

		stageCtx, span := tracer.Start(ctx, "stage "+stage)
		span.SetAttributes(
			attribute.String("workflow", e.name),
			attribute.String("stage", stage),
			attribute.String("session.id", sess.ID),
			attribute.Int64("session.seq", int64(sess.Seq)),
		)

		started := time.Now()
		partial, err := fn(stageCtx, sess.Record.Clone())
		elapsed := time.Since(started)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "stage failed")
			span.End()
			e.metrics.ObserveStage(e.name, stage, "error", elapsed)
			logger.Error("stage failed", zap.String("stage", stage), zap.Error(err))
			return nil, err
		}

		next, err := e.graph.schema.Apply(sess.Record, partial)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "merge failed")
			span.End()
			e.metrics.ObserveStage(e.name, stage, "error", elapsed)
			return nil, err
		}

		nextStage, label, err := e.graph.next(stage, next)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "routing failed")
			span.End()
			e.metrics.ObserveStage(e.name, stage, "error", elapsed)
			return nil, err
		}
		if label != "" {
			e.metrics.RecordRoute(e.name, stage, string(label))
		}
		span.End()
		e.metrics.ObserveStage(e.name, stage, "ok", elapsed)

		sess.Record = next
		sess.Stage = nextStage
		sess.Seq++

		if err := e.checkpointSession(ctx, sess); err != nil {
			return nil, err
		}

		logger.Info("stage completed",
			zap.String("stage", stage),
			zap.String("next", nextStage),
			zap.String("route", string(label)),
			zap.Uint64("seq", sess.Seq),
			zap.Duration("duration", elapsed))
	}

	logger.Info("session finished", zap.Uint64("seq", sess.Seq))
	return sess.Record, nil
}

func (e *Engine) checkpointSession(ctx context.Context, sess *Session) error {
	err := e.store.Save(ctx, &checkpoint.Checkpoint{
		SessionID: sess.ID,
		Seq:       sess.Seq,
		Stage:     sess.Stage,
		State:     sess.Record,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		return types.NewErrorf(types.ErrCodeExternalService,
			"checkpoint save for session %q", sess.ID).WithCause(err).WithRetryable(true)
	}
	e.metrics.RecordCheckpoint()
	return nil
}
