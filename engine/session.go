package engine

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/okhara/stagecraft/checkpoint"
	"github.com/okhara/stagecraft/types"
)

// Session is one run of a graph: a stable id, the current record, the
// pointer to the next stage to execute, and a monotonic checkpoint
// sequence. Sessions are not safe for concurrent use; the store lease
// enforces one runner per id.
type Session struct {
	ID     string
	Record Record
	Stage  string
	Seq    uint64
}

// Finished reports whether the session reached Terminal.
func (s *Session) Finished() bool { return s.Stage == Terminal }

// NewSession creates a fresh session positioned at the graph entry. id ""
// generates a uuid. The initial partial is merged into the schema's zero
// record under the usual policies.
func (e *Engine) NewSession(id string, initial Partial) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	rec, err := e.graph.schema.Apply(e.graph.schema.NewRecord(), initial)
	if err != nil {
		return nil, err
	}
	return &Session{ID: id, Record: rec, Stage: e.graph.Entry()}, nil
}

// Resume restores a session from its latest checkpoint: the stored record
// and stage pointer come back verbatim, so completed stages are never
// re-executed. An unknown id fails with SESSION_NOT_FOUND.
func (e *Engine) Resume(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, types.NewError(types.ErrCodeValidationFailure, "empty session id")
	}
	cp, err := e.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, checkpoint.ErrNotFound) {
			return nil, types.NewErrorf(types.ErrCodeSessionNotFound,
				"no checkpoint for session %q", id)
		}
		return nil, err
	}
	return &Session{
		ID:     cp.SessionID,
		Record: Record(cp.State),
		Stage:  cp.Stage,
		Seq:    cp.Seq,
	}, nil
}

// Start is NewSession followed by Run.
func (e *Engine) Start(ctx context.Context, id string, initial Partial) (*Session, Record, error) {
	sess, err := e.NewSession(id, initial)
	if err != nil {
		return nil, nil, err
	}
	rec, err := e.Run(ctx, sess)
	return sess, rec, err
}
