package engine

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/okhara/stagecraft/checkpoint"
)

// For every bound n, a never-succeeding loop body runs exactly n+1 times
// (initial pass plus n repairs) and the traversal terminates.
func TestBoundedLoopTerminationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("never-succeeding body runs bound+1 times", prop.ForAll(
		func(bound int) bool {
			schema, err := NewSchema().Field("repairs", Overwrite).Build()
			if err != nil {
				return false
			}
			loop := LoopScope{Field: "repairs", Max: bound}

			bodyCalls := 0
			g := NewGraph(schema).
				AddStage("body", func(ctx context.Context, rec Record) (Partial, error) {
					bodyCalls++
					return Partial{}, nil
				}).
				AddStage("repair", func(ctx context.Context, rec Record) (Partial, error) {
					return loop.Next(rec), nil
				}).
				AddConditionalEdge("body", func(rec Record) RouteLabel {
					if loop.Exhausted(rec) {
						return "end"
					}
					return "retry"
				}, map[RouteLabel]string{"retry": "repair", "end": Terminal}).
				AddEdge("repair", "body").
				SetEntry("body").
				MustBuild()

			store := checkpoint.NewMemoryStore()
			defer store.Close()
			eng, err := New("bounded", g, store)
			if err != nil {
				return false
			}
			sess, err := eng.NewSession("", loop.Enter())
			if err != nil {
				return false
			}
			if _, err := eng.Run(context.Background(), sess); err != nil {
				return false
			}
			return bodyCalls == bound+1 && sess.Finished()
		},
		gen.IntRange(0, 12),
	))

	properties.TestingRun(t)
}
