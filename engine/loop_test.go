package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoopScopeCounting(t *testing.T) {
	schema, err := NewSchema().Field("iterations", Overwrite).Build()
	require.NoError(t, err)
	loop := LoopScope{Field: "iterations", Max: 3}

	rec := schema.NewRecord()
	assert.Equal(t, 0, loop.Count(rec))
	assert.False(t, loop.Exhausted(rec))
	assert.Equal(t, 3, loop.Remaining(rec))

	for i := 0; i < 3; i++ {
		rec, err = schema.Apply(rec, loop.Next(rec))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, loop.Count(rec))
	assert.True(t, loop.Exhausted(rec))
	assert.Equal(t, 0, loop.Remaining(rec))

	rec, err = schema.Apply(rec, loop.Enter())
	require.NoError(t, err)
	assert.Equal(t, 0, loop.Count(rec))
	assert.False(t, loop.Exhausted(rec))
}

// Counter at bound-1 still allows one more repair pass; at the bound the
// router must leave the loop. Mirrors a failure on attempt 9 of 10 being
// repairable while attempt 10 is terminal.
func TestLoopScopeBoundaryDecision(t *testing.T) {
	loop := LoopScope{Field: "iterations", Max: 10}

	route := func(rec Record) RouteLabel {
		if rec.Bool("success") {
			return "end"
		}
		if loop.Exhausted(rec) {
			return "end"
		}
		return "retry"
	}

	assert.Equal(t, RouteLabel("retry"),
		route(Record{"iterations": 9, "success": false}))
	assert.Equal(t, RouteLabel("end"),
		route(Record{"iterations": 10, "success": false}))
	assert.Equal(t, RouteLabel("end"),
		route(Record{"iterations": 2, "success": true}))
}

// Counters survive a JSON round trip (resume path) as float64.
func TestLoopScopeAfterResume(t *testing.T) {
	loop := LoopScope{Field: "iterations", Max: 2}
	rec := Record{"iterations": float64(1)}
	assert.Equal(t, 1, loop.Count(rec))
	assert.False(t, loop.Exhausted(rec))
	assert.True(t, loop.Exhausted(Record{"iterations": float64(2)}))
}
