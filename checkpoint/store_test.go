package checkpoint

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testCheckpoint(id string) *Checkpoint {
	return &Checkpoint{
		SessionID: id,
		Seq:       3,
		Stage:     "writer",
		State: map[string]any{
			"objective": "explain raft",
			"notes":     []any{"note one", "note two"},
			"loop":      float64(1),
		},
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
}

// stores under test that need no external service
func localStores(t *testing.T) map[string]Store {
	t.Helper()
	fileStore, err := NewFileStore(StoreConfig{BaseDir: t.TempDir()})
	require.NoError(t, err)
	sqliteStore, err := NewSQLiteStore(StoreConfig{Path: t.TempDir() + "/checkpoints.db"})
	require.NoError(t, err)
	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   fileStore,
		"sqlite": sqliteStore,
	}
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			cp := testCheckpoint("sess-1")
			require.NoError(t, store.Save(ctx, cp))

			got, err := store.Load(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, cp.SessionID, got.SessionID)
			assert.Equal(t, cp.Seq, got.Seq)
			assert.Equal(t, cp.Stage, got.Stage)
			assert.Equal(t, cp.State, got.State)
		})
	}
}

func TestStoreLoadUnknownSession(t *testing.T) {
	ctx := context.Background()
	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()
			_, err := store.Load(ctx, "no-such-session")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreSaveOverwritesPrevious(t *testing.T) {
	ctx := context.Background()
	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			cp := testCheckpoint("sess-1")
			require.NoError(t, store.Save(ctx, cp))

			cp2 := testCheckpoint("sess-1")
			cp2.Seq = 4
			cp2.Stage = "quorum"
			require.NoError(t, store.Save(ctx, cp2))

			got, err := store.Load(ctx, "sess-1")
			require.NoError(t, err)
			assert.Equal(t, uint64(4), got.Seq)
			assert.Equal(t, "quorum", got.Stage)
		})
	}
}

func TestStoreLease(t *testing.T) {
	ctx := context.Background()
	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			require.NoError(t, store.Acquire(ctx, "sess-1"))
			assert.ErrorIs(t, store.Acquire(ctx, "sess-1"), ErrLeaseHeld)

			// A different session is unaffected.
			require.NoError(t, store.Acquire(ctx, "sess-2"))

			require.NoError(t, store.Release(ctx, "sess-1"))
			assert.NoError(t, store.Acquire(ctx, "sess-1"))
		})
	}
}

func TestStoreDeleteAndList(t *testing.T) {
	ctx := context.Background()
	for name, store := range localStores(t) {
		t.Run(name, func(t *testing.T) {
			defer store.Close()

			require.NoError(t, store.Save(ctx, testCheckpoint("a")))
			require.NoError(t, store.Save(ctx, testCheckpoint("b")))

			ids, err := store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "b"}, ids)

			require.NoError(t, store.Delete(ctx, "a"))
			assert.ErrorIs(t, store.Delete(ctx, "a"), ErrNotFound)

			ids, err = store.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"b"}, ids)
		})
	}
}

func TestStoreInvalidInput(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	assert.ErrorIs(t, store.Save(ctx, nil), ErrInvalidInput)
	assert.ErrorIs(t, store.Save(ctx, &Checkpoint{}), ErrInvalidInput)
	_, err := store.Load(ctx, "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestMemoryStoreClosed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Save(ctx, testCheckpoint("x")), ErrStoreClosed)
	_, err := store.Load(ctx, "x")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

// Loading a saved snapshot yields the same state the engine handed over,
// for any JSON-shaped record.
func TestStoreRoundTripProperty(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	defer store.Close()

	scalar := rapid.OneOf(
		rapid.String().AsAny(),
		rapid.Float64Range(-1e6, 1e6).AsAny(),
		rapid.Bool().AsAny(),
	)

	rapid.Check(t, func(t *rapid.T) {
		state := map[string]any{}
		for _, field := range rapid.SliceOfNDistinct(rapid.StringMatching(`[a-z]{1,8}`), 1, 6, rapid.ID).Draw(t, "fields") {
			if rapid.Bool().Draw(t, "isSeq") {
				n := rapid.IntRange(0, 4).Draw(t, "len")
				seq := make([]any, 0, n)
				for i := 0; i < n; i++ {
					seq = append(seq, scalar.Draw(t, "elem"))
				}
				state[field] = seq
			} else {
				state[field] = scalar.Draw(t, "value")
			}
		}

		// JSON-normalize the expectation the same way any durable
		// backend would.
		raw, err := json.Marshal(state)
		require.NoError(t, err)
		var want map[string]any
		require.NoError(t, json.Unmarshal(raw, &want))

		id := rapid.StringMatching(`[a-z0-9]{4,12}`).Draw(t, "session")
		require.NoError(t, store.Save(ctx, &Checkpoint{SessionID: id, Seq: 1, Stage: "s", State: state}))

		got, err := store.Load(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, got.State)
	})
}
