package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	store, err := NewRedisStore(StoreConfig{
		RedisAddr: mr.Addr(),
		KeyPrefix: "stagecraft-test",
		LeaseTTL:  time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	cp := testCheckpoint("sess-redis")
	require.NoError(t, store.Save(ctx, cp))

	got, err := store.Load(ctx, "sess-redis")
	require.NoError(t, err)
	assert.Equal(t, cp.Seq, got.Seq)
	assert.Equal(t, cp.Stage, got.Stage)
	assert.Equal(t, cp.State, got.State)

	_, err = store.Load(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreLease(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	require.NoError(t, store.Acquire(ctx, "sess-redis"))
	assert.ErrorIs(t, store.Acquire(ctx, "sess-redis"), ErrLeaseHeld)
	require.NoError(t, store.Release(ctx, "sess-redis"))
	assert.NoError(t, store.Acquire(ctx, "sess-redis"))
}

func TestRedisStoreListAndDelete(t *testing.T) {
	ctx := context.Background()
	store := newTestRedisStore(t)

	require.NoError(t, store.Save(ctx, testCheckpoint("a")))
	require.NoError(t, store.Save(ctx, testCheckpoint("b")))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, store.Delete(ctx, "b"))
	assert.ErrorIs(t, store.Delete(ctx, "b"), ErrNotFound)
}
