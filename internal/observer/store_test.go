package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAppendAndTail(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, store.Append(ctx, Entry{
			Stream: "stream:prices", Topic: "prices.x", Source: "shard-1",
			ZmqSeq: uint64(i), ZmqTs: i, RecvTs: i, Payload: []byte("p"),
		}, 0))
	}

	entries, err := store.Tail(ctx, "stream:prices", 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, uint64(1), entries[0].ZmqSeq) // oldest first
	assert.Equal(t, uint64(3), entries[2].ZmqSeq)
}

func TestStoreAppendTrimsToMaxLen(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.NoError(t, store.Append(ctx, Entry{
			Stream: "stream:prices", Topic: "prices.x", Source: "shard-1",
			ZmqSeq: uint64(i), ZmqTs: i, RecvTs: i, Payload: []byte("p"),
		}, 2))
	}

	n, err := store.Count(ctx, "stream:prices")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	entries, err := store.Tail(ctx, "stream:prices", 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, uint64(4), entries[0].ZmqSeq)
	assert.Equal(t, uint64(5), entries[1].ZmqSeq)
}

func TestStoreOlderThanAndDeleteIDs(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	require.NoError(t, store.Append(ctx, Entry{Stream: "s", Topic: "t", Source: "a", RecvTs: now - 10000, Payload: []byte("old")}, 0))
	require.NoError(t, store.Append(ctx, Entry{Stream: "s", Topic: "t", Source: "a", RecvTs: now, Payload: []byte("new")}, 0))

	old, err := store.OlderThan(ctx, "s", now-5000)
	require.NoError(t, err)
	require.Len(t, old, 1)
	assert.Equal(t, []byte("old"), old[0].Payload)

	ids := []int64{old[0].ID}
	require.NoError(t, store.DeleteIDs(ctx, ids))

	n, err := store.Count(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
