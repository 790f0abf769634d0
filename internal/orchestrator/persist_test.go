package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type storedAssignment struct {
	EventID string `json:"event_id"`
	ShardID string `json:"shard_id"`
}

func TestLedgerStorePutGetDelete(t *testing.T) {
	store, err := OpenLedgerStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "evt-1", storedAssignment{EventID: "evt-1", ShardID: "shard-1"}))

	var got storedAssignment
	found, err := store.Get(ctx, "evt-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "shard-1", got.ShardID)

	require.NoError(t, store.Put(ctx, "evt-1", storedAssignment{EventID: "evt-1", ShardID: "shard-2"}))
	found, err = store.Get(ctx, "evt-1", &got)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "shard-2", got.ShardID)

	require.NoError(t, store.Delete(ctx, "evt-1"))
	found, err = store.Get(ctx, "evt-1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLedgerStoreAll(t *testing.T) {
	store, err := OpenLedgerStore(":memory:")
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "evt-1", storedAssignment{EventID: "evt-1", ShardID: "shard-1"}))
	require.NoError(t, store.Put(ctx, "evt-2", storedAssignment{EventID: "evt-2", ShardID: "shard-2"}))

	seen := map[string]bool{}
	require.NoError(t, store.All(ctx, func(eventID string, payload []byte) error {
		seen[eventID] = true
		return nil
	}))
	assert.True(t, seen["evt-1"])
	assert.True(t, seen["evt-2"])
}
