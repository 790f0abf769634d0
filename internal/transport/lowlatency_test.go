package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"arbengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLowLatencyPublishSubscribeByPrefix(t *testing.T) {
	ll := NewLowLatency("shard:S1", nil)
	defer ll.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var received []string
	ready := make(chan struct{})

	go func() {
		close(ready)
		_ = ll.Subscribe(ctx, "prices.kalshi.", func(env models.BusEnvelope) {
			mu.Lock()
			received = append(received, env.Topic)
			mu.Unlock()
		})
	}()
	<-ready
	time.Sleep(10 * time.Millisecond)

	require.NoError(t, ll.Publish(ctx, "prices.kalshi.EVT1", models.BusEnvelope{Payload: []byte("a")}))
	require.NoError(t, ll.Publish(ctx, "prices.polymarket.EVT1", models.BusEnvelope{Payload: []byte("b")}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"prices.kalshi.EVT1"}, received)
	mu.Unlock()
}

func TestLowLatencyAssignsSourceAndSeq(t *testing.T) {
	ll := NewLowLatency("shard:S1", nil)
	defer ll.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan models.BusEnvelope, 1)
	go func() {
		_ = ll.Subscribe(ctx, "prices.", func(env models.BusEnvelope) {
			select {
			case received <- env:
			default:
			}
		})
	}()
	time.Sleep(10 * time.Millisecond)

	err := ll.Publish(ctx, "prices.kalshi.EVT1", models.BusEnvelope{Source: "someone-else"})
	require.NoError(t, err)

	select {
	case env := <-received:
		assert.Equal(t, "shard:S1", env.Source)
		assert.Equal(t, uint64(1), env.Seq)
	case <-time.After(time.Second):
		t.Fatal("expected the published envelope to be delivered")
	}
}
