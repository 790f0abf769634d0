package observer

import (
	"context"
	"testing"
	"time"

	"arbengine/internal/config"
	"arbengine/internal/models"
	"arbengine/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testComposite(t *testing.T) *transport.Composite {
	t.Helper()
	return transport.NewComposite(config.TransportZmqOnly, "observer-test", nil, zap.NewNop())
}

func testObserver(t *testing.T, mode Mode) (*Observer, *Store) {
	t.Helper()
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	obs := New(mode, testComposite(t), nil, store, config.ObserverConfig{
		MaxLenPrices:  10,
		MaxLenSignals: 10,
	}, zap.NewNop())
	return obs, store
}

func envelope(source, topic string, seq uint64) models.BusEnvelope {
	return models.BusEnvelope{
		Seq:         seq,
		TimestampMs: time.Now().UnixMilli(),
		Source:      source,
		Topic:       topic,
		Payload:     []byte(`{"x":1}`),
	}
}

func TestRouteForPricesPrefix(t *testing.T) {
	obs, _ := testObserver(t, ModeObserver)
	assert.Equal(t, "stream:prices", obs.routeFor("prices.kalshi.mkt-1").stream)
	assert.Equal(t, "stream:prices", obs.routeFor("prices:polymarket:mkt-2").stream)
}

func TestRouteForAuditPrefix(t *testing.T) {
	obs, _ := testObserver(t, ModeObserver)
	assert.Equal(t, auditStream, obs.routeFor(models.AuditTopic).stream)
}

func TestRouteForFallsBackToEventsStream(t *testing.T) {
	obs, _ := testObserver(t, ModeObserver)
	route := obs.routeFor("signals.edge_detected")
	assert.Equal(t, "stream:events", route.stream)
	assert.Equal(t, int64(10), route.maxLen)
}

func TestIngestPersistsToStore(t *testing.T) {
	obs, store := testObserver(t, ModeObserver)
	ctx := context.Background()

	obs.Ingest(ctx, envelope("shard-1", "prices.kalshi.mkt-1", 1))

	n, err := store.Count(ctx, "stream:prices")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIngestDropsDuplicateSequence(t *testing.T) {
	obs, store := testObserver(t, ModeObserver)
	ctx := context.Background()

	env := envelope("shard-1", "prices.kalshi.mkt-1", 5)
	obs.Ingest(ctx, env)
	obs.Ingest(ctx, env) // same seq, should be dropped as duplicate

	n, err := store.Count(ctx, "stream:prices")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestIngestLogsSequenceGapButStillPersists(t *testing.T) {
	obs, store := testObserver(t, ModeObserver)
	ctx := context.Background()

	obs.Ingest(ctx, envelope("shard-1", "prices.kalshi.mkt-1", 1))
	obs.Ingest(ctx, envelope("shard-1", "prices.kalshi.mkt-1", 5)) // gap of 3

	n, err := store.Count(ctx, "stream:prices")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestAppendTrimsToMaxLen(t *testing.T) {
	obs, store := testObserver(t, ModeObserver)
	ctx := context.Background()

	for i := uint64(1); i <= 15; i++ {
		obs.Ingest(ctx, envelope("shard-1", "prices.kalshi.mkt-1", i))
	}

	n, err := store.Count(ctx, "stream:prices")
	require.NoError(t, err)
	assert.Equal(t, int64(10), n) // MaxLenPrices in testObserver's config
}

func TestBridgeModeRepublishes(t *testing.T) {
	composite := testComposite(t)
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	obs := New(ModeBridge, composite, nil, store, config.ObserverConfig{MaxLenPrices: 10, MaxLenSignals: 10}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan models.BusEnvelope, 1)
	go composite.Subscribe(ctx, "signals.", func(env models.BusEnvelope) {
		received <- env
	})
	time.Sleep(10 * time.Millisecond) // let the in-process subscriber register

	obs.Ingest(ctx, envelope("shard-1", "signals.edge_detected", 1))

	select {
	case env := <-received:
		assert.Equal(t, "signals.edge_detected", env.Topic)
	case <-time.After(time.Second):
		t.Fatal("bridge did not republish envelope")
	}
}

func TestObserverModeDoesNotRepublish(t *testing.T) {
	composite := testComposite(t)
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	obs := New(ModeObserver, composite, nil, store, config.ObserverConfig{MaxLenPrices: 10, MaxLenSignals: 10}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan models.BusEnvelope, 1)
	go composite.Subscribe(ctx, "signals.", func(env models.BusEnvelope) {
		received <- env
	})
	time.Sleep(10 * time.Millisecond)

	obs.Ingest(ctx, envelope("shard-1", "signals.edge_detected", 1))

	select {
	case <-received:
		t.Fatal("observer mode should not republish")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDisabledModeRunBlocksUntilCancelled(t *testing.T) {
	obs, _ := testObserver(t, ModeDisabled)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- obs.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestPublishHeartbeatReportsAverageLatency(t *testing.T) {
	composite := testComposite(t)
	store, err := OpenStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	obs := New(ModeObserver, composite, nil, store, config.ObserverConfig{MaxLenPrices: 10, MaxLenSignals: 10}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan models.BusEnvelope, 1)
	go composite.Subscribe(ctx, heartbeatTopic, func(env models.BusEnvelope) {
		received <- env
	})
	time.Sleep(10 * time.Millisecond)

	obs.recordLatency("stream:prices", 50*time.Millisecond)
	obs.recordLatency("stream:prices", 150*time.Millisecond)
	obs.publishHeartbeat(ctx)

	select {
	case env := <-received:
		var payload heartbeatPayload
		require.NoError(t, wireJSON.Unmarshal(env.Payload, &payload))
		assert.InDelta(t, 100.0, payload.AvgLatencyMs["stream:prices"], 1.0)
	case <-time.After(time.Second):
		t.Fatal("heartbeat not published")
	}
}
