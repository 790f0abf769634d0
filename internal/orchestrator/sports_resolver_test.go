package orchestrator

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

func TestSportsVenueResolverRoundTrip(t *testing.T) {
	bus := transport.NewComposite(config.TransportZmqOnly, "resolver-test", nil, zap.NewNop())
	resolver := NewSportsVenueResolver(bus, time.Second, zap.NewNop())
	require.NoError(t, resolver.Start(context.Background()))

	// Stand in for the external market-discovery service: answer every
	// request with a canned result.
	require.NoError(t, bus.Subscribe(context.Background(), discoveryRequestsTopic, func(env models.BusEnvelope) {
		var req discoveryRequest
		require.NoError(t, wireJSON.Unmarshal(env.Payload, &req))

		res := discoveryResult{GameID: req.GameID, PolymarketMoneyline: "pm-123", KalshiMoneyline: "kx-456"}
		payload, err := wireJSON.Marshal(res)
		require.NoError(t, err)
		resultEnv := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "market-discovery", Topic: discoveryResultsTopic, Payload: payload}
		require.NoError(t, bus.Publish(context.Background(), discoveryResultsTopic, resultEnv))
	}))

	markets, err := resolver.Resolve(context.Background(), models.EventInfo{ExternalID: "game-1", EntityA: "Lakers", EntityB: "Celtics"})
	require.NoError(t, err)
	assert.Equal(t, "pm-123", markets["polymarket"])
	assert.Equal(t, "kx-456", markets["kalshi"])
}

func TestSportsVenueResolverTimesOutWithNoResponder(t *testing.T) {
	bus := transport.NewComposite(config.TransportZmqOnly, "resolver-timeout-test", nil, zap.NewNop())
	resolver := NewSportsVenueResolver(bus, 20*time.Millisecond, zap.NewNop())
	require.NoError(t, resolver.Start(context.Background()))

	_, err := resolver.Resolve(context.Background(), models.EventInfo{ExternalID: "game-2"})
	assert.Error(t, err)
}
