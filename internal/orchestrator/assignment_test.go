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

type fakeVenueProvider struct {
	live []models.EventInfo
}

func (f *fakeVenueProvider) GetLiveEvents(ctx context.Context) ([]models.EventInfo, error) {
	return f.live, nil
}
func (f *fakeVenueProvider) GetScheduledEvents(ctx context.Context, days int) ([]models.EventInfo, error) {
	return nil, nil
}
func (f *fakeVenueProvider) GetEventState(ctx context.Context, eventID string) (models.EventState, error) {
	return models.EventState{}, nil
}
func (f *fakeVenueProvider) SupportedMarketTypes() []models.MarketType { return nil }
func (f *fakeVenueProvider) VenueMarketIDs(ctx context.Context, externalID string) (map[string]string, error) {
	return map[string]string{"kalshi": "mkt-" + externalID}, nil
}

func testManager(t *testing.T, provider *fakeVenueProvider) (*Manager, *Registry) {
	t.Helper()
	bus := transport.NewComposite(config.TransportZmqOnly, "assignment-test", nil, zap.NewNop())
	cfg := config.DiscoveryConfig{
		AssignmentCircuit: config.AssignmentCircuitConfig{FailureThreshold: 2, SuccessThreshold: 2, HalfOpenTimeout: 20 * time.Millisecond},
	}
	registry := NewRegistry(cfg, bus, zap.NewNop())
	mgr := NewManager(models.ShardNonSports, provider, nil, registry, bus, cfg, zap.NewNop())
	registry.SetReassigner(mgr)
	return mgr, registry
}

func TestPickBestShardPrefersLowestLoadThenShardID(t *testing.T) {
	candidates := []HealthySnapshot{
		{ShardID: "shard-b", Load: 2},
		{ShardID: "shard-a", Load: 2},
		{ShardID: "shard-c", Load: 1},
	}
	id, ok := pickBestShard(candidates)
	require.True(t, ok)
	assert.Equal(t, "shard-c", id)
}

func TestPickBestShardEmpty(t *testing.T) {
	_, ok := pickBestShard(nil)
	assert.False(t, ok)
}

func TestPickCapacityShardPrefersHighestAvailableExcludingOld(t *testing.T) {
	candidates := []HealthySnapshot{
		{ShardID: "shard-old", MaxGames: 10, Load: 0},
		{ShardID: "shard-a", MaxGames: 10, Load: 8},
		{ShardID: "shard-b", MaxGames: 10, Load: 2},
	}
	id, ok := pickCapacityShard(candidates, "shard-old")
	require.True(t, ok)
	assert.Equal(t, "shard-b", id)
}

func TestAssignEventPicksHealthyShardAndPublishes(t *testing.T) {
	provider := &fakeVenueProvider{live: []models.EventInfo{{ExternalID: "evt-1", MarketType: models.MarketType{Kind: models.MarketCrypto, Asset: "BTC"}}}}
	mgr, registry := testManager(t, provider)

	registry.HandleHeartbeat(context.Background(), models.Heartbeat{
		ShardID: "shard-1", ShardType: models.ShardNonSports, Status: models.ShardHealthy,
		Checks: map[string]bool{"redis_ok": true}, MaxGames: 5,
	})

	mgr.discoveryCycle(context.Background())

	mgr.mu.Lock()
	a, ok := mgr.ledger["evt-1"]
	mgr.mu.Unlock()
	require.True(t, ok)
	assert.Equal(t, "shard-1", a.ShardID)
	assert.Equal(t, "mkt-evt-1", a.VenueMarketIDs["kalshi"])

	shards := registry.HealthyShards(models.ShardNonSports)
	require.Len(t, shards, 1)
	assert.Equal(t, 1, shards[0].Load)
}

func TestReassignFromMovesEventToHealthyShard(t *testing.T) {
	provider := &fakeVenueProvider{}
	mgr, registry := testManager(t, provider)

	registry.HandleHeartbeat(context.Background(), models.Heartbeat{
		ShardID: "shard-dead", ShardType: models.ShardNonSports, Status: models.ShardHealthy,
		Checks: map[string]bool{"redis_ok": true}, MaxGames: 5,
	})
	registry.HandleHeartbeat(context.Background(), models.Heartbeat{
		ShardID: "shard-live", ShardType: models.ShardNonSports, Status: models.ShardHealthy,
		Checks: map[string]bool{"redis_ok": true}, MaxGames: 5,
	})

	mgr.mu.Lock()
	mgr.ledger["evt-1"] = &models.Assignment{EventID: "evt-1", ShardID: "shard-dead", VenueMarketIDs: map[string]string{"kalshi": "mkt-1"}}
	mgr.mu.Unlock()
	registry.RegisterAssignment("shard-dead", "evt-1")

	mgr.ReassignFrom(context.Background(), "shard-dead", []string{"evt-1"}, "shard_dead")

	mgr.mu.Lock()
	a := mgr.ledger["evt-1"]
	mgr.mu.Unlock()
	assert.Equal(t, "shard-live", a.ShardID)
}

func TestReassignFromNoHealthyShardLeavesLedgerUnchanged(t *testing.T) {
	provider := &fakeVenueProvider{}
	mgr, _ := testManager(t, provider)

	mgr.mu.Lock()
	mgr.ledger["evt-1"] = &models.Assignment{EventID: "evt-1", ShardID: "shard-dead"}
	mgr.mu.Unlock()

	mgr.ReassignFrom(context.Background(), "shard-dead", []string{"evt-1"}, "shard_dead")

	mgr.mu.Lock()
	a := mgr.ledger["evt-1"]
	mgr.mu.Unlock()
	assert.Equal(t, "shard-dead", a.ShardID)
}
