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

func testRegistry(t *testing.T) *Registry {
	t.Helper()
	bus := transport.NewComposite(config.TransportZmqOnly, "registry-test", nil, zap.NewNop())
	cfg := config.DiscoveryConfig{
		AssignmentCircuit: config.AssignmentCircuitConfig{
			FailureThreshold: 2,
			SuccessThreshold: 2,
			HalfOpenTimeout:  20 * time.Millisecond,
		},
	}
	return NewRegistry(cfg, bus, zap.NewNop())
}

func baseHeartbeat(shardID string) models.Heartbeat {
	return models.Heartbeat{
		ShardID:   shardID,
		ShardType: models.ShardNonSports,
		ProcessID: "pid-1",
		StartedAt: time.Unix(1000, 0),
		Status:    models.ShardHealthy,
		Checks:    map[string]bool{"redis_ok": true},
		Events:    nil,
		MaxGames:  10,
	}
}

func TestHandleHeartbeatCreatesEntry(t *testing.T) {
	r := testRegistry(t)
	r.HandleHeartbeat(context.Background(), baseHeartbeat("shard-1"))

	shards := r.HealthyShards(models.ShardNonSports)
	require.Len(t, shards, 1)
	assert.Equal(t, "shard-1", shards[0].ShardID)
	assert.Equal(t, 10, shards[0].MaxGames)
}

func TestHandleHeartbeatDetectsRestartAndClearsAssignedEvents(t *testing.T) {
	r := testRegistry(t)
	hb := baseHeartbeat("shard-1")
	r.HandleHeartbeat(context.Background(), hb)
	r.RegisterAssignment("shard-1", "evt-1")

	restarted := hb
	restarted.ProcessID = "pid-2"
	restarted.StartedAt = time.Unix(2000, 0)
	r.HandleHeartbeat(context.Background(), restarted)

	r.mu.Lock()
	entry := r.entries["shard-1"]
	_, stillAssigned := entry.AssignedEvents["evt-1"]
	r.mu.Unlock()
	assert.False(t, stillAssigned)

	select {
	case shardID := <-r.PendingResync():
		assert.Equal(t, "shard-1", shardID)
	default:
		t.Fatal("expected a pending resync entry after restart detection")
	}
}

func TestHandleHeartbeatMissingEventTripsBreaker(t *testing.T) {
	r := testRegistry(t)
	hb := baseHeartbeat("shard-1")
	r.HandleHeartbeat(context.Background(), hb)
	r.RegisterAssignment("shard-1", "evt-1")

	// Two heartbeats in a row that fail to report evt-1 trip the breaker
	// (FailureThreshold 2).
	missing := hb
	missing.Events = nil
	r.HandleHeartbeat(context.Background(), missing)
	r.RegisterAssignment("shard-1", "evt-1")
	r.HandleHeartbeat(context.Background(), missing)

	assert.True(t, r.Breaker("shard-1").IsOpen())
}

func TestHandleHeartbeatZombieEventTriggersRemoval(t *testing.T) {
	r := testRegistry(t)
	hb := baseHeartbeat("shard-1")
	r.HandleHeartbeat(context.Background(), hb)

	zombie := hb
	zombie.Events = []string{"evt-unassigned"}
	// Should not panic and should not add evt-unassigned to AssignedEvents.
	r.HandleHeartbeat(context.Background(), zombie)

	r.mu.Lock()
	_, tracked := r.entries["shard-1"].AssignedEvents["evt-unassigned"]
	r.mu.Unlock()
	assert.False(t, tracked)
}

type fakeReassigner struct {
	calls []string
}

func (f *fakeReassigner) ReassignFrom(ctx context.Context, shardID string, eventIDs []string, reason string) {
	f.calls = append(f.calls, shardID+":"+reason)
}

func TestHandleHeartbeatLostStateRequiresGracePeriod(t *testing.T) {
	r := testRegistry(t)
	fr := &fakeReassigner{}
	r.SetReassigner(fr)

	hb := baseHeartbeat("shard-1")
	r.HandleHeartbeat(context.Background(), hb)
	r.RegisterAssignment("shard-1", "evt-1")

	zero := hb
	zero.Events = nil

	// First two zero reports should not trigger republish.
	r.HandleHeartbeat(context.Background(), zero)
	r.HandleHeartbeat(context.Background(), zero)
	assert.Empty(t, fr.calls)

	// Third consecutive zero report crosses the grace period.
	r.HandleHeartbeat(context.Background(), zero)
	assert.Len(t, fr.calls, 1)
}

func TestSweepHealthMarksDeadAndReassigns(t *testing.T) {
	r := testRegistry(t)
	fr := &fakeReassigner{}
	r.SetReassigner(fr)

	r.HandleHeartbeat(context.Background(), baseHeartbeat("shard-1"))
	r.RegisterAssignment("shard-1", "evt-1")

	r.mu.Lock()
	r.entries["shard-1"].LastHeartbeat = time.Now().Add(-time.Hour)
	r.mu.Unlock()

	r.sweepHealth(context.Background(), 30*time.Second)

	require.Len(t, fr.calls, 1)
	assert.Contains(t, fr.calls[0], "shard_dead")

	r.mu.Lock()
	status := r.entries["shard-1"].Status
	r.mu.Unlock()
	assert.Equal(t, models.ShardDead, status)
}
