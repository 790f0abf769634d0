package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"arbengine/internal/config"
	"arbengine/internal/discovery"
	"arbengine/internal/metrics"
	"arbengine/internal/models"
	"arbengine/internal/transport"

	"go.uber.org/zap"
)

const marketAssignmentsTopic = "orchestrator:market_assignments"

// MarketAssignment is published on orchestrator:market_assignments for
// every (event, venue) pair so monitor services can subscribe to the right
// upstream streams without consulting the ledger directly.
type MarketAssignment struct {
	EventID  string `json:"event_id"`
	Venue    string `json:"venue"`
	MarketID string `json:"market_id"`
	ShardID  string `json:"shard_id"`
}

// Manager runs the discovery and resync loops for one market family and
// implements Reassigner so the registry can hand it dead/degraded shards'
// events.
type Manager struct {
	shardType models.ShardType
	provider  discovery.EventProvider
	sportsRPC *SportsVenueResolver // nil for non-sports

	registry *Registry
	bus      *transport.Composite
	notifier *notifier
	cfg      config.DiscoveryConfig
	log      *zap.Logger

	mu     sync.Mutex
	ledger map[string]*models.Assignment
}

func NewManager(shardType models.ShardType, provider discovery.EventProvider, sportsRPC *SportsVenueResolver, registry *Registry, bus *transport.Composite, cfg config.DiscoveryConfig, log *zap.Logger) *Manager {
	return &Manager{
		shardType: shardType,
		provider:  provider,
		sportsRPC: sportsRPC,
		registry:  registry,
		bus:       bus,
		notifier:  newNotifier(bus, log),
		cfg:       cfg,
		log:       log,
		ledger:    make(map[string]*models.Assignment),
	}
}

// RunDiscoveryLoop implements §4.J's discovery cycle on a fixed interval.
func (m *Manager) RunDiscoveryLoop(ctx context.Context) {
	interval := m.cfg.DiscoveryInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.discoveryCycle(ctx)
		}
	}
}

func (m *Manager) discoveryCycle(ctx context.Context) {
	events, err := m.provider.GetLiveEvents(ctx)
	if err != nil {
		m.log.Warn("discovery cycle: failed to list live events", zap.Error(err))
		return
	}

	for _, info := range events {
		m.mu.Lock()
		_, known := m.ledger[info.ExternalID]
		m.mu.Unlock()
		if known {
			continue
		}
		m.assignEvent(ctx, info)
	}
}

func (m *Manager) assignEvent(ctx context.Context, info models.EventInfo) {
	venueMarkets, err := m.resolveVenueMarkets(ctx, info)
	if err != nil {
		m.log.Warn("discovery cycle: venue resolution failed", zap.String("event_id", info.ExternalID), zap.Error(err))
		return
	}
	if len(venueMarkets) == 0 {
		return
	}

	candidates := m.registry.HealthyShards(m.shardType)
	shardID, ok := pickBestShard(candidates)
	if !ok {
		m.log.Warn("discovery cycle: no healthy shard available", zap.String("event_id", info.ExternalID))
		return
	}

	assignment := &models.Assignment{
		EventID:        info.ExternalID,
		ShardID:        shardID,
		VenueMarketIDs: venueMarkets,
		AssignedAt:     time.Now(),
		MarketType:     info.MarketType,
		EntityA:        info.EntityA,
		EntityB:        info.EntityB,
		ScheduledTime:  info.ScheduledTime,
	}

	if err := m.publishAddEvent(ctx, assignment); err != nil {
		m.log.Error("discovery cycle: failed to publish add_event", zap.Error(err))
		return
	}
	m.publishMarketAssignments(ctx, assignment)

	m.mu.Lock()
	m.ledger[assignment.EventID] = assignment
	m.mu.Unlock()
	m.registry.RegisterAssignment(shardID, assignment.EventID)
}

// pickBestShard picks the lowest-load healthy candidate, tie-breaking on
// lexicographically lower shard ID.
func pickBestShard(candidates []HealthySnapshot) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Load != candidates[j].Load {
			return candidates[i].Load < candidates[j].Load
		}
		return candidates[i].ShardID < candidates[j].ShardID
	})
	return candidates[0].ShardID, true
}

// pickCapacityShard picks the healthy candidate with the highest available
// capacity, tie-breaking on lexicographically lower shard ID. Used by
// reassignment, per §4.J's "tie-break: highest available capacity".
func pickCapacityShard(candidates []HealthySnapshot, exclude string) (string, bool) {
	var best HealthySnapshot
	found := false
	for _, c := range candidates {
		if c.ShardID == exclude {
			continue
		}
		if !found || c.AvailableCapacity() > best.AvailableCapacity() ||
			(c.AvailableCapacity() == best.AvailableCapacity() && c.ShardID < best.ShardID) {
			best = c
			found = true
		}
	}
	return best.ShardID, found
}

func (m *Manager) resolveVenueMarkets(ctx context.Context, info models.EventInfo) (map[string]string, error) {
	if m.shardType == models.ShardSports {
		if m.sportsRPC == nil {
			return nil, fmt.Errorf("no sports venue resolver configured")
		}
		return m.sportsRPC.Resolve(ctx, info)
	}

	vmp, ok := m.provider.(discovery.VenueMetadataProvider)
	if !ok {
		return nil, fmt.Errorf("provider %T does not implement VenueMetadataProvider", m.provider)
	}
	return vmp.VenueMarketIDs(ctx, info.ExternalID)
}

func (m *Manager) publishAddEvent(ctx context.Context, a *models.Assignment) error {
	cmd := models.ShardCommand{Type: models.CommandAddEvent, AddEvent: addEventPayload(a)}
	payload, err := wireJSON.Marshal(cmd)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("shard:%s:command", a.ShardID)
	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "orchestrator", Topic: topic, Payload: payload}
	return m.bus.Publish(ctx, topic, env)
}

func addEventPayload(a *models.Assignment) *models.AddEventPayload {
	p := a.AddEventCommand()
	return &p
}

func (m *Manager) publishMarketAssignments(ctx context.Context, a *models.Assignment) {
	for venue, marketID := range a.VenueMarketIDs {
		ma := MarketAssignment{EventID: a.EventID, Venue: venue, MarketID: marketID, ShardID: a.ShardID}
		payload, err := wireJSON.Marshal(ma)
		if err != nil {
			continue
		}
		env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "orchestrator", Topic: marketAssignmentsTopic, Payload: payload}
		if err := m.bus.Publish(ctx, marketAssignmentsTopic, env); err != nil {
			m.log.Warn("failed to publish market assignment", zap.String("event_id", a.EventID), zap.String("venue", venue), zap.Error(err))
		}
	}
}

// RunResyncLoop drains the registry's pending-resync queue.
func (m *Manager) RunResyncLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case shardID := <-m.registry.PendingResync():
			m.resyncShard(ctx, shardID)
		}
	}
}

func (m *Manager) resyncShard(ctx context.Context, shardID string) {
	debounce := m.cfg.ResyncDebounce
	if debounce <= 0 {
		debounce = 2 * time.Second
	}
	select {
	case <-time.After(debounce):
	case <-ctx.Done():
		return
	}

	start := time.Now()

	m.mu.Lock()
	var assignments []*models.Assignment
	for _, a := range m.ledger {
		if a.ShardID == shardID {
			assignments = append(assignments, a)
		}
	}
	m.mu.Unlock()

	count := 0
	if m.shardType == models.ShardSports {
		for i, a := range assignments {
			if err := m.publishAddEvent(ctx, a); err != nil {
				m.log.Warn("resync: failed to resend add_event", zap.String("shard_id", shardID), zap.String("event_id", a.EventID), zap.Error(err))
				continue
			}
			count++
			if i > 0 && i%5 == 0 {
				time.Sleep(100 * time.Millisecond)
			}
		}
	} else {
		cutoff := time.Now().Add(-30 * time.Minute)
		for _, a := range assignments {
			if a.AssignedAt.Before(cutoff) {
				continue
			}
			m.publishMarketAssignments(ctx, a)
			count++
		}
	}

	m.notifier.publish(ctx, models.ServiceNotification{
		Kind:    models.NotifyServiceResyncComplete,
		ShardID: shardID,
		Detail:  fmt.Sprintf("resynced %d assignments in %s", count, time.Since(start)),
		Count:   count,
	})
	metrics.ResyncsCompleted.WithLabelValues(shardID).Inc()
}

// ReassignFrom implements Reassigner: move eventIDs off shardID onto other
// healthy shards with available capacity, best-effort remove_event to the
// old shard, update ledger and registry either way.
func (m *Manager) ReassignFrom(ctx context.Context, shardID string, eventIDs []string, reason string) {
	for _, eventID := range eventIDs {
		m.reassignOne(ctx, shardID, eventID, reason)
	}
}

func (m *Manager) reassignOne(ctx context.Context, oldShardID, eventID, reason string) {
	m.mu.Lock()
	assignment, ok := m.ledger[eventID]
	m.mu.Unlock()
	if !ok {
		return
	}

	candidates := m.registry.HealthyShards(m.shardType)
	newShardID, found := pickCapacityShard(candidates, oldShardID)
	if !found {
		m.log.Error("reassignment: no healthy shard with capacity available, deferring", zap.String("event_id", eventID), zap.String("old_shard_id", oldShardID))
		return
	}

	updated := *assignment
	updated.ShardID = newShardID
	updated.AssignedAt = time.Now()

	if err := m.publishAddEvent(ctx, &updated); err != nil {
		m.log.Error("reassignment: failed to publish add_event to new shard", zap.String("event_id", eventID), zap.Error(err))
		return
	}
	m.publishMarketAssignments(ctx, &updated)
	m.sendRemoveEvent(ctx, oldShardID, eventID)

	m.mu.Lock()
	m.ledger[eventID] = &updated
	m.mu.Unlock()

	m.registry.UnregisterAssignment(oldShardID, eventID)
	m.registry.RegisterAssignment(newShardID, eventID)

	metrics.ReassignmentsTotal.WithLabelValues(reason).Inc()
	m.log.Info("reassigned event", zap.String("event_id", eventID), zap.String("from", oldShardID), zap.String("to", newShardID), zap.String("reason", reason))
}

func (m *Manager) sendRemoveEvent(ctx context.Context, shardID, eventID string) {
	cmd := models.ShardCommand{Type: models.CommandRemoveEvent, RemoveEvent: &models.RemoveEventPayload{EventID: eventID}}
	payload, err := wireJSON.Marshal(cmd)
	if err != nil {
		return
	}
	topic := fmt.Sprintf("shard:%s:command", shardID)
	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "orchestrator", Topic: topic, Payload: payload}
	if err := m.bus.Publish(ctx, topic, env); err != nil {
		m.log.Warn("reassignment: best-effort remove_event failed", zap.String("shard_id", shardID), zap.String("event_id", eventID), zap.Error(err))
	}
}
