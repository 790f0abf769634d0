// Package orchestrator implements the orchestrator's shard registry (§4.I)
// and assignment manager (§4.J): the authoritative record of which shard
// owns which event, heartbeat-driven health tracking, and the two
// background loops (discovery, resync) that keep shard assignments correct
// as events appear and shards come and go.
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbengine/internal/config"
	"arbengine/internal/metrics"
	"arbengine/internal/models"
	"arbengine/internal/transport"

	"go.uber.org/zap"
)

// requiredChecks lists the component checks a shard of a given type must
// report true on its heartbeat to be considered operational. Every shard
// type requires redis_ok at minimum.
var requiredChecks = map[models.ShardType][]string{
	models.ShardSports:    {"redis_ok"},
	models.ShardNonSports: {"redis_ok"},
}

// Reassigner is implemented by the assignment manager; the registry calls
// into it when a shard transitions to Dead or Degraded so events can move
// to a healthy shard without the two packages needing to know each other's
// full shape.
type Reassigner interface {
	ReassignFrom(ctx context.Context, shardID string, eventIDs []string, reason string)
}

// Registry holds one ShardRegistryEntry per shard instance and the
// per-shard assignment circuit breaker alongside it.
type Registry struct {
	cfg      config.DiscoveryConfig
	notifier *notifier
	log      *zap.Logger

	mu       sync.Mutex
	entries  map[string]*models.ShardRegistryEntry
	breakers map[string]*AssignmentBreaker

	reassigner  Reassigner
	resyncQueue chan string
}

func NewRegistry(cfg config.DiscoveryConfig, bus *transport.Composite, log *zap.Logger) *Registry {
	return &Registry{
		cfg:         cfg,
		notifier:    newNotifier(bus, log),
		log:         log,
		entries:     make(map[string]*models.ShardRegistryEntry),
		breakers:    make(map[string]*AssignmentBreaker),
		resyncQueue: make(chan string, 256),
	}
}

// PendingResync returns the channel of shard IDs enqueued for resync by a
// restart detection. The assignment manager's resync loop drains it.
func (r *Registry) PendingResync() <-chan string {
	return r.resyncQueue
}

// SetReassigner wires the assignment manager in after both are constructed,
// avoiding an import cycle between the two files' constructors.
func (r *Registry) SetReassigner(re Reassigner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reassigner = re
}

// Breaker returns the assignment circuit breaker for shardID, creating one
// if this is the first time the shard has been seen.
func (r *Registry) Breaker(shardID string) *AssignmentBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.breakerLocked(shardID)
}

func (r *Registry) breakerLocked(shardID string) *AssignmentBreaker {
	b, ok := r.breakers[shardID]
	if !ok {
		b = NewAssignmentBreaker(shardID, r.cfg.AssignmentCircuit)
		r.breakers[shardID] = b
	}
	return b
}

// HandleHeartbeat applies §4.I step 1-6 for one incoming heartbeat.
func (r *Registry) HandleHeartbeat(ctx context.Context, hb models.Heartbeat) {
	r.mu.Lock()
	entry, existed := r.entries[hb.ShardID]
	if !existed {
		entry = models.NewShardRegistryEntry(hb.ShardID, hb.ShardType)
		r.entries[hb.ShardID] = entry
	}

	restarted := existed && (entry.LastProcessID != "" && entry.LastProcessID != hb.ProcessID || !entry.LastStartedAt.IsZero() && !entry.LastStartedAt.Equal(hb.StartedAt))

	reportedEvents := make(map[string]struct{}, len(hb.Events))
	for _, id := range hb.Events {
		reportedEvents[id] = struct{}{}
	}

	if restarted {
		r.log.Info("shard restart detected", zap.String("shard_id", hb.ShardID))
		entry.AssignedEvents = make(map[string]struct{})
		r.breakerLocked(hb.ShardID).Reset()
		select {
		case r.resyncQueue <- hb.ShardID:
		default:
		}
		r.mu.Unlock()
		r.notifier.publish(ctx, models.ServiceNotification{Kind: models.NotifyServiceRestarted, ShardID: hb.ShardID})
		r.mu.Lock()
	}

	entry.LastProcessID = hb.ProcessID
	entry.LastStartedAt = hb.StartedAt
	entry.LastHeartbeat = time.Now()
	entry.ConsecutiveHeartbeatFailures = 0
	entry.Status = hb.Status
	entry.ComponentChecks = hb.Checks
	entry.Metrics = hb.Metrics
	entry.MaxGames = hb.MaxGames

	// A non-sports shard reporting zero events while holding assignments
	// may have lost its state; its assignments are kept so the grace check
	// below can republish them.
	lostState := hb.ShardType == models.ShardNonSports && len(hb.Events) == 0 && len(entry.AssignedEvents) > 0

	var missing []string
	if hb.ShardType == models.ShardSports || hb.ShardType == models.ShardNonSports {
		for eventID := range entry.AssignedEvents {
			if _, ok := reportedEvents[eventID]; !ok {
				missing = append(missing, eventID)
			}
		}
	}
	if !lostState {
		for _, eventID := range missing {
			delete(entry.AssignedEvents, eventID)
		}
	}

	var zombies []string
	for eventID := range reportedEvents {
		if _, ok := entry.AssignedEvents[eventID]; !ok {
			zombies = append(zombies, eventID)
		}
	}

	if lostState {
		entry.ConsecutiveZeroReports++
	} else {
		entry.ConsecutiveZeroReports = 0
	}
	grace := r.cfg.ZeroReportGrace
	if grace <= 0 {
		grace = 3
	}
	shouldRepublish := lostState && entry.ConsecutiveZeroReports >= grace
	var republish []string
	if shouldRepublish {
		for eventID := range entry.AssignedEvents {
			republish = append(republish, eventID)
		}
		entry.ConsecutiveZeroReports = 0
	}

	breaker := r.breakerLocked(hb.ShardID)
	shardID := hb.ShardID
	r.mu.Unlock()

	if len(missing) > 0 {
		for range missing {
			breaker.RecordFailure()
		}
		r.log.Warn("shard missing assigned events", zap.String("shard_id", shardID), zap.Strings("events", missing))
	} else {
		breaker.RecordSuccess()
	}

	for _, eventID := range zombies {
		r.sendRemoveEvent(ctx, shardID, eventID)
	}

	if shouldRepublish && r.reassignerSet() {
		r.log.Warn("shard reports zero events with outstanding assignments, republishing", zap.String("shard_id", shardID), zap.Int("count", len(republish)))
		r.reassignerRepublish(ctx, shardID, republish)
	}
}

func (r *Registry) reassignerSet() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reassigner != nil
}

func (r *Registry) reassignerRepublish(ctx context.Context, shardID string, eventIDs []string) {
	r.mu.Lock()
	re := r.reassigner
	r.mu.Unlock()
	if re != nil {
		re.ReassignFrom(ctx, shardID, eventIDs, "lost_state_republish")
	}
}

func (r *Registry) sendRemoveEvent(ctx context.Context, shardID, eventID string) {
	// The command is fire-and-forget; the zombie detector's contract is
	// "send remove_event", not "confirm it was received" (the next
	// heartbeat from the shard is the confirmation).
	cmd := models.ShardCommand{Type: models.CommandRemoveEvent, RemoveEvent: &models.RemoveEventPayload{EventID: eventID}}
	payload, err := wireJSON.Marshal(cmd)
	if err != nil {
		r.log.Error("failed to encode remove_event command", zap.Error(err))
		return
	}
	topic := fmt.Sprintf("shard:%s:command", shardID)
	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "orchestrator", Topic: topic, Payload: payload}
	if err := r.notifier.bus.Publish(ctx, topic, env); err != nil {
		r.log.Warn("failed to publish zombie remove_event", zap.String("shard_id", shardID), zap.String("event_id", eventID), zap.Error(err))
	}
}

// RegisterAssignment marks eventID as belonging to shardID in the
// registry's view, called by the assignment manager right after it
// publishes an add_event command.
func (r *Registry) RegisterAssignment(shardID, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.entries[shardID]
	if !ok {
		entry = models.NewShardRegistryEntry(shardID, "")
		r.entries[shardID] = entry
	}
	entry.AssignedEvents[eventID] = struct{}{}
}

// UnregisterAssignment removes eventID from shardID's assigned set, used
// after a reassignment moves it elsewhere.
func (r *Registry) UnregisterAssignment(shardID, eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry, ok := r.entries[shardID]; ok {
		delete(entry.AssignedEvents, eventID)
	}
}

// HealthySnapshot is a point-in-time view of one shard used by the
// assignment manager's scheduling decisions.
type HealthySnapshot struct {
	ShardID   string
	ShardType models.ShardType
	Load      int // len(AssignedEvents)
	MaxGames  int
}

// AvailableCapacity is MaxGames - Load, or an arbitrarily large number for
// an uncapped shard (MaxGames <= 0).
func (s HealthySnapshot) AvailableCapacity() int {
	if s.MaxGames <= 0 {
		return 1 << 30
	}
	return s.MaxGames - s.Load
}

// HealthyShards returns every shard of shardType currently Healthy, not
// excluded by an open assignment circuit breaker.
func (r *Registry) HealthyShards(shardType models.ShardType) []HealthySnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []HealthySnapshot
	for id, entry := range r.entries {
		if entry.ShardType != shardType || entry.Status != models.ShardHealthy {
			continue
		}
		if r.breakerLocked(id).IsOpen() {
			continue
		}
		out = append(out, HealthySnapshot{ShardID: id, ShardType: shardType, Load: len(entry.AssignedEvents), MaxGames: entry.MaxGames})
	}
	return out
}

// All returns a snapshot of every registered shard entry, keyed by shard
// ID, for operator introspection (internal/adminhttp's /admin/shards).
// Callers get a copy of each entry's maps so they cannot mutate the
// registry's own state.
func (r *Registry) All() map[string]models.ShardRegistryEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]models.ShardRegistryEntry, len(r.entries))
	for id, entry := range r.entries {
		copied := *entry
		copied.AssignedEvents = make(map[string]struct{}, len(entry.AssignedEvents))
		for k, v := range entry.AssignedEvents {
			copied.AssignedEvents[k] = v
		}
		copied.ComponentChecks = make(map[string]bool, len(entry.ComponentChecks))
		for k, v := range entry.ComponentChecks {
			copied.ComponentChecks[k] = v
		}
		copied.Metrics = make(map[string]float64, len(entry.Metrics))
		for k, v := range entry.Metrics {
			copied.Metrics[k] = v
		}
		out[id] = copied
	}
	return out
}

// isOperational applies the type-specific required-checks predicate.
func isOperational(entry *models.ShardRegistryEntry) bool {
	for _, check := range requiredChecks[entry.ShardType] {
		if !entry.ComponentChecks[check] {
			return false
		}
	}
	return true
}

// RunHealthLoop polls every cfg.HealthCheckInterval for shards that have
// gone silent past cfg.ShardTimeout (passed in separately from the shard
// package's own ShardConfig.ShardTimeout, since the registry does not
// import config.ShardConfig) or that have flipped Healthy<->Degraded on
// the operational predicate.
func (r *Registry) RunHealthLoop(ctx context.Context, shardTimeout time.Duration) {
	interval := r.cfg.HealthCheckInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.sweepHealth(ctx, shardTimeout)
		}
	}
}

func (r *Registry) sweepHealth(ctx context.Context, shardTimeout time.Duration) {
	if shardTimeout <= 0 {
		shardTimeout = 30 * time.Second
	}

	type transition struct {
		shardID  string
		events   []string
		toDead   bool
		revived  bool
		degraded bool
	}
	var transitions []transition
	var healthy, dead int

	r.mu.Lock()
	for id, entry := range r.entries {
		silentFor := time.Since(entry.LastHeartbeat)
		switch {
		// Strictly greater than shardTimeout: at exactly shard_timeout_secs
		// a shard is still considered alive, only the next missed
		// heartbeat past the deadline marks it Dead.
		case silentFor > shardTimeout && entry.Status != models.ShardDead:
			entry.Status = models.ShardDead
			events := make([]string, 0, len(entry.AssignedEvents))
			for eventID := range entry.AssignedEvents {
				events = append(events, eventID)
			}
			entry.AssignedEvents = make(map[string]struct{})
			transitions = append(transitions, transition{shardID: id, events: events, toDead: true})
		case silentFor <= shardTimeout && entry.Status == models.ShardDead:
			entry.Status = models.ShardHealthy
			transitions = append(transitions, transition{shardID: id, revived: true})
		case silentFor <= shardTimeout:
			operational := isOperational(entry)
			if operational && entry.Status == models.ShardDegraded {
				entry.Status = models.ShardHealthy
			} else if !operational && entry.Status == models.ShardHealthy {
				entry.Status = models.ShardDegraded
				events := make([]string, 0, len(entry.AssignedEvents))
				for eventID := range entry.AssignedEvents {
					events = append(events, eventID)
				}
				transitions = append(transitions, transition{shardID: id, events: events, degraded: true})
			}
		}

		switch entry.Status {
		case models.ShardHealthy:
			healthy++
		case models.ShardDead:
			dead++
		}
	}
	r.mu.Unlock()

	metrics.ShardsHealthy.Set(float64(healthy))
	metrics.ShardsDead.Set(float64(dead))

	for _, t := range transitions {
		if t.toDead {
			r.log.Warn("shard marked dead", zap.String("shard_id", t.shardID), zap.Int("events_to_reassign", len(t.events)))
			r.notifier.publish(ctx, models.ServiceNotification{Kind: models.NotifyServiceDead, ShardID: t.shardID})
			if re := r.currentReassigner(); re != nil && len(t.events) > 0 {
				re.ReassignFrom(ctx, t.shardID, t.events, "shard_dead")
			}
		}
		if t.degraded {
			r.log.Warn("shard degraded", zap.String("shard_id", t.shardID), zap.Int("events_to_reassign", len(t.events)))
			if re := r.currentReassigner(); re != nil && len(t.events) > 0 {
				re.ReassignFrom(ctx, t.shardID, t.events, "shard_degraded")
			}
		}
		if t.revived {
			r.log.Info("shard recovered", zap.String("shard_id", t.shardID))
			r.notifier.publish(ctx, models.ServiceNotification{Kind: models.NotifyServiceRecovered, ShardID: t.shardID})
		}
	}
}

func (r *Registry) currentReassigner() Reassigner {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reassigner
}
