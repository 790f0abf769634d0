// Package shard implements the long-lived shard process (§4.G): a
// cooperative set of tasks (price listener, evaluator, command listener,
// heartbeat) sharing a mutable map of owned events, bridging the message
// bus through the probability engine, arbitrage detector and risk gate to
// published execution requests.
package shard

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sync"
	"time"

	"arbengine/internal/arbitrage"
	"arbengine/internal/config"
	"arbengine/internal/errs"
	"arbengine/internal/metrics"
	"arbengine/internal/models"
	"arbengine/internal/pricecache"
	"arbengine/internal/probability"
	"arbengine/internal/risk"
	"arbengine/internal/transport"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// EventStateProvider resolves the live EventState for a non-sports event.
// Sports shards instead keep state in-process, fed by sport-specific feed
// tasks that call EventContext.SetState directly; this interface only
// serves the "by calling the event provider" half of §4.G step 1.
type EventStateProvider interface {
	GetEventState(ctx context.Context, eventID string) (models.EventState, error)
}

// Runtime is one shard process.
type Runtime struct {
	id        string
	shardType models.ShardType
	processID string
	startedAt time.Time
	cfg       config.ShardConfig
	riskCfg   config.RiskConfig

	bus      *transport.Composite
	prices   *pricecache.Cache
	prob     *probability.Engine
	gate     *risk.Gate
	breakers *risk.VenueCircuitBreakers
	provider EventStateProvider
	log      *zap.Logger

	mu     sync.RWMutex
	events map[string]*EventContext

	dirty chan string // event IDs with a fresh price update, event-driven mode only

	shutdownOnce sync.Once
	done         chan struct{}
}

// Config bundles Runtime's dependencies.
type Config struct {
	ShardID   string
	ShardType models.ShardType
	Shard     config.ShardConfig
	Risk      config.RiskConfig
	Bus       *transport.Composite
	Prices    *pricecache.Cache
	Provider  EventStateProvider
	Exposure  risk.Exposure
	Log       *zap.Logger
}

// New builds a Runtime from cfg.
func New(cfg Config) *Runtime {
	riskGate := risk.NewGate(risk.Config{
		MinEdgePct:            cfg.Risk.MinEdgePct,
		MinLiquidity:          cfg.Risk.MinLiquidity,
		MaxPositionSize:       cfg.Risk.MaxPositionSize,
		VolatilityScaling:     cfg.Risk.VolatilityScaling,
		VolatilityThreshold:   cfg.Risk.VolatilityThreshold,
		VolatilityScaleFactor: cfg.Risk.VolatilityScaleFactor,
		MaxAssetExposure:      cfg.Risk.MaxAssetExposure,
		MaxTotalExposure:      cfg.Risk.MaxTotalExposure,
		DuplicateWindow:       cfg.Risk.DuplicateWindow,
	}, cfg.Exposure, cfg.Log)

	breakers := risk.NewVenueCircuitBreakers(risk.APICircuitBreakerConfig{
		FailureThreshold: cfg.Risk.APIFailureThreshold,
		RecoveryTimeout:  cfg.Risk.APIRecoveryTimeout,
		SuccessThreshold: cfg.Risk.APISuccessThreshold,
	})

	return &Runtime{
		id:        cfg.ShardID,
		shardType: cfg.ShardType,
		processID: uuid.NewString(),
		startedAt: time.Now(),
		cfg:       cfg.Shard,
		riskCfg:   cfg.Risk,
		bus:       cfg.Bus,
		prices:    cfg.Prices,
		prob:      probability.NewEngine(),
		gate:      riskGate,
		breakers:  breakers,
		provider:  cfg.Provider,
		log:       cfg.Log,
		events:    make(map[string]*EventContext),
		dirty:     make(chan string, 1024),
		done:      make(chan struct{}),
	}
}

// Run starts every task and blocks until ctx is cancelled, then drains.
func (r *Runtime) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	tasks := []func(context.Context){
		r.commandListener,
		r.priceListener, // fills the price cache, wakes the evaluator in event-driven mode
		r.heartbeatLoop,
		r.evaluatorLoop,
	}
	for _, task := range tasks {
		wg.Add(1)
		go func(fn func(context.Context)) {
			defer wg.Done()
			fn(ctx)
		}(task)
	}

	<-ctx.Done()
	r.shutdown()
	wg.Wait()
	return ctx.Err()
}

// shutdown performs the graceful drain described in §4.G: stop accepting
// new commands (the command listener observes ctx.Done and exits on its
// own), flush nothing further since evaluations are synchronous, and let
// the bus connections close via their own Close on process exit.
func (r *Runtime) shutdown() {
	r.shutdownOnce.Do(func() {
		close(r.done)
		r.log.Info("shard shutting down", zap.String("shard_id", r.id))
	})
}

// commandListener subscribes to shard:{id}:command and applies add_event /
// remove_event / shutdown.
func (r *Runtime) commandListener(ctx context.Context) {
	topic := fmt.Sprintf("shard:%s:command", r.id)
	err := r.bus.SubscribeReliable(ctx, topic, func(env models.BusEnvelope) {
		var cmd models.ShardCommand
		if err := wireJSON.Unmarshal(env.Payload, &cmd); err != nil {
			r.log.Warn("failed to decode shard command", zap.Error(err))
			return
		}
		r.applyCommand(ctx, cmd)
	})
	if err != nil && ctx.Err() == nil {
		r.log.Error("command listener subscribe failed", zap.Error(err))
	}
}

func (r *Runtime) applyCommand(ctx context.Context, cmd models.ShardCommand) {
	switch cmd.Type {
	case models.CommandAddEvent:
		if cmd.AddEvent == nil {
			return
		}
		r.addEvent(*cmd.AddEvent)
	case models.CommandRemoveEvent:
		if cmd.RemoveEvent == nil {
			return
		}
		r.removeEvent(cmd.RemoveEvent.EventID)
	case models.CommandShutdown:
		r.shutdown()
	}
}

func (r *Runtime) addEvent(payload models.AddEventPayload) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.events) >= r.cfg.MaxGames && r.cfg.MaxGames > 0 {
		if _, exists := r.events[payload.EventID]; !exists {
			r.log.Warn("refusing add_event, at capacity",
				zap.String("event_id", payload.EventID), zap.Int("max_games", r.cfg.MaxGames))
			return
		}
	}

	r.events[payload.EventID] = newEventContext(payload)
	metrics.ShardEventsAssigned.WithLabelValues(r.id).Set(float64(len(r.events)))
}

func (r *Runtime) removeEvent(eventID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.events, eventID)
	r.prices.Remove(eventID)
	metrics.ShardEventsAssigned.WithLabelValues(r.id).Set(float64(len(r.events)))
}

// assignedEventIDs returns the authoritative set of event IDs this shard
// currently holds, for the heartbeat payload.
func (r *Runtime) assignedEventIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.events))
	for id := range r.events {
		ids = append(ids, id)
	}
	return ids
}

// heartbeatLoop publishes shard:{id}:heartbeat every HeartbeatInterval.
func (r *Runtime) heartbeatLoop(ctx context.Context) {
	interval := r.cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	hostname, _ := os.Hostname()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hb := models.Heartbeat{
				ShardID:   r.id,
				ShardType: r.shardType,
				ProcessID: r.processID,
				StartedAt: r.startedAt,
				Status:    models.ShardHealthy,
				Checks:    map[string]bool{"redis_ok": true},
				Metrics:   map[string]float64{"events_assigned": float64(len(r.assignedEventIDs()))},
				Events:    r.assignedEventIDs(),
				MaxGames:  r.cfg.MaxGames,
				Timestamp: time.Now(),
			}
			payload, err := wireJSON.Marshal(hb)
			if err != nil {
				r.log.Error("failed to encode heartbeat", zap.Error(err))
				continue
			}
			topic := fmt.Sprintf("shard:%s:heartbeat", r.id)
			env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: hostname, Topic: topic, Payload: payload}
			if err := r.bus.Publish(ctx, topic, env); err != nil {
				r.log.Warn("failed to publish heartbeat", zap.Error(err))
			}
		}
	}
}

// priceListener subscribes to every price topic, writes the cache, and in
// event-driven mode wakes the evaluator for the affected event.
func (r *Runtime) priceListener(ctx context.Context) {
	err := r.bus.Subscribe(ctx, "prices.", func(env models.BusEnvelope) {
		var snap models.PriceSnapshot
		if err := wireJSON.Unmarshal(env.Payload, &snap); err != nil {
			return
		}
		r.prices.Put(snap)

		if r.cfg.EventDriven && snap.EventID != "" {
			select {
			case r.dirty <- snap.EventID:
			default:
			}
		}
	})
	if err != nil && ctx.Err() == nil {
		r.log.Error("price listener subscribe failed", zap.Error(err))
	}
}

// evaluatorLoop runs in event-driven or polling mode per cfg.EventDriven. In
// event-driven mode it wakes on a price update for one event (evaluating
// just that event) and still falls back to a full sweep every FallbackTick
// in case a wakeup was dropped; in polling mode it only ever sweeps on the
// fixed tick.
func (r *Runtime) evaluatorLoop(ctx context.Context) {
	fallback := r.cfg.FallbackTick
	if fallback <= 0 {
		fallback = 5 * time.Second
	}
	ticker := time.NewTicker(fallback)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.evaluateAll(ctx)
		case eventID := <-r.dirty:
			if !r.cfg.EventDriven {
				continue
			}
			r.evaluateOne(ctx, eventID)
		}
	}
}

// evaluateAll runs Evaluate for every held event.
func (r *Runtime) evaluateAll(ctx context.Context) {
	r.mu.RLock()
	contexts := make([]*EventContext, 0, len(r.events))
	for _, ec := range r.events {
		contexts = append(contexts, ec)
	}
	r.mu.RUnlock()

	for _, ec := range contexts {
		start := time.Now()
		r.evaluate(ctx, ec)
		metrics.ShardEvaluationLatency.WithLabelValues(r.id).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// evaluateOne runs Evaluate for a single event, looked up by ID; a miss
// means the event was removed between the price update and this wakeup.
func (r *Runtime) evaluateOne(ctx context.Context, eventID string) {
	r.mu.RLock()
	ec, ok := r.events[eventID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	start := time.Now()
	r.evaluate(ctx, ec)
	metrics.ShardEvaluationLatency.WithLabelValues(r.id).Observe(float64(time.Since(start).Milliseconds()))
}

// evaluate implements §4.G step 1-5 for one event: refresh state, check
// staleness, run arbitrage (wins ties over model-edge), else run the
// probability model and compare against market mid.
func (r *Runtime) evaluate(ctx context.Context, ec *EventContext) {
	if r.shardType == models.ShardNonSports && r.provider != nil {
		state, err := r.provider.GetEventState(ctx, ec.EventID)
		if err != nil {
			r.log.Warn("event state refresh failed", zap.String("event_id", ec.EventID), zap.Error(err))
		} else {
			ec.SetState(state)
		}
	}

	snaps := r.prices.GetAllVenues(ec.EventID)
	if len(snaps) == 0 {
		return
	}

	venues := make([]string, 0, len(snaps))
	for v := range snaps {
		venues = append(venues, v)
	}

	if op := r.detectArbitrage(snaps, venues, ec.EventID); op != nil {
		r.publishOpportunity(ctx, op, ec.MarketType)
		return
	}

	r.detectModelEdge(ctx, ec, snaps)
}

func (r *Runtime) detectArbitrage(snaps map[string]models.PriceSnapshot, venues []string, eventID string) *arbitrage.Opportunity {
	for _, v := range venues {
		if op := arbitrage.SameMarketArb(eventID, snaps[v]); op != nil {
			return op
		}
	}

	for i := 0; i < len(venues); i++ {
		for j := i + 1; j < len(venues); j++ {
			if op := arbitrage.CrossVenueArb(eventID, snaps[venues[i]], snaps[venues[j]]); op != nil {
				return op
			}
		}
	}
	return nil
}

func (r *Runtime) detectModelEdge(ctx context.Context, ec *EventContext, snaps map[string]models.PriceSnapshot) {
	state := ec.State()

	p, err := r.prob.Compute(ec.MarketType, state, true)
	if err != nil {
		return
	}

	for venue, snap := range snaps {
		if snap.IsStale(time.Now(), 30*time.Second) {
			continue
		}
		op := arbitrage.ModelEdge(ec.EventID, venue, snap.MarketID, p, snap.Mid(),
			r.riskCfg.MinEdgePct, 0.05, r.riskCfg.MaxPositionSize)
		if op != nil {
			r.publishOpportunity(ctx, op, ec.MarketType)
			return
		}
	}
}

func (r *Runtime) publishOpportunity(ctx context.Context, op *arbitrage.Opportunity, marketType models.MarketType) {
	metrics.OpportunitiesDetected.WithLabelValues(string(op.SignalType), string(marketType.Kind)).Inc()
	metrics.EdgeObserved.WithLabelValues(string(op.SignalType)).Observe(op.EdgePct)

	r.publishAudit(ctx, models.AuditEntry{
		EventKind: models.AuditOpportunityDetected, EventID: op.EventID, Venue: op.Venue,
		MarketID: op.MarketID, SignalType: string(op.SignalType), EdgePct: op.EdgePct,
	})

	breaker := r.breakers.For(op.Venue)
	if err := breaker.Allow(); err != nil {
		r.log.Info("venue API circuit open, dropping opportunity",
			zap.String("venue", op.Venue), zap.String("event_id", op.EventID), zap.Error(err))
		r.publishAudit(ctx, models.AuditEntry{
			EventKind: models.AuditVenueCircuitOpen, EventID: op.EventID, Venue: op.Venue,
			MarketID: op.MarketID, Detail: err.Error(),
		})
		return
	}

	size, err := r.gate.Validate(ctx, risk.Request{
		Asset:         assetFor(marketType),
		Venue:         op.Venue,
		MarketID:      op.MarketID,
		MarketKind:    string(marketType.Kind),
		EdgePct:       op.EdgePct,
		SuggestedSize: op.SuggestedSize,
	})
	if err != nil {
		r.log.Info("risk gate rejected opportunity",
			zap.String("event_id", op.EventID), zap.Error(err))
		reason := ""
		if rr, ok := err.(*errs.RiskRejection); ok {
			reason = string(rr.Reason)
		}
		r.publishAudit(ctx, models.AuditEntry{
			EventKind: models.AuditRiskRejected, EventID: op.EventID, Venue: op.Venue,
			MarketID: op.MarketID, SignalType: string(op.SignalType), EdgePct: op.EdgePct,
			Reason: reason, Detail: err.Error(),
		})
		return
	}

	r.publishAudit(ctx, models.AuditEntry{
		EventKind: models.AuditRiskAccepted, EventID: op.EventID, Venue: op.Venue,
		MarketID: op.MarketID, SignalType: string(op.SignalType), EdgePct: op.EdgePct,
		SuggestedSize: size,
	})

	req := models.ExecutionRequest{
		RequestID:      uuid.NewString(),
		IdempotencyKey: idempotencyKey(op.EventID, op.MarketID, op.Side, size, time.Now()),
		EventID:        op.EventID,
		Venue:          op.Venue,
		MarketID:       op.MarketID,
		Side:           op.Side,
		Direction:      op.Direction,
		SignalType:     op.SignalType,
		SuggestedSize:  size,
		EdgePct:        op.EdgePct,
		Probability:    op.Probability,
		CreatedAt:      time.Now(),
		SecondVenue:    op.SecondVenue,
		SecondMarketID: op.SecondMarketID,
		SecondSide:     op.SecondSide,
		SecondPrice:    op.SecondPrice,
	}

	payload, err := wireJSON.Marshal(req)
	if err != nil {
		r.log.Error("failed to encode execution request", zap.Error(err))
		return
	}

	topic := fmt.Sprintf("execution.request.%s", req.RequestID)
	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: r.id, Topic: topic, Payload: payload}
	if err := r.bus.Publish(ctx, topic, env); err != nil {
		r.log.Error("failed to publish execution request", zap.Error(err))
		breaker.RecordFailure()
		return
	}
	breaker.RecordSuccess()
}

// sizeBucketWidth buckets suggested trade sizes into coarse bands for
// idempotency purposes: two opportunities sized 1,204 and 1,248 are the
// same trade intent, one sized 1,400 is not.
const sizeBucketWidth = 100.0

// idempotencyKey is a stable hash of (event, market, side, size bucket,
// minute window) per §3: two otherwise-identical opportunities surfaced
// within the same wall-clock minute collapse to the same key, so
// downstream suppresses the duplicate, while a later minute window is
// free to re-emit the same trade intent.
func idempotencyKey(eventID, marketID string, side models.Side, size float64, at time.Time) string {
	bucket := int64(size/sizeBucketWidth) * int64(sizeBucketWidth)
	minuteWindow := at.UTC().Truncate(time.Minute).Unix()
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s|%d|%d", eventID, marketID, side, bucket, minuteWindow)))
	return hex.EncodeToString(h[:])
}

// publishAudit emits a risk-decision audit entry for the observer's audit
// stream mode (§4.K supplement). Best-effort: a failure here never blocks
// the trading path.
func (r *Runtime) publishAudit(ctx context.Context, entry models.AuditEntry) {
	entry.Timestamp = time.Now()
	entry.ShardID = r.id
	payload, err := wireJSON.Marshal(entry)
	if err != nil {
		return
	}
	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: r.id, Topic: models.AuditTopic, Payload: payload}
	if err := r.bus.Publish(ctx, models.AuditTopic, env); err != nil {
		r.log.Warn("failed to publish audit entry", zap.String("event_kind", string(entry.EventKind)), zap.Error(err))
	}
}

func assetFor(m models.MarketType) string {
	if m.Asset != "" {
		return m.Asset
	}
	if m.League != "" {
		return m.League
	}
	return string(m.Kind)
}
