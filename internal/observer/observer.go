// Package observer implements §4.K: a non-participating subscriber to
// every producer in the system, writing bounded append-only logs for
// replay and analytics, with an optional bridge mode that re-forwards
// everything onto the reliable transport for legacy consumers.
package observer

import (
	"context"
	"strings"
	"sync"
	"time"

	"arbengine/internal/bus"
	"arbengine/internal/config"
	"arbengine/internal/metrics"
	"arbengine/internal/models"
	"arbengine/internal/transport"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Mode mirrors config.ObserverConfig.Mode's three string values.
type Mode string

const (
	ModeObserver Mode = "observer"
	ModeBridge   Mode = "bridge"
	ModeDisabled Mode = "disabled"
)

const heartbeatTopic = "observer:heartbeat"

// streamRoute maps a topic prefix to the bounded stream it is written to
// and that stream's approximate MAXLEN, per spec's "50k for prices, 5k for
// signals/trades".
type streamRoute struct {
	prefix string
	stream string
	maxLen int64
}

// Observer subscribes to every topic on the bus and writes each envelope to
// a bounded persisted stream (Redis Streams when the transport is
// redis-capable, a local SQLite-backed Store otherwise), detecting
// per-source sequence gaps and reporting latency on a periodic heartbeat.
type Observer struct {
	mode       Mode
	bus        *transport.Composite
	persisted  *transport.Persisted // nil when no Redis client is configured
	store      *Store               // nil when persisted is set
	routes     []streamRoute
	defaultMax int64 // MAXLEN for any topic not matched by routes (signals/trades/everything else)
	log        *zap.Logger

	dedup *bus.Dedup

	mu      sync.Mutex
	latency map[string][]time.Duration // per-stream recent latency samples for the heartbeat
}

// New builds an Observer. Exactly one of persisted or store should be
// non-nil; persisted takes precedence when both are given.
func New(mode Mode, busComposite *transport.Composite, persisted *transport.Persisted, store *Store, cfg config.ObserverConfig, log *zap.Logger) *Observer {
	if log == nil {
		log = zap.NewNop()
	}
	pricesMax := cfg.MaxLenPrices
	if pricesMax <= 0 {
		pricesMax = 50000
	}
	defaultMax := cfg.MaxLenSignals
	if defaultMax <= 0 {
		defaultMax = 5000
	}
	return &Observer{
		mode:       mode,
		bus:        busComposite,
		persisted:  persisted,
		store:      store,
		log:        log,
		dedup:      bus.NewDedup(),
		latency:    make(map[string][]time.Duration),
		defaultMax: defaultMax,
		routes: []streamRoute{
			{prefix: "prices.", stream: "stream:prices", maxLen: pricesMax},
			{prefix: "prices:", stream: "stream:prices", maxLen: pricesMax},
			{prefix: "audit:", stream: auditStream, maxLen: defaultMax},
		},
	}
}

// Run subscribes to every topic on the bus (mode Disabled is a no-op) and
// blocks until ctx is cancelled.
func (o *Observer) Run(ctx context.Context) error {
	if o.mode == ModeDisabled {
		<-ctx.Done()
		return nil
	}
	return o.bus.SubscribeReliable(ctx, "*", func(env models.BusEnvelope) {
		o.Ingest(ctx, env)
	})
}

// Ingest processes one envelope: gap detection, persistence, and (Bridge
// mode only) re-publication.
func (o *Observer) Ingest(ctx context.Context, env models.BusEnvelope) {
	recvTs := time.Now()

	if dup, gap := o.dedup.Observe(env); dup {
		return
	} else if gap > 0 {
		o.log.Warn("sequence gap detected", zap.String("source", env.Source), zap.Uint64("gap", gap))
	}

	stream := o.routeFor(env.Topic)
	latency := recvTs.Sub(time.UnixMilli(env.TimestampMs))
	o.recordLatency(stream.stream, latency)
	metrics.ObserveLatencyMs(metrics.ObserverLatencyMs, []string{stream.stream}, latency)

	if err := o.persist(ctx, stream, env, recvTs); err != nil {
		o.log.Warn("failed to persist observed envelope", zap.String("topic", env.Topic), zap.Error(err))
		return
	}
	metrics.ObserverMessagesPersisted.WithLabelValues(stream.stream).Inc()

	if o.mode == ModeBridge {
		if err := o.bus.Publish(ctx, env.Topic, env); err != nil {
			o.log.Warn("bridge re-publish failed", zap.String("topic", env.Topic), zap.Error(err))
		}
	}
}

func (o *Observer) routeFor(topic string) streamRoute {
	for _, r := range o.routes {
		if strings.HasPrefix(topic, r.prefix) {
			return r
		}
	}
	return streamRoute{stream: "stream:events", maxLen: o.defaultMax}
}

func (o *Observer) persist(ctx context.Context, route streamRoute, env models.BusEnvelope, recvTs time.Time) error {
	if o.persisted != nil {
		_, err := o.persisted.Append(ctx, route.stream, env)
		return err
	}
	return o.store.Append(ctx, Entry{
		Stream:  route.stream,
		Topic:   env.Topic,
		Source:  env.Source,
		ZmqSeq:  env.Seq,
		ZmqTs:   env.TimestampMs,
		RecvTs:  recvTs.UnixMilli(),
		Payload: env.Payload,
	}, route.maxLen)
}

func (o *Observer) recordLatency(stream string, d time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	samples := o.latency[stream]
	samples = append(samples, d)
	if len(samples) > 256 {
		samples = samples[len(samples)-256:]
	}
	o.latency[stream] = samples
}

// heartbeatPayload is published periodically on observer:heartbeat, reporting
// per-stream average recv_ts-zmq_ts latency per §4.K.
type heartbeatPayload struct {
	Timestamp    time.Time          `json:"timestamp"`
	AvgLatencyMs map[string]float64 `json:"avg_latency_ms"`
}

// RunHeartbeat publishes a latency-summary heartbeat on interval until ctx
// is cancelled.
func (o *Observer) RunHeartbeat(ctx context.Context, interval time.Duration) {
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
			o.publishHeartbeat(ctx)
		}
	}
}

func (o *Observer) publishHeartbeat(ctx context.Context) {
	o.mu.Lock()
	avg := make(map[string]float64, len(o.latency))
	for stream, samples := range o.latency {
		if len(samples) == 0 {
			continue
		}
		var total time.Duration
		for _, s := range samples {
			total += s
		}
		avg[stream] = float64(total/time.Millisecond) / float64(len(samples))
	}
	o.mu.Unlock()

	payload, err := wireJSON.Marshal(heartbeatPayload{Timestamp: time.Now(), AvgLatencyMs: avg})
	if err != nil {
		o.log.Error("failed to encode observer heartbeat", zap.Error(err))
		return
	}
	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "observer", Topic: heartbeatTopic, Payload: payload}
	if err := o.bus.Publish(ctx, heartbeatTopic, env); err != nil {
		o.log.Warn("failed to publish observer heartbeat", zap.Error(err))
	}
}
