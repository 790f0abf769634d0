// Package metrics holds every Prometheus metric the engine exports,
// generalized from a single-exchange arbitrage bot's metric set to the
// per-shard, per-venue, per-market-type labels this engine's components need.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "arbengine"

var (
	// Reconnecting subscription (§4.A)
	ReconnectAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconnect", Name: "attempts_total",
		Help: "Connection attempts made by the reconnecting subscription primitive.",
	}, []string{"component"})

	ReconnectFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "reconnect", Name: "failures_total",
		Help: "Failed connection attempts.",
	}, []string{"component"})

	ReconnectCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "reconnect", Name: "circuit_open",
		Help: "1 if the reconnect circuit breaker is open, else 0.",
	}, []string{"component"})

	// Message bus (§4.B)
	BusMessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bus", Name: "published_total",
		Help: "Envelopes published, by transport and topic prefix.",
	}, []string{"transport", "topic_prefix"})

	BusSequenceGaps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bus", Name: "sequence_gaps_total",
		Help: "Detected gaps in per-source monotonic sequence numbers.",
	}, []string{"source"})

	BusParseErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "bus", Name: "parse_errors_total",
		Help: "Envelopes that failed to decode.",
	}, []string{"transport"})

	// Price cache (§4.C)
	PriceUpdatesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pricecache", Name: "updates_total",
		Help: "Price snapshots written to the cache.",
	}, []string{"venue"})

	PriceCacheNotifierDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "pricecache", Name: "notifier_drops_total",
		Help: "Notifications dropped because the bounded notifier channel was full.",
	}, []string{"asset"})

	// Probability engine (§4.D)
	ProbabilityComputeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "probability", Name: "compute_latency_ms",
		Help: "Latency of a single probability model evaluation.", Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"market_kind"})

	// Arbitrage / signal detection (§4.E)
	OpportunitiesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "arbitrage", Name: "opportunities_total",
		Help: "Opportunities surfaced by the detector, before the risk gate.",
	}, []string{"signal_type", "market_kind"})

	EdgeObserved = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "arbitrage", Name: "edge_pct",
		Help: "Distribution of observed edge_pct across detected opportunities.", Buckets: []float64{0, 0.5, 1, 2, 3, 5, 8, 15, 30},
	}, []string{"signal_type"})

	// Risk gate (§4.F)
	TradesValidated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "risk", Name: "trades_validated_total",
		Help: "Candidate trades that passed every risk-gate check.",
	}, []string{"market_kind"})

	TradesBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "risk", Name: "trades_blocked_total",
		Help: "Candidate trades rejected by the risk gate, by reason.",
	}, []string{"reason"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "risk", Name: "circuit_breaker_state",
		Help: "0=closed 1=tripped for the per-market trading circuit breaker.",
	}, []string{"market_id"})

	APICircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "risk", Name: "api_circuit_breaker_state",
		Help: "0=closed 1=open 2=half_open for the per-venue API circuit breaker.",
	}, []string{"venue"})

	// Shard runtime (§4.G)
	ShardEventsAssigned = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "shard", Name: "events_assigned",
		Help: "Events currently held by this shard.",
	}, []string{"shard_id"})

	ShardEvaluationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "shard", Name: "evaluation_latency_ms",
		Help: "Latency of one per-event evaluation pass.", Buckets: []float64{0.1, 0.5, 1, 5, 10, 50, 100},
	}, []string{"shard_id"})

	TickToOrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "shard", Name: "tick_to_order_latency_ms",
		Help: "Latency from price-update receipt to execution-request publish.", Buckets: []float64{0.5, 1, 5, 10, 50, 100, 500},
	}, []string{"stage"})

	// Orchestrator (§4.I/4.J)
	ShardsHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "orchestrator", Name: "shards_healthy",
		Help: "Count of shards currently in Healthy status.",
	})

	ShardsDead = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "orchestrator", Name: "shards_dead",
		Help: "Count of shards currently in Dead status.",
	})

	AssignmentCircuitOpen = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "orchestrator", Name: "assignment_circuit_open",
		Help: "1 if a shard's assignment circuit breaker is open.",
	}, []string{"shard_id"})

	ResyncsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orchestrator", Name: "resyncs_completed_total",
		Help: "Completed resync cycles, by shard.",
	}, []string{"shard_id"})

	ReassignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "orchestrator", Name: "reassignments_total",
		Help: "Events reassigned away from a dead/degraded shard.",
	}, []string{"reason"})

	// Observer (§4.K)
	ObserverMessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "observer", Name: "persisted_total",
		Help: "Messages written to the persisted log, by stream.",
	}, []string{"stream"})

	ObserverLatencyMs = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "observer", Name: "publish_to_persist_latency_ms",
		Help: "recv_ts - zmq_ts for persisted messages.", Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
	}, []string{"stream"})
)

// ObserveLatencyMs records a duration in milliseconds on a HistogramVec.
func ObserveLatencyMs(h *prometheus.HistogramVec, labels []string, d time.Duration) {
	h.WithLabelValues(labels...).Observe(float64(d) / float64(time.Millisecond))
}
