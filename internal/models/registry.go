package models

import "time"

// ShardStatus is the registry's view of a shard's health.
type ShardStatus string

const (
	ShardStarting ShardStatus = "starting"
	ShardHealthy  ShardStatus = "healthy"
	ShardDegraded ShardStatus = "degraded"
	ShardUnhealthy ShardStatus = "unhealthy"
	ShardDead     ShardStatus = "dead"
	ShardStopping ShardStatus = "stopping"
)

// Heartbeat is the shard:{id}:heartbeat payload.
type Heartbeat struct {
	ShardID       string            `json:"shard_id"`
	ShardType     ShardType         `json:"shard_type"`
	ProcessID     string            `json:"process_id"`
	StartedAt     time.Time         `json:"started_at"`
	Status        ShardStatus       `json:"status"`
	Checks        map[string]bool   `json:"checks"`
	Metrics       map[string]float64 `json:"metrics"`
	Events        []string          `json:"events"`
	MaxGames      int               `json:"max_games"`
	Timestamp     time.Time         `json:"timestamp"`
}

// ShardRegistryEntry is the orchestrator's record for one
// (service_name:instance_id). Its AssignedEvents set is authoritative;
// heartbeat-reported events are a noisy approximation checked against it.
type ShardRegistryEntry struct {
	ShardID          string
	ShardType        ShardType
	LastProcessID    string
	LastStartedAt    time.Time
	LastHeartbeat    time.Time
	Status           ShardStatus
	ComponentChecks  map[string]bool
	Metrics          map[string]float64
	AssignedEvents   map[string]struct{}
	MaxGames         int

	// Consecutive-zero-report tracking for the republish grace period
	// (open question #1): a non-sports shard that reports zero events is
	// not treated as having lost state until this many consecutive empty
	// reports have been observed.
	ConsecutiveZeroReports int

	ConsecutiveHeartbeatFailures int
}

// NewShardRegistryEntry creates an empty entry for a newly seen shard.
func NewShardRegistryEntry(shardID string, shardType ShardType) *ShardRegistryEntry {
	return &ShardRegistryEntry{
		ShardID:         shardID,
		ShardType:       shardType,
		Status:          ShardStarting,
		ComponentChecks: make(map[string]bool),
		Metrics:         make(map[string]float64),
		AssignedEvents:  make(map[string]struct{}),
	}
}

// NotificationKind enumerates the typed enum events published on the
// notifications:* channels.
type NotificationKind string

const (
	NotifyServiceRestarted      NotificationKind = "service_restarted"
	NotifyServiceDead           NotificationKind = "service_dead"
	NotifyServiceRecovered      NotificationKind = "service_recovered"
	NotifyServiceResyncComplete NotificationKind = "service_resync_complete"
	NotifyCircuitBreakerOpened  NotificationKind = "circuit_breaker_opened"
	NotifyCircuitBreakerClosed  NotificationKind = "circuit_breaker_closed"
)

// ServiceNotification is the payload shape for every notifications:* message
// published by the orchestrator's shard registry. Named distinctly from the
// legacy per-trade Notification since both share package models.
type ServiceNotification struct {
	Kind      NotificationKind `json:"kind"`
	ShardID   string           `json:"shard_id,omitempty"`
	Detail    string           `json:"detail,omitempty"`
	Count     int              `json:"count,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}
