package observer

import (
	"context"
	"time"

	"arbengine/internal/models"
	"arbengine/internal/transport"

	"go.uber.org/zap"
)

const auditStream = "stream:audit"

// AuditLogger subscribes to models.AuditTopic and persists every risk-gate
// decision, separately from the general observer ingest path so an
// operator can run audit logging without the full bounded-log observer
// (§3 supplement 6, grounded on execution_service_rust/src/audit.rs's
// AuditLogger, narrowed to risk decisions since trade settlement itself is
// out of scope here).
type AuditLogger struct {
	bus       *transport.Composite
	persisted *transport.Persisted
	store     *Store
	maxLen    int64
	log       *zap.Logger
}

func NewAuditLogger(busComposite *transport.Composite, persisted *transport.Persisted, store *Store, maxLen int64, log *zap.Logger) *AuditLogger {
	if log == nil {
		log = zap.NewNop()
	}
	if maxLen <= 0 {
		maxLen = 5000
	}
	return &AuditLogger{bus: busComposite, persisted: persisted, store: store, maxLen: maxLen, log: log}
}

// Run subscribes to the audit topic and blocks until ctx is cancelled.
func (a *AuditLogger) Run(ctx context.Context) error {
	return a.bus.SubscribeReliable(ctx, models.AuditTopic, func(env models.BusEnvelope) {
		a.ingest(ctx, env)
	})
}

func (a *AuditLogger) ingest(ctx context.Context, env models.BusEnvelope) {
	var entry models.AuditEntry
	if err := wireJSON.Unmarshal(env.Payload, &entry); err != nil {
		a.log.Warn("failed to decode audit entry", zap.Error(err))
		return
	}

	logFn := a.log.Info
	switch entry.EventKind {
	case models.AuditRiskRejected, models.AuditVenueCircuitOpen:
		logFn = a.log.Warn
	}
	logFn("audit",
		zap.String("event_kind", string(entry.EventKind)),
		zap.String("shard_id", entry.ShardID),
		zap.String("event_id", entry.EventID),
		zap.String("venue", entry.Venue),
		zap.String("reason", entry.Reason),
	)

	var err error
	if a.persisted != nil {
		_, err = a.persisted.Append(ctx, auditStream, env)
	} else if a.store != nil {
		err = a.store.Append(ctx, Entry{
			Stream: auditStream, Topic: env.Topic, Source: env.Source,
			ZmqSeq: env.Seq, ZmqTs: env.TimestampMs, RecvTs: time.Now().UnixMilli(), Payload: env.Payload,
		}, a.maxLen)
	}
	if err != nil {
		a.log.Warn("failed to persist audit entry", zap.Error(err))
	}
}
