package observer

import (
	"context"
	"testing"
	"time"

	"arbengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAuditLoggerIngestPersistsToStore(t *testing.T) {
	store := testStore(t)
	logger := NewAuditLogger(testComposite(t), nil, store, 10, zap.NewNop())

	entry := models.AuditEntry{
		Timestamp: time.Now(),
		EventKind: models.AuditRiskRejected,
		ShardID:   "shard-1",
		EventID:   "evt-1",
		Venue:     "kalshi",
		Reason:    "edge_below_minimum",
	}
	payload, err := wireJSON.Marshal(entry)
	require.NoError(t, err)

	env := models.BusEnvelope{
		Seq: 1, TimestampMs: time.Now().UnixMilli(), Source: "shard-1",
		Topic: models.AuditTopic, Payload: payload,
	}

	logger.ingest(context.Background(), env)

	n, err := store.Count(context.Background(), auditStream)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestAuditLoggerIngestIgnoresMalformedPayload(t *testing.T) {
	store := testStore(t)
	logger := NewAuditLogger(testComposite(t), nil, store, 10, zap.NewNop())

	env := models.BusEnvelope{
		Seq: 1, TimestampMs: time.Now().UnixMilli(), Source: "shard-1",
		Topic: models.AuditTopic, Payload: []byte("not json"),
	}

	logger.ingest(context.Background(), env)

	n, err := store.Count(context.Background(), auditStream)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
