package orchestrator

import (
	"context"
	"time"

	"arbengine/internal/models"
	"arbengine/internal/transport"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var wireJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Notification topics, one per kind of event the registry emits.
const (
	topicServiceHealth = "notifications:service_health"
	topicServiceResync = "notifications:service_resync"
	topicCircuitBreaker = "notifications:circuit_breaker"
	topicDegradation    = "notifications:degradation"
)

// notifier publishes typed ServiceNotifications to the channel matching
// their kind.
type notifier struct {
	bus *transport.Composite
	log *zap.Logger
}

func newNotifier(bus *transport.Composite, log *zap.Logger) *notifier {
	return &notifier{bus: bus, log: log}
}

func (n *notifier) publish(ctx context.Context, note models.ServiceNotification) {
	note.Timestamp = time.Now()

	topic := topicForKind(note.Kind)
	payload, err := wireJSON.Marshal(note)
	if err != nil {
		n.log.Error("failed to encode service notification", zap.Error(err))
		return
	}

	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "orchestrator", Topic: topic, Payload: payload}
	if err := n.bus.Publish(ctx, topic, env); err != nil {
		n.log.Warn("failed to publish service notification", zap.String("topic", topic), zap.Error(err))
	}
}

func topicForKind(kind models.NotificationKind) string {
	switch kind {
	case models.NotifyServiceResyncComplete:
		return topicServiceResync
	case models.NotifyCircuitBreakerOpened, models.NotifyCircuitBreakerClosed:
		return topicCircuitBreaker
	case models.NotifyServiceRestarted, models.NotifyServiceDead, models.NotifyServiceRecovered:
		return topicServiceHealth
	default:
		return topicDegradation
	}
}
