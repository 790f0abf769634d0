// Package transport implements the three message-bus transport modes from
// §4.B: an in-process low-latency hub for same-process fanout, a reliable
// Redis pub/sub layer wrapped in the reconnect primitive, and a persisted
// Redis Streams layer for replay. TRANSPORT_MODE selects which of
// redis_only/zmq_only/both are active for a given process.
package transport

import (
	"context"

	"arbengine/internal/models"
)

// Publisher sends an envelope on a topic. Implementations never block
// indefinitely; when LowLatency's buffer is full, the envelope being
// published is dropped rather than stalling the publisher.
type Publisher interface {
	Publish(ctx context.Context, topic string, env models.BusEnvelope) error
}

// Subscriber delivers every envelope published on topics matching pattern
// (a topic prefix, e.g. "prices.kalshi.") to handler, until ctx is done.
type Subscriber interface {
	Subscribe(ctx context.Context, pattern string, handler func(models.BusEnvelope)) error
}

// Bus composes Publisher and Subscriber, the shape every component in the
// pipeline depends on instead of a concrete transport.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}
