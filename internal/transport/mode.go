package transport

import (
	"context"

	"arbengine/internal/config"
	"arbengine/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Composite fans a Publish out to every configured transport and lets
// Subscribe listen on whichever one(s) TRANSPORT_MODE enables, implementing
// the redis_only/zmq_only/both dispatch in §4.B. "zmq_only" historically
// named a low-latency same-process/same-host channel in the system this
// engine descends from; here it names the in-process LowLatency transport,
// since cross-process zero-MQ transport is out of scope (§1 Non-goals).
type Composite struct {
	lowLatency *LowLatency
	reliable   *Reliable
	mode       config.TransportMode
}

// NewComposite wires up the transports selected by mode. redisClient may be
// nil when mode is ZmqOnly.
func NewComposite(mode config.TransportMode, source string, redisClient *redis.Client, log *zap.Logger) *Composite {
	c := &Composite{mode: mode}
	if mode == config.TransportZmqOnly || mode == config.TransportBoth {
		c.lowLatency = NewLowLatency(source, log)
	}
	if mode == config.TransportRedisOnly || mode == config.TransportBoth {
		c.reliable = NewReliable(redisClient, source, log)
	}
	return c
}

func (c *Composite) Publish(ctx context.Context, topic string, env models.BusEnvelope) error {
	if c.lowLatency != nil {
		if err := c.lowLatency.Publish(ctx, topic, env); err != nil {
			return err
		}
	}
	if c.reliable != nil {
		if err := c.reliable.Publish(ctx, topic, env); err != nil {
			return err
		}
	}
	return nil
}

// Subscribe prefers the low-latency transport when both are active, since
// it carries no network round trip; the reliable transport remains
// available for cross-process consumers via SubscribeReliable.
func (c *Composite) Subscribe(ctx context.Context, pattern string, handler func(models.BusEnvelope)) error {
	if c.lowLatency != nil {
		return c.lowLatency.Subscribe(ctx, pattern, handler)
	}
	return c.reliable.Subscribe(ctx, pattern, handler)
}

// SubscribeReliable uses the Redis-backed transport when one is configured,
// for consumers that must see updates across process boundaries (the
// orchestrator watching shard heartbeats, the observer watching
// everything); in zmq_only mode it falls back to Subscribe.
func (c *Composite) SubscribeReliable(ctx context.Context, pattern string, handler func(models.BusEnvelope)) error {
	if c.reliable == nil {
		return c.Subscribe(ctx, pattern, handler)
	}
	return c.reliable.Subscribe(ctx, pattern, handler)
}

func (c *Composite) Close() error {
	if c.lowLatency != nil {
		c.lowLatency.Close()
	}
	if c.reliable != nil {
		return c.reliable.Close()
	}
	return nil
}
