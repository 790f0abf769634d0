package transport

import (
	"context"
	"fmt"

	"arbengine/internal/bus"
	"arbengine/internal/metrics"
	"arbengine/internal/models"
	"arbengine/internal/reconnect"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Reliable is the cross-process transport used when TRANSPORT_MODE includes
// redis_only: Redis Pub/Sub wrapped in internal/reconnect so subscribers see
// one continuous stream across redis restarts, with at-least-once semantics
// (duplicates are possible after a reconnect and are filtered by bus.Dedup
// upstream of the handler, per §4.B).
type Reliable struct {
	client *redis.Client
	source string
	log    *zap.Logger
	seq    *bus.SeqAllocator
}

func NewReliable(client *redis.Client, source string, log *zap.Logger) *Reliable {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reliable{client: client, source: source, log: log, seq: bus.NewSeqAllocator()}
}

func (r *Reliable) Publish(ctx context.Context, topic string, env models.BusEnvelope) error {
	env.Source = r.source
	env.Topic = topic
	env.Seq = r.seq.Next()

	raw, err := bus.Encode(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}

	if err := r.client.Publish(ctx, topic, raw).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	metrics.BusMessagesPublished.WithLabelValues("redis", topicPrefix(topic)).Inc()
	return nil
}

// redisDialer adapts redis PSubscribe to the reconnect.Dialer interface.
type redisDialer struct {
	client *redis.Client
	log    *zap.Logger
}

func (d *redisDialer) Connect(ctx context.Context, channels []string, onMessage func(reconnect.Message)) error {
	patterns := channels
	if len(patterns) == 0 {
		return nil
	}
	pubsub := d.client.PSubscribe(ctx, patterns...)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			onMessage(reconnect.Message{Channel: msg.Channel, Payload: []byte(msg.Payload)})
		case <-ctx.Done():
			return nil
		}
	}
}

// Subscribe registers pattern, a topic prefix such as "prices.kalshi.", as
// the redis PSUBSCRIBE glob pattern+"*" with a dedicated reconnect.Manager
// and decodes/dispatches envelopes as they arrive, deduplicating by
// (source, seq).
func (r *Reliable) Subscribe(ctx context.Context, pattern string, handler func(models.BusEnvelope)) error {
	dialer := &redisDialer{client: r.client, log: r.log}
	mgr := reconnect.New("redis:"+pattern, dialer, reconnect.DefaultConfig(), r.log)
	mgr.Subscribe(pattern + "*")

	go mgr.Run(ctx)

	dedup := bus.NewDedup()
	for {
		select {
		case msg := <-mgr.Messages():
			env, err := bus.Decode(msg.Payload)
			if err != nil {
				metrics.BusParseErrors.WithLabelValues("redis").Inc()
				r.log.Warn("failed to decode envelope", zap.Error(err))
				continue
			}
			if dup, gap := dedup.Observe(env); dup {
				continue
			} else if gap > 0 {
				metrics.BusSequenceGaps.WithLabelValues(env.Source).Add(float64(gap))
			}
			handler(env)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Reliable) Close() error { return r.client.Close() }
