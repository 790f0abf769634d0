package transport

import (
	"context"
	"fmt"
	"strconv"

	"arbengine/internal/bus"
	"arbengine/internal/metrics"
	"arbengine/internal/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Persisted wraps a Redis Stream per topic so late-joining consumers (a
// restarted shard, the observer's backfill on startup) can replay recent
// history instead of only seeing the live tail. Streams are capped with
// MAXLEN ~ to bound memory, per §4.B.
type Persisted struct {
	client *redis.Client
	log    *zap.Logger
	maxLen int64
}

func NewPersisted(client *redis.Client, maxLen int64, log *zap.Logger) *Persisted {
	if log == nil {
		log = zap.NewNop()
	}
	if maxLen <= 0 {
		maxLen = 50000
	}
	return &Persisted{client: client, log: log, maxLen: maxLen}
}

func (p *Persisted) Append(ctx context.Context, stream string, env models.BusEnvelope) (string, error) {
	raw, err := bus.Encode(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{"envelope": raw},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	metrics.BusMessagesPublished.WithLabelValues("persisted", topicPrefix(stream)).Inc()
	return id, nil
}

// Replay reads every entry on stream from afterID (exclusive) to the
// current tail, in order. Pass "0" to replay from the beginning.
func (p *Persisted) Replay(ctx context.Context, stream string, afterID string, limit int64) ([]models.BusEnvelope, error) {
	rangeArg := "(" + afterID
	if afterID == "0" || afterID == "" {
		rangeArg = "-"
	}

	entries, err := p.client.XRangeN(ctx, stream, rangeArg, "+", limit).Result()
	if err != nil {
		return nil, fmt.Errorf("xrange %s: %w", stream, err)
	}

	out := make([]models.BusEnvelope, 0, len(entries))
	for _, e := range entries {
		raw, ok := e.Values["envelope"].(string)
		if !ok {
			continue
		}
		env, err := bus.Decode([]byte(raw))
		if err != nil {
			metrics.BusParseErrors.WithLabelValues("persisted").Inc()
			continue
		}
		out = append(out, env)
	}
	return out, nil
}

// Tail blocks on XREAD from lastID ("$" when empty), delivering new entries
// to handler until ctx is cancelled.
func (p *Persisted) Tail(ctx context.Context, stream string, lastID string, handler func(models.BusEnvelope)) error {
	id := lastID
	if id == "" {
		id = "$"
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		res, err := p.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, id},
			Block:   0,
			Count:   100,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("xread %s: %w", stream, err)
		}

		for _, s := range res {
			for _, e := range s.Messages {
				raw, ok := e.Values["envelope"].(string)
				if !ok {
					continue
				}
				env, err := bus.Decode([]byte(raw))
				if err != nil {
					metrics.BusParseErrors.WithLabelValues("persisted").Inc()
					continue
				}
				handler(env)
				id = e.ID
			}
		}
	}
}

// StreamIDFromSeq formats seq as the Redis stream ID "{seq}-0". Append
// stores entries under Redis-generated timestamp IDs, so this ID is not
// ordered relative to an entry's envelope seq.
func StreamIDFromSeq(seq uint64) string {
	return strconv.FormatUint(seq, 10) + "-0"
}
