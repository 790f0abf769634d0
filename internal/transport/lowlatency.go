package transport

import (
	"bytes"
	"context"
	"strings"
	"sync"

	"arbengine/internal/bus"
	"arbengine/internal/metrics"
	"arbengine/internal/models"

	"go.uber.org/zap"
)

// subscription is one registered handler, matched against every published
// envelope by topic prefix.
type subscription struct {
	pattern string
	handler func(models.BusEnvelope)
}

// LowLatency is the in-process, zero-copy-where-possible fanout transport
// used when TRANSPORT_MODE includes zmq_only: same-process components
// (shard price listener, evaluator, discovery matcher) exchange envelopes
// without a network hop, via a buffered broadcast channel feeding a single
// dispatch goroutine and short RLock-protected reads of the subscriber
// list. Envelopes are handed to handlers as Go values; nothing is encoded.
type LowLatency struct {
	source string
	log    *zap.Logger
	seq    *bus.SeqAllocator

	mu   sync.RWMutex
	subs []*subscription

	broadcast chan models.BusEnvelope
	done      chan struct{}

	bufPool sync.Pool
}

func NewLowLatency(source string, log *zap.Logger) *LowLatency {
	if log == nil {
		log = zap.NewNop()
	}
	ll := &LowLatency{
		source:    source,
		log:       log,
		seq:       bus.NewSeqAllocator(),
		broadcast: make(chan models.BusEnvelope, 4096),
		done:      make(chan struct{}),
		bufPool: sync.Pool{
			New: func() any { return new(bytes.Buffer) },
		},
	}
	go ll.run()
	return ll
}

func (ll *LowLatency) run() {
	for {
		select {
		case env := <-ll.broadcast:
			ll.dispatch(env)
		case <-ll.done:
			return
		}
	}
}

func (ll *LowLatency) dispatch(env models.BusEnvelope) {
	ll.mu.RLock()
	subs := make([]*subscription, len(ll.subs))
	copy(subs, ll.subs)
	ll.mu.RUnlock()

	for _, s := range subs {
		if strings.HasPrefix(env.Topic, s.pattern) {
			s.handler(env)
		}
	}
}

func (ll *LowLatency) Publish(_ context.Context, topic string, env models.BusEnvelope) error {
	env.Source = ll.source
	env.Topic = topic
	env.Seq = ll.seq.Next()

	metrics.BusMessagesPublished.WithLabelValues("lowlatency", topicPrefix(topic)).Inc()

	select {
	case ll.broadcast <- env:
		return nil
	default:
		ll.log.Warn("lowlatency broadcast buffer full, dropping envelope", zap.String("topic", topic))
		return nil
	}
}

func (ll *LowLatency) Subscribe(ctx context.Context, pattern string, handler func(models.BusEnvelope)) error {
	sub := &subscription{pattern: pattern, handler: handler}

	ll.mu.Lock()
	ll.subs = append(ll.subs, sub)
	ll.mu.Unlock()

	<-ctx.Done()

	ll.mu.Lock()
	for i, s := range ll.subs {
		if s == sub {
			ll.subs = append(ll.subs[:i], ll.subs[i+1:]...)
			break
		}
	}
	ll.mu.Unlock()
	return nil
}

func (ll *LowLatency) Close() error {
	close(ll.done)
	return nil
}

func topicPrefix(topic string) string {
	if i := strings.IndexByte(topic, '.'); i >= 0 {
		return topic[:i]
	}
	return topic
}
