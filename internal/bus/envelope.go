// Package bus implements the wire envelope and per-source sequencing used
// by every transport mode (§4.B): messages on the bus are always a
// BusEnvelope, JSON-encoded with json-iterator for an allocation-light
// encode/decode path on the hot tick-message path.
package bus

import (
	"sync"
	"sync/atomic"

	"arbengine/internal/models"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Encode serializes an envelope for publish.
func Encode(env models.BusEnvelope) ([]byte, error) {
	return json.Marshal(env)
}

// Decode parses a published envelope.
func Decode(raw []byte) (models.BusEnvelope, error) {
	var env models.BusEnvelope
	err := json.Unmarshal(raw, &env)
	return env, err
}

// SeqAllocator hands out a monotonically increasing sequence number per
// publishing source (one per process, typically the shard ID or
// "orchestrator"). Envelopes from the same source are expected to arrive in
// seq order; gaps signal dropped messages to the Dedup tracker below.
type SeqAllocator struct {
	counter uint64
}

func NewSeqAllocator() *SeqAllocator { return &SeqAllocator{} }

func (a *SeqAllocator) Next() uint64 { return atomic.AddUint64(&a.counter, 1) }

// Dedup tracks the last-seen sequence number per source and reports
// duplicates (replayed messages, e.g. from a persisted-stream replay
// overlapping live tail) and gaps (dropped messages on a lossy transport).
// Safe for concurrent use by a single consumer goroutine per source; the
// mutex only guards the cross-source map.
type Dedup struct {
	mu      sync.Mutex
	lastSeq map[string]uint64
}

func NewDedup() *Dedup {
	return &Dedup{lastSeq: make(map[string]uint64)}
}

// Observe reports whether env is a duplicate (seq <= last seen for its
// source) and how many messages were skipped since the last one observed
// (0 if contiguous, >0 on a gap). The caller decides whether a gap warrants
// a metric bump or a resync request.
func (d *Dedup) Observe(env models.BusEnvelope) (duplicate bool, gap uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	last, seen := d.lastSeq[env.Source]
	if !seen {
		d.lastSeq[env.Source] = env.Seq
		return false, 0
	}
	if env.Seq <= last {
		return true, 0
	}
	gap = env.Seq - last - 1
	d.lastSeq[env.Source] = env.Seq
	return false, gap
}

// Reset forgets the last-seen sequence for a source, used when a shard
// restarts under a new process ID and its sequence counter resets to zero.
func (d *Dedup) Reset(source string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.lastSeq, source)
}
