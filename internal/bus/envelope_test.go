package bus

import (
	"testing"
	"time"

	"arbengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	env := models.BusEnvelope{
		Seq:         42,
		TimestampMs: time.Now().UnixMilli(),
		Source:      "shard:S1",
		Topic:       "prices.kalshi.EVT1",
		Payload:     []byte(`{"yes_bid":0.4}`),
	}

	raw, err := Encode(env)
	require.NoError(t, err)

	got, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, env.Seq, got.Seq)
	assert.Equal(t, env.Source, got.Source)
	assert.Equal(t, env.Topic, got.Topic)
	assert.Equal(t, env.Payload, got.Payload)
}

func TestSeqAllocatorMonotonic(t *testing.T) {
	a := NewSeqAllocator()
	prev := uint64(0)
	for i := 0; i < 100; i++ {
		n := a.Next()
		assert.Greater(t, n, prev)
		prev = n
	}
}

func TestDedupDetectsDuplicateAndGap(t *testing.T) {
	d := NewDedup()

	dup, gap := d.Observe(models.BusEnvelope{Source: "shard:S1", Seq: 1})
	assert.False(t, dup)
	assert.Equal(t, uint64(0), gap)

	dup, gap = d.Observe(models.BusEnvelope{Source: "shard:S1", Seq: 5})
	assert.False(t, dup)
	assert.Equal(t, uint64(3), gap)

	dup, _ = d.Observe(models.BusEnvelope{Source: "shard:S1", Seq: 5})
	assert.True(t, dup)

	dup, _ = d.Observe(models.BusEnvelope{Source: "shard:S1", Seq: 3})
	assert.True(t, dup)
}

func TestDedupResetForgetsSource(t *testing.T) {
	d := NewDedup()
	d.Observe(models.BusEnvelope{Source: "shard:S1", Seq: 100})
	d.Reset("shard:S1")

	dup, gap := d.Observe(models.BusEnvelope{Source: "shard:S1", Seq: 1})
	assert.False(t, dup)
	assert.Equal(t, uint64(0), gap)
}
