package reconnect

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelayBoundaries(t *testing.T) {
	cfg := Config{
		BaseDelay: time.Second,
		MaxDelay:  60 * time.Second,
		JitterPct: 0,
	}

	cases := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 32 * time.Second},
		{7, 60 * time.Second},
		{10, 60 * time.Second},
	}

	for _, c := range cases {
		got := backoffDelay(cfg, c.attempt)
		assert.Equalf(t, c.expected, got, "attempt %d", c.attempt)
	}
}

func TestBackoffDelayJitterStaysWithinBounds(t *testing.T) {
	cfg := Config{
		BaseDelay: time.Second,
		MaxDelay:  60 * time.Second,
		JitterPct: 0.1,
	}

	for i := 0; i < 100; i++ {
		d := backoffDelay(cfg, 3)
		assert.GreaterOrEqual(t, d, time.Duration(float64(4*time.Second)*0.9))
		assert.LessOrEqual(t, d, time.Duration(float64(4*time.Second)*1.1))
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "subscribed", StateSubscribed.String())
	assert.Equal(t, "circuit_open", StateCircuitOpen.String())
}

func TestDefaultConfigMatchesSpec(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, time.Second, cfg.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.MaxDelay)
	assert.Equal(t, 10, cfg.MaxConsecutiveFailures)
	assert.Equal(t, 60*time.Second, cfg.CircuitCooldown)
}
