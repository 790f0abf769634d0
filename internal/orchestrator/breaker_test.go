package orchestrator

import (
	"testing"
	"time"

	"arbengine/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() config.AssignmentCircuitConfig {
	return config.AssignmentCircuitConfig{
		FailureThreshold: 2,
		SuccessThreshold: 2,
		HalfOpenTimeout:  20 * time.Millisecond,
	}
}

func TestAssignmentBreakerOpensAfterThreshold(t *testing.T) {
	b := NewAssignmentBreaker("shard-1", testBreakerConfig())

	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.False(t, b.IsOpen())
	b.RecordFailure()
	assert.True(t, b.IsOpen())
	assert.Error(t, b.Allow())
}

func TestAssignmentBreakerHalfOpenRecovery(t *testing.T) {
	b := NewAssignmentBreaker("shard-1", testBreakerConfig())
	b.RecordFailure()
	b.RecordFailure()
	require.True(t, b.IsOpen())

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, b.Allow()) // transitions Open -> HalfOpen
	assert.False(t, b.IsOpen())  // HalfOpen allows assignments same as Closed

	b.RecordSuccess()
	b.RecordSuccess()
	assert.False(t, b.IsOpen())
	assert.NoError(t, b.Allow())
}

func TestAssignmentBreakerReset(t *testing.T) {
	b := NewAssignmentBreaker("shard-1", testBreakerConfig())
	b.RecordFailure()
	b.RecordFailure()
	require.True(t, b.IsOpen())

	b.Reset()
	assert.False(t, b.IsOpen())
	assert.NoError(t, b.Allow())
}
