package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBreakerConfig() TradingCircuitBreakerConfig {
	return TradingCircuitBreakerConfig{
		MaxPositionPerMarket: 50000,
		MaxTotalPosition:     100000,
		MaxDailyLossCents:    50000,
		MaxConsecutiveErrors: 5,
		CooldownDuration:     300 * time.Second,
		Enabled:              true,
	}
}

func TestTradingCircuitBreakerAllowsWithinLimits(t *testing.T) {
	b := NewTradingCircuitBreaker(testBreakerConfig())
	assert.True(t, b.IsTradingAllowed())
	assert.Nil(t, b.CanExecute("mkt-1", 1000))
}

func TestTradingCircuitBreakerTripsOnPositionLimit(t *testing.T) {
	b := NewTradingCircuitBreaker(testBreakerConfig())
	reason := b.CanExecute("mkt-1", 60000)
	require.NotNil(t, reason)
	assert.Equal(t, TripMaxPositionPerMarket, reason.Kind)
}

func TestTradingCircuitBreakerTripsOnConsecutiveErrors(t *testing.T) {
	b := NewTradingCircuitBreaker(testBreakerConfig())
	for i := 0; i < 5; i++ {
		b.RecordError("mkt-1")
	}
	assert.False(t, b.IsTradingAllowed())
	assert.Equal(t, TripConsecutiveErrors, b.Status().TripReason.Kind)
}

func TestTradingCircuitBreakerSuccessResetsConsecutiveErrors(t *testing.T) {
	b := NewTradingCircuitBreaker(testBreakerConfig())
	b.RecordError("mkt-1")
	b.RecordError("mkt-1")
	b.RecordSuccess("mkt-1", 100, 500)
	assert.Equal(t, uint32(0), b.Status().ConsecutiveErrors)
}

func TestTradingCircuitBreakerTripsOnDailyLoss(t *testing.T) {
	b := NewTradingCircuitBreaker(testBreakerConfig())
	b.RecordSuccess("mkt-1", 100, -60000)
	assert.False(t, b.IsTradingAllowed())
	assert.Equal(t, TripMaxDailyLoss, b.Status().TripReason.Kind)
}

func TestTradingCircuitBreakerAutoResetsAfterCooldown(t *testing.T) {
	cfg := testBreakerConfig()
	cfg.CooldownDuration = 1 * time.Millisecond
	b := NewTradingCircuitBreaker(cfg)
	b.Halt("mkt-1")
	assert.False(t, b.IsTradingAllowed())

	time.Sleep(5 * time.Millisecond)
	assert.True(t, b.IsTradingAllowed())
}

func TestAPICircuitBreakerOpensAfterFailureThreshold(t *testing.T) {
	b := NewAPICircuitBreaker("kalshi", APICircuitBreakerConfig{
		FailureThreshold: 3, RecoveryTimeout: 50 * time.Millisecond, SuccessThreshold: 2,
	})

	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, APIOpen, b.State())
	assert.Error(t, b.Allow())
}

func TestAPICircuitBreakerHalfOpensAfterRecoveryTimeout(t *testing.T) {
	b := NewAPICircuitBreaker("kalshi", APICircuitBreakerConfig{
		FailureThreshold: 1, RecoveryTimeout: 5 * time.Millisecond, SuccessThreshold: 2,
	})
	b.RecordFailure()
	assert.Equal(t, APIOpen, b.State())

	time.Sleep(10 * time.Millisecond)
	assert.NoError(t, b.Allow())
	assert.Equal(t, APIHalfOpen, b.State())
}

func TestAPICircuitBreakerClosesAfterSuccessThreshold(t *testing.T) {
	b := NewAPICircuitBreaker("kalshi", APICircuitBreakerConfig{
		FailureThreshold: 1, RecoveryTimeout: 1 * time.Millisecond, SuccessThreshold: 2,
	})
	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordSuccess()
	assert.Equal(t, APIHalfOpen, b.State())
	b.RecordSuccess()
	assert.Equal(t, APIClosed, b.State())
}

func TestAPICircuitBreakerReopensOnHalfOpenFailure(t *testing.T) {
	b := NewAPICircuitBreaker("kalshi", APICircuitBreakerConfig{
		FailureThreshold: 1, RecoveryTimeout: 1 * time.Millisecond, SuccessThreshold: 2,
	})
	b.RecordFailure()
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, APIOpen, b.State())
}
