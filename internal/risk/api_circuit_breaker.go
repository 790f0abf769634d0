package risk

import (
	"sync"
	"time"

	"arbengine/internal/errs"
	"arbengine/internal/metrics"
)

// APICircuitState is the classic three-state circuit breaker used per
// venue to stop hammering a degraded exchange API, distinct from
// TradingCircuitBreaker's position/loss limits.
type APICircuitState int

const (
	APIClosed APICircuitState = iota
	APIOpen
	APIHalfOpen
)

func (s APICircuitState) String() string {
	switch s {
	case APIClosed:
		return "closed"
	case APIOpen:
		return "open"
	case APIHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// APICircuitBreakerConfig configures one venue's API circuit breaker.
type APICircuitBreakerConfig struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SuccessThreshold int
}

// APICircuitBreaker guards calls to one venue's API. Closed lets calls
// through; FailureThreshold consecutive failures opens it; after
// RecoveryTimeout it moves to HalfOpen and lets a trial call through;
// SuccessThreshold consecutive successes in HalfOpen closes it again, any
// failure in HalfOpen reopens it.
type APICircuitBreaker struct {
	venue string
	cfg   APICircuitBreakerConfig

	mu          sync.Mutex
	state       APICircuitState
	failures    int
	successes   int
	openedAt    time.Time
}

// NewAPICircuitBreaker returns a closed breaker for venue.
func NewAPICircuitBreaker(venue string, cfg APICircuitBreakerConfig) *APICircuitBreaker {
	b := &APICircuitBreaker{venue: venue, cfg: cfg, state: APIClosed}
	metrics.APICircuitBreakerState.WithLabelValues(venue).Set(0)
	return b
}

// Allow reports whether a call may proceed, transitioning Open->HalfOpen
// once RecoveryTimeout has elapsed.
func (b *APICircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case APIClosed:
		return nil
	case APIOpen:
		if time.Since(b.openedAt) >= b.cfg.RecoveryTimeout {
			b.setState(APIHalfOpen)
			return nil
		}
		return &errs.CircuitOpen{Component: "api:" + b.venue}
	case APIHalfOpen:
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful call, closing the breaker from
// HalfOpen once SuccessThreshold consecutive successes are observed.
func (b *APICircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case APIHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(APIClosed)
		}
	case APIClosed:
		b.failures = 0
	}
}

// RecordFailure reports a failed call, opening the breaker after
// FailureThreshold consecutive failures in Closed, or immediately from
// HalfOpen.
func (b *APICircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case APIHalfOpen:
		b.setState(APIOpen)
	case APIClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.setState(APIOpen)
		}
	}
}

func (b *APICircuitBreaker) setState(s APICircuitState) {
	b.state = s
	b.failures = 0
	b.successes = 0
	if s == APIOpen {
		b.openedAt = time.Now()
	}

	var metricVal float64
	switch s {
	case APIOpen:
		metricVal = 1
	case APIHalfOpen:
		metricVal = 2
	}
	metrics.APICircuitBreakerState.WithLabelValues(b.venue).Set(metricVal)
}

// State returns the breaker's current state.
func (b *APICircuitBreaker) State() APICircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
