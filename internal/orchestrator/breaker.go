package orchestrator

import (
	"sync"
	"time"

	"arbengine/internal/config"
	"arbengine/internal/errs"
	"arbengine/internal/metrics"
)

// assignmentCircuitState mirrors risk.APICircuitState's three-state shape,
// applied here to assignment failures (a shard reporting an event missing
// on heartbeat) rather than venue API call failures.
type assignmentCircuitState int

const (
	assignmentClosed assignmentCircuitState = iota
	assignmentOpen
	assignmentHalfOpen
)

// AssignmentBreaker trips after consecutive assignment failures observed
// via the heartbeat missing-event check (§4.I), excluding the shard from
// future assignments while open.
type AssignmentBreaker struct {
	shardID string
	cfg     config.AssignmentCircuitConfig

	mu        sync.Mutex
	state     assignmentCircuitState
	failures  int
	successes int
	openedAt  time.Time
}

func NewAssignmentBreaker(shardID string, cfg config.AssignmentCircuitConfig) *AssignmentBreaker {
	b := &AssignmentBreaker{shardID: shardID, cfg: cfg, state: assignmentClosed}
	metrics.AssignmentCircuitOpen.WithLabelValues(shardID).Set(0)
	return b
}

// Allow reports whether shardID may receive a new assignment right now,
// transitioning Open->HalfOpen once HalfOpenTimeout has elapsed. In HalfOpen
// every call is allowed until RecordSuccess or RecordFailure changes the
// state; the number of probe assignments is not limited to one.
func (b *AssignmentBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case assignmentClosed:
		return nil
	case assignmentOpen:
		if time.Since(b.openedAt) >= b.cfg.HalfOpenTimeout {
			b.setState(assignmentHalfOpen)
			return nil
		}
		return &errs.CircuitOpen{Component: "assignment:" + b.shardID}
	case assignmentHalfOpen:
		return nil
	default:
		return nil
	}
}

// RecordFailure reports one missing-event failure for this shard.
func (b *AssignmentBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case assignmentHalfOpen:
		b.setState(assignmentOpen)
	case assignmentClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.setState(assignmentOpen)
		}
	}
}

// RecordSuccess reports a clean heartbeat (no missing events this round).
func (b *AssignmentBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case assignmentHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.setState(assignmentClosed)
		}
	case assignmentClosed:
		b.failures = 0
	}
}

// Reset returns the breaker to Closed, used on restart detection (§4.I
// step 2): a freshly restarted shard process deserves a clean slate.
func (b *AssignmentBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.setState(assignmentClosed)
}

// IsOpen reports whether the breaker currently excludes the shard from new
// assignments (Closed and HalfOpen both allow assignments through).
func (b *AssignmentBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == assignmentOpen
}

func (b *AssignmentBreaker) setState(s assignmentCircuitState) {
	b.state = s
	b.failures = 0
	b.successes = 0
	if s == assignmentOpen {
		b.openedAt = time.Now()
	}

	var metricVal float64
	if s == assignmentOpen {
		metricVal = 1
	}
	metrics.AssignmentCircuitOpen.WithLabelValues(b.shardID).Set(metricVal)
}
