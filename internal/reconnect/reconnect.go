// Package reconnect implements the reconnecting-subscription primitive
// (§4.A): a state machine wrapping a lossy subscribe operation so every
// consumer of the bus sees a single infinite stream of messages with
// transparent reconnect, exponential backoff, and a circuit breaker for
// persistent outages, generalized from one fixed WebSocket dialer to any
// Dialer implementation (redis pub/sub, redis streams, a raw websocket).
package reconnect

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"arbengine/internal/metrics"

	"go.uber.org/zap"
)

// State is the reconnecting-subscription state machine's current state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
	StateCircuitOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	case StateCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Message is a single delivered item from the wrapped subscription.
type Message struct {
	Channel string
	Payload []byte
}

// Dialer is the lossy subscribe-to-channels/pattern operation the manager
// wraps. Implementations connect, optionally resubscribe to the channel set
// passed to Connect, and stream messages until the context is cancelled or
// the connection drops.
type Dialer interface {
	// Connect blocks, delivering messages to onMessage until the
	// connection drops or ctx is cancelled, at which point it returns
	// the error that ended the session (nil on clean ctx cancellation).
	Connect(ctx context.Context, channels []string, onMessage func(Message)) error
}

// Config tunes the backoff schedule and circuit breaker, defaulting to the
// values in §4.A and the boundary test in §8 (1,2,4,8,16,32,60s...).
type Config struct {
	BaseDelay              time.Duration
	MaxDelay               time.Duration
	JitterPct              float64
	MaxConsecutiveFailures int
	CircuitCooldown        time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseDelay:              1 * time.Second,
		MaxDelay:               60 * time.Second,
		JitterPct:              0.1,
		MaxConsecutiveFailures: 10,
		CircuitCooldown:        60 * time.Second,
	}
}

// Manager drives the reconnect state machine for one Dialer.
type Manager struct {
	name   string
	dialer Dialer
	cfg    Config
	log    *zap.Logger

	state              atomic.Int32
	consecutiveFailures atomic.Int64
	attempts            atomic.Int64
	successes           atomic.Int64
	failures            atomic.Int64
	lastReconnectAt     atomic.Int64 // unix nanos

	mu            sync.Mutex
	subscriptions []string

	messages chan Message
}

// New constructs a Manager. name identifies the wrapped subscription in
// metrics and logs (e.g. "prices.kalshi", "shard:S1:heartbeat").
func New(name string, dialer Dialer, cfg Config, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{
		name:     name,
		dialer:   dialer,
		cfg:      cfg,
		log:      log,
		messages: make(chan Message, 1024),
	}
}

// Subscribe registers channel names to (re)apply on every successful
// (re)connect.
func (m *Manager) Subscribe(channels ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions = append(m.subscriptions, channels...)
}

// Messages returns the channel consumers read delivered messages from. It
// never closes for the lifetime of the Manager; callers select on ctx.Done()
// alongside it.
func (m *Manager) Messages() <-chan Message { return m.messages }

// State returns the current state machine state.
func (m *Manager) State() State { return State(m.state.Load()) }

// Run drives the reconnect loop until ctx is cancelled. It never returns an
// error to the caller: failures only ever produce gaps in the message
// stream, observed downstream via BusEnvelope.seq checks.
func (m *Manager) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if int(m.consecutiveFailures.Load()) >= m.cfg.MaxConsecutiveFailures {
			m.setState(StateCircuitOpen)
			metrics.ReconnectCircuitOpen.WithLabelValues(m.name).Set(1)
			m.log.Warn("reconnect circuit open, cooling down", zap.String("component", m.name), zap.Duration("cooldown", m.cfg.CircuitCooldown))
			if !sleepCtx(ctx, m.cfg.CircuitCooldown) {
				return
			}
			m.consecutiveFailures.Store(0)
			metrics.ReconnectCircuitOpen.WithLabelValues(m.name).Set(0)
		}

		m.setState(StateConnecting)
		metrics.ReconnectAttempts.WithLabelValues(m.name).Inc()
		m.attempts.Add(1)

		m.mu.Lock()
		channels := append([]string(nil), m.subscriptions...)
		m.mu.Unlock()

		err := m.dialer.Connect(ctx, channels, func(msg Message) {
			if m.state.Load() != int32(StateSubscribed) {
				m.setState(StateSubscribed)
				m.consecutiveFailures.Store(0)
				m.successes.Add(1)
				m.lastReconnectAt.Store(time.Now().UnixNano())
			}
			select {
			case m.messages <- msg:
			default:
				// Bounded delivery channel full; drop oldest-equivalent by
				// dropping this message. The cache/consumer still holds the
				// freshest prior state; the gap surfaces via seq checks.
			}
		})

		if ctx.Err() != nil {
			return
		}

		if err != nil {
			n := m.consecutiveFailures.Add(1)
			m.failures.Add(1)
			metrics.ReconnectFailures.WithLabelValues(m.name).Inc()
			m.setState(StateDisconnected)

			delay := backoffDelay(m.cfg, int(n))
			m.log.Warn("reconnect attempt failed", zap.String("component", m.name), zap.Error(err), zap.Duration("retry_in", delay), zap.Int64("consecutive_failures", n))
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		// Clean disconnect (e.g. server closed gracefully): treat as a
		// failure-free drop and reconnect immediately at the base delay.
		m.setState(StateDisconnected)
		if !sleepCtx(ctx, m.cfg.BaseDelay) {
			return
		}
	}
}

func (m *Manager) setState(s State) { m.state.Store(int32(s)) }

// backoffDelay implements delay = min(max_delay, base*2^(attempt-1)) with
// +/- jitter_pct multiplicative jitter, per §4.A and the §8 boundary test
// (attempts 1..7 -> 1,2,4,8,16,32,60s with jitter=0; attempt 10 still 60s).
func backoffDelay(cfg Config, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := 1 << uint(attempt-1) // 2^(attempt-1), saturates naturally for small attempt counts used here
	delay := time.Duration(mult) * cfg.BaseDelay
	if delay > cfg.MaxDelay || delay <= 0 {
		delay = cfg.MaxDelay
	}

	if cfg.JitterPct > 0 {
		jitter := (rand.Float64()*2 - 1) * cfg.JitterPct
		delay = time.Duration(float64(delay) * (1 + jitter))
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// Stats is a point-in-time snapshot of the manager's counters, exposed for
// the shard heartbeat's component_checks/metrics map.
type Stats struct {
	Attempts            int64
	Successes           int64
	Failures            int64
	ConsecutiveFailures int64
	LastReconnectAt     time.Time
	State               State
}

func (m *Manager) Stats() Stats {
	var last time.Time
	if ns := m.lastReconnectAt.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return Stats{
		Attempts:            m.attempts.Load(),
		Successes:           m.successes.Load(),
		Failures:            m.failures.Load(),
		ConsecutiveFailures: m.consecutiveFailures.Load(),
		LastReconnectAt:     last,
		State:               m.State(),
	}
}
