package risk

import (
	"sync"
	"time"

	"arbengine/internal/metrics"
)

// TripReason is why the per-market trading circuit breaker tripped.
type TripReason struct {
	Kind string

	// MaxPositionPerMarket
	MarketID string
	Current  int64
	Limit    int64

	// ConsecutiveErrors
	Count uint32

	// MaxDailyLoss
	CurrentCents int64
	LimitCents   int64
}

const (
	TripManualHalt           = "manual_halt"
	TripMaxPositionPerMarket = "max_position_per_market"
	TripMaxTotalPosition     = "max_total_position"
	TripMaxDailyLoss         = "max_daily_loss"
	TripConsecutiveErrors    = "consecutive_errors"
)

// marketPosition is the per-market contract count this breaker tracks.
// Side-by-venue detail belongs to Ledger; the breaker only needs totals.
type marketPosition struct {
	Contracts int64
}

func (p marketPosition) total() int64 {
	if p.Contracts < 0 {
		return -p.Contracts
	}
	return p.Contracts
}

// TradingCircuitBreakerConfig holds the risk configuration knobs (§4.F):
// position caps, daily loss cap, consecutive-error cap, and the cooldown
// after a trip before the breaker auto-resets.
type TradingCircuitBreakerConfig struct {
	MaxPositionPerMarket int64
	MaxTotalPosition     int64
	MaxDailyLossCents    int64
	MaxConsecutiveErrors uint32
	CooldownDuration     time.Duration
	Enabled              bool
}

// TradingCircuitBreaker is the per-market risk circuit breaker: Closed
// (trading allowed) or Tripped (halted until cooldown elapses and the next
// is_trading_allowed query auto-resets it).
type TradingCircuitBreaker struct {
	cfg TradingCircuitBreakerConfig

	mu                sync.Mutex
	halted            bool
	consecutiveErrors uint32
	dailyPnLCents     int64
	positions         map[string]*marketPosition
	trippedAt         time.Time
	tripReason        *TripReason
}

// NewTradingCircuitBreaker returns a closed breaker with cfg.
func NewTradingCircuitBreaker(cfg TradingCircuitBreakerConfig) *TradingCircuitBreaker {
	return &TradingCircuitBreaker{
		cfg:       cfg,
		positions: make(map[string]*marketPosition),
	}
}

// IsTradingAllowed reports whether the breaker currently permits trading,
// auto-resetting if a prior trip's cooldown has elapsed.
func (b *TradingCircuitBreaker) IsTradingAllowed() bool {
	if !b.cfg.Enabled {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.isTradingAllowedLocked()
}

func (b *TradingCircuitBreaker) isTradingAllowedLocked() bool {
	if !b.halted {
		return true
	}
	if !b.trippedAt.IsZero() && time.Since(b.trippedAt) >= b.cfg.CooldownDuration {
		b.resetLocked()
		return true
	}
	return false
}

// CanExecute checks position limits for a candidate trade of the given
// signed contract count on marketID, returning the trip reason that would
// block it (including an existing halt) or nil if the trade is allowed.
func (b *TradingCircuitBreaker) CanExecute(marketID string, contracts int64) *TripReason {
	if !b.cfg.Enabled {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.isTradingAllowedLocked() {
		if b.tripReason != nil {
			return b.tripReason
		}
		return &TripReason{Kind: TripManualHalt}
	}

	abs := contracts
	if abs < 0 {
		abs = -abs
	}

	current := int64(0)
	if p, ok := b.positions[marketID]; ok {
		current = p.total()
	}
	if current+abs > b.cfg.MaxPositionPerMarket {
		return &TripReason{
			Kind: TripMaxPositionPerMarket, MarketID: marketID,
			Current: current, Limit: b.cfg.MaxPositionPerMarket,
		}
	}

	var totalPosition int64
	for _, p := range b.positions {
		totalPosition += p.total()
	}
	if totalPosition+abs > b.cfg.MaxTotalPosition {
		return &TripReason{Kind: TripMaxTotalPosition, Current: totalPosition, Limit: b.cfg.MaxTotalPosition}
	}

	return nil
}

// RecordSuccess resets the consecutive-error count, applies the position
// delta, and records P&L, tripping on a breached daily-loss cap.
func (b *TradingCircuitBreaker) RecordSuccess(marketID string, contractsDelta int64, pnlCents int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveErrors = 0

	p, ok := b.positions[marketID]
	if !ok {
		p = &marketPosition{}
		b.positions[marketID] = p
	}
	p.Contracts += contractsDelta

	b.dailyPnLCents += pnlCents
	if b.dailyPnLCents < -b.cfg.MaxDailyLossCents {
		b.tripLocked(TripReason{Kind: TripMaxDailyLoss, CurrentCents: b.dailyPnLCents, LimitCents: b.cfg.MaxDailyLossCents}, marketID)
	}
}

// RecordError increments the consecutive-error count, tripping once it
// reaches MaxConsecutiveErrors.
func (b *TradingCircuitBreaker) RecordError(marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutiveErrors++
	if b.consecutiveErrors >= b.cfg.MaxConsecutiveErrors {
		b.tripLocked(TripReason{Kind: TripConsecutiveErrors, Count: b.consecutiveErrors, Limit: int64(b.cfg.MaxConsecutiveErrors)}, marketID)
	}
}

// Halt manually trips the breaker.
func (b *TradingCircuitBreaker) Halt(marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tripLocked(TripReason{Kind: TripManualHalt}, marketID)
}

func (b *TradingCircuitBreaker) tripLocked(reason TripReason, marketID string) {
	b.halted = true
	b.trippedAt = time.Now()
	r := reason
	b.tripReason = &r
	metrics.CircuitBreakerState.WithLabelValues(marketID).Set(1)
}

// Reset clears the halt status and consecutive-error count, leaving
// position and daily P&L untouched.
func (b *TradingCircuitBreaker) Reset(marketID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
	metrics.CircuitBreakerState.WithLabelValues(marketID).Set(0)
}

func (b *TradingCircuitBreaker) resetLocked() {
	b.halted = false
	b.consecutiveErrors = 0
	b.trippedAt = time.Time{}
	b.tripReason = nil
}

// ResetDailyPnL clears the accumulated daily P&L, called once per trading
// day by the caller's own scheduling.
func (b *TradingCircuitBreaker) ResetDailyPnL() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dailyPnLCents = 0
}

// Status is a point-in-time snapshot for operator tooling.
type Status struct {
	Enabled             bool
	Halted              bool
	ConsecutiveErrors   uint32
	DailyPnLCents       int64
	TotalPosition       int64
	MarketCount         int
	TripReason          *TripReason
	CooldownRemainingSec int64
}

// Status returns the breaker's current state.
func (b *TradingCircuitBreaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	var total int64
	for _, p := range b.positions {
		total += p.total()
	}

	var cooldownRemaining int64
	if !b.trippedAt.IsZero() {
		elapsed := time.Since(b.trippedAt)
		if elapsed < b.cfg.CooldownDuration {
			cooldownRemaining = int64((b.cfg.CooldownDuration - elapsed).Seconds())
		}
	}

	return Status{
		Enabled:              b.cfg.Enabled,
		Halted:               b.halted,
		ConsecutiveErrors:    b.consecutiveErrors,
		DailyPnLCents:        b.dailyPnLCents,
		TotalPosition:        total,
		MarketCount:          len(b.positions),
		TripReason:           b.tripReason,
		CooldownRemainingSec: cooldownRemaining,
	}
}
