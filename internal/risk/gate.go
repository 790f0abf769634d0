// Package risk implements the synchronous pre-publish validation gate
// (§4.F): the position ledger, the per-market trading circuit breaker, the
// per-venue API circuit breaker, and the ordered Gate.Validate checks that
// sit between a detected Opportunity and a published ExecutionRequest.
package risk

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"arbengine/internal/errs"
	"arbengine/internal/logging"
	"arbengine/internal/metrics"

	"go.uber.org/zap"
)

// Exposure is the external source of truth for cross-shard exposure and
// duplicate-trade checks. The gate never mutates it; a separate component
// (the execution pipeline, once a trade actually fills) is responsible for
// recording new exposure and trade history there.
type Exposure interface {
	// CurrentExposure returns the dollar exposure already committed for
	// key (an asset or category identifier), across every shard.
	CurrentExposure(ctx context.Context, key string) (float64, error)

	// RecentDuplicate reports whether a trade on marketID was recorded
	// within window of now.
	RecentDuplicate(ctx context.Context, marketID string, window time.Duration) (bool, error)
}

// Request is the gate's input: a candidate trade awaiting validation.
type Request struct {
	Asset            string
	Venue            string
	MarketID         string
	MarketKind       string
	EdgePct          float64
	SuggestedSize    float64
	Liquidity        *float64
	VolatilityFactor float64
}

// Config bundles the thresholds Validate enforces.
type Config struct {
	MinEdgePct            float64
	MinLiquidity          float64
	MaxPositionSize       float64
	VolatilityScaling     bool
	VolatilityThreshold   float64
	VolatilityScaleFactor float64
	MaxAssetExposure      float64
	MaxTotalExposure      float64
	DuplicateWindow       time.Duration
}

// Gate is the risk gate. One Gate serves an entire shard process; it is
// safe for concurrent use across every event the shard evaluates.
type Gate struct {
	cfg      Config
	exposure Exposure
	log      *zap.Logger

	halted int32 // atomic kill-switch, 0=false 1=true

	volatilitySampler *logging.Sampler
}

// NewGate constructs a Gate. exposure may be nil only in tests that never
// exercise checks 6-8.
func NewGate(cfg Config, exposure Exposure, log *zap.Logger) *Gate {
	return &Gate{
		cfg:               cfg,
		exposure:          exposure,
		log:               log,
		volatilitySampler: logging.NewSampler(1000),
	}
}

// Halt flips the process-wide kill-switch; every subsequent Validate call
// fails with ReasonHalted until Resume is called.
func (g *Gate) Halt() { atomic.StoreInt32(&g.halted, 1) }

// Resume clears the kill-switch.
func (g *Gate) Resume() { atomic.StoreInt32(&g.halted, 0) }

// Halted reports the kill-switch's current state.
func (g *Gate) Halted() bool { return atomic.LoadInt32(&g.halted) == 1 }

// Validate runs the fixed eight-step check order from §4.F and returns the
// (possibly reduced) size to trade, or a *errs.RiskRejection naming the
// first check that failed. It never mutates exposure state; only the
// trades_validated/trades_blocked counters are touched.
func (g *Gate) Validate(ctx context.Context, req Request) (float64, error) {
	size := req.SuggestedSize

	// 1. Kill-switch.
	if g.Halted() {
		return g.block(req, errs.ReasonHalted, "")
	}

	// 2. Edge floor.
	if req.EdgePct < g.cfg.MinEdgePct {
		return g.block(req, errs.ReasonEdgeBelowMin, "")
	}

	// 3. Liquidity floor.
	if req.Liquidity != nil && *req.Liquidity < g.cfg.MinLiquidity {
		return g.block(req, errs.ReasonInsufficientLiquidity, "")
	}

	// 4. Size cap.
	if size > g.cfg.MaxPositionSize {
		size = g.cfg.MaxPositionSize
	}

	// 5. Volatility scaling.
	if g.cfg.VolatilityScaling && req.VolatilityFactor > g.cfg.VolatilityThreshold {
		size *= g.cfg.VolatilityScaleFactor
		if g.volatilitySampler.Allow() {
			g.log.Info("volatility scaling applied",
				zap.String("market_id", req.MarketID),
				zap.Float64("volatility_factor", req.VolatilityFactor),
				zap.Float64("scaled_size", size),
			)
		}
	}

	// 6. Per-asset exposure.
	if g.exposure != nil {
		current, err := g.exposure.CurrentExposure(ctx, req.Asset)
		if err != nil {
			return 0, errs.Provider("current_exposure lookup failed", err)
		}
		remainder := g.cfg.MaxAssetExposure - current
		if remainder < 10.0 {
			return g.block(req, errs.ReasonAssetExposureExceeded, "")
		}
		if size > remainder {
			size = remainder
		}

		// 7. Global category exposure.
		totalCurrent, err := g.exposure.CurrentExposure(ctx, req.MarketKind)
		if err != nil {
			return 0, errs.Provider("current_exposure lookup failed", err)
		}
		totalRemainder := g.cfg.MaxTotalExposure - totalCurrent
		if totalRemainder < 10.0 {
			return g.block(req, errs.ReasonTotalExposureExceeded, "")
		}
		if size > totalRemainder {
			size = totalRemainder
		}

		// 8. Duplicate suppression.
		dup, err := g.exposure.RecentDuplicate(ctx, req.MarketID, g.cfg.DuplicateWindow)
		if err != nil {
			return 0, errs.Provider("recent_duplicate lookup failed", err)
		}
		if dup {
			return g.block(req, errs.ReasonDuplicateTrade, "")
		}
	}

	metrics.TradesValidated.WithLabelValues(req.MarketKind).Inc()
	return size, nil
}

func (g *Gate) block(req Request, reason errs.RiskReason, detail string) (float64, error) {
	metrics.TradesBlocked.WithLabelValues(string(reason)).Inc()
	return 0, &errs.RiskRejection{Reason: reason, Detail: detail}
}

// VenueCircuitBreakers is a registry of one APICircuitBreaker per venue,
// created lazily on first use since the set of venues is only known at
// runtime from discovery.
type VenueCircuitBreakers struct {
	cfg APICircuitBreakerConfig

	mu       sync.Mutex
	breakers map[string]*APICircuitBreaker
}

// NewVenueCircuitBreakers returns an empty registry using cfg for every
// venue breaker it creates.
func NewVenueCircuitBreakers(cfg APICircuitBreakerConfig) *VenueCircuitBreakers {
	return &VenueCircuitBreakers{cfg: cfg, breakers: make(map[string]*APICircuitBreaker)}
}

// For returns the breaker for venue, creating one on first use.
func (v *VenueCircuitBreakers) For(venue string) *APICircuitBreaker {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.breakers[venue]
	if !ok {
		b = NewAPICircuitBreaker(venue, v.cfg)
		v.breakers[venue] = b
	}
	return b
}
