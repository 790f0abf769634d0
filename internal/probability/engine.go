// Package probability implements the four per-market-family probability
// models (§4.D): sports (live win probability from score/clock/possession),
// crypto (log-normal price-target), economics (normal threshold), and
// politics (market/poll blend with mean reversion). Engine dispatches on
// MarketTypeKind the way the original Rust core's ProbabilityModel registry
// dispatched on MarketType.
package probability

import (
	"fmt"
	"time"

	"arbengine/internal/metrics"
	"arbengine/internal/models"
)

// ErrUnsupportedMarketKind is returned when no model is registered for a
// market's kind.
type ErrUnsupportedMarketKind struct {
	Kind models.MarketTypeKind
}

func (e *ErrUnsupportedMarketKind) Error() string {
	return fmt.Sprintf("no probability model registered for market kind %q", e.Kind)
}

// Engine computes a model probability for "entity A" (the home team, the
// side betting the target is hit, the side an event occurs) given an
// event's market type and its current state.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

// Compute returns the model's estimate that entity A resolves YES.
// forEntityA=false returns the complementary probability for entity B.
func (e *Engine) Compute(market models.MarketType, state models.EventState, forEntityA bool) (float64, error) {
	start := time.Now()
	defer func() {
		metrics.ObserveLatencyMs(metrics.ProbabilityComputeLatency, []string{string(market.Kind)}, time.Since(start))
	}()

	switch market.Kind {
	case models.MarketSport:
		if state.Sport == nil {
			return 0, fmt.Errorf("sport market %s missing SportState", market.League)
		}
		return SportWinProbability(state.Sport, forEntityA), nil

	case models.MarketCrypto:
		if state.NonSport == nil {
			return 0, fmt.Errorf("crypto market %s missing NonSportState", market.Asset)
		}
		ns := state.NonSport
		prob := CryptoWinProbability(ns.CurrentValue, ns.TargetValue, ns.HorizonDays, ns.AnnualizedVol, ns.AllTimeHigh, ns.AllTimeLow)
		if !forEntityA {
			prob = 1.0 - prob
		}
		return clamp(prob, 0.01, 0.99), nil

	case models.MarketEconomics:
		if state.NonSport == nil {
			return 0, fmt.Errorf("economics market %s missing NonSportState", market.Indicator)
		}
		ns := state.NonSport
		prob := EconomicsWinProbability(ns.CurrentValue, ns.TargetValue, ns.HorizonMonths, ns.AnnualizedVol, ns.YoYChangePct, ns.YoYChangePct != 0)
		if !forEntityA {
			prob = 1.0 - prob
		}
		return clamp(prob, 0.001, 0.999), nil

	case models.MarketPolitics:
		if state.NonSport == nil {
			return 0, fmt.Errorf("politics market %s missing NonSportState", market.Region)
		}
		ns := state.NonSport
		prob := PoliticsWinProbability(ns.MarketImpliedProb, ns.PollAggregateProb, ns.PollCount, ns.DaysUntilEvent, market.EventType)
		if !forEntityA {
			prob = 1.0 - prob
		}
		return clamp(prob, 0.001, 0.999), nil

	default:
		return 0, &ErrUnsupportedMarketKind{Kind: market.Kind}
	}
}
