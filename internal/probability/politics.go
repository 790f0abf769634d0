package probability

import "math"

const politicsMeanReversionCap = 0.25

// PoliticsEventProbability blends a market-implied probability with polling
// data (weighted more heavily as poll count grows) and then regresses the
// result toward 50% the further out the event is — far-out political
// forecasts carry more irreducible uncertainty than the raw market/poll
// numbers alone suggest.
func PoliticsEventProbability(marketProb, pollProb *float64, pollCount int, daysUntilEvent float64) float64 {
	baseProb := 0.5
	if marketProb != nil {
		baseProb = *marketProb
	}

	blended := baseProb
	switch {
	case pollProb != nil && pollCount > 5:
		pollWeight := math.Min(float64(pollCount)/20.0, 0.4)
		blended = baseProb*(1.0-pollWeight) + *pollProb*pollWeight
	case pollProb != nil:
		blended = baseProb*0.9 + *pollProb*0.1
	}

	reversion := politicsMeanReversion(daysUntilEvent)
	final := blended*(1.0-reversion) + 0.5*reversion

	return clamp(final, 0.01, 0.99)
}

// politicsMeanReversion grows logarithmically with days until the event,
// capped at 25%: 7 days out is ~6% reversion, 365 days out is ~18%.
func politicsMeanReversion(daysUntilEvent float64) float64 {
	if daysUntilEvent <= 0 {
		return 0.0
	}
	logDays := math.Log(math.Max(daysUntilEvent, 1.0))
	return math.Min(logDays*0.03, politicsMeanReversionCap)
}

// PoliticsAdjustForEventType widens or tightens the probability's pull
// toward 50% based on how volatile the event category historically is.
// EventType values follow spec §3's MarketType.event_type naming.
func PoliticsAdjustForEventType(prob float64, eventType string) float64 {
	switch eventType {
	case "election":
		return prob
	case "confirmation":
		return prob*0.95 + 0.025
	case "policy_vote":
		return prob*0.9 + 0.05
	case "impeachment":
		return prob*0.85 + 0.075
	default:
		return prob*0.9 + 0.05
	}
}

// PoliticsEdge returns the percentage edge of a model probability over a
// market-implied probability, used by the arbitrage detector's model-edge
// signal for politics markets.
func PoliticsEdge(modelProb, marketProb float64) float64 {
	if marketProb <= 0 || marketProb >= 1 {
		return 0
	}
	return (modelProb - marketProb) / marketProb * 100.0
}

// PoliticsWinProbability is the engine entry point for
// MarketTypeKindPolitics events.
func PoliticsWinProbability(marketImpliedProb, pollAggregateProb *float64, pollCount int, daysUntilEvent float64, eventType string) float64 {
	prob := PoliticsEventProbability(marketImpliedProb, pollAggregateProb, pollCount, daysUntilEvent)
	adjusted := PoliticsAdjustForEventType(prob, eventType)
	return clamp(adjusted, 0.001, 0.999)
}
