// Package arbitrage implements the opportunity detectors (§4.E): two pure
// arbitrage detectors over PriceSnapshots (cross-venue and same-market) and
// a model-edge detector that compares the probability engine's output
// against the market mid. None of these touch the network or the risk
// gate — they only ever produce candidate Opportunity values.
package arbitrage

import (
	"math"
	"sort"

	"arbengine/internal/models"
)

// SignalType mirrors models.SignalType locally for readability in this
// package's exported API.
type SignalType = models.SignalType

// Opportunity is a candidate trade surfaced by a detector, before the risk
// gate has had a chance to size or reject it.
type Opportunity struct {
	EventID     string
	SignalType  SignalType
	Venue       string
	MarketID    string
	Side        models.Side
	Direction   models.Direction
	EdgePct     float64
	Probability float64
	SuggestedSize float64

	// Populated only for cross-venue arbitrage: the second leg.
	SecondVenue    string
	SecondMarketID string
	SecondSide     models.Side
	SecondPrice    float64
}

// FeePct is the modeled per-leg trading fee used by both arbitrage
// detectors, applied as fee_pct * (p1 + p2) against the combined cost.
const FeePct = 0.01

// CrossVenueArb considers both yes/no pairings between two venues' price
// snapshots of the same event and returns an Opportunity for the pairing
// that locks in a profit, or nil if neither does. Per §4.E: pairing A is
// "buy YES on a, buy NO on b"; pairing B is the reverse.
func CrossVenueArb(eventID string, a, b models.PriceSnapshot) *Opportunity {
	pairingA := evaluatePairing(eventID, a, b, false)
	pairingB := evaluatePairing(eventID, b, a, true)

	switch {
	case pairingA == nil:
		return pairingB
	case pairingB == nil:
		return pairingA
	default:
		return tieBreak(pairingA, pairingB)
	}
}

// evaluatePairing computes "buy YES on yesVenue, buy NO on noVenue" and
// returns an Opportunity if the combined cost beats 1-fees. swapped
// indicates the yes/no legs are (b, a) rather than (a, b); it does not
// change the result, which always reports the YES leg as Venue/MarketID and
// the NO leg as SecondVenue/SecondMarketID/SecondSide.
func evaluatePairing(eventID string, yesLeg, noLeg models.PriceSnapshot, swapped bool) *Opportunity {
	yesCost := yesLeg.YesAsk
	noCost := noLeg.NoAsk()
	totalCost := yesCost + noCost
	fees := FeePct * (yesCost + noCost)

	if totalCost >= 1.0-fees {
		return nil
	}

	edgePct := (1.0 - totalCost) * 100.0

	op := &Opportunity{
		EventID:        eventID,
		SignalType:     models.SignalArbitrage,
		Venue:          yesLeg.Venue,
		MarketID:       yesLeg.MarketID,
		Side:           models.SideYes,
		Direction:      models.DirectionLong,
		EdgePct:        edgePct,
		SecondVenue:    noLeg.Venue,
		SecondMarketID: noLeg.MarketID,
		SecondSide:     models.SideNo,
		SecondPrice:    noCost,
	}
	_ = swapped
	return op
}

// SameMarketArb checks a single snapshot for a risk-free lock: buying YES
// and NO on the same market simultaneously costs less than 1-fees.
func SameMarketArb(eventID string, snap models.PriceSnapshot) *Opportunity {
	yesCost := snap.YesAsk
	noCost := snap.NoAsk()
	totalCost := yesCost + noCost
	fees := FeePct * (yesCost + noCost)

	if totalCost >= 1.0-fees {
		return nil
	}

	return &Opportunity{
		EventID:    eventID,
		SignalType: models.SignalArbitrage,
		Venue:      snap.Venue,
		MarketID:   snap.MarketID,
		Side:       models.SideYes,
		Direction:  models.DirectionLong,
		EdgePct:    (1.0 - totalCost) * 100.0,
	}
}

// ModelEdge compares a model probability against the market mid. If the
// absolute edge clears minEdgePct and the model is more confident than
// confidenceFloor away from a coin flip, it emits a directional
// opportunity Kelly-sized at a conservative 0.25x fraction.
func ModelEdge(eventID, venue, marketID string, modelProb, marketMid, minEdgePct, confidenceFloor, maxSize float64) *Opportunity {
	edgePct := math.Abs(modelProb-marketMid) * 100.0
	if edgePct < minEdgePct {
		return nil
	}
	if math.Abs(modelProb-0.5) < confidenceFloor {
		return nil
	}

	side := models.SideYes
	direction := models.DirectionLong
	price := marketMid
	winProb := modelProb
	if modelProb < marketMid {
		side = models.SideNo
		price = 1 - marketMid
		winProb = 1 - modelProb
	}

	size := kellySize(winProb, price, maxSize)

	return &Opportunity{
		EventID:       eventID,
		SignalType:    models.SignalModelEdge,
		Venue:         venue,
		MarketID:      marketID,
		Side:          side,
		Direction:     direction,
		EdgePct:       edgePct,
		Probability:   modelProb,
		SuggestedSize: size,
	}
}

const kellyFraction = 0.25

// kellySize computes the conservative-fraction Kelly stake for a bet that
// pays (1/price - 1) on a win with probability p:
//
//	f* = (p(b+1) - 1) / b,  b = (1 - price) / price
//
// clipped to [0, 1] and scaled by kellyFraction, then capped at maxSize.
func kellySize(p, price, maxSize float64) float64 {
	if price <= 0 || price >= 1 {
		return 0
	}
	b := (1 - price) / price
	if b <= 0 {
		return 0
	}
	f := (p*(b+1) - 1) / b
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	size := f * kellyFraction * maxSize
	if size > maxSize {
		size = maxSize
	}
	return size
}

// tieBreak implements the deterministic ordering from §4.E: higher
// edge_pct wins; ties broken by lower total size, then by lexicographic
// venue name. No randomness anywhere in the pipeline.
func tieBreak(a, b *Opportunity) *Opportunity {
	if a.EdgePct != b.EdgePct {
		if a.EdgePct > b.EdgePct {
			return a
		}
		return b
	}
	if a.SuggestedSize != b.SuggestedSize {
		if a.SuggestedSize < b.SuggestedSize {
			return a
		}
		return b
	}
	venues := []string{a.Venue, b.Venue}
	sort.Strings(venues)
	if venues[0] == a.Venue {
		return a
	}
	return b
}
