package probability

import (
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

var stdNormal = distuv.Normal{Mu: 0, Sigma: 1}

// CryptoPriceTargetProbability scores a price-target market with a
// drift-neutral log-normal (Black-Scholes d2) model:
//
//	d2 = [ln(S/K) - sigma^2 T / 2] / (sigma sqrt(T))
//
// When the current price already sits at or above target it returns N(d2)
// discounted by a time-decay factor exp(-2T), since more remaining time
// means more opportunity for the price to fall back below target. Below
// target it returns N(-d2).
func CryptoPriceTargetProbability(currentPrice, targetPrice, daysRemaining, annualizedVol float64) float64 {
	if currentPrice <= 0 || targetPrice <= 0 || daysRemaining <= 0 {
		if currentPrice >= targetPrice {
			return 1.0
		}
		return 0.0
	}

	t := daysRemaining / 365.0
	sigma := annualizedVol

	lnRatio := math.Log(currentPrice / targetPrice)
	sigmaSqrtT := sigma * math.Sqrt(t)
	d2 := (lnRatio - (sigma*sigma*t)/2.0) / sigmaSqrtT

	if currentPrice >= targetPrice {
		baseProb := stdNormal.CDF(d2)
		timeDecay := math.Exp(-2.0 * t)
		return baseProb * timeDecay
	}
	return stdNormal.CDF(-d2)
}

// CryptoAdjustForATHATL discounts a probability when the target requires
// breaking a new all-time high (resistance) or falling below an all-time
// low (support), scaling the discount by how far past the extreme the
// target sits.
func CryptoAdjustForATHATL(baseProb, currentPrice, targetPrice, ath, atl float64) float64 {
	if targetPrice > ath && currentPrice < ath {
		athDistancePct := (targetPrice - ath) / ath
		resistanceFactor := 1.0 / (1.0 + athDistancePct*2.0)
		return baseProb * resistanceFactor
	}
	if targetPrice < atl && currentPrice > atl {
		atlDistancePct := (atl - targetPrice) / atl
		supportFactor := 1.0 / (1.0 + atlDistancePct*2.0)
		return baseProb * supportFactor
	}
	return baseProb
}

const defaultCryptoAnnualizedVol = 0.80

// CryptoWinProbability is the entry point the engine dispatches to for
// MarketTypeKindCrypto events: current/target/horizon/volatility come from
// NonSportState, ATH/ATL adjustment is applied when both bounds are known,
// and the result is clamped away from the 0/1 extremes the way every
// model in this family is.
func CryptoWinProbability(currentValue, targetValue, horizonDays, annualizedVol float64, ath, atl *float64) float64 {
	if annualizedVol <= 0 {
		annualizedVol = defaultCryptoAnnualizedVol
	}
	prob := CryptoPriceTargetProbability(currentValue, targetValue, horizonDays, annualizedVol)
	if ath != nil && atl != nil {
		prob = CryptoAdjustForATHATL(prob, currentValue, targetValue, *ath, *atl)
	}
	return clamp(prob, 0.01, 0.99)
}
