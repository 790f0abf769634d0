package probability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCryptoAtTargetWithDecay(t *testing.T) {
	prob := CryptoPriceTargetProbability(100000, 100000, 30, 0.80)
	assert.Greater(t, prob, 0.30)
	assert.Less(t, prob, 0.50)
}

func TestCryptoWellAboveTarget(t *testing.T) {
	prob := CryptoPriceTargetProbability(100000, 50000, 30, 0.80)
	assert.Greater(t, prob, 0.70)
	assert.Less(t, prob, 0.95)
}

func TestCryptoBelowTargetReasonableRange(t *testing.T) {
	short := CryptoPriceTargetProbability(80000, 100000, 30, 0.80)
	long := CryptoPriceTargetProbability(80000, 100000, 180, 0.80)
	assert.Greater(t, short, 0.3)
	assert.Less(t, short, 0.95)
	assert.Greater(t, long, 0.3)
	assert.Less(t, long, 0.95)
}

func TestCryptoATHResistance(t *testing.T) {
	base := 0.60
	adjusted := CryptoAdjustForATHATL(base, 95000, 110000, 100000, 30000)
	assert.Less(t, adjusted, base)

	unaffected := CryptoAdjustForATHATL(base, 70000, 90000, 100000, 30000)
	assert.InDelta(t, base, unaffected, 0.001)
}

func TestCryptoWinProbabilityBTCScenario(t *testing.T) {
	prob := CryptoWinProbability(95000, 100000, 60, 0.0, nil, nil)
	// With annualizedVol=0, defaults to 0.80 per CryptoWinProbability.
	assert.Greater(t, prob, 0.30)
	assert.Less(t, prob, 0.80)
}
