package probability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEconomicsAtThreshold(t *testing.T) {
	prob := EconomicsThresholdProbability(3.0, 3.0, 6.0, 0.15, nil)
	assert.Greater(t, prob, 0.45)
	assert.Less(t, prob, 0.55)
}

func TestEconomicsAboveThreshold(t *testing.T) {
	prob := EconomicsThresholdProbability(4.0, 3.0, 6.0, 0.15, nil)
	assert.Greater(t, prob, 0.70)
}

func TestEconomicsBelowThreshold(t *testing.T) {
	prob := EconomicsThresholdProbability(2.5, 3.5, 6.0, 0.15, nil)
	assert.Less(t, prob, 0.50)
}

func TestEconomicsTrendIncreasesProbability(t *testing.T) {
	noTrend := EconomicsThresholdProbability(2.8, 3.0, 6.0, 0.15, nil)
	trend := 10.0
	withTrend := EconomicsThresholdProbability(2.8, 3.0, 6.0, 0.15, &trend)
	assert.Greater(t, withTrend, noTrend)
}
