package probability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func f(v float64) *float64 { return &v }

func TestPoliticsMeanReversionGrowsWithTime(t *testing.T) {
	assert.Less(t, politicsMeanReversion(0), 0.01)

	r7 := politicsMeanReversion(7)
	assert.Greater(t, r7, 0.0)
	assert.Less(t, r7, 0.1)

	r30 := politicsMeanReversion(30)
	assert.Greater(t, r30, 0.05)
	assert.Less(t, r30, 0.15)

	r365 := politicsMeanReversion(365)
	assert.Greater(t, r365, 0.1)
	assert.Less(t, r365, 0.25)
}

func TestPoliticsEventProbabilityMarketOnly(t *testing.T) {
	prob := PoliticsEventProbability(f(0.7), nil, 0, 7)
	assert.Greater(t, prob, 0.65)
	assert.Less(t, prob, 0.75)
}

func TestPoliticsEventProbabilityWithPolls(t *testing.T) {
	prob := PoliticsEventProbability(f(0.55), f(0.65), 20, 30)
	assert.Greater(t, prob, 0.55)
	assert.Less(t, prob, 0.65)
}

func TestPoliticsEventProbabilityFarOutRegresses(t *testing.T) {
	prob := PoliticsEventProbability(f(0.85), nil, 0, 365)
	assert.Less(t, prob, 0.80)
}

func TestPoliticsEventTypeAdjustment(t *testing.T) {
	base := 0.7
	election := PoliticsAdjustForEventType(base, "election")
	assert.InDelta(t, base, election, 0.01)

	impeachment := PoliticsAdjustForEventType(base, "impeachment")
	assert.Less(t, impeachment, base)
	assert.Greater(t, impeachment, 0.6)
}

func TestPoliticsEdge(t *testing.T) {
	assert.InDelta(t, 16.67, PoliticsEdge(0.7, 0.6), 0.1)
	assert.InDelta(t, -16.67, PoliticsEdge(0.5, 0.6), 0.1)
	assert.InDelta(t, 0.0, PoliticsEdge(0.5, 0.5), 0.01)
}
