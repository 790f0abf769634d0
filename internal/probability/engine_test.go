package probability

import (
	"testing"

	"arbengine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineDispatchesSportMarket(t *testing.T) {
	e := NewEngine()
	market := models.MarketType{Kind: models.MarketSport, League: "NBA"}
	state := models.EventState{
		Sport: &models.SportState{HomeScore: 10, AwayScore: 0, ClockRemainingSec: 2000, Period: 2, League: "NBA"},
	}

	prob, err := e.Compute(market, state, true)
	require.NoError(t, err)
	assert.Greater(t, prob, 0.5)
}

func TestEngineDispatchesCryptoMarket(t *testing.T) {
	e := NewEngine()
	market := models.MarketType{Kind: models.MarketCrypto, Asset: "BTC"}
	state := models.EventState{
		NonSport: &models.NonSportState{CurrentValue: 95000, TargetValue: 100000, HorizonDays: 60, AnnualizedVol: 0.5},
	}

	prob, err := e.Compute(market, state, true)
	require.NoError(t, err)
	assert.Greater(t, prob, 0.0)
	assert.Less(t, prob, 1.0)

	probComplement, err := e.Compute(market, state, false)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, prob+probComplement, 1e-9)
}

func TestEngineUnsupportedMarketKindErrors(t *testing.T) {
	e := NewEngine()
	_, err := e.Compute(models.MarketType{Kind: "unknown"}, models.EventState{}, true)
	assert.Error(t, err)
}

func TestEngineMissingStateErrors(t *testing.T) {
	e := NewEngine()
	_, err := e.Compute(models.MarketType{Kind: models.MarketSport}, models.EventState{}, true)
	assert.Error(t, err)
}
