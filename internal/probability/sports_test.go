package probability

import (
	"testing"

	"arbengine/internal/models"

	"github.com/stretchr/testify/assert"
)

func nbaState(homeScore, awayScore, period, clockRemaining int) *models.SportState {
	return &models.SportState{
		HomeScore:         homeScore,
		AwayScore:         awayScore,
		ClockRemainingSec: clockRemaining,
		Period:            period,
		League:            "NBA",
	}
}

func TestNBA7PointLeadQ4_8Min(t *testing.T) {
	s := nbaState(105, 98, 4, 480)
	home := SportWinProbability(s, true)
	assert.Greater(t, home, 0.85)
	assert.Less(t, home, 0.95)
}

func TestNBA15PointLeadQ4_8Min(t *testing.T) {
	s := nbaState(110, 95, 4, 480)
	home := SportWinProbability(s, true)
	assert.Greater(t, home, 0.95)
}

func TestNBA3PointLeadQ4_1Min(t *testing.T) {
	s := nbaState(95, 92, 4, 60)
	home := SportWinProbability(s, true)
	assert.Greater(t, home, 0.85)
	assert.Less(t, home, 0.96)
}

func TestNBATiedGameHomeFavored(t *testing.T) {
	s := nbaState(0, 0, 1, 720)
	home := SportWinProbability(s, true)
	away := SportWinProbability(s, false)
	assert.Greater(t, home, 0.50)
	assert.Less(t, home, 0.65)
	assert.InDelta(t, 1.0, home+away, 0.01)
}

func TestNBATrailingByFiveVeryLate(t *testing.T) {
	s := nbaState(90, 95, 4, 60)
	home := SportWinProbability(s, true)
	assert.Less(t, home, 0.15)
}

func TestNCAABHomeAdvantageLargerThanNBA(t *testing.T) {
	nba := nbaState(0, 0, 1, 720)
	ncaab := nbaState(0, 0, 1, 720)
	ncaab.League = "NCAAB"

	nbaHome := SportWinProbability(nba, true)
	ncaabHome := SportWinProbability(ncaab, true)
	assert.Greater(t, ncaabHome, nbaHome)
}

func TestPregameBlendDecaysOverTime(t *testing.T) {
	pregame := 0.70
	early := nbaState(20, 20, 1, 660)
	early.PregameHomeProb = &pregame
	late := nbaState(90, 90, 4, 120)
	late.PregameHomeProb = &pregame

	// Away team's pregame prob is 1-0.70=0.30; it should drift toward 0.5
	// as the game progresses with the score staying tied.
	earlyAway := SportWinProbability(early, false)
	lateAway := SportWinProbability(late, false)
	assert.Less(t, earlyAway, lateAway)
}

func TestHockeyDownTwoSecondPeriodLowProbability(t *testing.T) {
	s := &models.SportState{
		HomeScore:         0,
		AwayScore:         2,
		ClockRemainingSec: 1800, // halfway through a 3600s game
		Period:             2,
		League:            "NHL",
	}
	home := SportWinProbability(s, true)
	assert.Less(t, home, 0.30)
}
