package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNameMatcherExact(t *testing.T) {
	m := NewNameMatcher(nil)
	res := m.Match("Boston Celtics", "Boston Celtics", "nba")
	assert.Equal(t, ConfidenceExact, res.Confidence)
}

func TestNameMatcherWholeWord(t *testing.T) {
	m := NewNameMatcher(nil)
	res := m.Match("Celtics", "Boston Celtics @ Lakers", "nba")
	assert.True(t, res.IsMatch())
}

func TestNameMatcherNoOverlap(t *testing.T) {
	m := NewNameMatcher(nil)
	res := m.Match("Boston Celtics", "Miami Heat", "nba")
	assert.False(t, res.IsMatch())
}

func TestNameMatcherContextFusionRejectsOnNameMismatch(t *testing.T) {
	m := NewNameMatcher(nil)
	res := m.MatchWithContext("Boston Celtics", "Miami Heat", "nba", nil, nil, true)
	require.False(t, res.SportValid)
	assert.Equal(t, float64(0), res.FinalConfidence)
}

func TestNameMatcherContextFusionBlendsScoreCorrelation(t *testing.T) {
	m := NewNameMatcher(nil)
	implied := 0.8
	res := m.MatchWithContext(
		"Boston Celtics", "Boston Celtics", "nba",
		&GameContext{HomeScore: 90, AwayScore: 70, ClockRemainingSec: 120},
		&MarketContext{ImpliedHomeProb: &implied},
		true,
	)
	require.NotNil(t, res.ScoreCorrelation)
	assert.True(t, res.SportValid)
	assert.Greater(t, res.FinalConfidence, 0.5)
}

func TestNameMatcherHandleRequestNameOnly(t *testing.T) {
	m := NewNameMatcher(nil)
	resp := m.handleRequest(TeamMatchRequest{
		RequestID:     "req-1",
		TargetTeam:    "Boston Celtics",
		CandidateTeam: "Boston Celtics",
		Sport:         "nba",
	})
	assert.True(t, resp.IsMatch)
	assert.Nil(t, resp.SportValid)
}

func TestNameMatcherHandleRequestWithContext(t *testing.T) {
	m := NewNameMatcher(nil)
	resp := m.handleRequest(TeamMatchRequest{
		RequestID:     "req-2",
		TargetTeam:    "Boston Celtics",
		CandidateTeam: "Boston Celtics",
		Sport:         "nba",
		GameContext:   &GameContext{HomeScore: 10, AwayScore: 5},
	})
	require.NotNil(t, resp.SportValid)
	assert.True(t, *resp.SportValid)
}
