package discovery

import "strings"

// leagueKeywords are title fragments that strongly indicate one specific
// league; seeing another league's keywords in a market expected to be for
// this league is treated as a hard rejection.
var leagueKeywords = map[string][]string{
	"nba":    {"nba", "lakers", "celtics", "warriors", "76ers", "knicks", "nets", "clippers"},
	"ncaab":  {"ncaa", "college", "march madness", "final four", "wildcats", "bluejays", "zags", "huskies"},
	"nfl":    {"nfl", "chiefs", "eagles", "cowboys", "49ers", "steelers", "patriots", "super bowl"},
	"ncaaf":  {"college football", "cfb", "bowl game", "playoff"},
	"nhl":    {"nhl", "stanley cup", "bruins", "rangers", "penguins", "avalanche"},
	"mlb":    {"mlb", "yankees", "dodgers", "red sox", "world series"},
	"soccer": {"premier league", "epl", "uefa", "champions league", "la liga", "bundesliga"},
	"mma":    {"ufc", "mma", "bellator", "pfl"},
}

// crossLeagueCheck lists, per expected league, the OTHER leagues whose
// keywords disqualify a market (contamination is intentionally
// non-symmetric: NHL/MLB/soccer/MMA guard against the big American team
// sports, and MLB and MMA also against NHL, but nothing guards against
// soccer or MMA keywords, matching the reference provider).
var crossLeagueCheck = map[string][]string{
	"nba":    {"ncaab"},
	"ncaab":  {"nba"},
	"nfl":    {"ncaaf"},
	"ncaaf":  {"nfl"},
	"nhl":    {"nba", "nfl"},
	"mlb":    {"nba", "nfl", "nhl"},
	"soccer": {"nba", "nfl", "mlb"},
	"mls":    {"nba", "nfl", "mlb"},
	"mma":    {"nba", "nfl", "nhl"},
}

// nonMoneylineMarkers flag totals/spreads/prop markets, which this matcher
// never considers (only moneyline markets are tradeable by the arbitrage
// detectors, which assume a simple YES/NO binary win market).
var nonMoneylineMarkers = []string{
	"spread", "handicap", "over/under", "over under", "total points", "o/u",
	"prop", "player points", "player assists", "player rebounds", "first to score",
}

// SportsMatcher matches a venue market title against a (home, away) team
// pair for a given league, rejecting cross-league contamination and
// non-moneyline markets.
type SportsMatcher struct{}

func NewSportsMatcher() *SportsMatcher { return &SportsMatcher{} }

func (m *SportsMatcher) Name() string { return "sports" }

// IsNonMoneylineMarket reports whether title names a totals/spread/prop
// market rather than a moneyline (straight win) market.
func (m *SportsMatcher) IsNonMoneylineMarket(title string) bool {
	lower := strings.ToLower(title)
	for _, marker := range nonMoneylineMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// ValidateLeague rejects title when it contains keywords for a league other
// than expectedLeague (case-insensitive).
func (m *SportsMatcher) ValidateLeague(title, expectedLeague string) MatchResult {
	lower := strings.ToLower(title)
	expected := strings.ToLower(expectedLeague)

	for _, otherLeague := range crossLeagueCheck[expected] {
		for _, kw := range leagueKeywords[otherLeague] {
			if strings.Contains(lower, kw) {
				return noMatch("market contains " + otherLeague + " keyword: " + kw)
			}
		}
	}
	return MatchResult{Confidence: ConfidenceExact, Score: 1.0, Reason: "league validation passed"}
}

// MatchGame requires both homeTeam and awayTeam to be found in title (by
// full name or abbreviation), and that title passes league validation and
// is a moneyline market. The combined score is the average of the two team
// match scores.
func (m *SportsMatcher) MatchGame(homeTeam, awayTeam, homeAbbr, awayAbbr, league, title string) MatchResult {
	if m.IsNonMoneylineMarket(title) {
		return noMatch("market title indicates a non-moneyline market (spread/total/prop)")
	}

	if lv := m.ValidateLeague(title, league); !lv.IsMatch() {
		return lv
	}

	home := m.matchTeam(homeTeam, homeAbbr, title)
	away := m.matchTeam(awayTeam, awayAbbr, title)

	if !home.IsMatch() || !away.IsMatch() {
		return noMatch("both home and away teams must match; home=" + string(home.Confidence) + " away=" + string(away.Confidence))
	}

	combined := (home.Score + away.Score) / 2
	confidence := confidenceForScore(combined)
	return MatchResult{Confidence: confidence, Score: combined, Reason: "both teams matched: " + home.Reason + "; " + away.Reason}
}

// matchTeam matches a single team's full name or abbreviation against title.
func (m *SportsMatcher) matchTeam(teamName, abbr, title string) MatchResult {
	lower := strings.ToLower(title)

	if abbr != "" && containsWord(lower, strings.ToLower(abbr)) {
		return MatchResult{Confidence: ConfidenceHigh, Score: 0.9, Reason: "abbreviation word match: " + abbr}
	}

	nameLower := strings.ToLower(teamName)
	if strings.Contains(lower, nameLower) {
		return MatchResult{Confidence: ConfidenceExact, Score: 1.0, Reason: "full team name match: " + teamName}
	}

	// Last word of the team name (e.g. "Celtics" out of "Boston Celtics")
	// is usually the nickname that actually appears in a market title.
	words := strings.Fields(nameLower)
	if len(words) > 0 {
		nickname := words[len(words)-1]
		if containsWord(lower, nickname) {
			return MatchResult{Confidence: ConfidenceMedium, Score: 0.75, Reason: "team nickname match: " + nickname}
		}
	}

	return noMatch("no name or abbreviation match for " + teamName)
}

func confidenceForScore(score float64) MatchConfidence {
	switch {
	case score >= 0.95:
		return ConfidenceExact
	case score >= 0.85:
		return ConfidenceHigh
	case score >= 0.6:
		return ConfidenceMedium
	case score > 0:
		return ConfidenceLow
	default:
		return ConfidenceNone
	}
}
