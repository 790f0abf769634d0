package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"arbengine/internal/models"
	"arbengine/internal/transport"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var nameMatcherJSON = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	teamMatchRequestTopic   = "team:match:request"
	teamMatchResponsePrefix = "team:match:response:"
)

// GameContext carries the live score/clock the requester has for the game
// being matched, used to cross-check a name match against what is actually
// happening on the scoreboard.
type GameContext struct {
	HomeScore         int       `json:"home_score"`
	AwayScore         int       `json:"away_score"`
	ClockRemainingSec int       `json:"clock_remaining_sec"`
	StartTime         time.Time `json:"start_time"`
}

// MarketContext carries whatever the venue's own market implies about the
// game, used for the score-correlation signal.
type MarketContext struct {
	ImpliedHomeProb *float64 `json:"implied_home_prob,omitempty"`
	Volume          *float64 `json:"volume,omitempty"`
}

// ContextMatchResult is the fused output of a context-enhanced team match.
type ContextMatchResult struct {
	NameMatch         MatchResult
	SportValid        bool
	OpponentScore     float64
	ScoreCorrelation  *float64
	FinalConfidence   float64
	RejectionReason   string
}

// TeamMatchRequest is the RPC request payload published on
// team:match:request.
type TeamMatchRequest struct {
	RequestID     string         `json:"request_id"`
	TargetTeam    string         `json:"target_team"`
	CandidateTeam string         `json:"candidate_team"`
	Sport         string         `json:"sport"`
	GameContext   *GameContext   `json:"game_context,omitempty"`
	MarketContext *MarketContext `json:"market_context,omitempty"`
	TargetIsHome  bool           `json:"target_is_home,omitempty"`
}

// TeamMatchResponse is published on team:match:response:{request_id}.
type TeamMatchResponse struct {
	RequestID        string   `json:"request_id"`
	IsMatch          bool     `json:"is_match"`
	Confidence       float64  `json:"confidence"`
	Method           string   `json:"method"`
	Reason           string   `json:"reason"`
	SportValid       *bool    `json:"sport_valid,omitempty"`
	OpponentScore    *float64 `json:"opponent_score,omitempty"`
	ScoreCorrelation *float64 `json:"score_correlation,omitempty"`
}

// NameMatcher matches two free-text team names, with an optional
// context-enhanced fusion path for when the caller supplies live game or
// market context.
type NameMatcher struct {
	log *zap.Logger
}

func NewNameMatcher(log *zap.Logger) *NameMatcher {
	return &NameMatcher{log: log}
}

func (m *NameMatcher) Name() string { return "name" }

// Match is the name-only comparison: exact case-insensitive match, then
// whole-word substring, then fuzzy token overlap.
func (m *NameMatcher) Match(target, candidate, sport string) MatchResult {
	t := strings.ToLower(strings.TrimSpace(target))
	c := strings.ToLower(strings.TrimSpace(candidate))

	if t == c {
		return MatchResult{Confidence: ConfidenceExact, Score: 1.0, Reason: "exact name match"}
	}
	if containsWord(c, t) || containsWord(t, c) {
		return MatchResult{Confidence: ConfidenceHigh, Score: 0.9, Reason: "whole-word name match"}
	}

	tTokens := strings.Fields(t)
	overlap := 0
	for _, tok := range tTokens {
		if len(tok) >= 3 && strings.Contains(c, tok) {
			overlap++
		}
	}
	if overlap > 0 && len(tTokens) > 0 {
		score := float64(overlap) / float64(len(tTokens))
		if score >= 0.5 {
			return MatchResult{Confidence: ConfidenceMedium, Score: 0.5 + 0.3*score, Reason: fmt.Sprintf("token overlap %d/%d", overlap, len(tTokens))}
		}
		return MatchResult{Confidence: ConfidenceLow, Score: 0.3 * score, Reason: fmt.Sprintf("weak token overlap %d/%d", overlap, len(tTokens))}
	}

	return noMatch("no name overlap between '" + target + "' and '" + candidate + "'")
}

// MatchWithContext fuses the name score with two context-derived signals:
//
//   - opponentScore: 0.9 when the game context shows the game under way
//     (a non-zero score on either side, or no clock remaining); 0.5
//     (neutral, neither confirms nor denies) otherwise, including when no
//     game context is supplied. No other values are produced.
//   - scoreCorrelation: how well the market's implied home win probability
//     tracks the actual score differential, as a signal that the market
//     context really is describing this game rather than an unrelated one.
//     nil when no market context (or no score yet) is available to compare.
//
// A DOGE-keyword-style hard reject has no sports analogue here; the one
// hard-reject condition is a failed name match, which sets SportValid=false,
// copies the name matcher's reason into RejectionReason, and zeroes
// FinalConfidence. The sport argument itself is not checked.
func (m *NameMatcher) MatchWithContext(target, candidate, sport string, game *GameContext, market *MarketContext, targetIsHome bool) ContextMatchResult {
	nameResult := m.Match(target, candidate, sport)

	sportValid := true
	rejection := ""

	opponentScore := 0.5
	if game != nil {
		// A game already past its scheduled start with a 0-0 score and a
		// full clock is likely not yet live; that's fine, it just means we
		// can't say anything about the opponent from the scoreline, so stay
		// neutral instead of penalizing.
		if game.HomeScore != 0 || game.AwayScore != 0 || game.ClockRemainingSec == 0 {
			opponentScore = 0.9
		}
	}

	var scoreCorrelation *float64
	if market != nil && market.ImpliedHomeProb != nil && game != nil && (game.HomeScore != 0 || game.AwayScore != 0) {
		diff := float64(game.HomeScore - game.AwayScore)
		implied := *market.ImpliedHomeProb
		// A home team that is ahead should imply a home win probability
		// above 0.5, and vice versa; correlation is how well that sign
		// agreement holds, clipped to [0,1].
		corr := 0.5
		switch {
		case diff > 0 && implied > 0.5:
			corr = 1.0
		case diff < 0 && implied < 0.5:
			corr = 1.0
		case diff == 0:
			corr = 0.5
		default:
			corr = 0.0
		}
		scoreCorrelation = &corr
	}

	if !nameResult.IsMatch() {
		sportValid = false
		rejection = nameResult.Reason
	}

	final := nameResult.Score*0.6 + opponentScore*0.25
	if scoreCorrelation != nil {
		final = nameResult.Score*0.5 + opponentScore*0.2 + *scoreCorrelation*0.3
	}
	if !sportValid {
		final = 0
	}

	return ContextMatchResult{
		NameMatch:        nameResult,
		SportValid:       sportValid,
		OpponentScore:    opponentScore,
		ScoreCorrelation: scoreCorrelation,
		FinalConfidence:  final,
		RejectionReason:  rejection,
	}
}

// ServeRPC subscribes to team:match:request and answers each request on
// team:match:response:{request_id}, mirroring the discovery service's
// request/response RPC-over-pubsub convention. Runs until ctx is cancelled.
func (m *NameMatcher) ServeRPC(ctx context.Context, bus *transport.Composite) error {
	return bus.SubscribeReliable(ctx, teamMatchRequestTopic, func(env models.BusEnvelope) {
		var req TeamMatchRequest
		if err := nameMatcherJSON.Unmarshal(env.Payload, &req); err != nil {
			m.log.Warn("team match request: invalid payload", zap.Error(err))
			return
		}

		resp := m.handleRequest(req)

		payload, err := nameMatcherJSON.Marshal(resp)
		if err != nil {
			m.log.Warn("team match response: encode failed", zap.Error(err))
			return
		}

		topic := teamMatchResponsePrefix + req.RequestID
		out := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "discovery", Topic: topic, Payload: payload}
		if err := bus.Publish(ctx, topic, out); err != nil {
			m.log.Warn("team match response: publish failed", zap.Error(err))
		}
	})
}

func (m *NameMatcher) handleRequest(req TeamMatchRequest) TeamMatchResponse {
	hasContext := req.GameContext != nil || req.MarketContext != nil

	if hasContext {
		ctxResult := m.MatchWithContext(req.TargetTeam, req.CandidateTeam, req.Sport, req.GameContext, req.MarketContext, req.TargetIsHome)
		reason := ctxResult.RejectionReason
		if reason == "" {
			reason = fmt.Sprintf("%s (opponent: %.2f, score_corr: %v)", ctxResult.NameMatch.Reason, ctxResult.OpponentScore, ctxResult.ScoreCorrelation)
		}
		sportValid := ctxResult.SportValid
		return TeamMatchResponse{
			RequestID:        req.RequestID,
			IsMatch:          ctxResult.FinalConfidence >= 0.5 && ctxResult.NameMatch.IsMatch(),
			Confidence:       ctxResult.FinalConfidence,
			Method:           string(ctxResult.NameMatch.Confidence),
			Reason:           reason,
			SportValid:       &sportValid,
			OpponentScore:    &ctxResult.OpponentScore,
			ScoreCorrelation: ctxResult.ScoreCorrelation,
		}
	}

	result := m.Match(req.TargetTeam, req.CandidateTeam, req.Sport)
	return TeamMatchResponse{
		RequestID:  req.RequestID,
		IsMatch:    result.IsMatch(),
		Confidence: result.Score,
		Method:     string(result.Confidence),
		Reason:     result.Reason,
	}
}
