package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"arbengine/internal/models"
	"arbengine/internal/transport"

	"go.uber.org/zap"
)

const (
	discoveryRequestsTopic = "discovery:requests"
	discoveryResultsTopic  = "discovery:results"
)

// discoveryRequest mirrors the market-discovery service's own request
// shape: one sports game, asking it to resolve moneyline market IDs on
// every venue it watches.
type discoveryRequest struct {
	GameID   string `json:"game_id"`
	Sport    string `json:"sport"`
	HomeTeam string `json:"home_team"`
	AwayTeam string `json:"away_team"`
	HomeAbbr string `json:"home_abbr"`
	AwayAbbr string `json:"away_abbr"`
}

// discoveryResult mirrors the market-discovery service's broadcast result;
// empty string fields mean "not found on this venue".
type discoveryResult struct {
	GameID              string `json:"game_id"`
	Sport               string `json:"sport"`
	HomeTeam            string `json:"home_team"`
	AwayTeam            string `json:"away_team"`
	PolymarketMoneyline string `json:"polymarket_moneyline"`
	KalshiMoneyline     string `json:"kalshi_moneyline"`
}

// SportsVenueResolver resolves venue market IDs for a sports event by
// publishing a discovery request and waiting for the matching broadcast
// result, with a timeout (the discovery service itself lives outside this
// process, exactly as the Rust market-discovery service does in the
// original architecture).
type SportsVenueResolver struct {
	bus     *transport.Composite
	timeout time.Duration
	log     *zap.Logger

	mu       sync.Mutex
	waiters  map[string]chan discoveryResult
	started  bool
}

func NewSportsVenueResolver(bus *transport.Composite, timeout time.Duration, log *zap.Logger) *SportsVenueResolver {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SportsVenueResolver{bus: bus, timeout: timeout, log: log, waiters: make(map[string]chan discoveryResult)}
}

// Start subscribes to discovery:results and must be called once before the
// first Resolve call.
func (s *SportsVenueResolver) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = true
	s.mu.Unlock()

	return s.bus.Subscribe(ctx, discoveryResultsTopic, func(env models.BusEnvelope) {
		var res discoveryResult
		if err := wireJSON.Unmarshal(env.Payload, &res); err != nil {
			return
		}
		s.mu.Lock()
		ch, ok := s.waiters[res.GameID]
		if ok {
			delete(s.waiters, res.GameID)
		}
		s.mu.Unlock()
		if ok {
			ch <- res
		}
	})
}

// Resolve publishes a discovery request for info and waits up to timeout
// for the matching result, returning a venue->marketID map.
func (s *SportsVenueResolver) Resolve(ctx context.Context, info models.EventInfo) (map[string]string, error) {
	req := discoveryRequest{
		GameID:   info.ExternalID,
		Sport:    info.MarketType.League,
		HomeTeam: info.EntityA,
		AwayTeam: info.EntityB,
	}
	payload, err := wireJSON.Marshal(req)
	if err != nil {
		return nil, err
	}

	ch := make(chan discoveryResult, 1)
	s.mu.Lock()
	s.waiters[info.ExternalID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.waiters, info.ExternalID)
		s.mu.Unlock()
	}()

	env := models.BusEnvelope{TimestampMs: time.Now().UnixMilli(), Source: "orchestrator", Topic: discoveryRequestsTopic, Payload: payload}
	if err := s.bus.Publish(ctx, discoveryRequestsTopic, env); err != nil {
		return nil, fmt.Errorf("publish discovery request: %w", err)
	}

	select {
	case res := <-ch:
		markets := make(map[string]string, 2)
		if res.PolymarketMoneyline != "" {
			markets["polymarket"] = res.PolymarketMoneyline
		}
		if res.KalshiMoneyline != "" {
			markets["kalshi"] = res.KalshiMoneyline
		}
		return markets, nil
	case <-time.After(s.timeout):
		return nil, fmt.Errorf("discovery request for game %s timed out after %s", info.ExternalID, s.timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
