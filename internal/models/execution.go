package models

import "time"

// Side is the contract side traded.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Direction indicates whether the request opens a long or short exposure to
// the Side.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// SignalType distinguishes arbitrage (risk-free lock) from model-edge
// (directional, probability-based) requests. A shard never emits both for
// the same (event, market, direction) in one evaluation pass; arbitrage
// wins when both would fire.
type SignalType string

const (
	SignalArbitrage SignalType = "arbitrage"
	SignalModelEdge SignalType = "model_edge"
)

// ExecutionRequest is the signal-pipeline's terminal output, published on
// execution.request.{request_id} once it has cleared the risk gate.
type ExecutionRequest struct {
	RequestID      string     `json:"request_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	EventID        string     `json:"event_id"`
	Venue          string     `json:"venue"`
	MarketID       string     `json:"market_id"`
	Side           Side       `json:"side"`
	Direction      Direction  `json:"direction"`
	SignalType     SignalType `json:"signal_type"`
	SuggestedSize  float64    `json:"suggested_size"`
	MaxPrice       float64    `json:"max_price"`
	EdgePct        float64    `json:"edge_pct"`
	Probability    float64    `json:"probability"`
	CreatedAt      time.Time  `json:"created_at"`

	// Cross-venue arb requests carry a second leg; zero values mean
	// "same-market" (both legs on the same venue/market).
	SecondVenue   string  `json:"second_venue,omitempty"`
	SecondMarketID string `json:"second_market_id,omitempty"`
	SecondSide    Side    `json:"second_side,omitempty"`
	SecondPrice   float64 `json:"second_price,omitempty"`
}
