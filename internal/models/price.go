package models

import "time"

// PriceSnapshot is the unit the price cache stores, keyed by
// (asset_or_event, venue). Invariant: 0 <= yes_bid <= yes_ask <= 1; no_ask
// and no_bid are derived, never stored independently, to keep the
// invariant mechanically true.
type PriceSnapshot struct {
	Venue      string    `json:"venue"`
	MarketID   string    `json:"market_id"`
	EventID    string    `json:"event_id,omitempty"`
	YesBid     float64   `json:"yes_bid"`
	YesAsk     float64   `json:"yes_ask"`
	BidSize    float64   `json:"bid_size,omitempty"`
	AskSize    float64   `json:"ask_size,omitempty"`
	Liquidity  float64   `json:"liquidity,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
}

// NoAsk returns 1 - yes_bid.
func (p PriceSnapshot) NoAsk() float64 { return 1 - p.YesBid }

// NoBid returns 1 - yes_ask.
func (p PriceSnapshot) NoBid() float64 { return 1 - p.YesAsk }

// Mid returns the market-implied midpoint probability for YES.
func (p PriceSnapshot) Mid() float64 { return (p.YesBid + p.YesAsk) / 2 }

// Valid checks the snapshot's price invariant.
func (p PriceSnapshot) Valid() bool {
	return p.YesBid >= 0 && p.YesBid <= p.YesAsk && p.YesAsk <= 1
}

// IsStale reports whether the snapshot is older than maxAge as of now.
func (p PriceSnapshot) IsStale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(p.ReceivedAt) > maxAge
}
