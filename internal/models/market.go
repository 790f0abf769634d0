package models

// MarketTypeKind is the tagged discriminant for a market family. Every
// probability model, event provider and matcher in the system is keyed by
// this value rather than by runtime type assertions.
type MarketTypeKind string

const (
	MarketSport      MarketTypeKind = "sport"
	MarketCrypto     MarketTypeKind = "crypto"
	MarketEconomics  MarketTypeKind = "economics"
	MarketPolitics   MarketTypeKind = "politics"
)

// MarketType is the tagged variant described in the data model: exactly one
// of the family-specific fields is meaningful, selected by Kind.
type MarketType struct {
	Kind MarketTypeKind `json:"kind"`

	// Sport
	League string `json:"league,omitempty"`

	// Crypto
	Asset          string `json:"asset,omitempty"`
	PredictionType string `json:"prediction_type,omitempty"`

	// Economics
	Indicator string  `json:"indicator,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`

	// Politics
	Region    string `json:"region,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// ShardType determines which market families may be routed to a shard.
type ShardType string

const (
	ShardSports    ShardType = "sports"
	ShardNonSports ShardType = "non_sports"
)

// ShardTypeFor returns the shard type that owns a given market kind.
func ShardTypeFor(kind MarketTypeKind) ShardType {
	if kind == MarketSport {
		return ShardSports
	}
	return ShardNonSports
}

// MarketKind enumerates the shape of a single VenueMarket.
type MarketKind string

const (
	MarketKindMoneyline MarketKind = "moneyline"
	MarketKindOutcome   MarketKind = "outcome"
	MarketKindOverUnder MarketKind = "over_under"
)

// VenueMarket is one row per (event, venue, market_type).
type VenueMarket struct {
	Venue      string     `json:"venue"`
	MarketID   string     `json:"market_id"`
	EventID    string     `json:"event_id"`
	MarketKind MarketKind `json:"market_kind"`
}

// Key returns the (event, venue, market_kind) uniqueness key invariant
// described in the data model: at most one market per kind per (event, venue).
func (m VenueMarket) Key() string {
	return m.EventID + "|" + m.Venue + "|" + string(m.MarketKind)
}
