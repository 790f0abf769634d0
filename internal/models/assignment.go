package models

import "time"

// Assignment is the orchestrator's ledger entry binding an event to a shard.
// It carries enough of the original add_event payload to rebuild it
// verbatim during a resync, without consulting the event provider again.
type Assignment struct {
	EventID        string            `json:"event_id"`
	ShardID        string            `json:"shard_id"`
	VenueMarketIDs map[string]string `json:"venue_market_ids"` // venue -> market_id
	AssignedAt     time.Time         `json:"assigned_at"`

	// Bootstrap fields, replayed verbatim into add_event on resync.
	MarketType    MarketType `json:"market_type"`
	EntityA       string     `json:"entity_a"`
	EntityB       string     `json:"entity_b,omitempty"`
	ScheduledTime time.Time  `json:"scheduled_time"`
}

// AddEventCommand rebuilds the bootstrap command this assignment describes.
func (a Assignment) AddEventCommand() AddEventPayload {
	return AddEventPayload{
		EventID:        a.EventID,
		MarketType:     a.MarketType,
		EntityA:        a.EntityA,
		EntityB:        a.EntityB,
		ScheduledTime:  a.ScheduledTime,
		VenueMarketIDs: a.VenueMarketIDs,
	}
}

// CommandType enumerates shard:{id}:command payload kinds.
type CommandType string

const (
	CommandAddEvent    CommandType = "add_event"
	CommandRemoveEvent CommandType = "remove_event"
	CommandShutdown    CommandType = "shutdown"
)

// AddEventPayload is enough to bootstrap a shard's EventContext without it
// consulting the orchestrator or the event provider.
type AddEventPayload struct {
	EventID        string            `json:"event_id"`
	MarketType     MarketType        `json:"market_type"`
	EntityA        string            `json:"entity_a"`
	EntityB        string            `json:"entity_b,omitempty"`
	ScheduledTime  time.Time         `json:"scheduled_time"`
	VenueMarketIDs map[string]string `json:"venue_market_ids"`
}

// RemoveEventPayload is the remove_event command body.
type RemoveEventPayload struct {
	EventID string `json:"event_id"`
}

// ShardCommand is the full {type, ...} envelope sent on shard:{id}:command.
type ShardCommand struct {
	Type        CommandType      `json:"type"`
	AddEvent    *AddEventPayload    `json:"add_event,omitempty"`
	RemoveEvent *RemoveEventPayload `json:"remove_event,omitempty"`
}
