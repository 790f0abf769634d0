package shard

import (
	"sync"
	"time"

	"arbengine/internal/models"
)

// EventContext is the shard's owned runtime state for one event: the
// bootstrap data it was given on add_event, plus sport/non-sport state the
// shard mutates as it runs. Per the data model, the owning shard is the
// sole mutator of EventState; every other component refers to the event
// only by EventID.
type EventContext struct {
	mu sync.RWMutex

	EventID        string
	MarketType     models.MarketType
	EntityA        string
	EntityB        string
	ScheduledTime  time.Time
	VenueMarketIDs map[string]string // venue -> market_id

	state   models.EventState
	addedAt time.Time
}

func newEventContext(payload models.AddEventPayload) *EventContext {
	return &EventContext{
		EventID:        payload.EventID,
		MarketType:     payload.MarketType,
		EntityA:        payload.EntityA,
		EntityB:        payload.EntityB,
		ScheduledTime:  payload.ScheduledTime,
		VenueMarketIDs: payload.VenueMarketIDs,
		addedAt:        time.Now(),
	}
}

// State returns a copy of the current event state.
func (c *EventContext) State() models.EventState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetState replaces the event state, e.g. after a sport feed task updates
// scoreboard data or a non-sport provider call refreshes indicator values.
func (c *EventContext) SetState(s models.EventState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.UpdatedAt = time.Now()
	c.state = s
}

// Venues returns the configured venue -> market_id map for this event.
func (c *EventContext) Venues() map[string]string {
	return c.VenueMarketIDs
}
