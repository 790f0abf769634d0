// Package pricecache implements the single-writer/multi-reader price store
// (§4.C): one PriceSnapshot per (event, venue), written by the shard's price
// listener and read by the shard's evaluator.
// Reads never block a concurrent write: each slot packs its snapshot's five
// float fields into atomically-stored float64 bit patterns, generalized
// from a single bid/ask pair to the full PriceSnapshot shape.
package pricecache

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"arbengine/internal/metrics"
	"arbengine/internal/models"
)

// slot holds one (event, venue) price atomically. Every field after the
// identity fields is stored as raw float64 bits and loaded without taking a
// lock. Each field is loaded atomically on its own, so a read racing a write
// can combine fields from two consecutive snapshots.
type slot struct {
	yesBid     atomic.Uint64
	yesAsk     atomic.Uint64
	bidSize    atomic.Uint64
	askSize    atomic.Uint64
	liquidity  atomic.Uint64
	receivedAt atomic.Int64 // unix nanos
}

func (s *slot) store(p models.PriceSnapshot) {
	s.yesBid.Store(math.Float64bits(p.YesBid))
	s.yesAsk.Store(math.Float64bits(p.YesAsk))
	s.bidSize.Store(math.Float64bits(p.BidSize))
	s.askSize.Store(math.Float64bits(p.AskSize))
	s.liquidity.Store(math.Float64bits(p.Liquidity))
	s.receivedAt.Store(p.ReceivedAt.UnixNano())
}

func (s *slot) load(eventID, venue string) models.PriceSnapshot {
	return models.PriceSnapshot{
		EventID:    eventID,
		Venue:      venue,
		YesBid:     math.Float64frombits(s.yesBid.Load()),
		YesAsk:     math.Float64frombits(s.yesAsk.Load()),
		BidSize:    math.Float64frombits(s.bidSize.Load()),
		AskSize:    math.Float64frombits(s.askSize.Load()),
		Liquidity:  math.Float64frombits(s.liquidity.Load()),
		ReceivedAt: time.Unix(0, s.receivedAt.Load()),
	}
}

type key struct {
	eventID string
	venue   string
}

// Notification is published to subscribers whenever a slot changes, so the
// evaluator can run event-driven instead of polling every event on a timer.
type Notification struct {
	EventID string
	Venue   string
}

// Cache is the per-shard price store. Every shard owns one instance scoped
// to the events it has been assigned; the orchestrator and observer do not
// share it.
type Cache struct {
	maxAge time.Duration

	mu    sync.RWMutex
	slots map[key]*slot

	notifyMu sync.Mutex
	notify   map[string][]chan Notification // by eventID
}

func New(maxAge time.Duration) *Cache {
	return &Cache{
		maxAge: maxAge,
		slots:  make(map[key]*slot),
		notify: make(map[string][]chan Notification),
	}
}

// Put writes a snapshot and notifies subscribers for that event. Safe to
// call concurrently for different (event, venue) pairs; concurrent writers
// for the same pair race on last-write-wins, matching single-producer usage
// (only the owning shard's price listener ever writes a given event).
func (c *Cache) Put(p models.PriceSnapshot) {
	k := key{eventID: p.EventID, venue: p.Venue}

	c.mu.RLock()
	s, ok := c.slots[k]
	c.mu.RUnlock()

	if !ok {
		c.mu.Lock()
		s, ok = c.slots[k]
		if !ok {
			s = &slot{}
			c.slots[k] = s
		}
		c.mu.Unlock()
	}

	s.store(p)
	metrics.PriceUpdatesReceived.WithLabelValues(p.Venue).Inc()
	c.fanoutNotify(p.EventID, p.Venue)
}

// Get returns the cached snapshot for (eventID, venue) and whether it is
// present and not stale relative to maxAge.
func (c *Cache) Get(eventID, venue string) (models.PriceSnapshot, bool) {
	c.mu.RLock()
	s, ok := c.slots[key{eventID: eventID, venue: venue}]
	c.mu.RUnlock()
	if !ok {
		return models.PriceSnapshot{}, false
	}

	snap := s.load(eventID, venue)
	if c.maxAge > 0 && snap.IsStale(time.Now(), c.maxAge) {
		return snap, false
	}
	return snap, true
}

// GetAllVenues returns every fresh, valid snapshot currently cached for an
// event, keyed by venue — the input the arbitrage detector scans for a
// cross-venue opportunity.
func (c *Cache) GetAllVenues(eventID string) map[string]models.PriceSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]models.PriceSnapshot)
	now := time.Now()
	for k, s := range c.slots {
		if k.eventID != eventID {
			continue
		}
		snap := s.load(k.eventID, k.venue)
		if !snap.Valid() {
			continue
		}
		if c.maxAge > 0 && snap.IsStale(now, c.maxAge) {
			continue
		}
		out[k.venue] = snap
	}
	return out
}

// Remove drops every venue's snapshot for an event, called when the event
// is reassigned away from this shard or completes.
func (c *Cache) Remove(eventID string) {
	c.mu.Lock()
	for k := range c.slots {
		if k.eventID == eventID {
			delete(c.slots, k)
		}
	}
	c.mu.Unlock()

	c.notifyMu.Lock()
	for _, ch := range c.notify[eventID] {
		close(ch)
	}
	delete(c.notify, eventID)
	c.notifyMu.Unlock()
}

// Subscribe returns a bounded channel of Notifications for a single event.
// When the channel is full, the oldest pending notification is dropped in
// favor of the newest (§4.C backpressure policy): the evaluator only cares
// that *something* changed, not how many times.
func (c *Cache) Subscribe(eventID string) <-chan Notification {
	ch := make(chan Notification, 8)
	c.notifyMu.Lock()
	c.notify[eventID] = append(c.notify[eventID], ch)
	c.notifyMu.Unlock()
	return ch
}

func (c *Cache) fanoutNotify(eventID, venue string) {
	c.notifyMu.Lock()
	chans := c.notify[eventID]
	c.notifyMu.Unlock()

	n := Notification{EventID: eventID, Venue: venue}
	for _, ch := range chans {
		select {
		case ch <- n:
		default:
			// Channel full: drop the oldest queued notification to make
			// room, since the evaluator only needs to know a refresh is
			// pending, not the exact count.
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- n:
			default:
				metrics.PriceCacheNotifierDrops.WithLabelValues(eventID).Inc()
			}
		}
	}
}
