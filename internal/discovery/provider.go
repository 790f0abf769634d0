// Package discovery implements the market-family event providers and
// cross-venue entity matchers described in §4.H: each market family (crypto,
// sports, economics, politics) exposes live/scheduled events and per-event
// state through an EventProvider, and a family-specific matcher decides
// whether a discovered venue market corresponds to a canonical entity.
package discovery

import (
	"context"
	"sync"
	"time"

	"arbengine/internal/models"
	"arbengine/pkg/ratelimit"
)

// EventProvider is the per-family source of truth for discoverable events
// and their live state. Sports providers typically wrap a live feed (ESPN);
// non-sports providers wrap a venue's own market listing.
type EventProvider interface {
	GetLiveEvents(ctx context.Context) ([]models.EventInfo, error)
	GetScheduledEvents(ctx context.Context, days int) ([]models.EventInfo, error)
	GetEventState(ctx context.Context, eventID string) (models.EventState, error)
	SupportedMarketTypes() []models.MarketType
}

// VenueMetadataProvider is an optional capability a non-sports EventProvider
// may implement when the venue listing it wraps already carries each
// venue's market ID alongside the event itself (the assignment manager
// resolves venue market IDs for sports differently, via a pub/sub RPC to
// the discovery service, since ESPN knows nothing about Polymarket or
// Kalshi market IDs).
type VenueMetadataProvider interface {
	VenueMarketIDs(ctx context.Context, externalID string) (map[string]string, error)
}

// CachedProvider wraps an EventProvider with a TTL cache over the live and
// scheduled listings (discovery calls are comparatively expensive network
// round-trips and are polled far more often than the underlying data
// changes), a single-holder refresh lock so concurrent GetLiveEvents callers
// never trigger more than one in-flight live refresh, and a semaphore bounding concurrent
// GetEventState calls so a burst of evaluator wakeups can't fan out
// unbounded network requests to one provider.
type CachedProvider struct {
	inner   EventProvider
	ttl     time.Duration
	sem     chan struct{}
	limiter *ratelimit.RateLimiter

	mu          sync.Mutex
	refreshing  bool
	waiters     []chan struct{}
	live        []models.EventInfo
	liveErr     error
	liveAt      time.Time
	scheduled   map[int]scheduledEntry
}

type scheduledEntry struct {
	events []models.EventInfo
	err    error
	at     time.Time
}

// NewCachedProvider wraps inner with a ttl-bounded cache and a semaphore
// capping concurrent GetEventState calls at maxConcurrentState.
func NewCachedProvider(inner EventProvider, ttl time.Duration, maxConcurrentState int) *CachedProvider {
	if maxConcurrentState <= 0 {
		maxConcurrentState = 3
	}
	return &CachedProvider{
		inner:     inner,
		ttl:       ttl,
		sem:       make(chan struct{}, maxConcurrentState),
		scheduled: make(map[int]scheduledEntry),
	}
}

// WithRateLimit caps outbound GetEventState calls to rate req/sec (burst
// capacity 2x rate), on top of the maxConcurrentState semaphore: the
// semaphore bounds parallelism, this bounds throughput, since a venue's API
// rate limit cares about requests/sec regardless of how many are in flight
// at once.
func (c *CachedProvider) WithRateLimit(rate float64) *CachedProvider {
	c.limiter = ratelimit.NewRateLimiter(rate, rate*2)
	return c
}

// GetLiveEvents returns the cached live-event listing, refreshing it through
// inner at most once per ttl regardless of how many goroutines call in
// concurrently.
func (c *CachedProvider) GetLiveEvents(ctx context.Context) ([]models.EventInfo, error) {
	c.mu.Lock()
	if !c.liveAt.IsZero() && time.Since(c.liveAt) < c.ttl {
		events, err := c.live, c.liveErr
		c.mu.Unlock()
		return events, err
	}

	if c.refreshing {
		done := make(chan struct{})
		c.waiters = append(c.waiters, done)
		c.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		c.mu.Lock()
		events, err := c.live, c.liveErr
		c.mu.Unlock()
		return events, err
	}

	c.refreshing = true
	c.mu.Unlock()

	events, err := c.inner.GetLiveEvents(ctx)

	c.mu.Lock()
	c.live, c.liveErr, c.liveAt = events, err, time.Now()
	c.refreshing = false
	waiters := c.waiters
	c.waiters = nil
	c.mu.Unlock()

	for _, w := range waiters {
		close(w)
	}
	return events, err
}

// GetScheduledEvents caches per distinct `days` horizon with the same ttl as
// GetLiveEvents. It has no single-holder refresh lock: concurrent callers
// that all miss the cache each call inner.
func (c *CachedProvider) GetScheduledEvents(ctx context.Context, days int) ([]models.EventInfo, error) {
	c.mu.Lock()
	entry, ok := c.scheduled[days]
	if ok && time.Since(entry.at) < c.ttl {
		c.mu.Unlock()
		return entry.events, entry.err
	}
	c.mu.Unlock()

	events, err := c.inner.GetScheduledEvents(ctx, days)

	c.mu.Lock()
	c.scheduled[days] = scheduledEntry{events: events, err: err, at: time.Now()}
	c.mu.Unlock()

	return events, err
}

// GetEventState bypasses the cache (state is expected to change every call)
// but is gated by the semaphore to bound fan-out.
func (c *CachedProvider) GetEventState(ctx context.Context, eventID string) (models.EventState, error) {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return models.EventState{}, ctx.Err()
	}
	defer func() { <-c.sem }()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return models.EventState{}, err
		}
	}

	return c.inner.GetEventState(ctx, eventID)
}

// SupportedMarketTypes passes through uncached; it is static per provider.
func (c *CachedProvider) SupportedMarketTypes() []models.MarketType {
	return c.inner.SupportedMarketTypes()
}

// VenueMarketIDs passes through to inner when it implements
// VenueMetadataProvider, so wrapping a provider in CachedProvider doesn't
// hide the optional capability from callers doing a type assertion.
func (c *CachedProvider) VenueMarketIDs(ctx context.Context, externalID string) (map[string]string, error) {
	vmp, ok := c.inner.(VenueMetadataProvider)
	if !ok {
		return nil, nil
	}
	return vmp.VenueMarketIDs(ctx, externalID)
}
