package pricecache

import (
	"testing"
	"time"

	"arbengine/internal/models"

	"github.com/stretchr/testify/assert"
)

func snapshot(eventID, venue string, bid, ask float64, age time.Duration) models.PriceSnapshot {
	return models.PriceSnapshot{
		EventID:    eventID,
		Venue:      venue,
		YesBid:     bid,
		YesAsk:     ask,
		BidSize:    100,
		AskSize:    100,
		Liquidity:  1000,
		ReceivedAt: time.Now().Add(-age),
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := New(time.Minute)
	c.Put(snapshot("EVT1", "kalshi", 0.40, 0.42, 0))

	got, ok := c.Get("EVT1", "kalshi")
	assert.True(t, ok)
	assert.Equal(t, 0.40, got.YesBid)
	assert.Equal(t, 0.42, got.YesAsk)
}

func TestGetStaleSnapshotNotOK(t *testing.T) {
	c := New(10 * time.Millisecond)
	c.Put(snapshot("EVT1", "kalshi", 0.4, 0.42, 50*time.Millisecond))

	_, ok := c.Get("EVT1", "kalshi")
	assert.False(t, ok)
}

func TestGetAllVenuesFiltersStaleAndInvalid(t *testing.T) {
	c := New(time.Minute)
	c.Put(snapshot("EVT1", "kalshi", 0.40, 0.42, 0))
	c.Put(snapshot("EVT1", "polymarket", 0.55, 0.50, 0)) // invalid: bid > ask
	c.Put(snapshot("EVT2", "kalshi", 0.1, 0.2, 0))

	venues := c.GetAllVenues("EVT1")
	assert.Len(t, venues, 1)
	_, ok := venues["kalshi"]
	assert.True(t, ok)
}

func TestRemoveClearsSnapshotsAndClosesSubscribers(t *testing.T) {
	c := New(time.Minute)
	c.Put(snapshot("EVT1", "kalshi", 0.4, 0.42, 0))

	ch := c.Subscribe("EVT1")
	c.Remove("EVT1")

	_, ok := c.Get("EVT1", "kalshi")
	assert.False(t, ok)

	_, open := <-ch
	assert.False(t, open)
}

func TestSubscribeNotifiedOnPut(t *testing.T) {
	c := New(time.Minute)
	ch := c.Subscribe("EVT1")

	c.Put(snapshot("EVT1", "kalshi", 0.4, 0.42, 0))

	select {
	case n := <-ch:
		assert.Equal(t, "EVT1", n.EventID)
		assert.Equal(t, "kalshi", n.Venue)
	case <-time.After(time.Second):
		t.Fatal("expected notification")
	}
}

func TestNotifierDropsOldestWhenFull(t *testing.T) {
	c := New(time.Minute)
	ch := c.Subscribe("EVT1")

	for i := 0; i < 20; i++ {
		c.Put(snapshot("EVT1", "kalshi", 0.4, 0.42, 0))
	}

	// Should not block or panic; channel holds at most its buffer size.
	drained := 0
	for {
		select {
		case <-ch:
			drained++
		default:
			assert.LessOrEqual(t, drained, 8)
			return
		}
	}
}
