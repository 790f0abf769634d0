package risk

import (
	"sync"

	"github.com/shopspring/decimal"
)

// positionKey identifies one (event, venue) position bucket.
type positionKey struct {
	EventID string
	Venue   string
}

// position tracks contract counts by side for one (event, venue). Counts
// are signed: positive is a long holding, negative a short. Decimal is used
// because contract sizes and dollar-denominated exposure must never drift
// from floating-point summation error across a long-running process.
type position struct {
	Yes decimal.Decimal
	No  decimal.Decimal
}

// total returns the gross contract count held on either side.
func (p position) total() decimal.Decimal {
	return p.Yes.Abs().Add(p.No.Abs())
}

// Ledger is an in-process position book per (event, venue). It never talks
// to a database. Gate does not consult it: Gate's exposure and duplicate
// checks go through the Exposure interface, which sees trades placed by
// every shard, and no Gate check reads a Ledger position.
type Ledger struct {
	mu        sync.RWMutex
	positions map[positionKey]*position
}

// NewLedger returns an empty position ledger.
func NewLedger() *Ledger {
	return &Ledger{positions: make(map[positionKey]*position)}
}

// Record applies a fill of size contracts (always positive) on side "yes"
// or "no" to the (event, venue) position, adding for a long direction and
// subtracting for a short one.
func (l *Ledger) Record(eventID, venue string, yes bool, size decimal.Decimal, long bool) {
	if !long {
		size = size.Neg()
	}

	key := positionKey{EventID: eventID, Venue: venue}

	l.mu.Lock()
	defer l.mu.Unlock()

	p, ok := l.positions[key]
	if !ok {
		p = &position{}
		l.positions[key] = p
	}
	if yes {
		p.Yes = p.Yes.Add(size)
	} else {
		p.No = p.No.Add(size)
	}
}

// Total returns the gross contract count held on (event, venue).
func (l *Ledger) Total(eventID, venue string) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()

	p, ok := l.positions[positionKey{EventID: eventID, Venue: venue}]
	if !ok {
		return decimal.Zero
	}
	return p.total()
}

// Reset clears the position for one (event, venue).
func (l *Ledger) Reset(eventID, venue string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.positions, positionKey{EventID: eventID, Venue: venue})
}
