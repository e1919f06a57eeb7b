package executor

import (
	"sync"
	"time"
)

// fillKey identifies an order across venues; ids are only unique per venue.
type fillKey struct {
	venue   string
	orderID string
}

// Dedup tracks which orders already have a backfill loop. A claim lasts for
// ttl, which the Backfiller sets to its whole retry schedule plus a margin.
type Dedup struct {
	mu     sync.Mutex
	ttl    time.Duration
	now    func() time.Time
	claims map[fillKey]time.Time
}

func NewDedup(ttl time.Duration) *Dedup {
	return &Dedup{
		ttl:    ttl,
		now:    time.Now,
		claims: make(map[fillKey]time.Time),
	}
}

// Claim reports whether f may start a backfill loop and, if so, records the
// claim. Expired claims are dropped on the way.
func (d *Dedup) Claim(f PendingFill) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for k, at := range d.claims {
		if now.Sub(at) >= d.ttl {
			delete(d.claims, k)
		}
	}
	k := fillKey{venue: f.Venue, orderID: f.OrderID}
	if _, held := d.claims[k]; held {
		return false
	}
	d.claims[k] = now
	return true
}

// Len returns the number of live claims.
func (d *Dedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.claims)
}
