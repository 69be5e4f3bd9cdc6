package engine

import "sync"

// PriceFeed is the monotonic, staleness-protected oracle price record.
// Written only by the oracle operator (role checked by the engine), read by
// everyone. After the first successful update the price is always positive.
type PriceFeed struct {
	mu          sync.RWMutex
	price       uint64 // fixed-point, 1e6 scale
	lastUpdated int64  // unix milliseconds
}

// NewPriceFeed creates an unpublished feed: price 0, never updated.
func NewPriceFeed() *PriceFeed {
	return &PriceFeed{}
}

// Update records a new price at the given timestamp.
// Rejects zero prices and updates whose timestamp precedes the stored
// last-updated time, so replayed or reordered writes cannot move the feed
// backwards.
func (f *PriceFeed) Update(price uint64, now int64) error {
	if price == 0 {
		return ErrInvalidPrice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if now < f.lastUpdated {
		return ErrStaleUpdate
	}
	f.price = price
	f.lastUpdated = now
	return nil
}

// Price returns the last committed price and its timestamp.
func (f *PriceFeed) Price() (uint64, int64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.price, f.lastUpdated
}

// restore overwrites the feed from persisted state.
func (f *PriceFeed) restore(price uint64, lastUpdated int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = price
	f.lastUpdated = lastUpdated
}
