package arbiter

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memEntry struct {
	amount int64
	bidder *uuid.UUID
}

type memClaim struct {
	expiresAt time.Time
}

type memResult struct {
	out       Outcome
	expiresAt time.Time
}

// MemoryArbiter keeps arbitration state in process memory. It preserves the
// same atomicity guarantees as the Redis implementation for a single engine
// instance and backs the test suite.
type MemoryArbiter struct {
	mu      sync.Mutex
	items   map[string]memEntry
	claims  map[string]memClaim
	results map[string]memResult
}

func NewMemory() *MemoryArbiter {
	return &MemoryArbiter{
		items:   make(map[string]memEntry),
		claims:  make(map[string]memClaim),
		results: make(map[string]memResult),
	}
}

func (a *MemoryArbiter) Seed(ctx context.Context, auctionID, itemID uuid.UUID, amount int64, bidderID *uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var bidder *uuid.UUID
	if bidderID != nil {
		v := *bidderID
		bidder = &v
	}
	a.items[highestBidKey(auctionID, itemID)] = memEntry{amount: amount, bidder: bidder}
	return nil
}

func (a *MemoryArbiter) TryBid(ctx context.Context, auctionID, itemID, bidderID uuid.UUID, amount int64) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := highestBidKey(auctionID, itemID)
	current, ok := a.items[key]
	if ok && amount <= current.amount {
		return false, nil
	}
	bidder := bidderID
	a.items[key] = memEntry{amount: amount, bidder: &bidder}
	return true, nil
}

func (a *MemoryArbiter) ClearItem(ctx context.Context, auctionID, itemID uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.items, highestBidKey(auctionID, itemID))
	return nil
}

func (a *MemoryArbiter) ClearAuction(ctx context.Context, auctionID uuid.UUID, itemIDs []uuid.UUID) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, itemID := range itemIDs {
		delete(a.items, highestBidKey(auctionID, itemID))
	}
	return nil
}

func (a *MemoryArbiter) Claim(ctx context.Context, key IdemKey) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	k := pendingKey(key)
	if claim, ok := a.claims[k]; ok && time.Now().Before(claim.expiresAt) {
		return false, nil
	}
	a.claims[k] = memClaim{expiresAt: time.Now().Add(ClaimTTL)}
	return true, nil
}

func (a *MemoryArbiter) Result(ctx context.Context, key IdemKey) (*Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	res, ok := a.results[resultKey(key)]
	if !ok || time.Now().After(res.expiresAt) {
		return nil, nil
	}
	out := res.out
	return &out, nil
}

func (a *MemoryArbiter) StoreResult(ctx context.Context, key IdemKey, out Outcome) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[resultKey(key)] = memResult{out: out, expiresAt: time.Now().Add(ResultTTL)}
	delete(a.claims, pendingKey(key))
	return nil
}

// HighestBid reports the arbiter's current view of an item, used by tests.
func (a *MemoryArbiter) HighestBid(auctionID, itemID uuid.UUID) (int64, *uuid.UUID, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.items[highestBidKey(auctionID, itemID)]
	if !ok {
		return 0, nil, false
	}
	return entry.amount, entry.bidder, true
}
