// Package arbiter decides which of several concurrent bids on the same item
// wins. The check-and-set must be atomic per item key; ties on amount lose and
// the first arrival at the arbiter keeps the key.
package arbiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// ClaimTTL bounds how long a crashed bid attempt can hold an
	// idempotency claim before retries may proceed.
	ClaimTTL = 30 * time.Second
	// ResultTTL is how long a stored bid outcome stays observable to
	// client retries.
	ResultTTL = 10 * time.Minute
)

// Outcome is the value returned to a bidder. It crosses the protocol boundary
// as data, never as an error.
type Outcome struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// IdemKey identifies one logical bid attempt across client retries.
type IdemKey struct {
	AuctionID uuid.UUID
	ItemID    uuid.UUID
	BidderID  uuid.UUID
	Key       string
}

// Arbiter is the single source of truth for "which bid won the race".
type Arbiter interface {
	// Seed initializes the item keys when an item goes live or is
	// re-hydrated after a restart. bidderID may be nil.
	Seed(ctx context.Context, auctionID, itemID uuid.UUID, amount int64, bidderID *uuid.UUID) error

	// TryBid atomically compares amount against the stored highest bid and
	// installs (amount, bidderID) when strictly greater. Returns whether
	// the bid was accepted.
	TryBid(ctx context.Context, auctionID, itemID, bidderID uuid.UUID, amount int64) (bool, error)

	// ClearItem deletes the item's bid keys after it closes.
	ClearItem(ctx context.Context, auctionID, itemID uuid.UUID) error

	// ClearAuction bulk-deletes every key for the auction's items.
	ClearAuction(ctx context.Context, auctionID uuid.UUID, itemIDs []uuid.UUID) error

	// Claim sets a pending marker for the idempotency key iff absent and
	// reports whether the caller owns the claim.
	Claim(ctx context.Context, key IdemKey) (bool, error)

	// Result returns a previously stored outcome, or nil if none exists.
	Result(ctx context.Context, key IdemKey) (*Outcome, error)

	// StoreResult records the outcome and clears the pending marker.
	StoreResult(ctx context.Context, key IdemKey, out Outcome) error
}

func highestBidKey(auctionID, itemID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:item:%s:highest_bid", auctionID, itemID)
}

func highestBidderKey(auctionID, itemID uuid.UUID) string {
	return fmt.Sprintf("auction:%s:item:%s:highest_bidder", auctionID, itemID)
}

func pendingKey(k IdemKey) string {
	return fmt.Sprintf("auction:%s:item:%s:idem:%s:%s:pending", k.AuctionID, k.ItemID, k.BidderID, k.Key)
}

func resultKey(k IdemKey) string {
	return fmt.Sprintf("auction:%s:item:%s:idem:%s:%s:result", k.AuctionID, k.ItemID, k.BidderID, k.Key)
}
