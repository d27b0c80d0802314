// Package engine holds the deterministic per-auction state machine. It has no
// clocks, no I/O and no logging: the coordinator owns all side effects and
// feeds the engine a strictly serialized sequence of calls.
package engine

import (
	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/domain"
)

// ItemInput describes one item at auction-creation time.
type ItemInput struct {
	Name             string
	StartingPrice    int64
	DurationSec      int
	ExtraDurationSec int
}

// ItemClose is the outcome of closing the current item.
type ItemClose struct {
	ItemID     uuid.UUID
	WinnerID   *uuid.UUID
	FinalPrice int64
	HadBids    bool
}

// ItemOutcome is one row of an auction summary.
type ItemOutcome struct {
	ItemID     uuid.UUID
	WinnerID   *uuid.UUID
	FinalPrice int64
}

// Summary describes a finished auction.
type Summary struct {
	AuctionID uuid.UUID
	Results   []ItemOutcome
}

// Engine owns the in-memory state of a single auction. It is not safe for
// concurrent use; callers serialize access per auction.
type Engine struct {
	a *domain.Auction
}

// Create builds the initial state: auction CREATED, every item PENDING with
// HighestBid seeded to its starting price, CurrentItemIndex zero.
func Create(auctionID, sellerID uuid.UUID, items []ItemInput) *Engine {
	a := &domain.Auction{
		ID:               auctionID,
		SellerID:         sellerID,
		Status:           domain.AuctionStatusCreated,
		CurrentItemIndex: 0,
		Items:            make([]domain.AuctionItem, len(items)),
	}
	for i, in := range items {
		a.Items[i] = domain.AuctionItem{
			ID:               uuid.New(),
			AuctionID:        auctionID,
			ItemOrder:        i,
			Name:             in.Name,
			StartingPrice:    in.StartingPrice,
			DurationSec:      in.DurationSec,
			ExtraDurationSec: in.ExtraDurationSec,
			Status:           domain.ItemStatusPending,
			HighestBid:       in.StartingPrice,
		}
		a.MaxDurationSec += in.DurationSec + in.ExtraDurationSec
	}
	return &Engine{a: a}
}

// Restore rebuilds an engine from a persisted snapshot. The snapshot is deep
// copied so later mutations never alias the caller's value.
func Restore(snapshot *domain.Auction) *Engine {
	return &Engine{a: snapshot.Clone()}
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() *domain.Auction {
	return e.a.Clone()
}

func (e *Engine) AuctionID() uuid.UUID { return e.a.ID }

func (e *Engine) SellerID() uuid.UUID { return e.a.SellerID }

func (e *Engine) Status() domain.AuctionStatus { return e.a.Status }

// CurrentItem returns the item at the current index, nil if out of range.
func (e *Engine) CurrentItem() *domain.AuctionItem { return e.a.CurrentItem() }

// Start transitions CREATED -> LIVE and puts the first item live.
func (e *Engine) Start() error {
	if e.a.Status != domain.AuctionStatusCreated {
		return domain.ErrIllegalTransition
	}
	if len(e.a.Items) == 0 {
		return domain.ErrNoItems
	}
	e.a.Status = domain.AuctionStatusLive
	e.a.CurrentItemIndex = 0
	e.a.Items[0].Status = domain.ItemStatusLive
	return nil
}

// CheckBid reports whether a bid of the given amount would currently be
// admissible. It never mutates state; the arbiter has the authoritative say.
func (e *Engine) CheckBid(amount int64) error {
	if e.a.Status != domain.AuctionStatusLive {
		return domain.ErrNotLive
	}
	item := e.a.CurrentItem()
	if item == nil || item.Status != domain.ItemStatusLive {
		return domain.ErrNoLiveItem
	}
	if amount <= item.HighestBid {
		return domain.ErrBidTooLow
	}
	return nil
}

// PlaceBid commits an admissible bid to the current item.
func (e *Engine) PlaceBid(userID uuid.UUID, amount int64) error {
	if err := e.CheckBid(amount); err != nil {
		return err
	}
	item := e.a.CurrentItem()
	item.HighestBid = amount
	bidder := userID
	item.HighestBidderID = &bidder
	return nil
}

// EndCurrentItem closes the live item: SOLD when a bid above the starting
// price was recorded, UNSOLD otherwise.
func (e *Engine) EndCurrentItem() (*ItemClose, error) {
	if e.a.Status != domain.AuctionStatusLive {
		return nil, domain.ErrNotLive
	}
	item := e.a.CurrentItem()
	if item == nil || item.Status != domain.ItemStatusLive {
		return nil, domain.ErrNoLiveItem
	}
	hadBids := item.HighestBidderID != nil && item.HighestBid > item.StartingPrice
	if hadBids {
		item.Status = domain.ItemStatusSold
	} else {
		item.Status = domain.ItemStatusUnsold
		item.HighestBidderID = nil
		item.HighestBid = item.StartingPrice
	}
	return &ItemClose{
		ItemID:     item.ID,
		WinnerID:   copyOptional(item.HighestBidderID),
		FinalPrice: item.HighestBid,
		HadBids:    hadBids,
	}, nil
}

// AdvanceToNextItem moves to the next item if one exists and returns true.
// With no items left the auction transitions to ENDED and false is returned.
func (e *Engine) AdvanceToNextItem() bool {
	next := e.a.CurrentItemIndex + 1
	if next < len(e.a.Items) {
		e.a.CurrentItemIndex = next
		item := &e.a.Items[next]
		item.Status = domain.ItemStatusLive
		item.HighestBid = item.StartingPrice
		item.HighestBidderID = nil
		return true
	}
	e.a.Status = domain.AuctionStatusEnded
	return false
}

// ExtendCurrentItem marks the single allowed extension of the live item.
func (e *Engine) ExtendCurrentItem() error {
	if e.a.Status != domain.AuctionStatusLive {
		return domain.ErrNotLive
	}
	item := e.a.CurrentItem()
	if item == nil || item.Status != domain.ItemStatusLive {
		return domain.ErrNoLiveItem
	}
	if item.Extended {
		return domain.ErrAlreadyExtended
	}
	item.Extended = true
	return nil
}

// EndAuction forces the auction to ENDED and reports a winner for every SOLD
// item. Calling it on an already ended auction returns the same summary.
func (e *Engine) EndAuction() *Summary {
	e.a.Status = domain.AuctionStatusEnded
	summary := &Summary{AuctionID: e.a.ID}
	for i := range e.a.Items {
		item := &e.a.Items[i]
		out := ItemOutcome{ItemID: item.ID, FinalPrice: item.HighestBid}
		if item.Status == domain.ItemStatusSold {
			out.WinnerID = copyOptional(item.HighestBidderID)
		}
		summary.Results = append(summary.Results, out)
	}
	return summary
}

func copyOptional(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
