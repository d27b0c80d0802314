package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuctionStatus string

const (
	AuctionStatusCreated AuctionStatus = "created"
	AuctionStatusLive    AuctionStatus = "live"
	AuctionStatusEnded   AuctionStatus = "ended"
)

type ItemStatus string

const (
	ItemStatusPending ItemStatus = "pending"
	ItemStatusLive    ItemStatus = "live"
	ItemStatusSold    ItemStatus = "sold"
	ItemStatusUnsold  ItemStatus = "unsold"
)

type Auction struct {
	ID               uuid.UUID     `json:"id" gorm:"type:uuid;primary_key"`
	SellerID         uuid.UUID     `json:"sellerId" gorm:"type:uuid;not null"`
	Status           AuctionStatus `json:"status" gorm:"not null;default:'created';index:idx_auctions_status_created,priority:1"`
	CurrentItemIndex int           `json:"currentItemIndex" gorm:"not null;default:0"`
	MaxDurationSec   int           `json:"maxDurationSec" gorm:"not null;default:0"`
	CreatedAt        time.Time     `json:"createdAt" gorm:"index:idx_auctions_status_created,priority:2"`
	StartedAt        *time.Time    `json:"startedAt"`
	EndedAt          *time.Time    `json:"endedAt"`

	// Relations
	Seller *User         `json:"seller,omitempty" gorm:"foreignKey:SellerID"`
	Items  []AuctionItem `json:"items,omitempty" gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
}

type AuctionItem struct {
	ID               uuid.UUID  `json:"id" gorm:"type:uuid;primary_key"`
	AuctionID        uuid.UUID  `json:"auctionId" gorm:"type:uuid;not null;uniqueIndex:idx_auction_items_order,priority:1"`
	ItemOrder        int        `json:"itemOrder" gorm:"not null;uniqueIndex:idx_auction_items_order,priority:2"`
	Name             string     `json:"name" gorm:"not null;size:128"`
	StartingPrice    int64      `json:"startingPrice" gorm:"not null"`
	DurationSec      int        `json:"durationSec" gorm:"not null"`
	ExtraDurationSec int        `json:"extraDurationSec" gorm:"not null;default:0"`
	Status           ItemStatus `json:"status" gorm:"not null;default:'pending'"`
	HighestBid       int64      `json:"highestBid" gorm:"not null"`
	Extended         bool       `json:"extended" gorm:"not null;default:false"`
	HighestBidderID  *uuid.UUID `json:"highestBidderId" gorm:"type:uuid"`
	LiveAt           *time.Time `json:"liveAt"`
	SoldAt           *time.Time `json:"soldAt"`

	// Relations
	HighestBidder *User `json:"highestBidder,omitempty" gorm:"foreignKey:HighestBidderID;constraint:OnDelete:SET NULL"`
}

type Bid struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	AuctionID uuid.UUID `json:"auctionId" gorm:"type:uuid;not null;index:idx_bids_item_created,priority:1"`
	ItemID    uuid.UUID `json:"itemId" gorm:"type:uuid;not null;index:idx_bids_item_created,priority:2"`
	BidderID  uuid.UUID `json:"bidderId" gorm:"type:uuid;not null"`
	Amount    int64     `json:"amount" gorm:"not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_bids_item_created,priority:3,sort:desc"`
}

type ItemResult struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primary_key"`
	ItemID     uuid.UUID `json:"itemId" gorm:"type:uuid;not null;uniqueIndex"`
	WinnerID   uuid.UUID `json:"winnerId" gorm:"type:uuid;not null"`
	FinalPrice int64     `json:"finalPrice" gorm:"not null"`
	SoldAt     time.Time `json:"soldAt" gorm:"not null"`
}

// CurrentItem returns the item at CurrentItemIndex, or nil when the index is
// out of range. Items must be ordered by ItemOrder.
func (a *Auction) CurrentItem() *AuctionItem {
	if a.CurrentItemIndex < 0 || a.CurrentItemIndex >= len(a.Items) {
		return nil
	}
	return &a.Items[a.CurrentItemIndex]
}

// Clone returns a deep copy of the auction and its items.
func (a *Auction) Clone() *Auction {
	cp := *a
	cp.StartedAt = copyTime(a.StartedAt)
	cp.EndedAt = copyTime(a.EndedAt)
	cp.Seller = nil
	cp.Items = make([]AuctionItem, len(a.Items))
	for i := range a.Items {
		item := a.Items[i]
		item.HighestBidder = nil
		item.HighestBidderID = copyUUID(a.Items[i].HighestBidderID)
		item.LiveAt = copyTime(a.Items[i].LiveAt)
		item.SoldAt = copyTime(a.Items[i].SoldAt)
		cp.Items[i] = item
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}
