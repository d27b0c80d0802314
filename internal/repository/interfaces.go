package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByDisplayName(ctx context.Context, displayName string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
}

type SessionRepository interface {
	Create(ctx context.Context, session *domain.UserSession) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*domain.UserSession, error)
	DeleteByUserID(ctx context.Context, userID uuid.UUID) error
}

// AuctionUpdate carries the optional fields of a status transition.
type AuctionUpdate struct {
	StartedAt        *time.Time
	EndedAt          *time.Time
	CurrentItemIndex *int
}

// ItemUpdate carries the optional fields of an item status transition.
type ItemUpdate struct {
	HighestBid      *int64
	HighestBidderID *uuid.UUID
	Extended        *bool
	LiveAt          *time.Time
	SoldAt          *time.Time
}

// AuctionRepository is the durable log. In-memory engine state is a cache of
// live auctions; this store is the source of truth across restarts.
type AuctionRepository interface {
	// Create atomically persists the auction and all of its items.
	Create(ctx context.Context, auction *domain.Auction) error

	// GetByID returns the full auction view with items ordered by ItemOrder
	// and the seller preloaded.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error)

	// List returns all auctions newest first, with seller and items.
	List(ctx context.Context) ([]*domain.Auction, error)

	// LoadActive returns every auction whose status is not ended, items
	// ordered by ItemOrder.
	LoadActive(ctx context.Context) ([]*domain.Auction, error)

	SetAuctionStatus(ctx context.Context, id uuid.UUID, status domain.AuctionStatus, upd AuctionUpdate) error
	SetItemStatus(ctx context.Context, itemID uuid.UUID, status domain.ItemStatus, upd ItemUpdate) error

	// AppendBid appends the bid row and updates the item's highest bid and
	// bidder in a single transaction.
	AppendBid(ctx context.Context, bid *domain.Bid) error

	// FinalizeItem marks the item SOLD or UNSOLD and, iff a winner exists,
	// creates the ItemResult row in the same transaction.
	FinalizeItem(ctx context.Context, itemID uuid.UUID, winnerID *uuid.UUID, finalPrice int64, soldAt time.Time) error

	// FinalizeAuction marks the auction ended and upserts one ItemResult
	// per winning row in a single transaction.
	FinalizeAuction(ctx context.Context, auctionID uuid.UUID, results []domain.ItemResult, endedAt time.Time) error

	// BidsForItem returns the persisted bids for an item oldest first.
	BidsForItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Bid, error)

	// ResultForItem returns the ItemResult row for a sold item, nil if none.
	ResultForItem(ctx context.Context, itemID uuid.UUID) (*domain.ItemResult, error)
}

type Repositories struct {
	User    UserRepository
	Session SessionRepository
	Auction AuctionRepository
}
