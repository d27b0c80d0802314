package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/domain"
	"github.com/dom/live-auction-server/internal/repository"
)

// MemoryLog is an in-memory stand-in for the durable log so coordinator and
// engine-level tests run without a database. It mirrors the transactional
// semantics of the Postgres implementation under a single mutex.
type MemoryLog struct {
	mu       sync.Mutex
	users    map[uuid.UUID]*domain.User
	auctions map[uuid.UUID]*domain.Auction
	bids     map[uuid.UUID][]*domain.Bid // itemID -> bids, append order
	results  map[uuid.UUID]*domain.ItemResult
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		users:    make(map[uuid.UUID]*domain.User),
		auctions: make(map[uuid.UUID]*domain.Auction),
		bids:     make(map[uuid.UUID][]*domain.Bid),
		results:  make(map[uuid.UUID]*domain.ItemResult),
	}
}

// Users returns a repository.UserRepository view of the log.
func (m *MemoryLog) Users() repository.UserRepository { return (*memoryUsers)(m) }

type memoryUsers MemoryLog

func (m *memoryUsers) Create(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memoryUsers) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	cp := *user
	return &cp, nil
}

func (m *memoryUsers) GetByDisplayName(ctx context.Context, displayName string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.users {
		if user.DisplayName == displayName {
			cp := *user
			return &cp, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *memoryUsers) Update(ctx context.Context, user *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *MemoryLog) Create(ctx context.Context, auction *domain.Auction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auctions[auction.ID] = auction.Clone()
	return nil
}

func (m *MemoryLog) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction, ok := m.auctions[id]
	if !ok {
		return nil, domain.ErrAuctionNotFound
	}
	return auction.Clone(), nil
}

func (m *MemoryLog) List(ctx context.Context) ([]*domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Auction, 0, len(m.auctions))
	for _, auction := range m.auctions {
		cp := auction.Clone()
		if seller, ok := m.users[auction.SellerID]; ok {
			s := *seller
			cp.Seller = &s
		}
		out = append(out, cp)
	}
	return out, nil
}

func (m *MemoryLog) LoadActive(ctx context.Context) ([]*domain.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Auction
	for _, auction := range m.auctions {
		if auction.Status != domain.AuctionStatusEnded {
			out = append(out, auction.Clone())
		}
	}
	return out, nil
}

func (m *MemoryLog) SetAuctionStatus(ctx context.Context, id uuid.UUID, status domain.AuctionStatus, upd repository.AuctionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction, ok := m.auctions[id]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	auction.Status = status
	if upd.StartedAt != nil {
		t := *upd.StartedAt
		auction.StartedAt = &t
	}
	if upd.EndedAt != nil {
		t := *upd.EndedAt
		auction.EndedAt = &t
	}
	if upd.CurrentItemIndex != nil {
		auction.CurrentItemIndex = *upd.CurrentItemIndex
	}
	return nil
}

func (m *MemoryLog) SetItemStatus(ctx context.Context, itemID uuid.UUID, status domain.ItemStatus, upd repository.ItemUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.findItem(itemID)
	if item == nil {
		return domain.ErrAuctionNotFound
	}
	item.Status = status
	if upd.HighestBid != nil {
		item.HighestBid = *upd.HighestBid
	}
	if upd.HighestBidderID != nil {
		id := *upd.HighestBidderID
		item.HighestBidderID = &id
	}
	if upd.Extended != nil {
		item.Extended = *upd.Extended
	}
	if upd.LiveAt != nil {
		t := *upd.LiveAt
		item.LiveAt = &t
	}
	if upd.SoldAt != nil {
		t := *upd.SoldAt
		item.SoldAt = &t
	}
	return nil
}

func (m *MemoryLog) AppendBid(ctx context.Context, bid *domain.Bid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.findItem(bid.ItemID)
	if item == nil {
		return domain.ErrAuctionNotFound
	}
	cp := *bid
	m.bids[bid.ItemID] = append(m.bids[bid.ItemID], &cp)
	item.HighestBid = bid.Amount
	bidder := bid.BidderID
	item.HighestBidderID = &bidder
	return nil
}

func (m *MemoryLog) FinalizeItem(ctx context.Context, itemID uuid.UUID, winnerID *uuid.UUID, finalPrice int64, soldAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item := m.findItem(itemID)
	if item == nil {
		return domain.ErrAuctionNotFound
	}
	item.HighestBid = finalPrice
	if winnerID == nil {
		item.Status = domain.ItemStatusUnsold
		return nil
	}
	item.Status = domain.ItemStatusSold
	winner := *winnerID
	item.HighestBidderID = &winner
	t := soldAt
	item.SoldAt = &t
	m.results[itemID] = &domain.ItemResult{
		ID:         uuid.New(),
		ItemID:     itemID,
		WinnerID:   winner,
		FinalPrice: finalPrice,
		SoldAt:     soldAt,
	}
	return nil
}

func (m *MemoryLog) FinalizeAuction(ctx context.Context, auctionID uuid.UUID, results []domain.ItemResult, endedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	auction, ok := m.auctions[auctionID]
	if !ok {
		return domain.ErrAuctionNotFound
	}
	auction.Status = domain.AuctionStatusEnded
	t := endedAt
	auction.EndedAt = &t
	for i := range results {
		res := results[i]
		if res.ID == uuid.Nil {
			res.ID = uuid.New()
		}
		m.results[res.ItemID] = &res
	}
	return nil
}

func (m *MemoryLog) BidsForItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Bid, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bids := m.bids[itemID]
	out := make([]*domain.Bid, len(bids))
	for i, bid := range bids {
		cp := *bid
		out[i] = &cp
	}
	return out, nil
}

func (m *MemoryLog) ResultForItem(ctx context.Context, itemID uuid.UUID) (*domain.ItemResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res, ok := m.results[itemID]
	if !ok {
		return nil, nil
	}
	cp := *res
	return &cp, nil
}

func (m *MemoryLog) findItem(itemID uuid.UUID) *domain.AuctionItem {
	for _, auction := range m.auctions {
		for i := range auction.Items {
			if auction.Items[i].ID == itemID {
				return &auction.Items[i]
			}
		}
	}
	return nil
}
