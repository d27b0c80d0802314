package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dom/live-auction-server/internal/domain"
	"github.com/dom/live-auction-server/internal/repository"
)

type auctionRepository struct {
	db *gorm.DB
}

func NewAuctionRepository(db *gorm.DB) *auctionRepository {
	return &auctionRepository{db: db}
}

func (r *auctionRepository) Create(ctx context.Context, auction *domain.Auction) error {
	// gorm persists the Items association in the same transaction as the
	// auction row.
	return r.db.WithContext(ctx).Create(auction).Error
}

func (r *auctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Auction, error) {
	var auction domain.Auction
	err := r.db.WithContext(ctx).
		Preload("Seller").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("item_order ASC")
		}).
		First(&auction, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

func (r *auctionRepository) List(ctx context.Context) ([]*domain.Auction, error) {
	var auctions []*domain.Auction
	err := r.db.WithContext(ctx).
		Preload("Seller").
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("item_order ASC")
		}).
		Order("created_at DESC").
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (r *auctionRepository) LoadActive(ctx context.Context) ([]*domain.Auction, error) {
	var auctions []*domain.Auction
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("item_order ASC")
		}).
		Where("status <> ?", domain.AuctionStatusEnded).
		Order("created_at ASC").
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (r *auctionRepository) SetAuctionStatus(ctx context.Context, id uuid.UUID, status domain.AuctionStatus, upd repository.AuctionUpdate) error {
	fields := map[string]interface{}{"status": status}
	if upd.StartedAt != nil {
		fields["started_at"] = *upd.StartedAt
	}
	if upd.EndedAt != nil {
		fields["ended_at"] = *upd.EndedAt
	}
	if upd.CurrentItemIndex != nil {
		fields["current_item_index"] = *upd.CurrentItemIndex
	}
	return r.db.WithContext(ctx).
		Model(&domain.Auction{}).
		Where("id = ?", id).
		Updates(fields).Error
}

func (r *auctionRepository) SetItemStatus(ctx context.Context, itemID uuid.UUID, status domain.ItemStatus, upd repository.ItemUpdate) error {
	fields := map[string]interface{}{"status": status}
	if upd.HighestBid != nil {
		fields["highest_bid"] = *upd.HighestBid
	}
	if upd.HighestBidderID != nil {
		fields["highest_bidder_id"] = *upd.HighestBidderID
	}
	if upd.Extended != nil {
		fields["extended"] = *upd.Extended
	}
	if upd.LiveAt != nil {
		fields["live_at"] = *upd.LiveAt
	}
	if upd.SoldAt != nil {
		fields["sold_at"] = *upd.SoldAt
	}
	return r.db.WithContext(ctx).
		Model(&domain.AuctionItem{}).
		Where("id = ?", itemID).
		Updates(fields).Error
}

func (r *auctionRepository) AppendBid(ctx context.Context, bid *domain.Bid) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(bid).Error; err != nil {
			return err
		}
		return tx.Model(&domain.AuctionItem{}).
			Where("id = ?", bid.ItemID).
			Updates(map[string]interface{}{
				"highest_bid":       bid.Amount,
				"highest_bidder_id": bid.BidderID,
			}).Error
	})
}

func (r *auctionRepository) FinalizeItem(ctx context.Context, itemID uuid.UUID, winnerID *uuid.UUID, finalPrice int64, soldAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		status := domain.ItemStatusUnsold
		fields := map[string]interface{}{"highest_bid": finalPrice}
		if winnerID != nil {
			status = domain.ItemStatusSold
			fields["highest_bidder_id"] = *winnerID
			fields["sold_at"] = soldAt
		}
		fields["status"] = status
		if err := tx.Model(&domain.AuctionItem{}).Where("id = ?", itemID).Updates(fields).Error; err != nil {
			return err
		}
		if winnerID == nil {
			return nil
		}
		result := &domain.ItemResult{
			ID:         uuid.New(),
			ItemID:     itemID,
			WinnerID:   *winnerID,
			FinalPrice: finalPrice,
			SoldAt:     soldAt,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "item_id"}},
			UpdateAll: true,
		}).Create(result).Error
	})
}

func (r *auctionRepository) FinalizeAuction(ctx context.Context, auctionID uuid.UUID, results []domain.ItemResult, endedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&domain.Auction{}).
			Where("id = ?", auctionID).
			Updates(map[string]interface{}{
				"status":   domain.AuctionStatusEnded,
				"ended_at": endedAt,
			}).Error
		if err != nil {
			return err
		}
		for i := range results {
			res := results[i]
			if res.ID == uuid.Nil {
				res.ID = uuid.New()
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "item_id"}},
				UpdateAll: true,
			}).Create(&res).Error
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *auctionRepository) BidsForItem(ctx context.Context, itemID uuid.UUID) ([]*domain.Bid, error) {
	var bids []*domain.Bid
	err := r.db.WithContext(ctx).
		Where("item_id = ?", itemID).
		Order("created_at ASC").
		Find(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

func (r *auctionRepository) ResultForItem(ctx context.Context, itemID uuid.UUID) (*domain.ItemResult, error) {
	var result domain.ItemResult
	err := r.db.WithContext(ctx).First(&result, "item_id = ?", itemID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}
