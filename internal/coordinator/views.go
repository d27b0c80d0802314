package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/domain"
)

// AuctionView is the wire representation of an auction's full state. It backs
// both the HTTP responses and the auction_state broadcast payload.
type AuctionView struct {
	ID               string     `json:"id"`
	SellerID         string     `json:"sellerId"`
	Status           string     `json:"status"`
	CurrentItemIndex int        `json:"currentItemIndex"`
	MaxDurationSec   int        `json:"maxDurationSec"`
	CreatedAt        time.Time  `json:"createdAt"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	EndedAt          *time.Time `json:"endedAt,omitempty"`
	// ItemEndTime is epoch milliseconds, present while an item timer is
	// armed, for client countdown rendering.
	ItemEndTime *int64     `json:"itemEndTime,omitempty"`
	Items       []ItemView `json:"items"`
}

type ItemView struct {
	ID               string     `json:"id"`
	ItemOrder        int        `json:"itemOrder"`
	Name             string     `json:"name"`
	StartingPrice    int64      `json:"startingPrice"`
	DurationSec      int        `json:"durationSec"`
	ExtraDurationSec int        `json:"extraDurationSec"`
	Status           string     `json:"status"`
	HighestBid       int64      `json:"highestBid"`
	Extended         bool       `json:"extended"`
	HighestBidderID  *string    `json:"highestBidderId,omitempty"`
	SoldAt           *time.Time `json:"soldAt,omitempty"`
}

// AuctionSummary is one row of the listing endpoint.
type AuctionSummary struct {
	ID            string    `json:"id"`
	SellerID      string    `json:"sellerId"`
	SellerName    string    `json:"sellerName"`
	Status        string    `json:"status"`
	FirstItemName string    `json:"firstItemName"`
	ItemCount     int       `json:"itemCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

type ItemSoldPayload struct {
	AuctionID  string  `json:"auctionId"`
	ItemID     string  `json:"itemId"`
	WinnerID   *string `json:"winnerId"`
	FinalPrice int64   `json:"finalPrice"`
}

type ItemResultView struct {
	ItemID     string  `json:"itemId"`
	WinnerID   *string `json:"winnerId"`
	FinalPrice int64   `json:"finalPrice"`
}

type AuctionEndedPayload struct {
	AuctionID string           `json:"auctionId"`
	Results   []ItemResultView `json:"results"`
}

func viewFromState(a *domain.Auction, itemEndTime *int64) *AuctionView {
	view := &AuctionView{
		ID:               a.ID.String(),
		SellerID:         a.SellerID.String(),
		Status:           string(a.Status),
		CurrentItemIndex: a.CurrentItemIndex,
		MaxDurationSec:   a.MaxDurationSec,
		CreatedAt:        a.CreatedAt,
		StartedAt:        a.StartedAt,
		EndedAt:          a.EndedAt,
		ItemEndTime:      itemEndTime,
		Items:            make([]ItemView, len(a.Items)),
	}
	for i := range a.Items {
		item := &a.Items[i]
		iv := ItemView{
			ID:               item.ID.String(),
			ItemOrder:        item.ItemOrder,
			Name:             item.Name,
			StartingPrice:    item.StartingPrice,
			DurationSec:      item.DurationSec,
			ExtraDurationSec: item.ExtraDurationSec,
			Status:           string(item.Status),
			HighestBid:       item.HighestBid,
			Extended:         item.Extended,
			SoldAt:           item.SoldAt,
		}
		if item.HighestBidderID != nil {
			s := item.HighestBidderID.String()
			iv.HighestBidderID = &s
		}
		view.Items[i] = iv
	}
	return view
}

func summaryFromAuction(a *domain.Auction) AuctionSummary {
	summary := AuctionSummary{
		ID:        a.ID.String(),
		SellerID:  a.SellerID.String(),
		Status:    string(a.Status),
		ItemCount: len(a.Items),
		CreatedAt: a.CreatedAt,
	}
	if a.Seller != nil {
		summary.SellerName = a.Seller.DisplayName
	}
	if len(a.Items) > 0 {
		summary.FirstItemName = a.Items[0].Name
	}
	return summary
}

func optionalID(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
