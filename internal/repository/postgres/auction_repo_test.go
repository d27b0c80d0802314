package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom/live-auction-server/internal/domain"
	"github.com/dom/live-auction-server/internal/repository"
	"github.com/dom/live-auction-server/internal/repository/postgres"
	"github.com/dom/live-auction-server/internal/testutil"
)

func newAuction(sellerID uuid.UUID, itemCount int) *domain.Auction {
	auctionID := uuid.New()
	auction := &domain.Auction{
		ID:        auctionID,
		SellerID:  sellerID,
		Status:    domain.AuctionStatusCreated,
		CreatedAt: time.Now().UTC(),
	}
	for i := 0; i < itemCount; i++ {
		auction.Items = append(auction.Items, domain.AuctionItem{
			ID:            uuid.New(),
			AuctionID:     auctionID,
			ItemOrder:     i,
			Name:          "Lot",
			StartingPrice: 100,
			DurationSec:   60,
			Status:        domain.ItemStatusPending,
			HighestBid:    100,
		})
		auction.MaxDurationSec += 60
	}
	return auction
}

func TestAuctionRepository_CreateAndLoad(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	seller, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	auction := newAuction(seller.ID, 3)

	require.NoError(t, repos.Auction.Create(ctx, auction))

	loaded, err := repos.Auction.GetByID(ctx, auction.ID)
	require.NoError(t, err)

	assert.Equal(t, auction.ID, loaded.ID)
	assert.Equal(t, domain.AuctionStatusCreated, loaded.Status)
	require.NotNil(t, loaded.Seller)
	assert.Equal(t, seller.DisplayName, loaded.Seller.DisplayName)
	require.Len(t, loaded.Items, 3)
	for i, item := range loaded.Items {
		assert.Equal(t, i, item.ItemOrder, "items must come back ordered")
		assert.Equal(t, domain.ItemStatusPending, item.Status)
	}
}

func TestAuctionRepository_GetByID_NotFound(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)

	_, err := repos.Auction.GetByID(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrAuctionNotFound)
}

func TestAuctionRepository_StatusTransitions(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	seller, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	auction := newAuction(seller.ID, 2)
	require.NoError(t, repos.Auction.Create(ctx, auction))

	now := time.Now().UTC()
	require.NoError(t, repos.Auction.SetAuctionStatus(ctx, auction.ID, domain.AuctionStatusLive, repository.AuctionUpdate{StartedAt: &now}))
	require.NoError(t, repos.Auction.SetItemStatus(ctx, auction.Items[0].ID, domain.ItemStatusLive, repository.ItemUpdate{LiveAt: &now}))

	loaded, err := repos.Auction.GetByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusLive, loaded.Status)
	require.NotNil(t, loaded.StartedAt)
	assert.Equal(t, domain.ItemStatusLive, loaded.Items[0].Status)
	require.NotNil(t, loaded.Items[0].LiveAt)

	idx := 1
	require.NoError(t, repos.Auction.SetAuctionStatus(ctx, auction.ID, domain.AuctionStatusLive, repository.AuctionUpdate{CurrentItemIndex: &idx}))

	loaded, err = repos.Auction.GetByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.CurrentItemIndex)
}

func TestAuctionRepository_AppendBid(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	seller, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	bidder, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	auction := newAuction(seller.ID, 1)
	require.NoError(t, repos.Auction.Create(ctx, auction))

	itemID := auction.Items[0].ID
	for i, amount := range []int64{110, 120, 135} {
		require.NoError(t, repos.Auction.AppendBid(ctx, &domain.Bid{
			ID:        uuid.New(),
			AuctionID: auction.ID,
			ItemID:    itemID,
			BidderID:  bidder.ID,
			Amount:    amount,
			CreatedAt: time.Now().UTC().Add(time.Duration(i) * time.Millisecond),
		}))
	}

	// The item row tracks the latest appended bid.
	loaded, err := repos.Auction.GetByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(135), loaded.Items[0].HighestBid)
	require.NotNil(t, loaded.Items[0].HighestBidderID)
	assert.Equal(t, bidder.ID, *loaded.Items[0].HighestBidderID)

	bids, err := repos.Auction.BidsForItem(ctx, itemID)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	var prev int64
	for _, bid := range bids {
		assert.Greater(t, bid.Amount, prev)
		prev = bid.Amount
	}
}

func TestAuctionRepository_FinalizeItem(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	seller, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	winner, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	auction := newAuction(seller.ID, 2)
	require.NoError(t, repos.Auction.Create(ctx, auction))

	now := time.Now().UTC()

	t.Run("sold item gets a result row", func(t *testing.T) {
		itemID := auction.Items[0].ID
		winnerID := winner.ID
		require.NoError(t, repos.Auction.FinalizeItem(ctx, itemID, &winnerID, 250, now))

		loaded, err := repos.Auction.GetByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusSold, loaded.Items[0].Status)
		assert.Equal(t, int64(250), loaded.Items[0].HighestBid)

		result, err := repos.Auction.ResultForItem(ctx, itemID)
		require.NoError(t, err)
		require.NotNil(t, result)
		assert.Equal(t, winner.ID, result.WinnerID)
		assert.Equal(t, int64(250), result.FinalPrice)
	})

	t.Run("unsold item gets no result row", func(t *testing.T) {
		itemID := auction.Items[1].ID
		require.NoError(t, repos.Auction.FinalizeItem(ctx, itemID, nil, 100, now))

		loaded, err := repos.Auction.GetByID(ctx, auction.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.ItemStatusUnsold, loaded.Items[1].Status)

		result, err := repos.Auction.ResultForItem(ctx, itemID)
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("finalizing twice keeps a single result row", func(t *testing.T) {
		itemID := auction.Items[0].ID
		winnerID := winner.ID
		require.NoError(t, repos.Auction.FinalizeItem(ctx, itemID, &winnerID, 250, now))

		var count int64
		require.NoError(t, testDB.DB.Model(&domain.ItemResult{}).Where("item_id = ?", itemID).Count(&count).Error)
		assert.Equal(t, int64(1), count)
	})
}

func TestAuctionRepository_FinalizeAuction(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	seller, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	winner, _ := testutil.NewUserBuilder().Build(t, testDB.DB)
	auction := newAuction(seller.ID, 2)
	require.NoError(t, repos.Auction.Create(ctx, auction))

	now := time.Now().UTC()
	results := []domain.ItemResult{
		{ItemID: auction.Items[0].ID, WinnerID: winner.ID, FinalPrice: 300, SoldAt: now},
	}

	require.NoError(t, repos.Auction.FinalizeAuction(ctx, auction.ID, results, now))

	loaded, err := repos.Auction.GetByID(ctx, auction.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionStatusEnded, loaded.Status)
	require.NotNil(t, loaded.EndedAt)

	result, err := repos.Auction.ResultForItem(ctx, auction.Items[0].ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, int64(300), result.FinalPrice)
}

func TestAuctionRepository_LoadActive(t *testing.T) {
	testDB := testutil.NewTestDB(t)
	repos := postgres.NewRepositories(testDB.DB)
	ctx := context.Background()

	seller, _ := testutil.NewUserBuilder().Build(t, testDB.DB)

	created := newAuction(seller.ID, 1)
	require.NoError(t, repos.Auction.Create(ctx, created))

	live := newAuction(seller.ID, 1)
	require.NoError(t, repos.Auction.Create(ctx, live))
	now := time.Now().UTC()
	require.NoError(t, repos.Auction.SetAuctionStatus(ctx, live.ID, domain.AuctionStatusLive, repository.AuctionUpdate{StartedAt: &now}))

	ended := newAuction(seller.ID, 1)
	require.NoError(t, repos.Auction.Create(ctx, ended))
	require.NoError(t, repos.Auction.FinalizeAuction(ctx, ended.ID, nil, now))

	active, err := repos.Auction.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)

	ids := map[uuid.UUID]bool{}
	for _, a := range active {
		ids[a.ID] = true
		require.Len(t, a.Items, 1)
	}
	assert.True(t, ids[created.ID])
	assert.True(t, ids[live.ID])
	assert.False(t, ids[ended.ID])
}
