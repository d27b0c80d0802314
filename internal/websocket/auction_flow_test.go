package websocket_test

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom/live-auction-server/internal/broadcast"
	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/testutil"
	"github.com/dom/live-auction-server/internal/websocket"
)

func createAuction(t *testing.T, ts *testutil.TestServer, token string, items []map[string]interface{}) *coordinator.AuctionView {
	t.Helper()
	var view coordinator.AuctionView
	resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions"), token,
		map[string]interface{}{"items": items}, &view)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return &view
}

func startAuction(t *testing.T, ts *testutil.TestServer, token, auctionID string) *coordinator.AuctionView {
	t.Helper()
	var view coordinator.AuctionView
	resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+auctionID+"/start"), token, nil, &view)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return &view
}

func parsePayload(t *testing.T, msg *broadcast.Message, out interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Payload, out))
}

// A full auction over the realtime channel: join, bid, watch the item sell
// and the auction end.
func TestAuctionFlow(t *testing.T) {
	ts := testutil.NewTestServer(t)

	seller := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	bidder := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	view := createAuction(t, ts, seller.AccessToken, []map[string]interface{}{
		{"name": "Painting", "startingPrice": 100, "durationSec": 2},
	})

	sellerWS := testutil.NewWSClient(t, ts.WebSocketURL(seller.AccessToken))
	bidderWS := testutil.NewWSClient(t, ts.WebSocketURL(bidder.AccessToken))

	sellerWS.Send(broadcast.MessageTypeJoinAuction, websocket.JoinAuctionPayload{AuctionID: view.ID})
	bidderWS.Send(broadcast.MessageTypeJoinAuction, websocket.JoinAuctionPayload{AuctionID: view.ID})

	// Joining yields an immediate state sync.
	msg := bidderWS.WaitFor(broadcast.MessageTypeAuctionState, 2*time.Second)
	var state coordinator.AuctionView
	parsePayload(t, msg, &state)
	assert.Equal(t, "created", state.Status)

	startAuction(t, ts, seller.AccessToken, view.ID)

	msg = bidderWS.WaitFor(broadcast.MessageTypeAuctionState, 2*time.Second)
	parsePayload(t, msg, &state)
	assert.Equal(t, "live", state.Status)
	require.NotNil(t, state.ItemEndTime)

	bidderWS.Send(broadcast.MessageTypePlaceBid, websocket.PlaceBidPayload{
		AuctionID: view.ID,
		Amount:    150,
	})

	msg = bidderWS.WaitFor(broadcast.MessageTypeBidResult, 2*time.Second)
	var outcome struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	parsePayload(t, msg, &outcome)
	assert.True(t, outcome.Accepted)

	// Both subscribers see the item sell when the timer fires.
	msg = sellerWS.WaitFor(broadcast.MessageTypeItemSold, 5*time.Second)
	var sold coordinator.ItemSoldPayload
	parsePayload(t, msg, &sold)
	require.NotNil(t, sold.WinnerID)
	assert.Equal(t, bidder.User.ID, *sold.WinnerID)
	assert.Equal(t, int64(150), sold.FinalPrice)

	msg = bidderWS.WaitFor(broadcast.MessageTypeAuctionEnded, 5*time.Second)
	var ended coordinator.AuctionEndedPayload
	parsePayload(t, msg, &ended)
	require.Len(t, ended.Results, 1)
	require.NotNil(t, ended.Results[0].WinnerID)
	assert.Equal(t, bidder.User.ID, *ended.Results[0].WinnerID)
}

func TestAuctionFlow_BidRejections(t *testing.T) {
	ts := testutil.NewTestServer(t)

	seller := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	bidder := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	view := createAuction(t, ts, seller.AccessToken, []map[string]interface{}{
		{"name": "Vase", "startingPrice": 100, "durationSec": 60},
	})

	bidderWS := testutil.NewWSClient(t, ts.WebSocketURL(bidder.AccessToken))
	bidderWS.Send(broadcast.MessageTypeJoinAuction, websocket.JoinAuctionPayload{AuctionID: view.ID})
	bidderWS.WaitFor(broadcast.MessageTypeAuctionState, 2*time.Second)

	var outcome struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}

	// Before start the auction is not live.
	bidderWS.Send(broadcast.MessageTypePlaceBid, websocket.PlaceBidPayload{AuctionID: view.ID, Amount: 150})
	msg := bidderWS.WaitFor(broadcast.MessageTypeBidResult, 2*time.Second)
	parsePayload(t, msg, &outcome)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, "not_live", outcome.Reason)

	startAuction(t, ts, seller.AccessToken, view.ID)

	// At the starting price the bid is too low.
	bidderWS.Send(broadcast.MessageTypePlaceBid, websocket.PlaceBidPayload{AuctionID: view.ID, Amount: 100})
	msg = bidderWS.WaitFor(broadcast.MessageTypeBidResult, 2*time.Second)
	parsePayload(t, msg, &outcome)
	assert.False(t, outcome.Accepted)
	assert.Equal(t, "bid_too_low", outcome.Reason)

	// A proper bid goes through; the room sees the new state before the
	// bidder receives its result.
	bidderWS.Send(broadcast.MessageTypePlaceBid, websocket.PlaceBidPayload{AuctionID: view.ID, Amount: 200})
	msg = bidderWS.WaitFor(broadcast.MessageTypeAuctionState, 2*time.Second)
	var state coordinator.AuctionView
	parsePayload(t, msg, &state)
	assert.Equal(t, int64(200), state.Items[0].HighestBid)

	msg = bidderWS.WaitFor(broadcast.MessageTypeBidResult, 2*time.Second)
	parsePayload(t, msg, &outcome)
	assert.True(t, outcome.Accepted)
}

func TestAuctionFlow_JoinUnknownAuction(t *testing.T) {
	ts := testutil.NewTestServer(t)
	user := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	ws := testutil.NewWSClient(t, ts.WebSocketURL(user.AccessToken))
	ws.Send(broadcast.MessageTypeJoinAuction, websocket.JoinAuctionPayload{AuctionID: "b5c7f8e0-0000-0000-0000-000000000000"})

	msg := ws.WaitFor(broadcast.MessageTypeError, 2*time.Second)
	var errPayload broadcast.ErrorPayload
	parsePayload(t, msg, &errPayload)
	assert.Equal(t, "AUCTION_NOT_FOUND", errPayload.Code)
}

func TestAuctionFlow_LeaveStopsUpdates(t *testing.T) {
	ts := testutil.NewTestServer(t)

	seller := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	watcher := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	view := createAuction(t, ts, seller.AccessToken, []map[string]interface{}{
		{"name": "Clock", "startingPrice": 10, "durationSec": 60},
	})

	ws := testutil.NewWSClient(t, ts.WebSocketURL(watcher.AccessToken))
	ws.Send(broadcast.MessageTypeJoinAuction, websocket.JoinAuctionPayload{AuctionID: view.ID})
	ws.WaitFor(broadcast.MessageTypeAuctionState, 2*time.Second)

	ws.Send(broadcast.MessageTypeLeaveAuction, websocket.LeaveAuctionPayload{AuctionID: view.ID})

	// Give the leave a moment to land before mutating.
	time.Sleep(100 * time.Millisecond)
	startAuction(t, ts, seller.AccessToken, view.ID)

	select {
	case msg := <-ws.Messages():
		if msg != nil {
			t.Fatalf("expected no message after leaving, got %s", msg.Type)
		}
	case <-time.After(500 * time.Millisecond):
	}
}
