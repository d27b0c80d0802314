package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/testutil"
)

type errorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestAuctionEndpoints(t *testing.T) {
	ts := testutil.NewTestServer(t)

	seller := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)
	other := testutil.NewUserBuilder().BuildAndAuthenticate(t, ts)

	items := []map[string]interface{}{
		{"name": "Painting", "startingPrice": 100, "durationSec": 60, "extraDurationSec": 15},
		{"name": "Vase", "startingPrice": 50, "durationSec": 60},
	}

	var created coordinator.AuctionView

	t.Run("create requires auth", func(t *testing.T) {
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions"), "",
			map[string]interface{}{"items": items}, nil)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("create rejects empty items", func(t *testing.T) {
		var envelope errorEnvelope
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions"), seller.AccessToken,
			map[string]interface{}{"items": []map[string]interface{}{}}, &envelope)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "no_items", envelope.Error.Code)
	})

	t.Run("create succeeds", func(t *testing.T) {
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions"), seller.AccessToken,
			map[string]interface{}{"items": items}, &created)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		assert.Equal(t, "created", created.Status)
		assert.Equal(t, seller.User.ID, created.SellerID)
		require.Len(t, created.Items, 2)
		assert.Equal(t, "Painting", created.Items[0].Name)
	})

	t.Run("get returns the full state", func(t *testing.T) {
		var view coordinator.AuctionView
		resp := testutil.DoJSON(t, http.MethodGet, ts.APIURL("/auctions/"+created.ID), "", nil, &view)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, created.ID, view.ID)
	})

	t.Run("get unknown auction is 404", func(t *testing.T) {
		resp := testutil.DoJSON(t, http.MethodGet, ts.APIURL("/auctions/5f0c9a7e-0000-0000-0000-000000000000"), "", nil, nil)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("list includes the summary", func(t *testing.T) {
		var summaries []coordinator.AuctionSummary
		resp := testutil.DoJSON(t, http.MethodGet, ts.APIURL("/auctions"), "", nil, &summaries)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, summaries, 1)
		assert.Equal(t, created.ID, summaries[0].ID)
		assert.Equal(t, "Painting", summaries[0].FirstItemName)
		assert.Equal(t, 2, summaries[0].ItemCount)
		assert.NotEmpty(t, summaries[0].SellerName)
	})

	t.Run("extend before start is 400", func(t *testing.T) {
		var envelope errorEnvelope
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/extend"), seller.AccessToken, nil, &envelope)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "not_live", envelope.Error.Code)
	})

	t.Run("non-seller cannot start", func(t *testing.T) {
		var envelope errorEnvelope
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/start"), other.AccessToken, nil, &envelope)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "permission_denied", envelope.Error.Code)
	})

	t.Run("seller starts the auction", func(t *testing.T) {
		var view coordinator.AuctionView
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/start"), seller.AccessToken, nil, &view)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "live", view.Status)
		assert.Equal(t, "live", view.Items[0].Status)
		require.NotNil(t, view.ItemEndTime)
	})

	t.Run("second start is 400", func(t *testing.T) {
		var envelope errorEnvelope
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/start"), seller.AccessToken, nil, &envelope)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "illegal_transition", envelope.Error.Code)
	})

	t.Run("non-seller cannot extend", func(t *testing.T) {
		var envelope errorEnvelope
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/extend"), other.AccessToken, nil, &envelope)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "permission_denied", envelope.Error.Code)
	})

	t.Run("seller extends once", func(t *testing.T) {
		var view coordinator.AuctionView
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/extend"), seller.AccessToken, nil, &view)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, view.Items[0].Extended)

		var envelope errorEnvelope
		resp = testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/extend"), seller.AccessToken, nil, &envelope)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "already_extended", envelope.Error.Code)
	})

	t.Run("video token for a known auction", func(t *testing.T) {
		var token struct {
			AppID     string `json:"appId"`
			ChannelID string `json:"channelId"`
			Token     string `json:"token"`
		}
		resp := testutil.DoJSON(t, http.MethodPost, ts.APIURL("/auctions/"+created.ID+"/video-token"), seller.AccessToken, nil, &token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, created.ID, token.ChannelID)
		assert.NotEmpty(t, token.Token)
	})
}
