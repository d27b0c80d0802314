package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dom/live-auction-server/internal/api/middleware"
	"github.com/dom/live-auction-server/internal/config"
	"github.com/dom/live-auction-server/internal/coordinator"
	"github.com/dom/live-auction-server/internal/domain"
	"github.com/dom/live-auction-server/internal/engine"
	"github.com/dom/live-auction-server/internal/service"
)

type AuctionHandler struct {
	coord *coordinator.Coordinator
	video *service.VideoService
	cfg   *config.Config
}

func NewAuctionHandler(coord *coordinator.Coordinator, video *service.VideoService, cfg *config.Config) *AuctionHandler {
	return &AuctionHandler{coord: coord, video: video, cfg: cfg}
}

type CreateAuctionItem struct {
	Name             string `json:"name"`
	StartingPrice    int64  `json:"startingPrice"`
	DurationSec      int    `json:"durationSec"`
	ExtraDurationSec int    `json:"extraDurationSec"`
}

type CreateAuctionRequest struct {
	Items []CreateAuctionItem `json:"items"`
}

func (h *AuctionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}

	var req CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "Invalid request body")
		return
	}
	if len(req.Items) == 0 {
		respondError(w, http.StatusBadRequest, "no_items", "Auction needs at least one item")
		return
	}

	items := make([]engine.ItemInput, len(req.Items))
	for i, in := range req.Items {
		if in.Name == "" || len(in.Name) > 128 {
			respondError(w, http.StatusBadRequest, "invalid_item_name", "Item name must be 1-128 characters")
			return
		}
		if in.StartingPrice < 0 {
			respondError(w, http.StatusBadRequest, "invalid_starting_price", "Starting price must be non-negative")
			return
		}
		duration := in.DurationSec
		if duration <= 0 {
			duration = h.cfg.DefaultItemDurationSec
		}
		extra := in.ExtraDurationSec
		if extra < 0 {
			extra = 0
		}
		items[i] = engine.ItemInput{
			Name:             in.Name,
			StartingPrice:    in.StartingPrice,
			DurationSec:      duration,
			ExtraDurationSec: extra,
		}
	}

	view, err := h.coord.CreateAuction(r.Context(), userID, items)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			respondError(w, http.StatusBadRequest, "invalid_seller", "Seller does not exist")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to create auction")
		return
	}

	respondJSON(w, http.StatusCreated, view)
}

func (h *AuctionHandler) List(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.coord.ListAuctions(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal", "Failed to list auctions")
		return
	}
	respondJSON(w, http.StatusOK, summaries)
}

func (h *AuctionHandler) Get(w http.ResponseWriter, r *http.Request) {
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	view, err := h.coord.GetAuction(r.Context(), auctionID)
	if err != nil {
		if errors.Is(err, domain.ErrAuctionNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Auction not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to load auction")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *AuctionHandler) Start(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	view, err := h.coord.StartAuction(r.Context(), auctionID, userID)
	if err != nil {
		respondCoordinatorError(w, err, "Failed to start auction")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *AuctionHandler) Extend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	view, err := h.coord.ExtendItem(r.Context(), auctionID, userID)
	if err != nil {
		respondCoordinatorError(w, err, "Failed to extend item")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

func (h *AuctionHandler) VideoToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "Unauthorized")
		return
	}
	auctionID, ok := parseAuctionID(w, r)
	if !ok {
		return
	}

	if _, err := h.coord.GetAuction(r.Context(), auctionID); err != nil {
		respondError(w, http.StatusNotFound, "not_found", "Auction not found")
		return
	}

	token, err := h.video.IssueToken(auctionID, userID)
	if err != nil {
		if errors.Is(err, service.ErrVideoNotConfigured) {
			respondError(w, http.StatusServiceUnavailable, "video_not_configured", "Video credentials are not configured")
			return
		}
		respondError(w, http.StatusInternalServerError, "internal", "Failed to issue video token")
		return
	}

	respondJSON(w, http.StatusOK, token)
}

func parseAuctionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	auctionID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusNotFound, "not_found", "Auction not found")
		return uuid.Nil, false
	}
	return auctionID, true
}

func respondCoordinatorError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, domain.ErrAuctionNotFound):
		respondError(w, http.StatusNotFound, "not_found", "Auction not found")
	case errors.Is(err, domain.ErrPermissionDenied):
		respondError(w, http.StatusBadRequest, "permission_denied", "Only the seller can perform this action")
	case errors.Is(err, domain.ErrIllegalTransition):
		respondError(w, http.StatusBadRequest, "illegal_transition", "Auction is not in a valid state for this action")
	case errors.Is(err, domain.ErrNoItems):
		respondError(w, http.StatusBadRequest, "no_items", "Auction has no items")
	case errors.Is(err, domain.ErrAlreadyExtended):
		respondError(w, http.StatusBadRequest, "already_extended", "Item has already been extended")
	case errors.Is(err, domain.ErrNotLive), errors.Is(err, domain.ErrNoLiveItem):
		respondError(w, http.StatusBadRequest, "not_live", "Auction is not live")
	case errors.Is(err, domain.ErrUnavailable):
		respondError(w, http.StatusServiceUnavailable, "unavailable", "Backing service unavailable")
	default:
		respondError(w, http.StatusInternalServerError, "internal", fallback)
	}
}
