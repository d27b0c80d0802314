package websocket

// Client to server payloads. Server to client payloads live with the
// components that emit them: auction state in coordinator, the envelope and
// error payload in broadcast.

type JoinAuctionPayload struct {
	AuctionID string `json:"auctionId"`
}

type LeaveAuctionPayload struct {
	AuctionID string `json:"auctionId"`
}

type PlaceBidPayload struct {
	AuctionID      string `json:"auctionId"`
	Amount         int64  `json:"amount"`
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}
