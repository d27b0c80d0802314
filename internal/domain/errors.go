package domain

import "errors"

// Lifecycle errors
var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrIllegalTransition = errors.New("illegal auction transition")
	ErrNoItems           = errors.New("auction has no items")
	ErrAlreadyExtended   = errors.New("item has already been extended")
	ErrPermissionDenied  = errors.New("only the seller can perform this action")
)

// Bid errors
var (
	ErrNotLive           = errors.New("auction is not live")
	ErrNoLiveItem        = errors.New("no item is currently live")
	ErrBidTooLow         = errors.New("bid amount too low")
	ErrOutpacedByAnother = errors.New("outpaced by a concurrent bid")
	ErrDuplicateInFlight = errors.New("identical bid is already in flight")
)

// Infrastructure errors
var (
	ErrUnavailable = errors.New("backing service unavailable")
)

// Machine-readable reason codes carried in bid results and HTTP error bodies.
const (
	ReasonNotLive           = "not_live"
	ReasonNoLiveItem        = "no_live_item"
	ReasonBidTooLow         = "bid_too_low"
	ReasonOutpaced          = "outpaced_by_another"
	ReasonDuplicateInFlight = "duplicate_in_flight"
)
