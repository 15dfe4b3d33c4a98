package shared

import "errors"

// Domain-specific errors
var (
	// Auction errors
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionClosed   = errors.New("auction is closed")
	ErrNotAuctionOwner = errors.New("only the auction owner may close it")
	ErrInvalidCrop     = errors.New("crop is required")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrInvalidBase     = errors.New("base price must be greater than 0")

	// Bid admission errors
	ErrBidTooLow        = errors.New("bid is below the base price")
	ErrBidNotHighEnough = errors.New("bid must be higher than the current highest bid")
	ErrBidAmountInvalid = errors.New("bid amount must be greater than 0")
	ErrAuctionBusy      = errors.New("auction is busy, please retry")

	// Store errors
	ErrVersionConflict = errors.New("auction was modified concurrently")

	// User / auth errors
	ErrUserNotFound    = errors.New("user not found")
	ErrUnauthenticated = errors.New("authentication required")
	ErrUserNotVerified = errors.New("user is not verified")
	ErrNotFarmer       = errors.New("only farmers may create auctions")
	ErrForbidden       = errors.New("forbidden")

	// WebSocket message validation errors
	ErrMessageTypeRequired  = errors.New("message type is required")
	ErrAuctionIDRequired    = errors.New("auction_id is required")
	ErrInvalidAmount        = errors.New("valid amount is required")
	ErrUnknownMessageType   = errors.New("unknown message type")
	ErrUserChannelMismatch  = errors.New("user room does not match the authenticated user")
	ErrClientChannelMissing = errors.New("client event channel not found")
)
