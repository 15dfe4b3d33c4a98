package inbound

import (
	"context"

	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/bid"
	"agrimandi-auction-service/internal/domain/shared"

	"github.com/google/uuid"
)

// AuctionService defines the auction lifecycle operations
type AuctionService interface {
	// CreateAuction creates a new OPEN auction owned by the caller
	CreateAuction(ctx context.Context, req CreateAuctionRequest) (*auction.Auction, error)

	// GetAuction retrieves an auction by ID
	GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error)

	// CloseAuction closes an auction and computes the winning bid.
	// Closing an already closed auction is an idempotent no-op.
	CloseAuction(ctx context.Context, auctionID uuid.UUID, caller *shared.User) (*auction.Auction, error)

	// ListAuctions retrieves auctions matching the filter, newest first
	ListAuctions(ctx context.Context, req ListAuctionsRequest) ([]*auction.Auction, error)

	// ListMyBids retrieves auctions the user has bid on, by bid recency
	ListMyBids(ctx context.Context, userID uuid.UUID) ([]*auction.Auction, error)
}

// BidService is the single authority for bid admission
type BidService interface {
	// AdmitBid validates and admits a bid, returning the outcome the
	// fan-out layer needs for notification dispatch
	AdmitBid(ctx context.Context, req PlaceBidRequest) (*AdmissionResult, error)

	// GetBids retrieves the bid history for an auction
	GetBids(ctx context.Context, auctionID uuid.UUID) ([]bid.Bid, error)

	// GetHighestBid retrieves the current highest bid for an auction
	GetHighestBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error)
}

// request to create an auction
type CreateAuctionRequest struct {
	Caller     *shared.User `json:"-"`
	Crop       string       `json:"crop"`
	QuantityKg float64      `json:"quantity_kg"`
	BasePrice  float64      `json:"base_price"`
}

// request to list auctions
type ListAuctionsRequest struct {
	Status     *auction.Status `json:"status,omitempty"`
	CropSearch string          `json:"crop_search,omitempty"`
	MinPrice   *float64        `json:"min_price,omitempty"`
	MaxPrice   *float64        `json:"max_price,omitempty"`
}

// request to place a bid
type PlaceBidRequest struct {
	AuctionID uuid.UUID `json:"auction_id"`
	BidderID  uuid.UUID `json:"bidder_id"`
	Amount    float64   `json:"amount"`
}

// AdmissionResult describes an admitted bid and the leader transition
// it caused. Outbid is true only when a different bidder was dethroned;
// a leader raising their own bid never triggers an outbid notice.
type AdmissionResult struct {
	AuctionID        uuid.UUID  `json:"auction_id"`
	Crop             string     `json:"crop"`
	BidderID         uuid.UUID  `json:"bidder_id"`
	Amount           float64    `json:"amount"`
	PreviousLeaderID *uuid.UUID `json:"previous_leader_id,omitempty"`
	Outbid           bool       `json:"outbid"`
}
