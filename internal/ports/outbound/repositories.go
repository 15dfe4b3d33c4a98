package outbound

import (
	"context"

	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/bid"
	"agrimandi-auction-service/internal/domain/shared"

	"github.com/google/uuid"
)

// ListFilter narrows ListAuctions results. A nil Status means OPEN.
type ListFilter struct {
	Status     *auction.Status
	CropSearch string
	MinPrice   *float64
	MaxPrice   *float64
}

// AuctionRepository defines the interface for auction data operations.
// Mutations are versioned: they succeed only when the stored revision
// still equals the expected one, otherwise shared.ErrVersionConflict
// is returned and the caller must reload and retry.
type AuctionRepository interface {
	// Create creates a new auction
	Create(ctx context.Context, a *auction.Auction) error

	// GetByID retrieves an auction with its bids in insertion order
	GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error)

	// AppendBid atomically appends a bid to the auction's history iff
	// the stored version equals expectedVersion
	AppendBid(ctx context.Context, auctionID uuid.UUID, b bid.Bid, expectedVersion int64) error

	// Update persists status/winning-bid changes iff the stored
	// version equals expectedVersion
	Update(ctx context.Context, a *auction.Auction, expectedVersion int64) error

	// List retrieves auctions matching the filter, newest first
	List(ctx context.Context, filter ListFilter) ([]*auction.Auction, error)

	// ListByBidder retrieves auctions containing at least one bid by
	// the user, ordered by that user's most recent bid
	ListByBidder(ctx context.Context, userID uuid.UUID) ([]*auction.Auction, error)
}

// UserRepository defines the interface for the marketplace user
// projection. The auth collaborator owns user records; this projection
// is a local write-through copy kept for reporting joins.
type UserRepository interface {
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id uuid.UUID) (*shared.User, error)

	// Save inserts or refreshes a user projection
	Save(ctx context.Context, user *shared.User) error
}
