package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/bid"
	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
)

// AuctionRepository is an in-memory auction store with the same
// versioned compare-and-append semantics as the postgres adapter. It
// backs single-node dev deployments and the admission race tests.
type AuctionRepository struct {
	mu       sync.RWMutex
	auctions map[uuid.UUID]*auction.Auction
}

// NewAuctionRepository creates an empty in-memory auction repository
func NewAuctionRepository() *AuctionRepository {
	return &AuctionRepository{
		auctions: make(map[uuid.UUID]*auction.Auction),
	}
}

// Create creates a new auction
func (r *AuctionRepository) Create(ctx context.Context, a *auction.Auction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.auctions[a.ID] = cloneAuction(a)
	return nil
}

// GetByID retrieves a copy of the auction; callers never share memory
// with the stored record.
func (r *AuctionRepository) GetByID(ctx context.Context, id uuid.UUID) (*auction.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[id]
	if !ok {
		return nil, shared.ErrAuctionNotFound
	}
	return cloneAuction(a), nil
}

// AppendBid appends iff the stored version still equals
// expectedVersion. The mutex makes the check-and-append atomic, so of
// two racing appends with the same expected version exactly one wins.
func (r *AuctionRepository) AppendBid(ctx context.Context, auctionID uuid.UUID, b bid.Bid, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[auctionID]
	if !ok {
		return shared.ErrAuctionNotFound
	}
	if a.Version != expectedVersion {
		return shared.ErrVersionConflict
	}

	a.Bids = append(a.Bids, b)
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	return nil
}

// Update persists status/winning-bid changes iff the stored version
// still equals expectedVersion
func (r *AuctionRepository) Update(ctx context.Context, a *auction.Auction, expectedVersion int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.auctions[a.ID]
	if !ok {
		return shared.ErrAuctionNotFound
	}
	if stored.Version != expectedVersion {
		return shared.ErrVersionConflict
	}

	updated := cloneAuction(a)
	updated.Version = expectedVersion + 1
	r.auctions[a.ID] = updated
	a.Version = updated.Version
	return nil
}

// List retrieves auctions matching the filter, newest first
func (r *AuctionRepository) List(ctx context.Context, filter outbound.ListFilter) ([]*auction.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	status := auction.StatusOpen
	if filter.Status != nil {
		status = *filter.Status
	}

	var result []*auction.Auction
	for _, a := range r.auctions {
		if a.Status != status {
			continue
		}
		if filter.CropSearch != "" &&
			!strings.Contains(strings.ToLower(a.Crop), strings.ToLower(filter.CropSearch)) {
			continue
		}
		if filter.MinPrice != nil && a.BasePrice < *filter.MinPrice {
			continue
		}
		if filter.MaxPrice != nil && a.BasePrice > *filter.MaxPrice {
			continue
		}
		result = append(result, cloneAuction(a))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// ListByBidder retrieves auctions containing at least one bid by the
// user, ordered by that user's most recent bid
func (r *AuctionRepository) ListByBidder(ctx context.Context, userID uuid.UUID) ([]*auction.Auction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	type entry struct {
		a       *auction.Auction
		lastBid time.Time
	}

	var entries []entry
	for _, a := range r.auctions {
		var last time.Time
		found := false
		for _, b := range a.Bids {
			if b.BidderID == userID && b.PlacedAt.After(last) {
				last = b.PlacedAt
				found = true
			}
		}
		if found {
			entries = append(entries, entry{a: cloneAuction(a), lastBid: last})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].lastBid.After(entries[j].lastBid)
	})

	result := make([]*auction.Auction, 0, len(entries))
	for _, e := range entries {
		result = append(result, e.a)
	}
	return result, nil
}

func cloneAuction(a *auction.Auction) *auction.Auction {
	clone := *a
	clone.Bids = append([]bid.Bid(nil), a.Bids...)
	if a.WinningBid != nil {
		winner := *a.WinningBid
		clone.WinningBid = &winner
	}
	return &clone
}
