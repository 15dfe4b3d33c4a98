package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"agrimandi-auction-service/internal/adapters/memory"
	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/bid"
	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/inbound"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestAuction(t *testing.T, repo outbound.AuctionRepository, basePrice float64, bids ...bid.Bid) *auction.Auction {
	t.Helper()

	now := time.Now().UTC()
	a := &auction.Auction{
		ID:         uuid.New(),
		FarmerID:   uuid.New(),
		Crop:       "wheat",
		QuantityKg: 500,
		BasePrice:  basePrice,
		Status:     auction.StatusOpen,
		Bids:       bids,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Create(context.Background(), a))
	return a
}

func newBidService(repo outbound.AuctionRepository) *BidService {
	return NewBidService(BidServiceParams{
		AuctionRepo: repo,
		Logger:      zerolog.Nop(),
	})
}

func TestAdmitBid(t *testing.T) {
	bidderA := uuid.New()
	bidderB := uuid.New()

	tests := []struct {
		name          string
		basePrice     float64
		existing      []bid.Bid
		bidderID      uuid.UUID
		amount        float64
		expectedError error
		wantPrev      *uuid.UUID
	}{
		{
			name:      "first_bid_exactly_at_base_price",
			basePrice: 50,
			bidderID:  bidderA,
			amount:    50,
		},
		{
			name:          "bid_below_base_price",
			basePrice:     50,
			bidderID:      bidderA,
			amount:        40,
			expectedError: shared.ErrBidTooLow,
		},
		{
			name:          "zero_amount",
			basePrice:     50,
			bidderID:      bidderA,
			amount:        0,
			expectedError: shared.ErrBidAmountInvalid,
		},
		{
			name:          "negative_amount",
			basePrice:     50,
			bidderID:      bidderA,
			amount:        -10,
			expectedError: shared.ErrBidAmountInvalid,
		},
		{
			name:      "beats_current_highest",
			basePrice: 50,
			existing:  []bid.Bid{{BidderID: bidderA, Amount: 60, PlacedAt: time.Now()}},
			bidderID:  bidderB,
			amount:    70,
			wantPrev:  &bidderA,
		},
		{
			name:          "tie_with_current_highest_rejected",
			basePrice:     50,
			existing:      []bid.Bid{{BidderID: bidderA, Amount: 60, PlacedAt: time.Now()}},
			bidderID:      bidderB,
			amount:        60,
			expectedError: shared.ErrBidNotHighEnough,
		},
		{
			name:          "below_current_highest_rejected",
			basePrice:     50,
			existing:      []bid.Bid{{BidderID: bidderA, Amount: 60, PlacedAt: time.Now()}},
			bidderID:      bidderB,
			amount:        55,
			expectedError: shared.ErrBidNotHighEnough,
		},
		{
			name:      "leader_raises_own_bid",
			basePrice: 50,
			existing:  []bid.Bid{{BidderID: bidderA, Amount: 60, PlacedAt: time.Now()}},
			bidderID:  bidderA,
			amount:    80,
			wantPrev:  &bidderA,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := memory.NewAuctionRepository()
			a := newTestAuction(t, repo, tc.basePrice, tc.existing...)
			service := newBidService(repo)

			result, err := service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
				AuctionID: a.ID,
				BidderID:  tc.bidderID,
				Amount:    tc.amount,
			})

			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)

				// A rejected bid never reaches the store
				stored, getErr := repo.GetByID(context.Background(), a.ID)
				require.NoError(t, getErr)
				require.Len(t, stored.Bids, len(tc.existing))
				return
			}

			require.NoError(t, err)
			require.Equal(t, a.ID, result.AuctionID)
			require.Equal(t, "wheat", result.Crop)
			require.Equal(t, tc.bidderID, result.BidderID)
			require.Equal(t, tc.amount, result.Amount)

			if tc.wantPrev == nil {
				require.Nil(t, result.PreviousLeaderID)
				require.False(t, result.Outbid)
			} else {
				require.NotNil(t, result.PreviousLeaderID)
				require.Equal(t, *tc.wantPrev, *result.PreviousLeaderID)
				// Outbid fires only when a different bidder was dethroned
				require.Equal(t, *tc.wantPrev != tc.bidderID, result.Outbid)
			}

			stored, err := repo.GetByID(context.Background(), a.ID)
			require.NoError(t, err)
			require.Len(t, stored.Bids, len(tc.existing)+1)
			require.Equal(t, tc.amount, stored.Bids[len(stored.Bids)-1].Amount)
		})
	}
}

func TestAdmitBid_AuctionNotFound(t *testing.T) {
	service := newBidService(memory.NewAuctionRepository())

	_, err := service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID: uuid.New(),
		BidderID:  uuid.New(),
		Amount:    100,
	})

	require.ErrorIs(t, err, shared.ErrAuctionNotFound)
}

func TestAdmitBid_AuctionClosed(t *testing.T) {
	repo := memory.NewAuctionRepository()
	a := newTestAuction(t, repo, 50)
	a.Close()
	require.NoError(t, repo.Update(context.Background(), a, 1))

	service := newBidService(repo)

	_, err := service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID: a.ID,
		BidderID:  uuid.New(),
		Amount:    1000,
	})

	require.ErrorIs(t, err, shared.ErrAuctionClosed)
}

// conflictingRepo fails AppendBid with a version conflict a fixed
// number of times before delegating to the real store.
type conflictingRepo struct {
	outbound.AuctionRepository
	mu        sync.Mutex
	conflicts int
}

func (r *conflictingRepo) AppendBid(ctx context.Context, auctionID uuid.UUID, b bid.Bid, expectedVersion int64) error {
	r.mu.Lock()
	if r.conflicts > 0 {
		r.conflicts--
		r.mu.Unlock()
		return shared.ErrVersionConflict
	}
	r.mu.Unlock()
	return r.AuctionRepository.AppendBid(ctx, auctionID, b, expectedVersion)
}

func TestAdmitBid_RetriesOnConflict(t *testing.T) {
	inner := memory.NewAuctionRepository()
	repo := &conflictingRepo{AuctionRepository: inner, conflicts: 2}
	a := newTestAuction(t, inner, 50)
	service := newBidService(repo)

	result, err := service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID: a.ID,
		BidderID:  uuid.New(),
		Amount:    75,
	})

	require.NoError(t, err)
	require.Equal(t, 75.0, result.Amount)
}

func TestAdmitBid_BusyWhenRetriesExhausted(t *testing.T) {
	inner := memory.NewAuctionRepository()
	repo := &conflictingRepo{AuctionRepository: inner, conflicts: DefaultAdmissionRetries}
	a := newTestAuction(t, inner, 50)
	service := newBidService(repo)

	_, err := service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
		AuctionID: a.ID,
		BidderID:  uuid.New(),
		Amount:    75,
	})

	require.ErrorIs(t, err, shared.ErrAuctionBusy)

	stored, err := inner.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.Empty(t, stored.Bids)
}

// Two simultaneous equal bids above the current highest: exactly one
// must be admitted, the other must see ErrBidNotHighEnough after its
// conflict-driven revalidation.
func TestAdmitBid_SimultaneousEqualBids(t *testing.T) {
	repo := memory.NewAuctionRepository()
	a := newTestAuction(t, repo, 50)
	service := newBidService(repo)

	const racers = 2
	errs := make([]error, racers)
	var wg sync.WaitGroup
	var start sync.WaitGroup
	start.Add(1)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			start.Wait()
			_, errs[i] = service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
				AuctionID: a.ID,
				BidderID:  uuid.New(),
				Amount:    60,
			})
		}(i)
	}

	start.Done()
	wg.Wait()

	admitted := 0
	for _, err := range errs {
		if err == nil {
			admitted++
		} else {
			require.ErrorIs(t, err, shared.ErrBidNotHighEnough)
		}
	}
	require.Equal(t, 1, admitted)

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, stored.Bids, 1)
	require.Equal(t, 60.0, stored.Bids[0].Amount)
}

// Hammer one auction with racing distinct amounts and verify the
// admitted sequence is strictly increasing and never below base.
func TestAdmitBid_ConcurrentAdmissionsStayStrictlyIncreasing(t *testing.T) {
	repo := memory.NewAuctionRepository()
	a := newTestAuction(t, repo, 50)
	service := NewBidService(BidServiceParams{
		AuctionRepo: repo,
		MaxRetries:  50, // generous budget so racers lose on rules, not on retries
		Logger:      zerolog.Nop(),
	})

	const bidders = 20
	var wg sync.WaitGroup
	for i := 0; i < bidders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			service.AdmitBid(context.Background(), inbound.PlaceBidRequest{
				AuctionID: a.ID,
				BidderID:  uuid.New(),
				Amount:    float64(50 + i),
			})
		}(i)
	}
	wg.Wait()

	stored, err := repo.GetByID(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotEmpty(t, stored.Bids)

	prev := 0.0
	for _, b := range stored.Bids {
		require.GreaterOrEqual(t, b.Amount, stored.BasePrice)
		require.Greater(t, b.Amount, prev)
		prev = b.Amount
	}
}

func TestGetBidsAndHighestBid(t *testing.T) {
	repo := memory.NewAuctionRepository()
	bidderA := uuid.New()
	bidderB := uuid.New()
	a := newTestAuction(t, repo, 50,
		bid.Bid{BidderID: bidderA, Amount: 60, PlacedAt: time.Now()},
		bid.Bid{BidderID: bidderB, Amount: 70, PlacedAt: time.Now()},
	)
	service := newBidService(repo)

	bids, err := service.GetBids(context.Background(), a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 2)

	highest, err := service.GetHighestBid(context.Background(), a.ID)
	require.NoError(t, err)
	require.NotNil(t, highest)
	require.Equal(t, bidderB, highest.BidderID)
	require.Equal(t, 70.0, highest.Amount)
}
