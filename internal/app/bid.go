package app

import (
	"context"
	"errors"

	"agrimandi-auction-service/internal/domain/bid"
	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/inbound"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultAdmissionRetries bounds the reload-and-retry loop a single
// admission may run before surfacing ErrAuctionBusy.
const DefaultAdmissionRetries = 3

// BidService implements the bid admission engine. It is the only
// component allowed to append to an auction's bid history.
//
// Admissions for the same auction are serialized through the store's
// versioned compare-and-append: two racing bids both read version N,
// only one append with expectedVersion=N succeeds, the loser reloads
// and revalidates against the fresh state.
type BidService struct {
	auctionRepo outbound.AuctionRepository
	maxRetries  int
	logger      zerolog.Logger
}

type BidServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	MaxRetries  int
	Logger      zerolog.Logger
}

// NewBidService creates a new bid admission engine
func NewBidService(params BidServiceParams) *BidService {
	retries := params.MaxRetries
	if retries <= 0 {
		retries = DefaultAdmissionRetries
	}
	return &BidService{
		auctionRepo: params.AuctionRepo,
		maxRetries:  retries,
		logger:      params.Logger.With().Str("component", "bid_service").Logger(),
	}
}

// AdmitBid validates and admits a single bid against current auction
// state and reports the leader transition. On a version conflict the
// whole read-validate-append cycle is retried against fresh state; the
// retry budget exhausting surfaces shared.ErrAuctionBusy.
func (s *BidService) AdmitBid(ctx context.Context, req inbound.PlaceBidRequest) (*inbound.AdmissionResult, error) {
	s.logger.Info().
		Str("auction_id", req.AuctionID.String()).
		Str("bidder_id", req.BidderID.String()).
		Float64("amount", req.Amount).
		Msg("Attempting to admit bid")

	if req.Amount <= 0 {
		return nil, shared.ErrBidAmountInvalid
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		result, err := s.tryAdmit(ctx, req)
		if errors.Is(err, shared.ErrVersionConflict) {
			s.logger.Warn().
				Str("auction_id", req.AuctionID.String()).
				Int("attempt", attempt).
				Msg("Concurrent admission raced past us, retrying against fresh state")
			continue
		}
		if err != nil {
			return nil, err
		}

		s.logger.Info().
			Str("auction_id", result.AuctionID.String()).
			Str("bidder_id", result.BidderID.String()).
			Float64("amount", result.Amount).
			Bool("outbid", result.Outbid).
			Int("attempt", attempt).
			Msg("Bid admitted")
		return result, nil
	}

	s.logger.Warn().
		Str("auction_id", req.AuctionID.String()).
		Int("max_retries", s.maxRetries).
		Msg("Admission retries exhausted")
	return nil, shared.ErrAuctionBusy
}

// tryAdmit runs one read-validate-append cycle. The append is
// conditional on the version read here, so a concurrent admission
// invalidates the whole cycle, never just the write.
func (s *BidService) tryAdmit(ctx context.Context, req inbound.PlaceBidRequest) (*inbound.AdmissionResult, error) {
	a, err := s.auctionRepo.GetByID(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if !a.IsOpen() {
		s.logger.Warn().Str("auction_id", a.ID.String()).Msg("Auction not accepting bids")
		return nil, shared.ErrAuctionClosed
	}

	if req.Amount < a.BasePrice {
		s.logger.Warn().
			Str("auction_id", a.ID.String()).
			Float64("base_price", a.BasePrice).
			Float64("amount", req.Amount).
			Msg("Bid below base price")
		return nil, shared.ErrBidTooLow
	}

	var previousLeader *uuid.UUID
	if highest := a.HighestBid(); highest != nil {
		if req.Amount <= highest.Amount {
			s.logger.Warn().
				Str("auction_id", a.ID.String()).
				Float64("current_highest", highest.Amount).
				Float64("amount", req.Amount).
				Msg("Bid does not beat current highest")
			return nil, shared.ErrBidNotHighEnough
		}
		leaderID := highest.BidderID
		previousLeader = &leaderID
	}

	newBid := bid.New(req.BidderID, req.Amount)
	if err := s.auctionRepo.AppendBid(ctx, a.ID, newBid, a.Version); err != nil {
		return nil, err
	}

	return &inbound.AdmissionResult{
		AuctionID:        a.ID,
		Crop:             a.Crop,
		BidderID:         req.BidderID,
		Amount:           req.Amount,
		PreviousLeaderID: previousLeader,
		Outbid:           previousLeader != nil && *previousLeader != req.BidderID,
	}, nil
}

// GetBids retrieves the bid history for an auction
func (s *BidService) GetBids(ctx context.Context, auctionID uuid.UUID) ([]bid.Bid, error) {
	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return a.Bids, nil
}

// GetHighestBid retrieves the current highest bid for an auction
func (s *BidService) GetHighestBid(ctx context.Context, auctionID uuid.UUID) (*bid.Bid, error) {
	a, err := s.auctionRepo.GetByID(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return a.HighestBid(), nil
}
