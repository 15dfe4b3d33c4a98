package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"agrimandi-auction-service/internal/domain/auction"
	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/inbound"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// closeRetries bounds the version-conflict retry loop when a close
// races a concurrent bid admission.
const closeRetries = 3

// AuctionService implements the auction lifecycle use cases. All bid
// mutation is delegated to the admission engine; this service only
// creates, closes and queries auctions.
type AuctionService struct {
	auctionRepo outbound.AuctionRepository
	logger      zerolog.Logger
}

type AuctionServiceParams struct {
	AuctionRepo outbound.AuctionRepository
	Logger      zerolog.Logger
}

// NewAuctionService creates a new auction lifecycle service
func NewAuctionService(params AuctionServiceParams) *AuctionService {
	return &AuctionService{
		auctionRepo: params.AuctionRepo,
		logger:      params.Logger.With().Str("component", "auction_service").Logger(),
	}
}

// CreateAuction creates a new OPEN auction with an empty bid history.
// The caller must be a verified farmer.
func (s *AuctionService) CreateAuction(ctx context.Context, req inbound.CreateAuctionRequest) (*auction.Auction, error) {
	if req.Caller == nil {
		return nil, shared.ErrUnauthenticated
	}
	if !req.Caller.Verified {
		return nil, shared.ErrUserNotVerified
	}
	if !req.Caller.IsFarmer() {
		s.logger.Warn().
			Str("caller_id", req.Caller.ID.String()).
			Str("role", req.Caller.Role).
			Msg("Non-farmer attempted to create auction")
		return nil, shared.ErrNotFarmer
	}

	if strings.TrimSpace(req.Crop) == "" {
		return nil, shared.ErrInvalidCrop
	}
	if req.QuantityKg <= 0 {
		return nil, shared.ErrInvalidQuantity
	}
	if req.BasePrice <= 0 {
		return nil, shared.ErrInvalidBase
	}

	now := time.Now().UTC()
	a := &auction.Auction{
		ID:         uuid.New(),
		FarmerID:   req.Caller.ID,
		Crop:       strings.TrimSpace(req.Crop),
		QuantityKg: req.QuantityKg,
		BasePrice:  req.BasePrice,
		Status:     auction.StatusOpen,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.auctionRepo.Create(ctx, a); err != nil {
		s.logger.Error().Err(err).Str("auction_id", a.ID.String()).Msg("Failed to save auction")
		return nil, err
	}

	s.logger.Info().
		Str("auction_id", a.ID.String()).
		Str("farmer_id", a.FarmerID.String()).
		Str("crop", a.Crop).
		Float64("base_price", a.BasePrice).
		Msg("Auction created")
	return a, nil
}

// GetAuction retrieves an auction by ID
func (s *AuctionService) GetAuction(ctx context.Context, auctionID uuid.UUID) (*auction.Auction, error) {
	return s.auctionRepo.GetByID(ctx, auctionID)
}

// CloseAuction closes an auction and snapshots the winning bid (max
// amount, first admitted on equal amounts). Only the owning farmer may
// close. Closing an already closed auction returns the terminal state
// unchanged and fires no side effects.
func (s *AuctionService) CloseAuction(ctx context.Context, auctionID uuid.UUID, caller *shared.User) (*auction.Auction, error) {
	if caller == nil {
		return nil, shared.ErrUnauthenticated
	}

	for attempt := 1; attempt <= closeRetries; attempt++ {
		a, err := s.auctionRepo.GetByID(ctx, auctionID)
		if err != nil {
			return nil, err
		}

		if a.FarmerID != caller.ID {
			s.logger.Warn().
				Str("auction_id", auctionID.String()).
				Str("caller_id", caller.ID.String()).
				Msg("Close attempt by non-owner")
			return nil, shared.ErrNotAuctionOwner
		}

		if a.IsClosed() {
			s.logger.Info().Str("auction_id", auctionID.String()).Msg("Auction already closed")
			return a, nil
		}

		expectedVersion := a.Version
		a.Close()
		if err := s.auctionRepo.Update(ctx, a, expectedVersion); err != nil {
			// A bid admitted between our read and write must end up
			// in the winner computation, so reload and close again.
			if errors.Is(err, shared.ErrVersionConflict) {
				s.logger.Warn().
					Str("auction_id", auctionID.String()).
					Int("attempt", attempt).
					Msg("Close raced a concurrent bid, retrying")
				continue
			}
			s.logger.Error().Err(err).Str("auction_id", auctionID.String()).Msg("Failed to close auction")
			return nil, err
		}

		logEvent := s.logger.Info().Str("auction_id", auctionID.String())
		if a.WinningBid != nil {
			logEvent = logEvent.
				Str("winner_id", a.WinningBid.BidderID.String()).
				Float64("final_price", a.WinningBid.Amount)
		}
		logEvent.Msg("Auction closed")
		return a, nil
	}

	return nil, shared.ErrAuctionBusy
}

// ListAuctions retrieves auctions matching the filter, newest first
func (s *AuctionService) ListAuctions(ctx context.Context, req inbound.ListAuctionsRequest) ([]*auction.Auction, error) {
	return s.auctionRepo.List(ctx, outbound.ListFilter{
		Status:     req.Status,
		CropSearch: req.CropSearch,
		MinPrice:   req.MinPrice,
		MaxPrice:   req.MaxPrice,
	})
}

// ListMyBids retrieves auctions the user has bid on, by bid recency
func (s *AuctionService) ListMyBids(ctx context.Context, userID uuid.UUID) ([]*auction.Auction, error) {
	return s.auctionRepo.ListByBidder(ctx, userID)
}
