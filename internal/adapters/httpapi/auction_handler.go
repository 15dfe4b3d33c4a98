package httpapi

import (
	"net/http"
	"strconv"

	"agrimandi-auction-service/internal/ports/inbound"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AuctionHandler exposes the auction lifecycle over REST
type AuctionHandler struct {
	auctionService inbound.AuctionService
	logger         zerolog.Logger
}

type AuctionHandlerParams struct {
	AuctionService inbound.AuctionService
	Logger         zerolog.Logger
}

func NewAuctionHandler(params AuctionHandlerParams) *AuctionHandler {
	return &AuctionHandler{
		auctionService: params.AuctionService,
		logger:         params.Logger.With().Str("component", "auction_handler").Logger(),
	}
}

type createAuctionRequest struct {
	Crop       string  `json:"crop" binding:"required"`
	QuantityKg float64 `json:"quantityKg" binding:"required,gt=0"`
	BasePrice  float64 `json:"basePrice" binding:"required,gt=0"`
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req createAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		JSONError(c, http.StatusBadRequest, err, "invalid auction payload")
		return
	}

	a, err := h.auctionService.CreateAuction(c.Request.Context(), inbound.CreateAuctionRequest{
		Caller:     CurrentUser(c),
		Crop:       req.Crop,
		QuantityKg: req.QuantityKg,
		BasePrice:  req.BasePrice,
	})
	if err != nil {
		status := mapErrorToStatus(err)
		JSONError(c, status, err, "failed to create auction")
		h.logger.Warn().Err(err).Int("status", status).Msg("CreateAuctionHandler: create failed")
		return
	}

	JSONResponse(c, http.StatusCreated, a, "auction created")
}

// CloseAuctionHandler handles POST /auctions/:id/close
func (h *AuctionHandler) CloseAuctionHandler(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		JSONError(c, http.StatusBadRequest, err, "invalid auction id")
		return
	}

	a, err := h.auctionService.CloseAuction(c.Request.Context(), auctionID, CurrentUser(c))
	if err != nil {
		status := mapErrorToStatus(err)
		JSONError(c, status, err, "failed to close auction")
		h.logger.Warn().Err(err).
			Str("auction_id", auctionID.String()).
			Int("status", status).
			Msg("CloseAuctionHandler: close failed")
		return
	}

	JSONResponse(c, http.StatusOK, gin.H{
		"auction":    a,
		"winningBid": a.WinningBid,
	}, "auction closed")
}

// GetAuctionHandler handles GET /auctions/:id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		JSONError(c, http.StatusBadRequest, err, "invalid auction id")
		return
	}

	a, err := h.auctionService.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		JSONError(c, mapErrorToStatus(err), err, "failed to get auction")
		return
	}

	JSONResponse(c, http.StatusOK, a, "auction retrieved")
}

// ListAuctionsHandler handles GET /auctions with the browse filters
// {search, minPrice, maxPrice, cropType}
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	req := inbound.ListAuctionsRequest{
		CropSearch: c.Query("search"),
	}
	if req.CropSearch == "" {
		req.CropSearch = c.Query("cropType")
	}

	if raw := c.Query("minPrice"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			JSONError(c, http.StatusBadRequest, err, "invalid minPrice")
			return
		}
		req.MinPrice = &value
	}
	if raw := c.Query("maxPrice"); raw != "" {
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			JSONError(c, http.StatusBadRequest, err, "invalid maxPrice")
			return
		}
		req.MaxPrice = &value
	}

	auctions, err := h.auctionService.ListAuctions(c.Request.Context(), req)
	if err != nil {
		JSONError(c, mapErrorToStatus(err), err, "failed to list auctions")
		return
	}

	JSONResponse(c, http.StatusOK, auctions, "auctions retrieved")
}

// MyBidsHandler handles GET /auctions/bids/mine
func (h *AuctionHandler) MyBidsHandler(c *gin.Context) {
	user := CurrentUser(c)

	auctions, err := h.auctionService.ListMyBids(c.Request.Context(), user.ID)
	if err != nil {
		JSONError(c, mapErrorToStatus(err), err, "failed to list bid history")
		return
	}

	JSONResponse(c, http.StatusOK, auctions, "bid history retrieved")
}
