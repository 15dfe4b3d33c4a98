package httpapi

import (
	"net/http"

	"agrimandi-auction-service/internal/ports/inbound"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

type RouterParams struct {
	AuctionService inbound.AuctionService
	Identity       outbound.IdentityProvider
	WsHandler      http.HandlerFunc
	Logger         zerolog.Logger
}

// SetupRouter configures all routes: the REST lifecycle surface and
// the websocket upgrade endpoint. The websocket handler runs its own
// token check, so it sits outside the REST middleware chain.
func SetupRouter(params RouterParams) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(params.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "auction-service"})
	})

	if params.WsHandler != nil {
		router.GET("/ws", gin.WrapF(params.WsHandler))
	}

	handler := NewAuctionHandler(AuctionHandlerParams{
		AuctionService: params.AuctionService,
		Logger:         params.Logger,
	})

	auctions := router.Group("/auctions")
	auctions.Use(Authenticate(params.Identity, params.Logger))
	auctions.Use(RequireVerified())
	{
		auctions.POST("", handler.CreateAuctionHandler)
		auctions.GET("", handler.ListAuctionsHandler)
		auctions.GET("/bids/mine", handler.MyBidsHandler)
		auctions.GET("/:id", handler.GetAuctionHandler)
		auctions.POST("/:id/close", handler.CloseAuctionHandler)
	}

	return router
}
