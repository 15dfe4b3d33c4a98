package httpapi

import (
	"errors"
	"net/http"

	"agrimandi-auction-service/internal/domain/shared"

	"github.com/gin-gonic/gin"
)

// JSONResponse sends a structured JSON response
func JSONResponse(c *gin.Context, status int, data any, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	})
}

// JSONError sends a structured error response
func JSONError(c *gin.Context, status int, err error, message string) {
	c.JSON(status, gin.H{
		"status":  status,
		"message": message,
		"error":   err.Error(),
	})
}

// mapErrorToStatus translates domain errors to HTTP status codes
func mapErrorToStatus(err error) int {
	switch {
	case errors.Is(err, shared.ErrAuctionNotFound),
		errors.Is(err, shared.ErrUserNotFound):
		return http.StatusNotFound

	case errors.Is(err, shared.ErrNotAuctionOwner),
		errors.Is(err, shared.ErrNotFarmer),
		errors.Is(err, shared.ErrUserNotVerified),
		errors.Is(err, shared.ErrForbidden):
		return http.StatusForbidden

	case errors.Is(err, shared.ErrUnauthenticated):
		return http.StatusUnauthorized

	case errors.Is(err, shared.ErrInvalidCrop),
		errors.Is(err, shared.ErrInvalidQuantity),
		errors.Is(err, shared.ErrInvalidBase),
		errors.Is(err, shared.ErrBidAmountInvalid):
		return http.StatusBadRequest

	case errors.Is(err, shared.ErrAuctionBusy):
		return http.StatusConflict

	default:
		return http.StatusInternalServerError
	}
}
