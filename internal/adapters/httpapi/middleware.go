package httpapi

import (
	"net/http"
	"strings"
	"time"

	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const currentUserKey = "currentUser"

// RequestLogger logs incoming requests with timing
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

// Authenticate resolves the bearer token through the identity
// provider and injects the verified caller as currentUser.
func Authenticate(identity outbound.IdentityProvider, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			JSONError(c, http.StatusUnauthorized, shared.ErrUnauthenticated, "missing bearer token")
			c.Abort()
			return
		}

		user, err := identity.VerifyToken(c.Request.Context(), strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Token verification failed")
			JSONError(c, http.StatusUnauthorized, shared.ErrUnauthenticated, "invalid token")
			c.Abort()
			return
		}

		c.Set(currentUserKey, user)
		c.Next()
	}
}

// RequireVerified rejects callers that have not completed verification
func RequireVerified() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			JSONError(c, http.StatusUnauthorized, shared.ErrUnauthenticated, "authentication required")
			c.Abort()
			return
		}
		if !user.Verified {
			JSONError(c, http.StatusForbidden, shared.ErrUserNotVerified, "account verification required")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated caller, or nil
func CurrentUser(c *gin.Context) *shared.User {
	value, exists := c.Get(currentUserKey)
	if !exists {
		return nil
	}
	user, ok := value.(*shared.User)
	if !ok {
		return nil
	}
	return user
}
