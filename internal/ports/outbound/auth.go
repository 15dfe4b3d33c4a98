package outbound

import (
	"context"

	"agrimandi-auction-service/internal/domain/shared"
)

// IdentityProvider resolves a bearer token to a verified marketplace
// user. Token issuance (OTP/PIN login, JWT signing) lives in the auth
// collaborator; this service only consumes the verified identity.
type IdentityProvider interface {
	VerifyToken(ctx context.Context, token string) (*shared.User, error)
}
