package auth

import (
	"context"

	"agrimandi-auction-service/internal/domain/shared"
	"agrimandi-auction-service/internal/ports/outbound"

	"github.com/rs/zerolog"
)

// ProjectingIdentity decorates an IdentityProvider with a write-through
// user projection: every successfully verified identity is saved to the
// local users table so auction and bid rows can be joined against user
// attributes without calling the auth service. Projection failures are
// logged but never fail the authentication.
type ProjectingIdentity struct {
	inner    outbound.IdentityProvider
	userRepo outbound.UserRepository
	logger   zerolog.Logger
}

type ProjectingIdentityParams struct {
	Inner    outbound.IdentityProvider
	UserRepo outbound.UserRepository
	Logger   zerolog.Logger
}

func NewProjectingIdentity(params ProjectingIdentityParams) *ProjectingIdentity {
	return &ProjectingIdentity{
		inner:    params.Inner,
		userRepo: params.UserRepo,
		logger:   params.Logger.With().Str("component", "identity_projection").Logger(),
	}
}

// VerifyToken resolves the token through the wrapped provider and
// refreshes the local projection of the resolved user.
func (p *ProjectingIdentity) VerifyToken(ctx context.Context, token string) (*shared.User, error) {
	user, err := p.inner.VerifyToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if err := p.userRepo.Save(ctx, user); err != nil {
		p.logger.Warn().Err(err).
			Str("user_id", user.ID.String()).
			Msg("Failed to refresh user projection")
	}

	return user, nil
}
