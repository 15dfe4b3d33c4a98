package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"agrimandi-auction-service/internal/domain/shared"

	"github.com/rs/zerolog"
)

// IntrospectionClient verifies bearer tokens against the marketplace
// auth service. Token issuance (OTP/PIN login, signing) lives there;
// this client only exchanges a token for the verified identity.
type IntrospectionClient struct {
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type IntrospectionClientParams struct {
	BaseURL string
	Logger  zerolog.Logger
}

func NewIntrospectionClient(params IntrospectionClientParams) *IntrospectionClient {
	return &IntrospectionClient{
		baseURL: params.BaseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: params.Logger.With().Str("component", "auth_client").Logger(),
	}
}

type introspectionResponse struct {
	User *shared.User `json:"user"`
}

// VerifyToken resolves a bearer token to a marketplace user
func (c *IntrospectionClient) VerifyToken(ctx context.Context, token string) (*shared.User, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal introspection request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/introspect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build introspection request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth service unreachable: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, shared.ErrUnauthenticated
	default:
		return nil, fmt.Errorf("auth service returned status %d", resp.StatusCode)
	}

	var body introspectionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode introspection response: %w", err)
	}
	if body.User == nil {
		return nil, shared.ErrUnauthenticated
	}

	return body.User, nil
}
