package ports

import (
	"context"
	"transit-tracking-service/internal/domain"
)

// Contract for turning a bearer capability token into a caller identity.
type Authenticator interface {
	// Return domain.ErrUnauthorized (wrapped) for missing, expired or forged tokens.
	Authenticate(ctx context.Context, token string) (domain.Principal, error)
}
