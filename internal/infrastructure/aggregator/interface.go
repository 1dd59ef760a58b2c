package aggregator

import "context"

// ClientInterface is the brokerage aggregator surface consumed by domain
// services. The HTTP client implements it; tests substitute mocks.
type ClientInterface interface {
	RegisterIdentity(ctx context.Context, internalUserRef string) (*Identity, error)
	DeleteIdentity(ctx context.Context, providerUserID string) error
	ListAccounts(ctx context.Context, providerUserID, providerSecret string) ([]Account, error)
	ListAuthorizations(ctx context.Context, providerUserID, providerSecret string) ([]Authorization, error)
	GetPositions(ctx context.Context, providerUserID, providerSecret, accountID string) ([]Position, error)
	ListActivities(ctx context.Context, providerUserID, providerSecret string) ([]Activity, error)
}
