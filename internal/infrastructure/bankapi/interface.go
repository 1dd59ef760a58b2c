package bankapi

import "context"

// ClientInterface is the bank provider surface consumed by domain services.
type ClientInterface interface {
	ListAccounts(ctx context.Context, accessToken string) ([]Account, error)
	GetAccount(ctx context.Context, accessToken, accountID string) (*Account, error)
	GetBalances(ctx context.Context, accessToken, accountID string) (*Balance, error)
	GetTransactions(ctx context.Context, accessToken, accountID string) ([]Transaction, error)
}
