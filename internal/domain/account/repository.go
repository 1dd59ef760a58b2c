package account

import (
	"context"
	"errors"
	"time"
)

// ErrAccountNotFound is returned when no bank account matches the lookup.
var ErrAccountNotFound = errors.New("bank account not found")

// Repository defines the interface for bank account data access.
type Repository interface {
	Create(ctx context.Context, params CreateParams) (*BankAccount, error)
	GetByID(ctx context.Context, userID int64, id string) (*BankAccount, error)
	ListByUserID(ctx context.Context, userID int64) ([]*BankAccount, error)
	CountByUserID(ctx context.Context, userID int64) (int, error)
	ExistsByProviderAccountID(ctx context.Context, userID int64, providerAccountID string) (bool, error)
	UpdateCachedBalance(ctx context.Context, id string, balance float64, at time.Time) error
	Delete(ctx context.Context, userID int64, id string) error
}
