package identity

import (
	"context"
	"errors"
)

// ErrIdentityNotFound is returned when a user has no stored registration.
var ErrIdentityNotFound = errors.New("identity not found")

// Repository defines the interface for credential-store access. At most one
// row exists per user id; Create must fail on a duplicate rather than
// overwrite.
type Repository interface {
	GetByUserID(ctx context.Context, userID int64) (*Identity, error)
	Create(ctx context.Context, userID int64, providerUserID, providerSecret string) (*Identity, error)
	UpdateSecret(ctx context.Context, userID int64, providerUserID, providerSecret string) (*Identity, error)
	DeleteByUserID(ctx context.Context, userID int64) error
	ListAll(ctx context.Context) ([]*Identity, error)
}

// Locker serializes critical sections across API instances. Callers with
// the same key run fn one at a time; different keys never contend.
type Locker interface {
	WithExclusiveLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
