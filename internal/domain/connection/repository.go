package connection

import (
	"context"
	"errors"
)

// ErrConnectionNotFound is returned when no connection matches the lookup.
var ErrConnectionNotFound = errors.New("connection not found")

// Repository defines the interface for connection data access. Upsert is
// keyed by (user id, authorization id); syncing twice with unchanged
// provider data must not create duplicate rows.
type Repository interface {
	Upsert(ctx context.Context, params UpsertParams) (*Connection, bool, error)
	ListByUserID(ctx context.Context, userID int64) ([]*Connection, error)
	GetByAuthorizationID(ctx context.Context, userID int64, authorizationID string) (*Connection, error)
	CountByUserID(ctx context.Context, userID int64) (int, error)
	Delete(ctx context.Context, userID int64, authorizationID string) error
}
