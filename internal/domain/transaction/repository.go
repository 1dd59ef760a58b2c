package transaction

import "context"

// Repository defines the interface for the transaction cache. Upsert is
// keyed by provider transaction id, so re-fetching the same history is
// idempotent.
type Repository interface {
	UpsertBatch(ctx context.Context, txns []UpsertParams) error
	ListByUserID(ctx context.Context, userID int64, limit int) ([]*Transaction, error)
	ListByAccountID(ctx context.Context, userID int64, accountID string) ([]*Transaction, error)
}
