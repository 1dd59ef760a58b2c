package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"flint/internal/domain/transaction"
)

// TransactionRepository implements transaction.Repository for PostgreSQL
type TransactionRepository struct {
	db *DB
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(db *DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// UpsertBatch persists fetched transactions keyed by provider transaction
// id. Re-fetching the same history is a no-op apart from status updates.
func (r *TransactionRepository) UpsertBatch(ctx context.Context, txns []transaction.UpsertParams) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO transactions (id, user_id, account_id, date, description, merchant_name,
			amount, category, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE
		SET description = EXCLUDED.description,
		    merchant_name = EXCLUDED.merchant_name,
		    amount = EXCLUDED.amount,
		    category = EXCLUDED.category,
		    status = EXCLUDED.status
	`
	for _, t := range txns {
		if _, err := tx.ExecContext(ctx, query,
			t.ID, t.UserID, t.AccountID, t.Date, t.Description, t.MerchantName,
			t.Amount, t.Category, t.Status); err != nil {
			return fmt.Errorf("failed to upsert transaction %s: %w", t.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction batch: %w", err)
	}
	return nil
}

// ListByUserID retrieves a user's transaction history, newest first
func (r *TransactionRepository) ListByUserID(ctx context.Context, userID int64, limit int) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, user_id, account_id, date, description, merchant_name, amount, category, status
		FROM transactions
		WHERE user_id = $1
		ORDER BY date DESC, id
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// ListByAccountID retrieves the stored history for one account, newest first
func (r *TransactionRepository) ListByAccountID(ctx context.Context, userID int64, accountID string) ([]*transaction.Transaction, error) {
	query := `
		SELECT id, user_id, account_id, date, description, merchant_name, amount, category, status
		FROM transactions
		WHERE user_id = $1 AND account_id = $2
		ORDER BY date DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list account transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]*transaction.Transaction, error) {
	var txns []*transaction.Transaction
	for rows.Next() {
		var t transaction.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.AccountID, &t.Date, &t.Description,
			&t.MerchantName, &t.Amount, &t.Category, &t.Status); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, &t)
	}
	return txns, rows.Err()
}
