package postgres

import (
	"context"
	"fmt"

	"flint/internal/domain/dashboard"
)

// HoldingRepository implements dashboard.HoldingRepository for PostgreSQL
type HoldingRepository struct {
	db *DB
}

// NewHoldingRepository creates a new PostgreSQL holding repository
func NewHoldingRepository(db *DB) *HoldingRepository {
	return &HoldingRepository{db: db}
}

// ReplaceForAccount swaps the stored holdings snapshot for an account in a
// single transaction, so readers never observe a partial snapshot.
func (r *HoldingRepository) ReplaceForAccount(ctx context.Context, accountID string, holdings []dashboard.Holding) error {
	tx, err := r.db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM holdings WHERE account_id = $1`, accountID); err != nil {
		return fmt.Errorf("failed to clear holdings: %w", err)
	}

	query := `
		INSERT INTO holdings (account_id, symbol, description, quantity, average_cost,
			current_price, current_value, profit_loss)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, h := range holdings {
		if _, err := tx.ExecContext(ctx, query,
			accountID, h.Symbol, h.Description, h.Quantity, h.AverageCost,
			h.CurrentPrice, h.CurrentValue, h.ProfitLoss); err != nil {
			return fmt.Errorf("failed to insert holding %s: %w", h.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit holdings snapshot: %w", err)
	}
	return nil
}

// ListByAccountID retrieves the stored holdings snapshot for an account
func (r *HoldingRepository) ListByAccountID(ctx context.Context, accountID string) ([]dashboard.Holding, error) {
	query := `
		SELECT account_id, symbol, description, quantity, average_cost,
		       current_price, current_value, profit_loss
		FROM holdings
		WHERE account_id = $1
		ORDER BY current_value DESC
	`

	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list holdings: %w", err)
	}
	defer rows.Close()

	var holdings []dashboard.Holding
	for rows.Next() {
		var h dashboard.Holding
		if err := rows.Scan(&h.AccountID, &h.Symbol, &h.Description, &h.Quantity,
			&h.AverageCost, &h.CurrentPrice, &h.CurrentValue, &h.ProfitLoss); err != nil {
			return nil, fmt.Errorf("failed to scan holding: %w", err)
		}
		holdings = append(holdings, h)
	}

	return holdings, rows.Err()
}
