package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"flint/internal/domain/account"
	"flint/internal/infrastructure/crypto"
)

// BankAccountRepository implements account.Repository for PostgreSQL. The
// provider access token is encrypted at rest.
type BankAccountRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

// NewBankAccountRepository creates a new PostgreSQL bank account repository
func NewBankAccountRepository(db *DB, encryptor *crypto.Encryptor) *BankAccountRepository {
	return &BankAccountRepository{db: db, encryptor: encryptor}
}

const bankAccountColumns = `id, user_id, provider_account_id, name, account_type, subtype,
	institution_name, currency, access_token, last_balance, last_balance_at, created_at, updated_at`

// Create inserts a new linked account
func (r *BankAccountRepository) Create(ctx context.Context, params account.CreateParams) (*account.BankAccount, error) {
	encrypted, err := r.encryptor.Encrypt(params.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt access token: %w", err)
	}

	query := `
		INSERT INTO bank_accounts (id, user_id, provider_account_id, name, account_type, subtype,
			institution_name, currency, access_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + bankAccountColumns

	return r.scanAccount(r.db.QueryRowContext(ctx, query,
		params.ID, params.UserID, params.ProviderAccountID, params.Name, params.AccountType,
		params.Subtype, params.InstitutionName, params.Currency, encrypted).Scan)
}

// GetByID retrieves one account scoped to a user
func (r *BankAccountRepository) GetByID(ctx context.Context, userID int64, id string) (*account.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE user_id = $1 AND id = $2`
	return r.scanAccount(r.db.QueryRowContext(ctx, query, userID, id).Scan)
}

// ListByUserID retrieves all linked accounts for a user in linking order
func (r *BankAccountRepository) ListByUserID(ctx context.Context, userID int64) ([]*account.BankAccount, error) {
	query := `SELECT ` + bankAccountColumns + ` FROM bank_accounts WHERE user_id = $1 ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bank accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*account.BankAccount
	for rows.Next() {
		acc, err := r.scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acc)
	}

	return accounts, rows.Err()
}

// CountByUserID counts a user's linked accounts, used for tier limit checks
func (r *BankAccountRepository) CountByUserID(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bank_accounts WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count bank accounts: %w", err)
	}
	return count, nil
}

// ExistsByProviderAccountID reports whether the provider account is already linked
func (r *BankAccountRepository) ExistsByProviderAccountID(ctx context.Context, userID int64, providerAccountID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM bank_accounts WHERE user_id = $1 AND provider_account_id = $2)`,
		userID, providerAccountID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check bank account existence: %w", err)
	}
	return exists, nil
}

// UpdateCachedBalance writes back the last successfully fetched balance
func (r *BankAccountRepository) UpdateCachedBalance(ctx context.Context, id string, balance float64, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE bank_accounts SET last_balance = $2, last_balance_at = $3, updated_at = NOW() WHERE id = $1`,
		id, balance, at)
	if err != nil {
		return fmt.Errorf("failed to update cached balance: %w", err)
	}
	return nil
}

// Delete removes one linked account scoped to a user
func (r *BankAccountRepository) Delete(ctx context.Context, userID int64, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM bank_accounts WHERE user_id = $1 AND id = $2`, userID, id)
	if err != nil {
		return fmt.Errorf("failed to delete bank account: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return account.ErrAccountNotFound
	}
	return nil
}

func (r *BankAccountRepository) scanAccount(scan func(dest ...any) error) (*account.BankAccount, error) {
	var acc account.BankAccount
	var encrypted string
	var lastBalanceAt sql.NullTime

	err := scan(&acc.ID, &acc.UserID, &acc.ProviderAccountID, &acc.Name, &acc.AccountType,
		&acc.Subtype, &acc.InstitutionName, &acc.Currency, &encrypted,
		&acc.LastBalance, &lastBalanceAt, &acc.CreatedAt, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, account.ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan bank account: %w", err)
	}

	token, err := r.encryptor.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	acc.AccessToken = token

	if lastBalanceAt.Valid {
		acc.LastBalanceAt = lastBalanceAt.Time
	}
	return &acc, nil
}
