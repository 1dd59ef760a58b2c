package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"flint/internal/domain/identity"
	"flint/internal/infrastructure/crypto"
)

// IdentityRepository implements identity.Repository for PostgreSQL. The
// provider secret is encrypted before it touches the database and decrypted
// on the way out; no query ever returns it in plaintext.
type IdentityRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

// NewIdentityRepository creates a new PostgreSQL identity repository
func NewIdentityRepository(db *DB, encryptor *crypto.Encryptor) *IdentityRepository {
	return &IdentityRepository{db: db, encryptor: encryptor}
}

// GetByUserID retrieves the registration for a user
func (r *IdentityRepository) GetByUserID(ctx context.Context, userID int64) (*identity.Identity, error) {
	query := `
		SELECT id, user_id, provider_user_id, provider_secret, created_at, rotated_at
		FROM identities
		WHERE user_id = $1
	`
	return r.scanIdentity(r.db.QueryRowContext(ctx, query, userID).Scan)
}

// Create inserts a registration row. The unique constraint on user_id makes
// a duplicate insert fail instead of silently overwriting; the registrar
// depends on that.
func (r *IdentityRepository) Create(ctx context.Context, userID int64, providerUserID, providerSecret string) (*identity.Identity, error) {
	encrypted, err := r.encryptor.Encrypt(providerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt provider secret: %w", err)
	}

	query := `
		INSERT INTO identities (user_id, provider_user_id, provider_secret)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, provider_user_id, provider_secret, created_at, rotated_at
	`

	ident, err := r.scanIdentity(r.db.QueryRowContext(ctx, query, userID, providerUserID, encrypted).Scan)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("registration already exists for user %d: %w", userID, err)
		}
		return nil, err
	}
	return ident, nil
}

// UpdateSecret replaces the stored credentials after a provider-side rotation
func (r *IdentityRepository) UpdateSecret(ctx context.Context, userID int64, providerUserID, providerSecret string) (*identity.Identity, error) {
	encrypted, err := r.encryptor.Encrypt(providerSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt provider secret: %w", err)
	}

	query := `
		UPDATE identities
		SET provider_user_id = $2, provider_secret = $3, rotated_at = NOW()
		WHERE user_id = $1
		RETURNING id, user_id, provider_user_id, provider_secret, created_at, rotated_at
	`
	return r.scanIdentity(r.db.QueryRowContext(ctx, query, userID, providerUserID, encrypted).Scan)
}

// DeleteByUserID removes the registration for a user
func (r *IdentityRepository) DeleteByUserID(ctx context.Context, userID int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete identity: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return identity.ErrIdentityNotFound
	}
	return nil
}

// ListAll retrieves every stored registration, used by the orphan sweep
func (r *IdentityRepository) ListAll(ctx context.Context) ([]*identity.Identity, error) {
	query := `
		SELECT id, user_id, provider_user_id, provider_secret, created_at, rotated_at
		FROM identities
		ORDER BY user_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	defer rows.Close()

	var idents []*identity.Identity
	for rows.Next() {
		ident, err := r.scanIdentity(rows.Scan)
		if err != nil {
			return nil, err
		}
		idents = append(idents, ident)
	}

	return idents, rows.Err()
}

func (r *IdentityRepository) scanIdentity(scan func(dest ...any) error) (*identity.Identity, error) {
	var ident identity.Identity
	var encrypted string
	var rotatedAt sql.NullTime

	err := scan(&ident.ID, &ident.UserID, &ident.ProviderUserID, &encrypted, &ident.CreatedAt, &rotatedAt)
	if err == sql.ErrNoRows {
		return nil, identity.ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan identity: %w", err)
	}

	secret, err := r.encryptor.Decrypt(encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt provider secret: %w", err)
	}
	ident.ProviderSecret = secret

	if rotatedAt.Valid {
		ident.RotatedAt = &rotatedAt.Time
	}
	return &ident, nil
}
