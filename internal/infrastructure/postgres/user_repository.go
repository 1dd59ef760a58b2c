package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"flint/internal/domain/user"
)

// UserRepository implements the user.Repository interface for PostgreSQL
type UserRepository struct {
	db *DB
}

// NewUserRepository creates a new PostgreSQL user repository
func NewUserRepository(db *DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, params user.CreateUserParams) (*user.User, error) {
	query := `
		INSERT INTO users (email, name, password_hash, tier)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, password_hash, tier, is_admin, created_at, updated_at
	`

	tier := params.Tier
	if tier == "" {
		tier = user.TierFree
	}

	return r.scanUser(r.db.QueryRowContext(ctx, query,
		strings.ToLower(params.Email), params.Name, params.PasswordHash, string(tier)))
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `
		SELECT id, email, name, password_hash, tier, is_admin, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves a user by email (case-insensitive)
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `
		SELECT id, email, name, password_hash, tier, is_admin, created_at, updated_at
		FROM users
		WHERE email = $1
	`
	return r.scanUser(r.db.QueryRowContext(ctx, query, strings.ToLower(email)))
}

// List retrieves all users
func (r *UserRepository) List(ctx context.Context) ([]*user.User, error) {
	query := `
		SELECT id, email, name, password_hash, tier, is_admin, created_at, updated_at
		FROM users
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		var u user.User
		var tier string
		var passwordHash sql.NullString
		if err := rows.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &tier, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		u.Tier = user.ParseTier(tier)
		if passwordHash.Valid {
			u.PasswordHash = &passwordHash.String
		}
		users = append(users, &u)
	}

	return users, rows.Err()
}

// Update updates a user's mutable fields
func (r *UserRepository) Update(ctx context.Context, userID int64, params user.UpdateUserParams) (*user.User, error) {
	query := `
		UPDATE users
		SET name = COALESCE($2, name),
		    tier = COALESCE($3, tier),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, name, password_hash, tier, is_admin, created_at, updated_at
	`

	var tier *string
	if params.Tier != nil {
		t := string(*params.Tier)
		tier = &t
	}

	return r.scanUser(r.db.QueryRowContext(ctx, query, userID, params.Name, tier))
}

func (r *UserRepository) scanUser(row *tracedRow) (*user.User, error) {
	var u user.User
	var tier string
	var passwordHash sql.NullString

	err := row.Scan(&u.ID, &u.Email, &u.Name, &passwordHash, &tier, &u.IsAdmin, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.Tier = user.ParseTier(tier)
	if passwordHash.Valid {
		u.PasswordHash = &passwordHash.String
	}
	return &u, nil
}
