package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"flint/internal/domain/connection"
)

// ConnectionRepository implements connection.Repository for PostgreSQL
type ConnectionRepository struct {
	db *DB
}

// NewConnectionRepository creates a new PostgreSQL connection repository
func NewConnectionRepository(db *DB) *ConnectionRepository {
	return &ConnectionRepository{db: db}
}

// Upsert inserts or refreshes the connection row keyed by
// (user_id, authorization_id). The xmax = 0 check distinguishes a fresh
// insert from an update of an existing row.
func (r *ConnectionRepository) Upsert(ctx context.Context, params connection.UpsertParams) (*connection.Connection, bool, error) {
	query := `
		INSERT INTO connections (user_id, authorization_id, institution_name, disabled, last_sync_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id, authorization_id) DO UPDATE
		SET institution_name = EXCLUDED.institution_name,
		    disabled = EXCLUDED.disabled,
		    last_sync_at = NOW(),
		    updated_at = NOW()
		RETURNING id, user_id, authorization_id, institution_name, disabled,
		          created_at, updated_at, last_sync_at, (xmax = 0) AS inserted
	`

	var conn connection.Connection
	var inserted bool
	err := r.db.QueryRowContext(ctx, query,
		params.UserID, params.AuthorizationID, params.InstitutionName, params.Disabled,
	).Scan(
		&conn.ID, &conn.UserID, &conn.AuthorizationID, &conn.InstitutionName,
		&conn.Disabled, &conn.CreatedAt, &conn.UpdatedAt, &conn.LastSyncAt, &inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert connection: %w", err)
	}

	return &conn, inserted, nil
}

// ListByUserID retrieves all connections for a user
func (r *ConnectionRepository) ListByUserID(ctx context.Context, userID int64) ([]*connection.Connection, error) {
	query := `
		SELECT id, user_id, authorization_id, institution_name, disabled,
		       created_at, updated_at, last_sync_at
		FROM connections
		WHERE user_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	defer rows.Close()

	var conns []*connection.Connection
	for rows.Next() {
		var conn connection.Connection
		if err := rows.Scan(
			&conn.ID, &conn.UserID, &conn.AuthorizationID, &conn.InstitutionName,
			&conn.Disabled, &conn.CreatedAt, &conn.UpdatedAt, &conn.LastSyncAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan connection: %w", err)
		}
		conns = append(conns, &conn)
	}

	return conns, rows.Err()
}

// GetByAuthorizationID retrieves one connection by its provider authorization id
func (r *ConnectionRepository) GetByAuthorizationID(ctx context.Context, userID int64, authorizationID string) (*connection.Connection, error) {
	query := `
		SELECT id, user_id, authorization_id, institution_name, disabled,
		       created_at, updated_at, last_sync_at
		FROM connections
		WHERE user_id = $1 AND authorization_id = $2
	`

	var conn connection.Connection
	err := r.db.QueryRowContext(ctx, query, userID, authorizationID).Scan(
		&conn.ID, &conn.UserID, &conn.AuthorizationID, &conn.InstitutionName,
		&conn.Disabled, &conn.CreatedAt, &conn.UpdatedAt, &conn.LastSyncAt,
	)
	if err == sql.ErrNoRows {
		return nil, connection.ErrConnectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}

	return &conn, nil
}

// CountByUserID counts a user's connections, used for tier limit checks
func (r *ConnectionRepository) CountByUserID(ctx context.Context, userID int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM connections WHERE user_id = $1`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count connections: %w", err)
	}
	return count, nil
}

// Delete removes one connection
func (r *ConnectionRepository) Delete(ctx context.Context, userID int64, authorizationID string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM connections WHERE user_id = $1 AND authorization_id = $2`,
		userID, authorizationID)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return connection.ErrConnectionNotFound
	}
	return nil
}
