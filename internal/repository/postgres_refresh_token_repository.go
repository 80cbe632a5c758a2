package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/database"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PostgresRefreshTokenRepository implements RefreshTokenRepository using PostgreSQL.
// Tokens are stored as SHA-256 hashes.
type PostgresRefreshTokenRepository struct {
	db  *database.PostgresDB
	now func() time.Time
}

// NewPostgresRefreshTokenRepository creates a new PostgresRefreshTokenRepository
func NewPostgresRefreshTokenRepository(db *database.PostgresDB) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db, now: time.Now}
}

// Create persists a refresh token
func (r *PostgresRefreshTokenRepository) Create(ctx context.Context, userID, token string, expiresAt time.Time) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: r.now(),
	}

	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, revoked, created_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)`

	if _, err := r.db.Pool().Exec(ctx, query, rt.ID, rt.UserID, hashToken(token), rt.ExpiresAt, rt.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create refresh token: %w", err)
	}
	return rt, nil
}

// GetValid returns the token if it is active
func (r *PostgresRefreshTokenRepository) GetValid(ctx context.Context, token string) (*domain.RefreshToken, error) {
	query := `
		SELECT id, user_id, expires_at, revoked, revoked_at, created_at
		FROM refresh_tokens
		WHERE token_hash = $1 AND revoked = FALSE AND expires_at > $2`

	return r.scan(r.db.Pool().QueryRow(ctx, query, hashToken(token), r.now()), token)
}

// Revoke conditionally flips revoked=false to true; only the winning caller gets the record back
func (r *PostgresRefreshTokenRepository) Revoke(ctx context.Context, token string) (*domain.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE token_hash = $1 AND revoked = FALSE
		RETURNING id, user_id, expires_at, revoked, revoked_at, created_at`

	return r.scan(r.db.Pool().QueryRow(ctx, query, hashToken(token), r.now()), token)
}

// RevokeAllForUser revokes every active token of the user except excludeToken
func (r *PostgresRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID, excludeToken string) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET revoked = TRUE, revoked_at = $2
		WHERE user_id = $1 AND revoked = FALSE AND token_hash <> $3`

	exclude := ""
	if excludeToken != "" {
		exclude = hashToken(excludeToken)
	}
	tag, err := r.db.Pool().Exec(ctx, query, userID, r.now(), exclude)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// PurgeRevokedOlderThan hard-deletes tokens revoked more than days ago
func (r *PostgresRefreshTokenRepository) PurgeRevokedOlderThan(ctx context.Context, days int) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE revoked = TRUE AND revoked_at < $1`
	tag, err := r.db.Pool().Exec(ctx, query, daysAgo(r.now(), days))
	if err != nil {
		return 0, fmt.Errorf("failed to purge revoked refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CleanupExpiredOlderThan hard-deletes tokens expired more than days ago
func (r *PostgresRefreshTokenRepository) CleanupExpiredOlderThan(ctx context.Context, days int) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`
	tag, err := r.db.Pool().Exec(ctx, query, daysAgo(r.now(), days))
	if err != nil {
		return 0, fmt.Errorf("failed to clean up expired refresh tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRefreshTokenRepository) scan(row pgx.Row, token string) (*domain.RefreshToken, error) {
	rt := &domain.RefreshToken{Token: token}
	err := row.Scan(&rt.ID, &rt.UserID, &rt.ExpiresAt, &rt.Revoked, &rt.RevokedAt, &rt.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan refresh token: %w", err)
	}
	return rt, nil
}
