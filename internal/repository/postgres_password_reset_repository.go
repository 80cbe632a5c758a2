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

// replaceAttempts bounds retries when a concurrent request for the same email wins the unused-token index
const replaceAttempts = 5

// PostgresPasswordResetRepository implements PasswordResetRepository using PostgreSQL.
// A partial unique index keeps at most one unused token per email.
type PostgresPasswordResetRepository struct {
	db  *database.PostgresDB
	now func() time.Time
}

// NewPostgresPasswordResetRepository creates a new PostgresPasswordResetRepository
func NewPostgresPasswordResetRepository(db *database.PostgresDB) *PostgresPasswordResetRepository {
	return &PostgresPasswordResetRepository{db: db, now: time.Now}
}

// Replace revokes earlier tokens for email and inserts the new one in a single transaction.
// Two racing requests collide on the unique index; the loser retries and supersedes the winner.
func (r *PostgresPasswordResetRepository) Replace(ctx context.Context, email, token string, expiresAt time.Time) (*domain.PasswordResetToken, error) {
	prt := &domain.PasswordResetToken{
		ID:        uuid.New().String(),
		Email:     email,
		Token:     token,
		ExpiresAt: expiresAt,
		CreatedAt: r.now(),
	}

	var err error
	for attempt := 0; attempt < replaceAttempts; attempt++ {
		err = database.WithTx(ctx, r.db.Pool(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx,
				`UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE email = $1 AND used = FALSE`,
				email, prt.CreatedAt,
			); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO password_reset_tokens (id, email, token_hash, expires_at, used, created_at)
				VALUES ($1, $2, $3, $4, FALSE, $5)`,
				prt.ID, prt.Email, hashToken(token), prt.ExpiresAt, prt.CreatedAt,
			)
			return err
		})
		if err == nil {
			return prt, nil
		}
		if !isUniqueViolation(err) {
			break
		}
	}
	return nil, fmt.Errorf("failed to store password reset token: %w", err)
}

// Get returns the stored token in any state
func (r *PostgresPasswordResetRepository) Get(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	query := `
		SELECT id, email, expires_at, used, used_at, created_at
		FROM password_reset_tokens
		WHERE token_hash = $1`

	prt := &domain.PasswordResetToken{Token: token}
	err := r.db.Pool().QueryRow(ctx, query, hashToken(token)).Scan(
		&prt.ID, &prt.Email, &prt.ExpiresAt, &prt.Used, &prt.UsedAt, &prt.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get password reset token: %w", err)
	}
	return prt, nil
}

// MarkUsed consumes the token
func (r *PostgresPasswordResetRepository) MarkUsed(ctx context.Context, token string) (bool, error) {
	query := `UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE token_hash = $1 AND used = FALSE`
	tag, err := r.db.Pool().Exec(ctx, query, hashToken(token), r.now())
	if err != nil {
		return false, fmt.Errorf("failed to mark password reset token used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// RevokeAllForEmail marks every unused token for email as used
func (r *PostgresPasswordResetRepository) RevokeAllForEmail(ctx context.Context, email string) (int64, error) {
	query := `UPDATE password_reset_tokens SET used = TRUE, used_at = $2 WHERE email = $1 AND used = FALSE`
	tag, err := r.db.Pool().Exec(ctx, query, email, r.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke password reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DeleteExpired hard-deletes tokens that expired before the cutoff
func (r *PostgresPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM password_reset_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired password reset tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
