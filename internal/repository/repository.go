package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
)

// UserRepository defines the interface for user data access.
// Lookups return (nil, nil) when the user does not exist.
type UserRepository interface {
	// Create creates a new user, returning domain.ErrUserAlreadyExists on a duplicate email
	Create(ctx context.Context, user *domain.User) error
	// GetByID retrieves a user by ID
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail retrieves a user by email
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	// Update saves profile, role, unique ID and flag changes
	Update(ctx context.Context, user *domain.User) error
	// UpdateLastLogin stamps last_login_at
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	// UpdatePassword stores a new hash and bumps token_version in one write, returning the new version
	UpdatePassword(ctx context.Context, id, passwordHash string) (int, error)
	// IncrementTokenVersion bumps token_version, returning the new version
	IncrementTokenVersion(ctx context.Context, id string) (int, error)
	// CountByRole counts users holding role
	CountByRole(ctx context.Context, role domain.Role) (int64, error)
}

// VerificationCodeRepository keeps at most one live login code per user
type VerificationCodeRepository interface {
	// Create replaces any existing code for the user and returns the new plaintext code
	Create(ctx context.Context, userID string) (string, error)
	// VerifyAndConsume checks code and deletes it on success. Errors:
	// domain.ErrCodeNotFound, domain.ErrCodeExpired, domain.ErrInvalidVerificationCode,
	// domain.ErrTooManyAttempts.
	VerifyAndConsume(ctx context.Context, userID, code string) error
	// Delete removes the user's code, if any
	Delete(ctx context.Context, userID string) error
}

// RefreshTokenRepository persists issued refresh tokens
type RefreshTokenRepository interface {
	// Create persists a refresh token
	Create(ctx context.Context, userID, token string, expiresAt time.Time) (*domain.RefreshToken, error)
	// GetValid returns the token if it is not revoked and not expired, else nil
	GetValid(ctx context.Context, token string) (*domain.RefreshToken, error)
	// Revoke flips an active token to revoked. It returns the record only when this call
	// performed the flip; an unknown or already revoked token yields (nil, nil).
	Revoke(ctx context.Context, token string) (*domain.RefreshToken, error)
	// RevokeAllForUser revokes every active token of the user except excludeToken
	RevokeAllForUser(ctx context.Context, userID, excludeToken string) (int64, error)
	// PurgeRevokedOlderThan hard-deletes tokens revoked more than days ago
	PurgeRevokedOlderThan(ctx context.Context, days int) (int64, error)
	// CleanupExpiredOlderThan hard-deletes tokens expired more than days ago, revoked or not
	CleanupExpiredOlderThan(ctx context.Context, days int) (int64, error)
}

// PasswordResetRepository persists single-use reset tokens
type PasswordResetRepository interface {
	// Replace marks every unused token for email as used and stores the new one
	Replace(ctx context.Context, email, token string, expiresAt time.Time) (*domain.PasswordResetToken, error)
	// Get returns the stored token in any state, or nil
	Get(ctx context.Context, token string) (*domain.PasswordResetToken, error)
	// MarkUsed consumes the token. It reports false when the token was unknown or already used.
	MarkUsed(ctx context.Context, token string) (bool, error)
	// RevokeAllForEmail marks every unused token for email as used
	RevokeAllForEmail(ctx context.Context, email string) (int64, error)
	// DeleteExpired hard-deletes tokens that expired before the cutoff
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// hashToken is the at-rest form of refresh and reset tokens
func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func daysAgo(now time.Time, days int) time.Time {
	return now.Add(-time.Duration(days) * 24 * time.Hour)
}
