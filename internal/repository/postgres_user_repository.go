package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error code for unique violation
const pgUniqueViolationCode = "23505"

const userColumns = `id, email, name, role, password_hash, unique_id, is_active, is_email_verified,
		       token_version, last_login_at, created_at, updated_at`

// PostgresUserRepository implements UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db *database.PostgresDB
}

// NewPostgresUserRepository creates a new PostgresUserRepository
func NewPostgresUserRepository(db *database.PostgresDB) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

// Create creates a new user
func (r *PostgresUserRepository) Create(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (
			id, email, name, role, password_hash, unique_id, is_active, is_email_verified,
			token_version, last_login_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		string(user.Role),
		nullString(user.PasswordHash),
		nullString(user.UniqueID),
		user.IsActive,
		user.IsEmailVerified,
		user.TokenVersion,
		user.LastLoginAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID
func (r *PostgresUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.Pool().QueryRow(ctx, query, id))
}

// GetByEmail retrieves a user by email
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.db.Pool().QueryRow(ctx, query, email))
}

// Update updates a user. token_version and password_hash have their own writers.
func (r *PostgresUserRepository) Update(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, name = $3, role = $4, unique_id = $5, is_active = $6,
		    is_email_verified = $7, updated_at = $8
		WHERE id = $1`

	user.UpdatedAt = time.Now()
	tag, err := r.db.Pool().Exec(ctx, query,
		user.ID,
		user.Email,
		user.Name,
		string(user.Role),
		nullString(user.UniqueID),
		user.IsActive,
		user.IsEmailVerified,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// UpdateLastLogin stamps last_login_at
func (r *PostgresUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login_at = $2 WHERE id = $1`
	if _, err := r.db.Pool().Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return nil
}

// UpdatePassword stores a new hash and bumps token_version
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (int, error) {
	query := `
		UPDATE users
		SET password_hash = $2, token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING token_version`

	var version int
	if err := r.db.Pool().QueryRow(ctx, query, id, passwordHash).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to update password: %w", err)
	}
	return version, nil
}

// IncrementTokenVersion bumps token_version
func (r *PostgresUserRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	query := `
		UPDATE users
		SET token_version = token_version + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING token_version`

	var version int
	if err := r.db.Pool().QueryRow(ctx, query, id).Scan(&version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrUserNotFound
		}
		return 0, fmt.Errorf("failed to increment token version: %w", err)
	}
	return version, nil
}

// CountByRole counts users holding role
func (r *PostgresUserRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	var count int64
	if err := r.db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE role = $1`, string(role)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

func (r *PostgresUserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user         domain.User
		role         string
		passwordHash *string
		uniqueID     *string
	)
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Name,
		&role,
		&passwordHash,
		&uniqueID,
		&user.IsActive,
		&user.IsEmailVerified,
		&user.TokenVersion,
		&user.LastLoginAt,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	user.Role = domain.Role(role)
	if passwordHash != nil {
		user.PasswordHash = *passwordHash
	}
	if uniqueID != nil {
		user.UniqueID = *uniqueID
	}
	return &user, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolationCode
}
