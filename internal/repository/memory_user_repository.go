package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
)

// MemoryUserRepository implements UserRepository using in-memory storage.
// This is useful for testing and development.
type MemoryUserRepository struct {
	users   map[string]*domain.User
	byEmail map[string]string // email -> userID
	mu      sync.RWMutex
}

// NewMemoryUserRepository creates a new in-memory user repository
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users:   make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Create creates a new user
func (r *MemoryUserRepository) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byEmail[user.Email]; exists {
		return domain.ErrUserAlreadyExists
	}
	if _, exists := r.users[user.ID]; exists {
		return domain.ErrUserAlreadyExists
	}

	u := *user
	r.users[user.ID] = &u
	r.byEmail[user.Email] = user.ID
	return nil
}

// GetByID retrieves a user by ID
func (r *MemoryUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, exists := r.users[id]
	if !exists {
		return nil, nil
	}
	u := *user
	return &u, nil
}

// GetByEmail retrieves a user by email
func (r *MemoryUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, exists := r.byEmail[email]
	if !exists {
		return nil, nil
	}
	u := *r.users[id]
	return &u, nil
}

// Update updates a user, leaving password_hash, token_version and last_login_at untouched
func (r *MemoryUserRepository) Update(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.users[user.ID]
	if !exists {
		return domain.ErrUserNotFound
	}
	if owner, taken := r.byEmail[user.Email]; taken && owner != user.ID {
		return domain.ErrUserAlreadyExists
	}

	user.UpdatedAt = time.Now()
	u := *user
	u.PasswordHash = existing.PasswordHash
	u.TokenVersion = existing.TokenVersion
	u.LastLoginAt = existing.LastLoginAt

	delete(r.byEmail, existing.Email)
	r.users[user.ID] = &u
	r.byEmail[u.Email] = u.ID
	return nil
}

// UpdateLastLogin stamps last_login_at
func (r *MemoryUserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if user, exists := r.users[id]; exists {
		t := at
		user.LastLoginAt = &t
	}
	return nil
}

// UpdatePassword stores a new hash and bumps token_version
func (r *MemoryUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[id]
	if !exists {
		return 0, domain.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	user.TokenVersion++
	user.UpdatedAt = time.Now()
	return user.TokenVersion, nil
}

// IncrementTokenVersion bumps token_version
func (r *MemoryUserRepository) IncrementTokenVersion(ctx context.Context, id string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, exists := r.users[id]
	if !exists {
		return 0, domain.ErrUserNotFound
	}
	user.TokenVersion++
	user.UpdatedAt = time.Now()
	return user.TokenVersion, nil
}

// CountByRole counts users holding role
func (r *MemoryUserRepository) CountByRole(ctx context.Context, role domain.Role) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	for _, user := range r.users {
		if user.Role == role {
			count++
		}
	}
	return count, nil
}
