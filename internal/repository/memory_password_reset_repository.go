package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/google/uuid"
)

// MemoryPasswordResetRepository implements PasswordResetRepository in memory
type MemoryPasswordResetRepository struct {
	tokens map[string]*domain.PasswordResetToken // token hash -> record
	mu     sync.Mutex
	now    func() time.Time
}

// NewMemoryPasswordResetRepository creates a new in-memory password reset repository
func NewMemoryPasswordResetRepository() *MemoryPasswordResetRepository {
	return &MemoryPasswordResetRepository{
		tokens: make(map[string]*domain.PasswordResetToken),
		now:    time.Now,
	}
}

// Replace marks earlier tokens for email used and stores the new one under one lock
func (r *MemoryPasswordResetRepository) Replace(ctx context.Context, email, token string, expiresAt time.Time) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.revokeLocked(email, now)

	prt := &domain.PasswordResetToken{
		ID:        uuid.New().String(),
		Email:     email,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}
	r.tokens[hashToken(token)] = prt

	c := *prt
	c.Token = token
	return &c, nil
}

// Get returns the stored token in any state
func (r *MemoryPasswordResetRepository) Get(ctx context.Context, token string) (*domain.PasswordResetToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prt, exists := r.tokens[hashToken(token)]
	if !exists {
		return nil, nil
	}
	c := *prt
	c.Token = token
	return &c, nil
}

// MarkUsed consumes the token
func (r *MemoryPasswordResetRepository) MarkUsed(ctx context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prt, exists := r.tokens[hashToken(token)]
	if !exists || prt.Used {
		return false, nil
	}
	now := r.now()
	prt.Used = true
	prt.UsedAt = &now
	return true, nil
}

// RevokeAllForEmail marks every unused token for email as used
func (r *MemoryPasswordResetRepository) RevokeAllForEmail(ctx context.Context, email string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.revokeLocked(email, r.now()), nil
}

// DeleteExpired hard-deletes tokens that expired before the cutoff
func (r *MemoryPasswordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var count int64
	for hash, prt := range r.tokens {
		if prt.ExpiresAt.Before(before) {
			delete(r.tokens, hash)
			count++
		}
	}
	return count, nil
}

func (r *MemoryPasswordResetRepository) revokeLocked(email string, now time.Time) int64 {
	var count int64
	for _, prt := range r.tokens {
		if prt.Email == email && !prt.Used {
			prt.Used = true
			usedAt := now
			prt.UsedAt = &usedAt
			count++
		}
	}
	return count
}
