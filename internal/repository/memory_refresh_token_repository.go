package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/google/uuid"
)

// MemoryRefreshTokenRepository implements RefreshTokenRepository in memory
type MemoryRefreshTokenRepository struct {
	tokens map[string]*domain.RefreshToken // token hash -> record
	mu     sync.Mutex
	now    func() time.Time
}

// NewMemoryRefreshTokenRepository creates a new in-memory refresh token repository
func NewMemoryRefreshTokenRepository() *MemoryRefreshTokenRepository {
	return &MemoryRefreshTokenRepository{
		tokens: make(map[string]*domain.RefreshToken),
		now:    time.Now,
	}
}

// Create persists a refresh token
func (r *MemoryRefreshTokenRepository) Create(ctx context.Context, userID, token string, expiresAt time.Time) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt := &domain.RefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: r.now(),
	}
	r.tokens[hashToken(token)] = rt
	return r.copyOf(rt, token), nil
}

// GetValid returns the token if it is active
func (r *MemoryRefreshTokenRepository) GetValid(ctx context.Context, token string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, exists := r.tokens[hashToken(token)]
	if !exists || !rt.Usable(r.now()) {
		return nil, nil
	}
	return r.copyOf(rt, token), nil
}

// Revoke flips an active token to revoked
func (r *MemoryRefreshTokenRepository) Revoke(ctx context.Context, token string) (*domain.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rt, exists := r.tokens[hashToken(token)]
	if !exists || rt.Revoked {
		return nil, nil
	}
	now := r.now()
	rt.Revoked = true
	rt.RevokedAt = &now
	return r.copyOf(rt, token), nil
}

// RevokeAllForUser revokes every active token of the user except excludeToken
func (r *MemoryRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID, excludeToken string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exclude := ""
	if excludeToken != "" {
		exclude = hashToken(excludeToken)
	}

	now := r.now()
	var count int64
	for hash, rt := range r.tokens {
		if rt.UserID != userID || rt.Revoked || hash == exclude {
			continue
		}
		rt.Revoked = true
		rt.RevokedAt = &now
		count++
	}
	return count, nil
}

// PurgeRevokedOlderThan hard-deletes tokens revoked more than days ago
func (r *MemoryRefreshTokenRepository) PurgeRevokedOlderThan(ctx context.Context, days int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := daysAgo(r.now(), days)
	var count int64
	for hash, rt := range r.tokens {
		if rt.Revoked && rt.RevokedAt != nil && rt.RevokedAt.Before(cutoff) {
			delete(r.tokens, hash)
			count++
		}
	}
	return count, nil
}

// CleanupExpiredOlderThan hard-deletes tokens expired more than days ago
func (r *MemoryRefreshTokenRepository) CleanupExpiredOlderThan(ctx context.Context, days int) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := daysAgo(r.now(), days)
	var count int64
	for hash, rt := range r.tokens {
		if rt.ExpiresAt.Before(cutoff) {
			delete(r.tokens, hash)
			count++
		}
	}
	return count, nil
}

func (r *MemoryRefreshTokenRepository) copyOf(rt *domain.RefreshToken, token string) *domain.RefreshToken {
	c := *rt
	c.Token = token
	return &c
}
