package repository

import (
	"context"
	"sync"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/security"
)

// MemoryVerificationCodeRepository implements VerificationCodeRepository in memory
// with the same semantics as the Redis script.
type MemoryVerificationCodeRepository struct {
	codes  map[string]*domain.VerificationCode // userID -> code
	config VerificationCodeConfig
	mu     sync.Mutex
	now    func() time.Time
}

// NewMemoryVerificationCodeRepository creates a new in-memory verification code repository
func NewMemoryVerificationCodeRepository(cfg VerificationCodeConfig) *MemoryVerificationCodeRepository {
	return &MemoryVerificationCodeRepository{
		codes:  make(map[string]*domain.VerificationCode),
		config: cfg.normalize(),
		now:    time.Now,
	}
}

// Create replaces any existing code for the user
func (r *MemoryVerificationCodeRepository) Create(ctx context.Context, userID string) (string, error) {
	code, err := security.GenerateNumericCode(r.config.Length)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.codes[userID] = &domain.VerificationCode{
		UserID:    userID,
		Code:      code,
		ExpiresAt: now.Add(r.config.TTL),
		CreatedAt: now,
	}
	return code, nil
}

// VerifyAndConsume checks code and deletes it on success
func (r *MemoryVerificationCodeRepository) VerifyAndConsume(ctx context.Context, userID, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	vc, exists := r.codes[userID]
	if !exists {
		return domain.ErrCodeNotFound
	}
	if !r.now().Before(vc.ExpiresAt) {
		delete(r.codes, userID)
		return domain.ErrCodeExpired
	}
	if !security.ConstantTimeCompare(vc.Code, code) {
		vc.Attempts++
		if vc.Attempts >= r.config.MaxAttempts {
			delete(r.codes, userID)
			return domain.ErrTooManyAttempts
		}
		return domain.ErrInvalidVerificationCode
	}

	delete(r.codes, userID)
	return nil
}

// Delete removes the user's code
func (r *MemoryVerificationCodeRepository) Delete(ctx context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, userID)
	return nil
}
