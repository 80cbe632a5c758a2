package repository

import (
	"context"
	_ "embed"
	"fmt"
	"strconv"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/security"
	pkgredis "github.com/Miasufee/connect-sub000/pkg/redis"
	"github.com/redis/go-redis/v9"
)

//go:embed scripts/verify_code.lua
var verifyCodeScript string

const scriptVerifyCode = "verify_code"

// expiredGrace keeps an expired code around long enough to report Expired instead of NotFound
const expiredGrace = time.Hour

// RedisVerificationCodeRepository implements VerificationCodeRepository using Redis hashes
type RedisVerificationCodeRepository struct {
	client *pkgredis.Client
	config VerificationCodeConfig
	now    func() time.Time
}

// NewRedisVerificationCodeRepository creates a new RedisVerificationCodeRepository
func NewRedisVerificationCodeRepository(client *pkgredis.Client, cfg VerificationCodeConfig) *RedisVerificationCodeRepository {
	return &RedisVerificationCodeRepository{
		client: client,
		config: cfg.normalize(),
		now:    time.Now,
	}
}

// LoadScripts loads the verification Lua script into Redis
func (r *RedisVerificationCodeRepository) LoadScripts(ctx context.Context) error {
	if _, err := r.client.LoadScript(ctx, scriptVerifyCode, verifyCodeScript); err != nil {
		return fmt.Errorf("failed to load script %s: %w", scriptVerifyCode, err)
	}
	return nil
}

func verificationCodeKey(userID string) string {
	return fmt.Sprintf("auth:verification_code:%s", userID)
}

// Create replaces any existing code for the user
func (r *RedisVerificationCodeRepository) Create(ctx context.Context, userID string) (string, error) {
	code, err := security.GenerateNumericCode(r.config.Length)
	if err != nil {
		return "", err
	}

	key := verificationCodeKey(userID)
	now := r.now()
	expiresAt := now.Add(r.config.TTL)

	_, err = r.client.Client().TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"code_hash", hashToken(code),
			"expires_at", strconv.FormatInt(expiresAt.UnixMilli(), 10),
			"attempts", 0,
			"created_at", strconv.FormatInt(now.UnixMilli(), 10),
		)
		pipe.PExpire(ctx, key, r.config.TTL+expiredGrace)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to store verification code: %w", err)
	}
	return code, nil
}

// VerifyAndConsume checks code against the stored one using an atomic script
func (r *RedisVerificationCodeRepository) VerifyAndConsume(ctx context.Context, userID, code string) error {
	keys := []string{verificationCodeKey(userID)}
	args := []interface{}{
		hashToken(code),      // ARGV[1]: code hash
		r.now().UnixMilli(),  // ARGV[2]: now
		r.config.MaxAttempts, // ARGV[3]: max attempts
	}

	result := r.client.EvalWithFallback(ctx, scriptVerifyCode, verifyCodeScript, keys, args...)
	if result.Err() != nil {
		return fmt.Errorf("failed to execute verify_code script: %w", result.Err())
	}

	values, err := result.Slice()
	if err != nil {
		return fmt.Errorf("failed to parse script result: %w", err)
	}
	if len(values) < 2 {
		return fmt.Errorf("unexpected script result length: %d", len(values))
	}

	if success, _ := values[0].(int64); success == 1 {
		return nil
	}
	errorCode, _ := values[1].(string)
	return verificationError(errorCode)
}

// Delete removes the user's code
func (r *RedisVerificationCodeRepository) Delete(ctx context.Context, userID string) error {
	if err := r.client.Client().Del(ctx, verificationCodeKey(userID)).Err(); err != nil {
		return fmt.Errorf("failed to delete verification code: %w", err)
	}
	return nil
}

func verificationError(code string) error {
	switch code {
	case "NOT_FOUND":
		return domain.ErrCodeNotFound
	case "EXPIRED":
		return domain.ErrCodeExpired
	case "MISMATCH":
		return domain.ErrInvalidVerificationCode
	case "TOO_MANY_ATTEMPTS":
		return domain.ErrTooManyAttempts
	}
	return fmt.Errorf("unknown verify_code result %q", code)
}
