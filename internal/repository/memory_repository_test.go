package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()

	user := &domain.User{ID: "u1", Email: "a@x.com", Role: domain.RoleUser, PasswordHash: "h1", IsActive: true}
	require.NoError(t, repo.Create(ctx, user))
	assert.ErrorIs(t, repo.Create(ctx, &domain.User{ID: "u2", Email: "a@x.com"}), domain.ErrUserAlreadyExists)

	got, err := repo.GetByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "u1", got.ID)

	missing, err := repo.GetByID(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	// returned values are copies
	got.Name = "changed"
	again, _ := repo.GetByID(ctx, "u1")
	assert.Empty(t, again.Name)

	t.Run("update keeps password and version", func(t *testing.T) {
		u, _ := repo.GetByID(ctx, "u1")
		u.Role = domain.RoleAdmin
		u.UniqueID = "AD12345678"
		u.PasswordHash = "ignored"
		u.TokenVersion = 99
		require.NoError(t, repo.Update(ctx, u))

		stored, _ := repo.GetByID(ctx, "u1")
		assert.Equal(t, domain.RoleAdmin, stored.Role)
		assert.Equal(t, "AD12345678", stored.UniqueID)
		assert.Equal(t, "h1", stored.PasswordHash)
		assert.Equal(t, 0, stored.TokenVersion)
	})

	t.Run("password change bumps version", func(t *testing.T) {
		v, err := repo.UpdatePassword(ctx, "u1", "h2")
		require.NoError(t, err)
		assert.Equal(t, 1, v)

		v, err = repo.IncrementTokenVersion(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, 2, v)

		stored, _ := repo.GetByID(ctx, "u1")
		assert.Equal(t, "h2", stored.PasswordHash)
		assert.Equal(t, 2, stored.TokenVersion)

		_, err = repo.IncrementTokenVersion(ctx, "nope")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("last login", func(t *testing.T) {
		at := time.Now()
		require.NoError(t, repo.UpdateLastLogin(ctx, "u1", at))
		stored, _ := repo.GetByID(ctx, "u1")
		require.NotNil(t, stored.LastLoginAt)
		assert.True(t, stored.LastLoginAt.Equal(at))
	})

	t.Run("update keeps last login", func(t *testing.T) {
		stored, _ := repo.GetByID(ctx, "u1")
		require.NotNil(t, stored.LastLoginAt)
		want := *stored.LastLoginAt

		stale := *stored
		stale.Name = "renamed"
		stale.LastLoginAt = nil
		require.NoError(t, repo.Update(ctx, &stale))

		stored, _ = repo.GetByID(ctx, "u1")
		assert.Equal(t, "renamed", stored.Name)
		require.NotNil(t, stored.LastLoginAt)
		assert.True(t, stored.LastLoginAt.Equal(want))

		forged := want.Add(-time.Hour)
		stale.LastLoginAt = &forged
		require.NoError(t, repo.Update(ctx, &stale))
		stored, _ = repo.GetByID(ctx, "u1")
		assert.True(t, stored.LastLoginAt.Equal(want))
	})
}

func TestMemoryRefreshTokenRepository_Lifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRefreshTokenRepository()

	rt, err := repo.Create(ctx, "u1", "tok-1", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rt.Token)

	valid, err := repo.GetValid(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, valid)
	assert.Equal(t, "u1", valid.UserID)

	revoked, err := repo.Revoke(ctx, "tok-1")
	require.NoError(t, err)
	require.NotNil(t, revoked)
	assert.True(t, revoked.Revoked)

	// idempotent
	again, err := repo.Revoke(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, again)
	unknown, err := repo.Revoke(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, unknown)

	gone, err := repo.GetValid(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMemoryRefreshTokenRepository_ExpiredIsNotValid(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRefreshTokenRepository()

	_, err := repo.Create(ctx, "u1", "tok-1", time.Now().Add(-time.Second))
	require.NoError(t, err)

	got, err := repo.GetValid(ctx, "tok-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryRefreshTokenRepository_RevokeAllExcept(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRefreshTokenRepository()
	exp := time.Now().Add(time.Hour)

	for _, tok := range []string{"a", "b", "current"} {
		_, err := repo.Create(ctx, "u1", tok, exp)
		require.NoError(t, err)
	}
	_, err := repo.Create(ctx, "u2", "other-user", exp)
	require.NoError(t, err)

	count, err := repo.RevokeAllForUser(ctx, "u1", "current")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	cur, _ := repo.GetValid(ctx, "current")
	assert.NotNil(t, cur)
	a, _ := repo.GetValid(ctx, "a")
	assert.Nil(t, a)
	other, _ := repo.GetValid(ctx, "other-user")
	assert.NotNil(t, other)

	count, err = repo.RevokeAllForUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestMemoryRefreshTokenRepository_ConcurrentRevokeHasOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRefreshTokenRepository()
	_, err := repo.Create(ctx, "u1", "tok", time.Now().Add(time.Hour))
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rt, err := repo.Revoke(ctx, "tok")
			if err == nil && rt != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestMemoryRefreshTokenRepository_Purge(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRefreshTokenRepository()
	now := time.Now()

	// revoked 10 days ago
	repo.now = func() time.Time { return now.AddDate(0, 0, -10) }
	_, err := repo.Create(ctx, "u1", "old-revoked", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.Revoke(ctx, "old-revoked")
	require.NoError(t, err)

	repo.now = func() time.Time { return now }
	_, err = repo.Create(ctx, "u1", "fresh-revoked", now.Add(time.Hour))
	require.NoError(t, err)
	_, err = repo.Revoke(ctx, "fresh-revoked")
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u1", "long-expired", now.AddDate(0, 0, -40))
	require.NoError(t, err)
	_, err = repo.Create(ctx, "u1", "recently-expired", now.AddDate(0, 0, -1))
	require.NoError(t, err)

	purged, err := repo.PurgeRevokedOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	cleaned, err := repo.CleanupExpiredOlderThan(ctx, 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleaned)

	assert.Len(t, repo.tokens, 2)
}

func TestMemoryPasswordResetRepository_SingleValidity(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPasswordResetRepository()
	exp := time.Now().Add(15 * time.Minute)

	for i := 0; i < 5; i++ {
		_, err := repo.Replace(ctx, "a@x.com", fmt.Sprintf("tok-%d", i), exp)
		require.NoError(t, err)
	}
	_, err := repo.Replace(ctx, "b@x.com", "tok-b", exp)
	require.NoError(t, err)

	now := time.Now()
	usable := 0
	for i := 0; i < 5; i++ {
		prt, err := repo.Get(ctx, fmt.Sprintf("tok-%d", i))
		require.NoError(t, err)
		require.NotNil(t, prt)
		if prt.Usable(now) {
			usable++
			assert.Equal(t, "tok-4", prt.Token)
		}
	}
	assert.Equal(t, 1, usable)

	other, _ := repo.Get(ctx, "tok-b")
	assert.True(t, other.Usable(now))
}

func TestMemoryPasswordResetRepository_ConcurrentReplace(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPasswordResetRepository()
	exp := time.Now().Add(15 * time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _ = repo.Replace(ctx, "a@x.com", fmt.Sprintf("tok-%d", i), exp)
		}(i)
	}
	wg.Wait()

	usable := 0
	for _, prt := range repo.tokens {
		if prt.Usable(time.Now()) {
			usable++
		}
	}
	assert.Equal(t, 1, usable)
}

func TestMemoryPasswordResetRepository_MarkUsedAndSweep(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPasswordResetRepository()

	_, err := repo.Replace(ctx, "a@x.com", "tok", time.Now().Add(time.Minute))
	require.NoError(t, err)

	ok, err := repo.MarkUsed(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = repo.MarkUsed(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = repo.MarkUsed(ctx, "unknown")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = repo.Replace(ctx, "b@x.com", "stale", time.Now().Add(-time.Hour))
	require.NoError(t, err)
	deleted, err := repo.DeleteExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	missing, err := repo.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestVerificationCodeConfig_Defaults(t *testing.T) {
	cfg := VerificationCodeConfig{MaxAttempts: 2}.normalize()
	assert.Equal(t, 6, cfg.Length)
	assert.Equal(t, 10*time.Minute, cfg.TTL)
	assert.Equal(t, 2, cfg.MaxAttempts)

	repo := NewMemoryVerificationCodeRepository(VerificationCodeConfig{})
	assert.Equal(t, defaultVerificationCodeConfig(), repo.config)
}

func TestMemoryVerificationCodeRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryVerificationCodeRepository(VerificationCodeConfig{MaxAttempts: 2})

	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", "123456"), domain.ErrCodeNotFound)

	code, err := repo.Create(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, code, 6)

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", wrong), domain.ErrInvalidVerificationCode)
	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", wrong), domain.ErrTooManyAttempts)
	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", code), domain.ErrCodeNotFound)

	code, err = repo.Create(ctx, "u1")
	require.NoError(t, err)
	repo.now = func() time.Time { return time.Now().Add(time.Hour) }
	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", code), domain.ErrCodeExpired)
	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", code), domain.ErrCodeNotFound)

	repo.now = time.Now
	code, err = repo.Create(ctx, "u1")
	require.NoError(t, err)
	assert.NoError(t, repo.VerifyAndConsume(ctx, "u1", code))
	assert.ErrorIs(t, repo.VerifyAndConsume(ctx, "u1", code), domain.ErrCodeNotFound)
}
