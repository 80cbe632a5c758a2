package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionManager_GenerateTokenPair(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "pair@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.ExpiresIn)
	assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	stored, err := env.refresh.GetValid(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, user.ID, stored.UserID)

	// access tokens are never persisted
	stored, err = env.refresh.GetValid(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Nil(t, stored)

	claims, verified, err := env.sessions.VerifyAccessToken(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)
	assert.Equal(t, domain.TokenKindAccess, claims.Kind)
	assert.Equal(t, user.Email, verified.Email)
}

func TestSessionManager_VersionBumpInvalidatesTokens(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "version@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	_, err = env.users.IncrementTokenVersion(ctx, user.ID)
	require.NoError(t, err)

	_, _, err = env.sessions.VerifyAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	_, err = env.sessions.RotateRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	// the stale refresh token is burned by the attempt
	stored, err := env.refresh.GetValid(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

// gatedUserRepository holds the first armed GetByID until release is closed
type gatedUserRepository struct {
	repository.UserRepository
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.UserRepository.GetByID(ctx, id)
}

func TestSessionManager_VersionBumpDuringInFlightVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "inflight@zawiya.test", domain.RoleUser, "", "")

	gated := &gatedUserRepository{
		UserRepository: env.users,
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	sessions := NewSessionManager(env.codec, gated, env.refresh, env.events, nil, nil, SessionConfig{
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})

	pair, err := sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	gated.armed.Store(true)
	first := make(chan error, 1)
	go func() {
		_, _, err := sessions.VerifyAccessToken(ctx, pair.AccessToken)
		first <- err
	}()
	<-gated.entered

	_, err = env.users.IncrementTokenVersion(ctx, user.ID)
	require.NoError(t, err)

	// a verify that starts after the bump must see the new version
	_, _, err = sessions.VerifyAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	_, err = sessions.RotateRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	close(gated.release)
	<-first
}

func TestSessionManager_RotateRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "rotate@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	rotated, err := env.sessions.RotateRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	t.Run("second rotation of the same token fails", func(t *testing.T) {
		_, err := env.sessions.RotateRefreshToken(ctx, pair.RefreshToken)
		assert.ErrorIs(t, err, domain.ErrInvalidSession)
	})

	t.Run("new refresh token rotates", func(t *testing.T) {
		_, err := env.sessions.RotateRefreshToken(ctx, rotated.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := env.sessions.RotateRefreshToken(ctx, rotated.AccessToken)
		assert.ErrorIs(t, err, domain.ErrInvalidSession)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := env.sessions.RotateRefreshToken(ctx, "not-a-token")
		assert.ErrorIs(t, err, domain.ErrInvalidSession)
	})
}

func TestSessionManager_RotateRefreshToken_ConcurrentSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "race@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := env.sessions.RotateRefreshToken(ctx, pair.RefreshToken); err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins)
}

func TestSessionManager_RotateRefreshToken_InactiveUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "inactive@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	user.IsActive = false
	require.NoError(t, env.users.Update(ctx, user))

	_, err = env.sessions.RotateRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	_, _, err = env.sessions.VerifyAccessToken(ctx, pair.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}

func TestSessionManager_LogoutCurrentDevice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "logout@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	revoked, err := env.sessions.LogoutCurrentDevice(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = env.sessions.LogoutCurrentDevice(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = env.sessions.LogoutCurrentDevice(ctx, "")
	require.NoError(t, err)
	assert.False(t, revoked)

	_, err = env.sessions.RotateRefreshToken(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
	assert.True(t, env.events.has(domain.AuthEventUserLoggedOut))
}

func TestSessionManager_LogoutAllOtherDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "others@zawiya.test", domain.RoleUser, "", "")

	phone, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)
	laptop, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)
	current, err := env.sessions.GenerateTokenPair(ctx, user)
	require.NoError(t, err)

	count, fresh, err := env.sessions.LogoutAllOtherDevices(ctx, env.reload(t, user.ID), current.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	require.NotNil(t, fresh)

	for _, old := range []string{phone.RefreshToken, laptop.RefreshToken, current.RefreshToken} {
		stored, err := env.refresh.GetValid(ctx, old)
		require.NoError(t, err)
		assert.Nil(t, stored)
	}

	_, _, err = env.sessions.VerifyAccessToken(ctx, current.AccessToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	_, _, err = env.sessions.VerifyAccessToken(ctx, fresh.AccessToken)
	assert.NoError(t, err)

	_, err = env.sessions.RotateRefreshToken(ctx, fresh.RefreshToken)
	assert.NoError(t, err)
}

func TestSessionManager_LogoutAllOtherDevices_ForeignToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.seedUser(t, "owner@zawiya.test", domain.RoleUser, "", "")
	other := env.seedUser(t, "other@zawiya.test", domain.RoleUser, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, other)
	require.NoError(t, err)

	_, _, err = env.sessions.LogoutAllOtherDevices(ctx, owner, pair.RefreshToken)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)

	stored, err := env.refresh.GetValid(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotNil(t, stored)
}

func TestSessionManager_LogoutAllDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	member := env.seedUser(t, "member@zawiya.test", domain.RoleUser, "", "")
	admin := env.seedUser(t, "admin@zawiya.test", domain.RoleAdmin, "", "")
	superAdmin := env.seedUser(t, "sa@zawiya.test", domain.RoleSuperAdmin, "", "")

	pair, err := env.sessions.GenerateTokenPair(ctx, member)
	require.NoError(t, err)
	_, err = env.sessions.GenerateTokenPair(ctx, member)
	require.NoError(t, err)

	t.Run("admin cannot target another user", func(t *testing.T) {
		_, err := env.sessions.LogoutAllDevices(ctx, admin, member.ID)
		assert.ErrorIs(t, err, domain.ErrSessionTerminationDenied)
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := env.sessions.LogoutAllDevices(ctx, superAdmin, "missing")
		assert.ErrorIs(t, err, domain.ErrUserNotFound)
	})

	t.Run("super admin targets another user", func(t *testing.T) {
		count, err := env.sessions.LogoutAllDevices(ctx, superAdmin, member.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), count)
		assert.Equal(t, member.TokenVersion+1, env.reload(t, member.ID).TokenVersion)

		_, _, err = env.sessions.VerifyAccessToken(ctx, pair.AccessToken)
		assert.ErrorIs(t, err, domain.ErrInvalidSession)
	})

	t.Run("self", func(t *testing.T) {
		_, err := env.sessions.GenerateTokenPair(ctx, env.reload(t, admin.ID))
		require.NoError(t, err)

		count, err := env.sessions.LogoutAllDevices(ctx, admin, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})
}

func TestSessionManager_EmailVerificationToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.seedUser(t, "verify@zawiya.test", domain.RoleUser, "", "")

	raw, err := env.sessions.IssueEmailVerificationToken(user)
	require.NoError(t, err)

	claims, verified, err := env.sessions.VerifyToken(ctx, raw, domain.TokenKindEmailVerification)
	require.NoError(t, err)
	assert.Equal(t, domain.TokenKindEmailVerification, claims.Kind)
	assert.Equal(t, user.ID, verified.ID)

	_, _, err = env.sessions.VerifyAccessToken(ctx, raw)
	assert.ErrorIs(t, err, domain.ErrInvalidSession)
}
