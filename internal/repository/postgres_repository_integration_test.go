package repository

import (
	"context"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/database"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoIntegration skips the test if INTEGRATION_TEST env var is not set
func skipIfNoIntegration(t *testing.T) {
	if os.Getenv("INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test. Set INTEGRATION_TEST=true to run")
	}
}

func getTestDB(t *testing.T) *database.PostgresDB {
	t.Helper()
	cfg := database.DefaultPostgresConfig()
	if host := os.Getenv("TEST_DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("TEST_DB_PORT")); err == nil {
		cfg.Port = port
	}
	if user := os.Getenv("TEST_DB_USER"); user != "" {
		cfg.User = user
	}
	cfg.Password = os.Getenv("TEST_DB_PASSWORD")
	if name := os.Getenv("TEST_DB_NAME"); name != "" {
		cfg.Database = name
	}

	ctx := context.Background()
	db, err := database.NewPostgres(ctx, cfg)
	if err != nil {
		t.Fatalf("Failed to connect to postgres: %v", err)
	}
	t.Cleanup(db.Close)

	if err := Migrate(ctx, db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, repo *PostgresUserRepository) *domain.User {
	t.Helper()
	now := time.Now()
	user := &domain.User{
		ID:        uuid.New().String(),
		Email:     "it-" + uuid.New().String() + "@example.com",
		Role:      domain.RoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestPostgresUserRepository_Integration(t *testing.T) {
	skipIfNoIntegration(t)
	ctx := context.Background()
	repo := NewPostgresUserRepository(getTestDB(t))

	user := createTestUser(t, repo)
	assert.ErrorIs(t, repo.Create(ctx, &domain.User{
		ID: uuid.New().String(), Email: user.Email, Role: domain.RoleUser,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}), domain.ErrUserAlreadyExists)

	got, err := repo.GetByEmail(ctx, user.Email)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Empty(t, got.PasswordHash)
	assert.Empty(t, got.UniqueID)

	v, err := repo.UpdatePassword(ctx, user.ID, "hash")
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	got.Role = domain.RoleAdmin
	got.UniqueID = "AD" + uuid.New().String()[:10]
	require.NoError(t, repo.Update(ctx, got))

	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, stored.Role)
	assert.Equal(t, "hash", stored.PasswordHash)
	assert.Equal(t, 1, stored.TokenVersion)

	missing, err := repo.GetByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestPostgresRefreshTokenRepository_Integration(t *testing.T) {
	skipIfNoIntegration(t)
	ctx := context.Background()
	db := getTestDB(t)
	user := createTestUser(t, NewPostgresUserRepository(db))
	repo := NewPostgresRefreshTokenRepository(db)
	exp := time.Now().Add(time.Hour)

	tokens := []string{uuid.NewString(), uuid.NewString(), uuid.NewString()}
	for _, tok := range tokens {
		_, err := repo.Create(ctx, user.ID, tok, exp)
		require.NoError(t, err)
	}

	count, err := repo.RevokeAllForUser(ctx, user.ID, tokens[2])
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	cur, err := repo.GetValid(ctx, tokens[2])
	require.NoError(t, err)
	require.NotNil(t, cur)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rt, err := repo.Revoke(ctx, tokens[2]); err == nil && rt != nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, winners)
}

func TestPostgresPasswordResetRepository_Integration(t *testing.T) {
	skipIfNoIntegration(t)
	ctx := context.Background()
	repo := NewPostgresPasswordResetRepository(getTestDB(t))
	email := "it-" + uuid.NewString() + "@example.com"
	exp := time.Now().Add(15 * time.Minute)

	var (
		wg     sync.WaitGroup
		tokens = make([]string, 5)
	)
	for i := range tokens {
		tokens[i] = uuid.NewString()
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_, err := repo.Replace(ctx, email, tok, exp)
			assert.NoError(t, err)
		}(tokens[i])
	}
	wg.Wait()

	usable := 0
	for _, tok := range tokens {
		prt, err := repo.Get(ctx, tok)
		require.NoError(t, err)
		require.NotNil(t, prt)
		if prt.Usable(time.Now()) {
			usable++
		}
	}
	assert.Equal(t, 1, usable)
}
