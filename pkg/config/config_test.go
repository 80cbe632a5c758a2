package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "zawiya-auth", cfg.App.Name)
	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "HS256", cfg.JWT.Algorithm)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTokenTTL)
	assert.Equal(t, 10*time.Minute, cfg.Verification.CodeTTL)
	assert.Equal(t, 6, cfg.Verification.CodeLength)
	assert.Equal(t, "postgres", cfg.Storage.Driver)
	assert.False(t, cfg.Kafka.Enabled())
	assert.NotEqual(t, cfg.JWT.Secret, cfg.PasswordReset.Secret)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-from-env")
	t.Setenv("JWT_ALGORITHM", "hs512")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "jwt-from-env", cfg.JWT.Secret)
	assert.Equal(t, "HS512", cfg.JWT.Algorithm)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, "memory", cfg.Storage.Driver)
}

func TestLoadWithPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.env")
	content := "APP_ENVIRONMENT=staging\nJWT_SECRET=jwt-from-file\nSTORAGE_DRIVER=memory\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	t.Setenv("STORAGE_DRIVER", "postgres")

	cfg, err := LoadWithPath(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", cfg.App.Environment)
	assert.Equal(t, "jwt-from-file", cfg.JWT.Secret)
	// env vars win over the file
	assert.Equal(t, "postgres", cfg.Storage.Driver)

	_, err = LoadWithPath(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			App:    AppConfig{Name: "zawiya-auth", Environment: "development"},
			Server: ServerConfig{Port: 8081},
			JWT: JWTConfig{
				Secret:               "a",
				Algorithm:            "HS256",
				AccessTokenTTL:       time.Minute,
				RefreshTokenTTL:      time.Hour,
				EmailVerificationTTL: time.Hour,
			},
			PasswordReset: PasswordResetConfig{Secret: "b", Algorithm: "HS256", TokenTTL: time.Minute},
			Verification:  VerificationConfig{CodeLength: 6, CodeTTL: time.Minute},
			Storage:       StorageConfig{Driver: "memory"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing jwt secret", func(c *Config) { c.JWT.Secret = "" }, true},
		{"shared secrets", func(c *Config) { c.PasswordReset.Secret = c.JWT.Secret }, true},
		{"unsupported algorithm", func(c *Config) { c.JWT.Algorithm = "none" }, true},
		{"unsupported reset algorithm", func(c *Config) { c.PasswordReset.Algorithm = "RS256" }, true},
		{"zero access ttl", func(c *Config) { c.JWT.AccessTokenTTL = 0 }, true},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad storage", func(c *Config) { c.Storage.Driver = "mongo" }, true},
		{"default secret in production", func(c *Config) {
			c.App.Environment = "production"
			c.JWT.Secret = defaultJWTSecret
		}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
