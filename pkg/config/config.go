package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App           AppConfig           `mapstructure:"app"`
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	PasswordReset PasswordResetConfig `mapstructure:"password_reset"`
	Verification  VerificationConfig  `mapstructure:"verification"`
	Security      SecurityConfig      `mapstructure:"security"`
	Purge         PurgeConfig         `mapstructure:"purge"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Storage       StorageConfig       `mapstructure:"storage"`
	OTel          OTelConfig          `mapstructure:"otel"`
}

// AppConfig holds application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	Debug       bool   `mapstructure:"debug"`
	Version     string `mapstructure:"version"`
	LogLevel    string `mapstructure:"log_level"`
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`

	// InternalRoutes mounts endpoints only other backend services may call
	InternalRoutes bool `mapstructure:"internal_routes"`
}

// DatabaseConfig holds PostgreSQL connection settings
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the PostgreSQL connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds Kafka/Redpanda connection settings.
// An empty broker list disables event and email publication.
type KafkaConfig struct {
	Brokers     []string `mapstructure:"brokers"`
	ClientID    string   `mapstructure:"client_id"`
	EmailTopic  string   `mapstructure:"email_topic"`
	EventsTopic string   `mapstructure:"events_topic"`
}

// Enabled reports whether at least one broker is configured
func (k *KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// JWTConfig holds settings for access, refresh and email-verification tokens
type JWTConfig struct {
	Secret               string        `mapstructure:"secret"`
	Algorithm            string        `mapstructure:"algorithm"`
	AccessTokenTTL       time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL      time.Duration `mapstructure:"refresh_token_ttl"`
	EmailVerificationTTL time.Duration `mapstructure:"email_verification_ttl"`
	Issuer               string        `mapstructure:"issuer"`
}

// PasswordResetConfig holds the separate key material for reset tokens
type PasswordResetConfig struct {
	Secret      string        `mapstructure:"secret"`
	Algorithm   string        `mapstructure:"algorithm"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	FrontendURL string        `mapstructure:"frontend_url"`
}

// VerificationConfig holds OTP login settings
type VerificationConfig struct {
	CodeLength  int           `mapstructure:"code_length"`
	CodeTTL     time.Duration `mapstructure:"code_ttl"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	VerifyURL   string        `mapstructure:"verify_url"`

	// RequireVerifiedEmail gates OTP login on is_email_verified
	RequireVerifiedEmail bool `mapstructure:"require_verified_email"`
}

// SecurityConfig holds hashing and bootstrap settings
type SecurityConfig struct {
	BcryptCost               int    `mapstructure:"bcrypt_cost"`
	SuperuserBootstrapSecret string `mapstructure:"superuser_bootstrap_secret"`
}

// PurgeConfig controls the token purge worker
type PurgeConfig struct {
	Interval             time.Duration `mapstructure:"interval"`
	RevokedRetentionDays int           `mapstructure:"revoked_retention_days"`
	ExpiredRetentionDays int           `mapstructure:"expired_retention_days"`
}

// RateLimitConfig controls throttling of code-sending endpoints
type RateLimitConfig struct {
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	Burst             int `mapstructure:"burst"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	ServiceName   string  `mapstructure:"service_name"`
	CollectorAddr string  `mapstructure:"collector_addr"`
	SampleRatio   float64 `mapstructure:"sample_ratio"`
}

const defaultJWTSecret = "change-me-jwt-secret"

var supportedAlgorithms = map[string]bool{
	"HS256": true,
	"HS384": true,
	"HS512": true,
}

// Load loads configuration from environment variables and an optional .env file
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")

	// A missing .env is fine, env vars may carry everything
	_ = v.ReadInConfig()

	return build(v)
}

// LoadWithPath loads configuration from an env-format file at path. Env vars still override it.
func LoadWithPath(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigFile(path)
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return build(v)
}

func build(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("APP_NAME", "zawiya-auth")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)
	v.SetDefault("APP_VERSION", "1.0.0")
	v.SetDefault("APP_LOG_LEVEL", "info")

	// Server defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8081)
	v.SetDefault("SERVER_READ_TIMEOUT", "5s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "10s")
	v.SetDefault("SERVER_IDLE_TIMEOUT", "120s")
	v.SetDefault("SERVER_INTERNAL_ROUTES", false)

	// Database defaults
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "postgres")
	v.SetDefault("DATABASE_PASSWORD", "postgres")
	v.SetDefault("DATABASE_DBNAME", "auth_db")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_MAX_CONNS", 50)
	v.SetDefault("DATABASE_MIN_CONNS", 10)
	v.SetDefault("DATABASE_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("DATABASE_CONN_MAX_IDLE_TIME", "5m")

	// Redis defaults
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 50)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 5)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	// Kafka defaults
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_CLIENT_ID", "auth-service")
	v.SetDefault("KAFKA_EMAIL_TOPIC", "notification.email")
	v.SetDefault("KAFKA_EVENTS_TOPIC", "auth.events")

	// JWT defaults
	v.SetDefault("JWT_SECRET", defaultJWTSecret)
	v.SetDefault("JWT_ALGORITHM", "HS256")
	v.SetDefault("JWT_ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TOKEN_TTL", "168h") // 7 days
	v.SetDefault("JWT_EMAIL_VERIFICATION_TTL", "24h")
	v.SetDefault("JWT_ISSUER", "zawiya")

	// Password reset defaults
	v.SetDefault("PASSWORD_RESET_SECRET", "change-me-reset-secret")
	v.SetDefault("PASSWORD_RESET_ALGORITHM", "HS256")
	v.SetDefault("PASSWORD_RESET_TOKEN_TTL", "30m")
	v.SetDefault("PASSWORD_RESET_FRONTEND_URL", "http://localhost:3000/reset-password")

	// Verification code defaults
	v.SetDefault("VERIFICATION_CODE_LENGTH", 6)
	v.SetDefault("VERIFICATION_CODE_TTL", "10m")
	v.SetDefault("VERIFICATION_MAX_ATTEMPTS", 5)
	v.SetDefault("VERIFICATION_VERIFY_URL", "http://localhost:3000/verify-email")
	v.SetDefault("VERIFICATION_REQUIRE_VERIFIED_EMAIL", true)

	// Security defaults
	v.SetDefault("SECURITY_BCRYPT_COST", 12)
	v.SetDefault("SECURITY_SUPERUSER_BOOTSTRAP_SECRET", "")

	// Purge defaults
	v.SetDefault("PURGE_INTERVAL", "1h")
	v.SetDefault("PURGE_REVOKED_RETENTION_DAYS", 7)
	v.SetDefault("PURGE_EXPIRED_RETENTION_DAYS", 30)

	// Rate limit defaults
	v.SetDefault("RATE_LIMIT_REQUESTS_PER_MINUTE", 5)
	v.SetDefault("RATE_LIMIT_BURST", 3)

	// Storage defaults
	v.SetDefault("STORAGE_DRIVER", "postgres")

	// OTel defaults
	v.SetDefault("OTEL_ENABLED", false)
	v.SetDefault("OTEL_SERVICE_NAME", "auth-service")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	// App
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")
	cfg.App.Version = v.GetString("APP_VERSION")
	cfg.App.LogLevel = v.GetString("APP_LOG_LEVEL")

	// Server
	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")
	cfg.Server.IdleTimeout = v.GetDuration("SERVER_IDLE_TIMEOUT")
	cfg.Server.InternalRoutes = v.GetBool("SERVER_INTERNAL_ROUTES")

	// Database
	cfg.Database.Host = v.GetString("DATABASE_HOST")
	cfg.Database.Port = v.GetInt("DATABASE_PORT")
	cfg.Database.User = v.GetString("DATABASE_USER")
	cfg.Database.Password = v.GetString("DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("DATABASE_SSLMODE")
	cfg.Database.MaxConns = v.GetInt("DATABASE_MAX_CONNS")
	cfg.Database.MinConns = v.GetInt("DATABASE_MIN_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("DATABASE_CONN_MAX_LIFETIME")
	cfg.Database.ConnMaxIdleTime = v.GetDuration("DATABASE_CONN_MAX_IDLE_TIME")

	// Redis
	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	// Kafka
	cfg.Kafka.Brokers = splitList(v.GetString("KAFKA_BROKERS"))
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")
	cfg.Kafka.EmailTopic = v.GetString("KAFKA_EMAIL_TOPIC")
	cfg.Kafka.EventsTopic = v.GetString("KAFKA_EVENTS_TOPIC")

	// JWT
	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Algorithm = strings.ToUpper(v.GetString("JWT_ALGORITHM"))
	cfg.JWT.AccessTokenTTL = v.GetDuration("JWT_ACCESS_TOKEN_TTL")
	cfg.JWT.RefreshTokenTTL = v.GetDuration("JWT_REFRESH_TOKEN_TTL")
	cfg.JWT.EmailVerificationTTL = v.GetDuration("JWT_EMAIL_VERIFICATION_TTL")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	// Password reset
	cfg.PasswordReset.Secret = v.GetString("PASSWORD_RESET_SECRET")
	cfg.PasswordReset.Algorithm = strings.ToUpper(v.GetString("PASSWORD_RESET_ALGORITHM"))
	cfg.PasswordReset.TokenTTL = v.GetDuration("PASSWORD_RESET_TOKEN_TTL")
	cfg.PasswordReset.FrontendURL = v.GetString("PASSWORD_RESET_FRONTEND_URL")

	// Verification
	cfg.Verification.CodeLength = v.GetInt("VERIFICATION_CODE_LENGTH")
	cfg.Verification.CodeTTL = v.GetDuration("VERIFICATION_CODE_TTL")
	cfg.Verification.MaxAttempts = v.GetInt("VERIFICATION_MAX_ATTEMPTS")
	cfg.Verification.VerifyURL = v.GetString("VERIFICATION_VERIFY_URL")
	cfg.Verification.RequireVerifiedEmail = v.GetBool("VERIFICATION_REQUIRE_VERIFIED_EMAIL")

	// Security
	cfg.Security.BcryptCost = v.GetInt("SECURITY_BCRYPT_COST")
	cfg.Security.SuperuserBootstrapSecret = v.GetString("SECURITY_SUPERUSER_BOOTSTRAP_SECRET")

	// Purge
	cfg.Purge.Interval = v.GetDuration("PURGE_INTERVAL")
	cfg.Purge.RevokedRetentionDays = v.GetInt("PURGE_REVOKED_RETENTION_DAYS")
	cfg.Purge.ExpiredRetentionDays = v.GetInt("PURGE_EXPIRED_RETENTION_DAYS")

	// Rate limit
	cfg.RateLimit.RequestsPerMinute = v.GetInt("RATE_LIMIT_REQUESTS_PER_MINUTE")
	cfg.RateLimit.Burst = v.GetInt("RATE_LIMIT_BURST")

	// Storage
	cfg.Storage.Driver = strings.ToLower(v.GetString("STORAGE_DRIVER"))

	// OTel
	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app name is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.JWT.Secret == "" {
		return errors.New("JWT secret is required")
	}
	if c.PasswordReset.Secret == "" {
		return errors.New("password reset secret is required")
	}
	// A leaked JWT secret must not be able to forge reset tokens
	if c.PasswordReset.Secret == c.JWT.Secret {
		return errors.New("password reset secret must differ from JWT secret")
	}

	if !supportedAlgorithms[c.JWT.Algorithm] {
		return fmt.Errorf("unsupported JWT algorithm: %s", c.JWT.Algorithm)
	}
	if !supportedAlgorithms[c.PasswordReset.Algorithm] {
		return fmt.Errorf("unsupported password reset algorithm: %s", c.PasswordReset.Algorithm)
	}

	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 || c.JWT.EmailVerificationTTL <= 0 {
		return errors.New("JWT token TTLs must be positive")
	}
	if c.PasswordReset.TokenTTL <= 0 {
		return errors.New("password reset token TTL must be positive")
	}
	if c.Verification.CodeLength <= 0 || c.Verification.CodeTTL <= 0 {
		return errors.New("verification code length and TTL must be positive")
	}

	switch c.Storage.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported storage driver: %s", c.Storage.Driver)
	}

	if c.isProduction() && c.JWT.Secret == defaultJWTSecret {
		return errors.New("JWT secret must be changed in production")
	}

	return nil
}

func (c *Config) isProduction() bool {
	return c.App.Environment == "production"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.App.Environment == "development"
}
