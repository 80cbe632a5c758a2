package di

import (
	"context"
	"fmt"
	"time"

	"github.com/Miasufee/connect-sub000/internal/handler"
	"github.com/Miasufee/connect-sub000/internal/metrics"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/Miasufee/connect-sub000/internal/security"
	"github.com/Miasufee/connect-sub000/internal/service"
	"github.com/Miasufee/connect-sub000/internal/token"
	"github.com/Miasufee/connect-sub000/internal/worker"
	"github.com/Miasufee/connect-sub000/pkg/config"
	"github.com/Miasufee/connect-sub000/pkg/database"
	"github.com/Miasufee/connect-sub000/pkg/kafka"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/middleware"
	pkgredis "github.com/Miasufee/connect-sub000/pkg/redis"
	"github.com/Miasufee/connect-sub000/pkg/retry"
	"go.uber.org/zap"
)

// Storage holds the repositories and the connections behind them
type Storage struct {
	DB    *database.PostgresDB
	Redis *pkgredis.Client

	UserRepo    repository.UserRepository
	RefreshRepo repository.RefreshTokenRepository
	ResetRepo   repository.PasswordResetRepository
	CodeRepo    repository.VerificationCodeRepository
}

// OpenStorage connects the configured storage driver. The postgres driver also
// runs migrations and loads the Redis scripts.
func OpenStorage(ctx context.Context, cfg *config.Config) (*Storage, error) {
	codeCfg := repository.VerificationCodeConfig{
		Length:      cfg.Verification.CodeLength,
		TTL:         cfg.Verification.CodeTTL,
		MaxAttempts: cfg.Verification.MaxAttempts,
	}

	if cfg.Storage.Driver == "memory" {
		return &Storage{
			UserRepo:    repository.NewMemoryUserRepository(),
			RefreshRepo: repository.NewMemoryRefreshTokenRepository(),
			ResetRepo:   repository.NewMemoryPasswordResetRepository(),
			CodeRepo:    repository.NewMemoryVerificationCodeRepository(codeCfg),
		}, nil
	}

	db, err := database.NewPostgres(ctx, &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  10 * time.Second,
		MaxRetries:      3,
		RetryInterval:   2 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	redisClient, err := pkgredis.NewClient(ctx, &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
		MaxRetries:    3,
		RetryInterval: time.Second,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	codeRepo := repository.NewRedisVerificationCodeRepository(redisClient, codeCfg)
	if err := codeRepo.LoadScripts(ctx); err != nil {
		redisClient.Close()
		db.Close()
		return nil, err
	}

	return &Storage{
		DB:          db,
		Redis:       redisClient,
		UserRepo:    repository.NewPostgresUserRepository(db),
		RefreshRepo: repository.NewPostgresRefreshTokenRepository(db),
		ResetRepo:   repository.NewPostgresPasswordResetRepository(db),
		CodeRepo:    codeRepo,
	}, nil
}

// HealthCheckers returns the readiness checkers, nil for the memory driver
func (s *Storage) HealthCheckers() (db, redis handler.HealthChecker) {
	if s.DB != nil {
		db = s.DB
	}
	if s.Redis != nil {
		redis = s.Redis
	}
	return db, redis
}

// Close closes the storage connections
func (s *Storage) Close() {
	if s.Redis != nil {
		s.Redis.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}

// Container holds all dependencies for the auth service
type Container struct {
	Config *config.Config
	Log    *logger.Logger

	// Infrastructure
	Storage  *Storage
	Producer *kafka.Producer
	Metrics  *metrics.AuthMetrics

	// Services
	Events       service.AuthEventPublisher
	Email        service.EmailSender
	Sessions     *service.SessionManager
	AuthService  *service.AuthService
	ResetService *service.PasswordResetService
	PurgeWorker  *worker.TokenPurgeWorker

	// Handlers
	Handlers *handler.Handlers
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Config *config.Config
	Log    *logger.Logger

	// Storage is opened from Config when nil
	Storage *Storage
}

// NewContainer creates a new dependency injection container
func NewContainer(ctx context.Context, cfg *ContainerConfig) (*Container, error) {
	appCfg := cfg.Config
	log := cfg.Log
	if log == nil {
		log = logger.Get()
	}

	c := &Container{Config: appCfg, Log: log, Storage: cfg.Storage}
	if c.Storage == nil {
		storage, err := OpenStorage(ctx, appCfg)
		if err != nil {
			return nil, err
		}
		c.Storage = storage
	}

	m, err := metrics.New()
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	c.Metrics = m

	codec, err := token.NewCodec(token.Config{
		Issuer:     appCfg.JWT.Issuer,
		SessionKey: token.Key{Secret: appCfg.JWT.Secret, Algorithm: appCfg.JWT.Algorithm},
		ResetKey:   token.Key{Secret: appCfg.PasswordReset.Secret, Algorithm: appCfg.PasswordReset.Algorithm},
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create token codec: %w", err)
	}
	hasher := security.NewHasher(appCfg.Security.BcryptCost)

	if err := c.initMessaging(ctx); err != nil {
		c.Close()
		return nil, err
	}

	// Initialize services
	c.Sessions = service.NewSessionManager(
		codec,
		c.Storage.UserRepo,
		c.Storage.RefreshRepo,
		c.Events,
		c.Metrics,
		log,
		service.SessionConfig{
			AccessTokenTTL:       appCfg.JWT.AccessTokenTTL,
			RefreshTokenTTL:      appCfg.JWT.RefreshTokenTTL,
			EmailVerificationTTL: appCfg.JWT.EmailVerificationTTL,
		},
	)
	c.AuthService = service.NewAuthService(
		c.Storage.UserRepo,
		c.Storage.CodeRepo,
		c.Sessions,
		hasher,
		c.Email,
		c.Events,
		c.Metrics,
		log,
		service.AuthConfig{
			CodeTTL:              appCfg.Verification.CodeTTL,
			RequireVerifiedEmail: appCfg.Verification.RequireVerifiedEmail,
			VerifyURL:            appCfg.Verification.VerifyURL,
			BootstrapSecret:      appCfg.Security.SuperuserBootstrapSecret,
		},
	)
	c.ResetService = service.NewPasswordResetService(
		c.Storage.UserRepo,
		c.Storage.ResetRepo,
		c.Sessions,
		codec,
		hasher,
		c.Email,
		c.Events,
		c.Metrics,
		log,
		service.PasswordResetConfig{
			TokenTTL:    appCfg.PasswordReset.TokenTTL,
			FrontendURL: appCfg.PasswordReset.FrontendURL,
		},
	)
	c.PurgeWorker = worker.NewTokenPurgeWorker(
		c.Storage.RefreshRepo,
		c.Storage.ResetRepo,
		c.Metrics,
		&worker.TokenPurgeWorkerConfig{
			Interval:             appCfg.Purge.Interval,
			RevokedRetentionDays: appCfg.Purge.RevokedRetentionDays,
			ExpiredRetentionDays: appCfg.Purge.ExpiredRetentionDays,
		},
	)

	// Initialize handlers
	dbCheck, redisCheck := c.Storage.HealthCheckers()
	c.Handlers = &handler.Handlers{
		Auth:     handler.NewAuthHandler(c.AuthService, log),
		Session:  handler.NewSessionHandler(c.Sessions, log),
		Reset:    handler.NewPasswordResetHandler(c.ResetService, log),
		Admin:    handler.NewAdminHandler(c.PurgeWorker, log),
		Health:   handler.NewHealthHandler(dbCheck, redisCheck),
		Sessions: c.Sessions,
	}

	return c, nil
}

// initMessaging wires Kafka-backed email and events when brokers are configured,
// and falls back to the log sender and the no-op publisher otherwise
func (c *Container) initMessaging(ctx context.Context) error {
	kafkaCfg := c.Config.Kafka
	if !kafkaCfg.Enabled() {
		c.Log.Warn("kafka disabled, emails are logged and auth events dropped")
		c.Email = service.NewLogEmailSender(c.Log, c.Config.IsDevelopment())
		c.Events = service.NewNoOpAuthEventPublisher()
		return nil
	}

	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       kafkaCfg.Brokers,
		ClientID:      kafkaCfg.ClientID + "-email",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		LingerMs:      5,
	})
	if err != nil {
		return fmt.Errorf("failed to create email producer: %w", err)
	}
	c.Producer = producer
	c.Email = service.NewKafkaEmailSender(producer, kafkaCfg.EmailTopic, retry.DefaultConfig())

	events, err := service.NewKafkaAuthEventPublisher(ctx, &service.EventPublisherConfig{
		Brokers:     kafkaCfg.Brokers,
		Topic:       kafkaCfg.EventsTopic,
		ServiceName: c.Config.App.Name,
		ClientID:    kafkaCfg.ClientID + "-events",
	})
	if err != nil {
		return fmt.Errorf("failed to create event publisher: %w", err)
	}
	c.Events = events

	c.Log.Info("kafka messaging enabled",
		zap.Strings("brokers", kafkaCfg.Brokers),
		zap.String("email_topic", kafkaCfg.EmailTopic),
		zap.String("events_topic", kafkaCfg.EventsTopic),
	)
	return nil
}

// RouteConfig returns the route options derived from configuration
func (c *Container) RouteConfig() handler.RouteConfig {
	return handler.RouteConfig{
		RateLimit: middleware.RateLimitConfig{
			RequestsPerMinute: c.Config.RateLimit.RequestsPerMinute,
			Burst:             c.Config.RateLimit.Burst,
		},
		InternalRoutes: c.Config.Server.InternalRoutes,
	}
}

// Close releases messaging and storage resources
func (c *Container) Close() {
	if c.PurgeWorker != nil {
		c.PurgeWorker.Stop()
	}
	if c.Events != nil {
		if err := c.Events.Close(); err != nil {
			c.Log.Warn("failed to close event publisher", zap.Error(err))
		}
	}
	if c.Producer != nil {
		c.Producer.Close()
	}
	if c.Storage != nil {
		c.Storage.Close()
	}
}
