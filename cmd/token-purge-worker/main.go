package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Miasufee/connect-sub000/internal/di"
	"github.com/Miasufee/connect-sub000/internal/metrics"
	"github.com/Miasufee/connect-sub000/internal/worker"
	"github.com/Miasufee/connect-sub000/pkg/config"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"go.uber.org/zap"
)

func main() {
	once := flag.Bool("once", false, "run a single purge pass and exit")
	configPath := flag.String("config", "", "path to an env-format config file (default: ./.env if present)")
	flag.Parse()

	// Load configuration
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadWithPath(*configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       cfg.App.LogLevel,
		ServiceName: "token-purge-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting token purge worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	telemetryCfg := &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    "token-purge-worker",
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}
	if _, err := telemetry.Init(ctx, telemetryCfg); err != nil {
		appLog.Warn("Failed to initialize telemetry", zap.Error(err))
	}
	defer telemetry.Shutdown(context.Background())

	if cfg.Storage.Driver == "memory" {
		appLog.Warn("Memory storage is process-local, the purge worker has nothing to clean")
	}

	storage, err := di.OpenStorage(ctx, cfg)
	if err != nil {
		appLog.Fatal("Failed to open storage", zap.Error(err))
	}
	defer storage.Close()

	m, err := metrics.New()
	if err != nil {
		appLog.Fatal("Failed to create metrics", zap.Error(err))
	}

	purgeWorker := worker.NewTokenPurgeWorker(
		storage.RefreshRepo,
		storage.ResetRepo,
		m,
		&worker.TokenPurgeWorkerConfig{
			Interval:             cfg.Purge.Interval,
			RevokedRetentionDays: cfg.Purge.RevokedRetentionDays,
			ExpiredRetentionDays: cfg.Purge.ExpiredRetentionDays,
		},
	)

	if *once {
		result, err := purgeWorker.RunOnce(ctx)
		if err != nil {
			appLog.Fatal("Purge failed", zap.Error(err))
		}
		appLog.Info("Purge complete",
			zap.Int64("revoked_purged", result.RevokedPurged),
			zap.Int64("expired_cleaned", result.ExpiredCleaned),
			zap.Int64("reset_tokens_deleted", result.ResetTokensDeleted),
		)
		return
	}

	if err := purgeWorker.Start(ctx); err != nil {
		appLog.Fatal("Failed to start worker", zap.Error(err))
	}
	appLog.Info("Token purge worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	purgeWorker.Stop()

	stats := purgeWorker.GetStats()
	appLog.Info("Worker exited gracefully",
		zap.Int64("runs", stats.Runs),
		zap.Int64("total_purged", stats.TotalPurged),
		zap.Int64("total_errors", stats.TotalErrors),
	)
}
