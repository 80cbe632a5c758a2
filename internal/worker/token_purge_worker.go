package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Miasufee/connect-sub000/internal/metrics"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TokenPurgeWorkerConfig contains configuration for the purge worker
type TokenPurgeWorkerConfig struct {
	// Interval is the time between purge runs
	Interval time.Duration
	// RevokedRetentionDays keeps revoked refresh tokens this long before deletion
	RevokedRetentionDays int
	// ExpiredRetentionDays keeps expired refresh tokens this long before deletion
	ExpiredRetentionDays int
}

// DefaultTokenPurgeWorkerConfig returns default configuration
func DefaultTokenPurgeWorkerConfig() *TokenPurgeWorkerConfig {
	return &TokenPurgeWorkerConfig{
		Interval:             time.Hour,
		RevokedRetentionDays: 7,
		ExpiredRetentionDays: 30,
	}
}

// PurgeResult is what one run removed
type PurgeResult struct {
	RevokedPurged      int64
	ExpiredCleaned     int64
	ResetTokensDeleted int64
}

// TokenPurgeWorker hard-deletes stale refresh and reset tokens
type TokenPurgeWorker struct {
	refreshRepo repository.RefreshTokenRepository
	resetRepo   repository.PasswordResetRepository
	metrics     *metrics.AuthMetrics
	config      *TokenPurgeWorkerConfig
	log         *logger.Logger
	now         func() time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	running     bool

	// Stats
	runs         int64
	totalPurged  int64
	totalErrors  int64
	lastRunTime  time.Time
	lastRunCount int64
}

// NewTokenPurgeWorker creates a new purge worker
func NewTokenPurgeWorker(
	refreshRepo repository.RefreshTokenRepository,
	resetRepo repository.PasswordResetRepository,
	m *metrics.AuthMetrics,
	config *TokenPurgeWorkerConfig,
) *TokenPurgeWorker {
	if config == nil {
		config = DefaultTokenPurgeWorkerConfig()
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}

	return &TokenPurgeWorker{
		refreshRepo: refreshRepo,
		resetRepo:   resetRepo,
		metrics:     m,
		config:      config,
		log:         logger.Get(),
		now:         time.Now,
		stopCh:      make(chan struct{}),
	}
}

// Start starts the purge loop
func (w *TokenPurgeWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("token purge worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting token purge worker",
		zap.Duration("interval", w.config.Interval),
		zap.Int("revoked_retention_days", w.config.RevokedRetentionDays),
		zap.Int("expired_retention_days", w.config.ExpiredRetentionDays),
	)

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

// Stop stops the purge loop and waits for an in-flight run
func (w *TokenPurgeWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping token purge worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Token purge worker stopped")
}

func (w *TokenPurgeWorker) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.runLogged(ctx)
		}
	}
}

func (w *TokenPurgeWorker) runLogged(ctx context.Context) {
	result, err := w.RunOnce(ctx)
	if err != nil {
		w.log.Error("Token purge run failed", zap.Error(err))
		return
	}
	if total := result.total(); total > 0 {
		w.log.Info("Token purge run completed",
			zap.Int64("revoked_purged", result.RevokedPurged),
			zap.Int64("expired_cleaned", result.ExpiredCleaned),
			zap.Int64("reset_tokens_deleted", result.ResetTokensDeleted),
		)
	}
}

// RunOnce performs one purge pass. It is safe to call while the loop runs and
// alongside live traffic, since every step is a single conditional delete.
func (w *TokenPurgeWorker) RunOnce(ctx context.Context) (*PurgeResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "worker.token_purge.run")
	defer span.End()

	result := &PurgeResult{}
	var err error

	if result.RevokedPurged, err = w.refreshRepo.PurgeRevokedOlderThan(ctx, w.config.RevokedRetentionDays); err != nil {
		return w.fail(span, result, fmt.Errorf("failed to purge revoked refresh tokens: %w", err))
	}
	if result.ExpiredCleaned, err = w.refreshRepo.CleanupExpiredOlderThan(ctx, w.config.ExpiredRetentionDays); err != nil {
		return w.fail(span, result, fmt.Errorf("failed to clean up expired refresh tokens: %w", err))
	}
	if w.resetRepo != nil {
		if result.ResetTokensDeleted, err = w.resetRepo.DeleteExpired(ctx, w.now()); err != nil {
			return w.fail(span, result, fmt.Errorf("failed to delete expired reset tokens: %w", err))
		}
	}

	w.metrics.Purged(ctx, "refresh_revoked", result.RevokedPurged)
	w.metrics.Purged(ctx, "refresh_expired", result.ExpiredCleaned)
	w.metrics.Purged(ctx, "password_reset", result.ResetTokensDeleted)

	w.mu.Lock()
	w.runs++
	w.totalPurged += result.total()
	w.lastRunTime = w.now()
	w.lastRunCount = result.total()
	w.mu.Unlock()

	return result, nil
}

func (w *TokenPurgeWorker) fail(span trace.Span, result *PurgeResult, err error) (*PurgeResult, error) {
	telemetry.RecordError(span, err)
	w.mu.Lock()
	w.totalErrors++
	w.mu.Unlock()
	return result, err
}

func (r *PurgeResult) total() int64 {
	return r.RevokedPurged + r.ExpiredCleaned + r.ResetTokensDeleted
}

// GetStats returns worker statistics
func (w *TokenPurgeWorker) GetStats() *TokenPurgeWorkerStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &TokenPurgeWorkerStats{
		IsRunning:    w.running,
		Runs:         w.runs,
		TotalPurged:  w.totalPurged,
		TotalErrors:  w.totalErrors,
		LastRunTime:  w.lastRunTime,
		LastRunCount: w.lastRunCount,
	}
}

// TokenPurgeWorkerStats contains worker statistics
type TokenPurgeWorkerStats struct {
	IsRunning    bool      `json:"is_running"`
	Runs         int64     `json:"runs"`
	TotalPurged  int64     `json:"total_purged"`
	TotalErrors  int64     `json:"total_errors"`
	LastRunTime  time.Time `json:"last_run_time"`
	LastRunCount int64     `json:"last_run_count"`
}
