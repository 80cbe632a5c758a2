package service

import (
	"context"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/metrics"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/Miasufee/connect-sub000/internal/security"
	"github.com/Miasufee/connect-sub000/internal/token"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"go.uber.org/zap"
)

// PasswordResetConfig holds configuration for PasswordResetService
type PasswordResetConfig struct {
	TokenTTL    time.Duration
	FrontendURL string
}

// ResetTokenInfo is what the frontend learns from a valid reset link
type ResetTokenInfo struct {
	MaskedUserID string
	ExpiresAt    time.Time
}

// ConfirmResetInput is the final step of a password reset
type ConfirmResetInput struct {
	Email           string
	Token           string
	NewPassword     string
	ConfirmPassword string
}

// PasswordResetService implements request, validate and confirm for elevated accounts
type PasswordResetService struct {
	userRepo  repository.UserRepository
	resetRepo repository.PasswordResetRepository
	sessions  *SessionManager
	codec     *token.Codec
	hasher    *security.Hasher
	email     EmailSender
	events    AuthEventPublisher
	metrics   *metrics.AuthMetrics
	log       *logger.Logger
	config    PasswordResetConfig
	now       func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	userRepo repository.UserRepository,
	resetRepo repository.PasswordResetRepository,
	sessions *SessionManager,
	codec *token.Codec,
	hasher *security.Hasher,
	email EmailSender,
	events AuthEventPublisher,
	m *metrics.AuthMetrics,
	log *logger.Logger,
	config PasswordResetConfig,
) *PasswordResetService {
	if config.TokenTTL == 0 {
		config.TokenTTL = 30 * time.Minute
	}
	if config.FrontendURL == "" {
		config.FrontendURL = "http://localhost:3000/reset-password"
	}
	if events == nil {
		events = NewNoOpAuthEventPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &PasswordResetService{
		userRepo:  userRepo,
		resetRepo: resetRepo,
		sessions:  sessions,
		codec:     codec,
		hasher:    hasher,
		email:     email,
		events:    events,
		metrics:   m,
		log:       log,
		config:    config,
		now:       time.Now,
	}
}

// Request mails a reset link when email and uniqueID identify an active elevated account.
// Every other case returns nil without side effects so callers can answer generically.
func (s *PasswordResetService) Request(ctx context.Context, email, uniqueID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.password_reset.request")
	defer span.End()

	email = normalizeEmail(email)
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	eligible := user != nil && user.IsActive && user.Role.IsElevated() && user.UniqueID != ""
	if eligible {
		eligible = security.ConstantTimeCompare(user.UniqueID, uniqueID)
	} else {
		security.ConstantTimeCompare(uniqueID, uniqueID)
	}
	if !eligible {
		s.metrics.ResetRequest(ctx, metrics.OutcomeFailure)
		return nil
	}

	raw, err := s.codec.Issue(user.ID, domain.TokenKindPasswordReset, s.config.TokenTTL, user.TokenVersion)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if _, err := s.resetRepo.Replace(ctx, email, raw, s.now().Add(s.config.TokenTTL)); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	link, err := linkWithParams(s.config.FrontendURL, map[string]string{"token": raw, "email": email})
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if err := s.email.Send(ctx, passwordResetEmail(email, link, int(s.config.TokenTTL.Minutes()))); err != nil {
		s.log.Error("failed to send password reset email", zap.String("user_id", user.ID), zap.Error(err))
	}

	s.metrics.ResetRequest(ctx, metrics.OutcomeSuccess)
	return nil
}

// Validate reports whether token is a live reset token for email. It never mutates state.
func (s *PasswordResetService) Validate(ctx context.Context, email, raw string) (*ResetTokenInfo, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.password_reset.validate")
	defer span.End()

	stored, err := s.usableToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	if stored.Email != normalizeEmail(email) {
		return nil, domain.ErrResetTokenInvalid
	}

	claims, err := s.codec.Verify(raw, domain.TokenKindPasswordReset)
	if err != nil {
		return nil, domain.ErrResetTokenInvalid
	}
	return &ResetTokenInfo{MaskedUserID: maskID(claims.Subject), ExpiresAt: stored.ExpiresAt}, nil
}

// Confirm sets a new password. Once the stored token is found live, any mismatch burns it.
// On success the token is consumed before the password write.
func (s *PasswordResetService) Confirm(ctx context.Context, in ConfirmResetInput) error {
	ctx, span := telemetry.StartSpan(ctx, "service.password_reset.confirm")
	defer span.End()

	if in.NewPassword != in.ConfirmPassword {
		return domain.ErrPasswordMismatch
	}

	stored, err := s.usableToken(ctx, in.Token)
	if err != nil {
		return err
	}

	user, err := s.matchToken(ctx, stored, in)
	if err != nil {
		if burnErr := s.burn(ctx, in.Token); burnErr != nil {
			telemetry.RecordError(span, burnErr)
			return burnErr
		}
		return err
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return err
	}

	consumed, err := s.resetRepo.MarkUsed(ctx, in.Token)
	if err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if !consumed {
		return domain.ErrResetTokenInvalid
	}

	if _, err := s.userRepo.UpdatePassword(ctx, user.ID, hash); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	if _, err := s.sessions.RevokeRefreshTokens(ctx, user.ID); err != nil {
		telemetry.RecordError(span, err)
		return err
	}

	if n, err := s.resetRepo.DeleteExpired(ctx, s.now()); err != nil {
		s.log.Warn("failed to sweep expired reset tokens", zap.Error(err))
	} else if n > 0 {
		s.metrics.Purged(ctx, "password_reset", n)
	}

	s.log.Info("password reset completed", zap.String("user_id", user.ID))
	publishEvent(ctx, s.events, s.log, domain.AuthEventPasswordChanged, user.ID, map[string]string{"via": "reset"})
	return nil
}

// usableToken returns the stored record when it exists, is unused and unexpired
func (s *PasswordResetService) usableToken(ctx context.Context, raw string) (*domain.PasswordResetToken, error) {
	if raw == "" {
		return nil, domain.ErrResetTokenInvalid
	}
	stored, err := s.resetRepo.Get(ctx, raw)
	if err != nil {
		return nil, err
	}
	if stored == nil || !stored.Usable(s.now()) {
		return nil, domain.ErrResetTokenInvalid
	}
	return stored, nil
}

// matchToken checks email, signature and subject in that order
func (s *PasswordResetService) matchToken(ctx context.Context, stored *domain.PasswordResetToken, in ConfirmResetInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if stored.Email != email {
		return nil, domain.ErrResetTokenInvalid
	}

	claims, err := s.codec.Verify(in.Token, domain.TokenKindPasswordReset)
	if err != nil {
		s.log.Debug("reset token rejected", zap.Error(err))
		return nil, domain.ErrResetTokenInvalid
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.ID != claims.Subject || user.TokenVersion != claims.Version {
		return nil, domain.ErrResetTokenInvalid
	}
	return user, nil
}

func (s *PasswordResetService) burn(ctx context.Context, raw string) error {
	_, err := s.resetRepo.MarkUsed(ctx, raw)
	return err
}

func maskID(id string) string {
	if len(id) <= 4 {
		return "****"
	}
	return id[:4] + "****"
}
