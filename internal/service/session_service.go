package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/metrics"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/Miasufee/connect-sub000/internal/token"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// SessionConfig holds token lifetimes
type SessionConfig struct {
	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	EmailVerificationTTL time.Duration
}

// SessionManager issues, verifies, rotates and revokes token pairs
type SessionManager struct {
	codec       *token.Codec
	userRepo    repository.UserRepository
	refreshRepo repository.RefreshTokenRepository
	events      AuthEventPublisher
	metrics     *metrics.AuthMetrics
	log         *logger.Logger
	config      SessionConfig

	now func() time.Time
}

// NewSessionManager creates a new SessionManager
func NewSessionManager(
	codec *token.Codec,
	userRepo repository.UserRepository,
	refreshRepo repository.RefreshTokenRepository,
	events AuthEventPublisher,
	m *metrics.AuthMetrics,
	log *logger.Logger,
	config SessionConfig,
) *SessionManager {
	if config.AccessTokenTTL == 0 {
		config.AccessTokenTTL = 15 * time.Minute
	}
	if config.RefreshTokenTTL == 0 {
		config.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if config.EmailVerificationTTL == 0 {
		config.EmailVerificationTTL = 24 * time.Hour
	}
	if events == nil {
		events = NewNoOpAuthEventPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &SessionManager{
		codec:       codec,
		userRepo:    userRepo,
		refreshRepo: refreshRepo,
		events:      events,
		metrics:     m,
		log:         log,
		config:      config,
		now:         time.Now,
	}
}

// GenerateTokenPair issues an access and a refresh token at the user's current version
// and persists the refresh token. Access tokens are never stored.
func (s *SessionManager) GenerateTokenPair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.generate_token_pair")
	defer span.End()

	pair, err := s.issuePair(ctx, user)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return pair, nil
}

func (s *SessionManager) issuePair(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	access, err := s.codec.Issue(user.ID, domain.TokenKindAccess, s.config.AccessTokenTTL, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(user.ID, domain.TokenKindRefresh, s.config.RefreshTokenTTL, user.TokenVersion)
	if err != nil {
		return nil, fmt.Errorf("failed to issue refresh token: %w", err)
	}
	if _, err := s.refreshRepo.Create(ctx, user.ID, refresh, s.now().Add(s.config.RefreshTokenTTL)); err != nil {
		return nil, err
	}

	return &domain.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int64(s.config.AccessTokenTTL.Seconds()),
	}, nil
}

// RotateRefreshToken trades an active refresh token for a new pair. The old token is
// revoked before the new pair exists, so a failure in between leaves the caller logged out.
// Of several concurrent rotations of the same token at most one succeeds.
func (s *SessionManager) RotateRefreshToken(ctx context.Context, oldToken string) (*domain.TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.rotate_refresh_token")
	defer span.End()

	pair, err := s.rotate(ctx, oldToken)
	if err != nil {
		s.metrics.Rotation(ctx, metrics.OutcomeFailure)
		if !errors.Is(err, domain.ErrUnauthorized) {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}
	s.metrics.Rotation(ctx, metrics.OutcomeSuccess)
	return pair, nil
}

func (s *SessionManager) rotate(ctx context.Context, oldToken string) (*domain.TokenPair, error) {
	claims, err := s.codec.Verify(oldToken, domain.TokenKindRefresh)
	if err != nil {
		s.log.Debug("refresh token rejected", zap.Error(err))
		return nil, domain.ErrInvalidSession
	}

	stored, err := s.refreshRepo.GetValid(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	if stored == nil || stored.UserID != claims.Subject {
		return nil, domain.ErrInvalidSession
	}

	user, err := s.loadUser(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}

	// Revoke first. Losing the race means another caller already rotated this token.
	revoked, err := s.refreshRepo.Revoke(ctx, oldToken)
	if err != nil {
		return nil, err
	}
	if revoked == nil {
		return nil, domain.ErrInvalidSession
	}

	if user == nil || !user.IsActive || claims.Version != user.TokenVersion {
		return nil, domain.ErrInvalidSession
	}

	return s.issuePair(ctx, user)
}

// VerifyAccessToken checks an access token and re-validates it against the live user:
// the user must exist, be active, and still be on the token's version.
func (s *SessionManager) VerifyAccessToken(ctx context.Context, accessToken string) (*domain.Claims, *domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.verify_access_token")
	defer span.End()

	claims, err := s.codec.Verify(accessToken, domain.TokenKindAccess)
	if err != nil {
		s.log.Debug("access token rejected", zap.Error(err))
		return nil, nil, domain.ErrInvalidSession
	}

	user, err := s.loadUser(ctx, claims.Subject)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, nil, err
	}
	if user == nil || !user.IsActive || claims.Version != user.TokenVersion {
		return nil, nil, domain.ErrInvalidSession
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	return claims, user, nil
}

// VerifyToken verifies a non-access token of the given kind against the live user's version
func (s *SessionManager) VerifyToken(ctx context.Context, raw string, kind domain.TokenKind) (*domain.Claims, *domain.User, error) {
	claims, err := s.codec.Verify(raw, kind)
	if err != nil {
		return nil, nil, domain.ErrInvalidSession
	}
	user, err := s.loadUser(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if user == nil || !user.IsActive || claims.Version != user.TokenVersion {
		return nil, nil, domain.ErrInvalidSession
	}
	return claims, user, nil
}

// IssueEmailVerificationToken mints an email verification token for user
func (s *SessionManager) IssueEmailVerificationToken(user *domain.User) (string, error) {
	return s.codec.Issue(user.ID, domain.TokenKindEmailVerification, s.config.EmailVerificationTTL, user.TokenVersion)
}

// LogoutCurrentDevice revokes exactly one refresh token. It reports false when the
// token was unknown or already revoked, so repeated calls are safe.
func (s *SessionManager) LogoutCurrentDevice(ctx context.Context, refreshToken string) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.logout_current_device")
	defer span.End()

	if refreshToken == "" {
		return false, nil
	}
	revoked, err := s.refreshRepo.Revoke(ctx, refreshToken)
	if err != nil {
		telemetry.RecordError(span, err)
		return false, err
	}
	if revoked == nil {
		return false, nil
	}

	s.metrics.Revoked(ctx, "current", 1)
	s.publish(ctx, domain.AuthEventUserLoggedOut, revoked.UserID, map[string]string{"scope": "current"})
	return true, nil
}

// LogoutAllOtherDevices revokes every other refresh token of user and bumps token_version,
// then replaces the caller's own refresh token with a fresh pair at the new version.
func (s *SessionManager) LogoutAllOtherDevices(ctx context.Context, user *domain.User, currentRefreshToken string) (int64, *domain.TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.logout_all_other_devices")
	defer span.End()

	current, err := s.refreshRepo.GetValid(ctx, currentRefreshToken)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}
	if current == nil || current.UserID != user.ID {
		return 0, nil, domain.ErrInvalidSession
	}

	count, err := s.refreshRepo.RevokeAllForUser(ctx, user.ID, currentRefreshToken)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}

	version, err := s.userRepo.IncrementTokenVersion(ctx, user.ID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}
	if _, err := s.refreshRepo.Revoke(ctx, currentRefreshToken); err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}

	fresh := *user
	fresh.TokenVersion = version
	pair, err := s.issuePair(ctx, &fresh)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, nil, err
	}

	s.metrics.Revoked(ctx, "others", count)
	s.publish(ctx, domain.AuthEventSessionsRevoked, user.ID, map[string]string{
		"scope":   "others",
		"revoked": fmt.Sprint(count),
	})
	return count, pair, nil
}

// LogoutAllDevices revokes every refresh token of targetID and bumps token_version so
// outstanding access tokens die on their next request. Actors other than super_admin
// and superuser may only target themselves.
func (s *SessionManager) LogoutAllDevices(ctx context.Context, actor *domain.User, targetID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.session.logout_all_devices")
	defer span.End()

	if err := domain.AuthorizeSessionTermination(actor.Role, actor.ID, targetID); err != nil {
		return 0, err
	}

	if targetID != actor.ID {
		target, err := s.userRepo.GetByID(ctx, targetID)
		if err != nil {
			telemetry.RecordError(span, err)
			return 0, err
		}
		if target == nil {
			return 0, domain.ErrUserNotFound
		}
	}

	count, err := s.RevokeAllSessions(ctx, targetID)
	if err != nil {
		telemetry.RecordError(span, err)
		return 0, err
	}

	s.publish(ctx, domain.AuthEventSessionsRevoked, targetID, map[string]string{
		"scope":    "all",
		"actor_id": actor.ID,
		"revoked":  fmt.Sprint(count),
	})
	return count, nil
}

// RevokeAllSessions revokes every refresh token of userID and bumps token_version
func (s *SessionManager) RevokeAllSessions(ctx context.Context, userID string) (int64, error) {
	count, err := s.refreshRepo.RevokeAllForUser(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	if _, err := s.userRepo.IncrementTokenVersion(ctx, userID); err != nil {
		return count, err
	}
	s.metrics.Revoked(ctx, "all", count)
	return count, nil
}

// RevokeRefreshTokens revokes every refresh token of userID without touching token_version.
// Callers that already bumped the version in the same write use this.
func (s *SessionManager) RevokeRefreshTokens(ctx context.Context, userID string) (int64, error) {
	count, err := s.refreshRepo.RevokeAllForUser(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	s.metrics.Revoked(ctx, "all", count)
	return count, nil
}

// loadUser reads the user fresh from the store on every call
func (s *SessionManager) loadUser(ctx context.Context, id string) (*domain.User, error) {
	return s.userRepo.GetByID(ctx, id)
}

func (s *SessionManager) publish(ctx context.Context, eventType domain.AuthEventType, userID string, data map[string]string) {
	publishEvent(ctx, s.events, s.log, eventType, userID, data)
}

// publishEvent publishes best effort; auth flows never fail because the event bus is down
func publishEvent(ctx context.Context, events AuthEventPublisher, log *logger.Logger, eventType domain.AuthEventType, userID string, data map[string]string) {
	if err := events.Publish(ctx, eventType, userID, data); err != nil {
		log.Warn("failed to publish auth event",
			zap.String("event_type", string(eventType)),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}
