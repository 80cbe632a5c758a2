package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/metrics"
	"github.com/Miasufee/connect-sub000/internal/repository"
	"github.com/Miasufee/connect-sub000/internal/security"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Login methods, used as metric labels
const (
	LoginMethodOTP      = "otp"
	LoginMethodElevated = "elevated"
	LoginMethodOAuth    = "oauth"
	LoginMethodEmail    = "email_verification"
)

const (
	defaultUniqueIDLength = 12
	uniqueIDAttempts      = 3
)

// AuthConfig holds configuration for AuthService
type AuthConfig struct {
	CodeTTL              time.Duration
	RequireVerifiedEmail bool
	VerifyURL            string
	BootstrapSecret      string
	UniqueIDLength       int
}

// RegisterInput is a new regular user
type RegisterInput struct {
	Email    string
	Name     string
	Password string // optional; regular users log in with codes
}

// LoginResult is the outcome of a login step. Tokens is nil when only a code was sent.
type LoginResult struct {
	User     *domain.User
	Tokens   *domain.TokenPair
	CodeSent bool
}

// AuthService implements the login, registration and role flows
type AuthService struct {
	userRepo repository.UserRepository
	codeRepo repository.VerificationCodeRepository
	sessions *SessionManager
	hasher   *security.Hasher
	email    EmailSender
	events   AuthEventPublisher
	metrics  *metrics.AuthMetrics
	log      *logger.Logger
	config   AuthConfig
}

// NewAuthService creates a new AuthService
func NewAuthService(
	userRepo repository.UserRepository,
	codeRepo repository.VerificationCodeRepository,
	sessions *SessionManager,
	hasher *security.Hasher,
	email EmailSender,
	events AuthEventPublisher,
	m *metrics.AuthMetrics,
	log *logger.Logger,
	config AuthConfig,
) *AuthService {
	if config.CodeTTL == 0 {
		config.CodeTTL = 10 * time.Minute
	}
	if config.UniqueIDLength == 0 {
		config.UniqueIDLength = defaultUniqueIDLength
	}
	if events == nil {
		events = NewNoOpAuthEventPublisher()
	}
	if log == nil {
		log = logger.Nop()
	}
	return &AuthService{
		userRepo: userRepo,
		codeRepo: codeRepo,
		sessions: sessions,
		hasher:   hasher,
		email:    email,
		events:   events,
		metrics:  m,
		log:      log,
		config:   config,
	}
}

// Register creates an unverified regular user, then emails a login code and a verification link
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.register")
	defer span.End()

	email := normalizeEmail(in.Email)
	existing, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrUserAlreadyExists
	}

	now := time.Now()
	user := &domain.User{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      strings.TrimSpace(in.Name),
		Role:      domain.RoleUser,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Password != "" {
		if user.PasswordHash, err = s.hasher.Hash(in.Password); err != nil {
			return nil, err
		}
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		if !errors.Is(err, domain.ErrUserAlreadyExists) {
			telemetry.RecordError(span, err)
		}
		return nil, err
	}

	if err := s.sendCode(ctx, user); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.sendVerificationLink(ctx, user)

	s.publish(ctx, domain.AuthEventUserRegistered, user.ID, nil)
	return user, nil
}

// Login runs the two-phase code login. Without a code it sends one; with a code it
// consumes it and issues a token pair.
func (s *AuthService) Login(ctx context.Context, email, code string) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.login")
	defer span.End()

	user, err := s.otpEligibleUser(ctx, email)
	if err != nil {
		s.metrics.Login(ctx, LoginMethodOTP, metrics.OutcomeFailure)
		return nil, err
	}
	span.SetAttributes(attribute.String("user_id", user.ID))

	if code == "" {
		if err := s.sendCode(ctx, user); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.metrics.Login(ctx, LoginMethodOTP, metrics.OutcomeCodeSent)
		return &LoginResult{User: user, CodeSent: true}, nil
	}

	if err := s.consumeCode(ctx, user.ID, code); err != nil {
		s.metrics.Login(ctx, LoginMethodOTP, metrics.OutcomeFailure)
		return nil, err
	}
	if user.Role.IsElevated() {
		s.metrics.Login(ctx, LoginMethodOTP, metrics.OutcomeFailure)
		return nil, domain.ErrInvalidVerificationCode
	}

	result, err := s.completeLogin(ctx, user, LoginMethodOTP)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// ResendCode issues a fresh code under the same checks as the first login phase
func (s *AuthService) ResendCode(ctx context.Context, email string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.resend_code")
	defer span.End()

	user, err := s.otpEligibleUser(ctx, email)
	if err != nil {
		return err
	}
	if err := s.sendCode(ctx, user); err != nil {
		telemetry.RecordError(span, err)
		return err
	}
	return nil
}

// ElevatedLogin authenticates admin, super_admin and superuser accounts with
// password + unique ID. Every failure looks the same and costs one bcrypt compare.
func (s *AuthService) ElevatedLogin(ctx context.Context, email, password, uniqueID string) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.elevated_login")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	eligible := user != nil && user.IsActive && user.Role.IsElevated() && user.HasPassword() && user.UniqueID != ""
	var passwordOK, uniqueOK bool
	if eligible {
		passwordOK = s.hasher.Verify(password, user.PasswordHash)
		uniqueOK = security.ConstantTimeCompare(user.UniqueID, uniqueID)
	} else {
		s.hasher.DummyVerify(password)
		security.ConstantTimeCompare(uniqueID, uniqueID)
	}

	if !(eligible && passwordOK && uniqueOK) {
		s.metrics.Login(ctx, LoginMethodElevated, metrics.OutcomeFailure)
		return nil, domain.ErrInvalidCredentials
	}

	result, err := s.completeLogin(ctx, user, LoginMethodElevated)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// LoginWithVerifiedEmail mints tokens for an email a federated provider already verified,
// creating a verified regular user on first sight
func (s *AuthService) LoginWithVerifiedEmail(ctx context.Context, email, name string) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.login_with_verified_email")
	defer span.End()

	email = normalizeEmail(email)
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	switch {
	case user == nil:
		now := time.Now()
		user = &domain.User{
			ID:              uuid.New().String(),
			Email:           email,
			Name:            strings.TrimSpace(name),
			Role:            domain.RoleUser,
			IsActive:        true,
			IsEmailVerified: true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			return nil, err
		}
		s.publish(ctx, domain.AuthEventUserRegistered, user.ID, map[string]string{"via": LoginMethodOAuth})
	case !user.IsActive:
		return nil, domain.ErrUserInactive
	case user.Role.IsElevated():
		s.metrics.Login(ctx, LoginMethodOAuth, metrics.OutcomeFailure)
		return nil, domain.ErrInvalidCredentials
	case !user.IsEmailVerified:
		user.IsEmailVerified = true
		if err := s.userRepo.Update(ctx, user); err != nil {
			return nil, err
		}
	}

	result, err := s.completeLogin(ctx, user, LoginMethodOAuth)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return result, nil
}

// SendEmailVerification emails a verification link for user, or a code for
// /verify-email when no link URL is configured
func (s *AuthService) SendEmailVerification(ctx context.Context, user *domain.User) error {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.send_email_verification")
	defer span.End()

	if user.IsEmailVerified {
		return domain.ErrAlreadyInThatState
	}
	if s.config.VerifyURL == "" {
		if err := s.sendCode(ctx, user); err != nil {
			telemetry.RecordError(span, err)
			return err
		}
		return nil
	}
	s.sendVerificationLink(ctx, user)
	return nil
}

// VerifyEmail marks the token's subject as verified
func (s *AuthService) VerifyEmail(ctx context.Context, verificationToken string) (*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.verify_email")
	defer span.End()

	_, user, err := s.sessions.VerifyToken(ctx, verificationToken, domain.TokenKindEmailVerification)
	if err != nil {
		return nil, err
	}
	if user.IsEmailVerified {
		return user, nil
	}

	user.IsEmailVerified = true
	if err := s.userRepo.Update(ctx, user); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	s.publish(ctx, domain.AuthEventEmailVerified, user.ID, nil)
	return user, nil
}

// VerifyEmailWithCode consumes a login code, marks the email verified and logs the user in
func (s *AuthService) VerifyEmailWithCode(ctx context.Context, email, code string) (*LoginResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.verify_email_with_code")
	defer span.End()

	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	if err := s.consumeCode(ctx, user.ID, code); err != nil {
		return nil, err
	}
	// codes stored for elevated accounts are never mailed, so a match is a guess
	if user.Role.IsElevated() {
		return nil, domain.ErrInvalidVerificationCode
	}

	if !user.IsEmailVerified {
		user.IsEmailVerified = true
		if err := s.userRepo.Update(ctx, user); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		s.publish(ctx, domain.AuthEventEmailVerified, user.ID, nil)
	}
	return s.completeLogin(ctx, user, LoginMethodEmail)
}

// UpdateRole changes the role of the user with targetEmail. A new prefixed unique ID is
// issued with every elevated role and cleared on demotion to user.
func (s *AuthService) UpdateRole(ctx context.Context, actor *domain.User, targetEmail string, newRole domain.Role) (*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.update_role")
	defer span.End()

	target, err := s.userRepo.GetByEmail(ctx, normalizeEmail(targetEmail))
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if target == nil {
		return nil, domain.ErrUserNotFound
	}

	if err := domain.AuthorizeRoleChange(actor.Role, target.Role, newRole); err != nil {
		return nil, err
	}

	previous := target.Role
	target.Role = newRole
	if err := s.saveWithUniqueID(ctx, target); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if newRole.IsElevated() {
		s.deliver(ctx, uniqueIDEmail(target.Email, newRole, target.UniqueID))
	}
	s.publish(ctx, domain.AuthEventRoleChanged, target.ID, map[string]string{
		"actor_id": actor.ID,
		"from":     string(previous),
		"to":       string(newRole),
	})
	return target, nil
}

// BootstrapSuperuser creates or promotes the first superuser. It requires the configured
// bootstrap secret and refuses once any superuser exists.
func (s *AuthService) BootstrapSuperuser(ctx context.Context, secret, email, password, name string) (*domain.User, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.bootstrap_superuser")
	defer span.End()

	if s.config.BootstrapSecret == "" || !security.ConstantTimeCompare(secret, s.config.BootstrapSecret) {
		return nil, domain.ErrBootstrapDenied
	}

	count, err := s.userRepo.CountByRole(ctx, domain.RoleSuperuser)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if count > 0 {
		return nil, domain.ErrSuperuserExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	email = normalizeEmail(email)
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	if user == nil {
		now := time.Now()
		user = &domain.User{
			ID:              uuid.New().String(),
			Email:           email,
			Name:            strings.TrimSpace(name),
			Role:            domain.RoleUser,
			IsActive:        true,
			IsEmailVerified: true,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.userRepo.Create(ctx, user); err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
	}

	user.Role = domain.RoleSuperuser
	user.IsActive = true
	user.IsEmailVerified = true
	if err := s.saveWithUniqueID(ctx, user); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	version, err := s.userRepo.UpdatePassword(ctx, user.ID, hash)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	user.PasswordHash = hash
	user.TokenVersion = version

	s.log.Info("superuser bootstrapped", zap.String("user_id", user.ID))
	s.publish(ctx, domain.AuthEventRoleChanged, user.ID, map[string]string{"to": string(domain.RoleSuperuser), "via": "bootstrap"})
	return user, nil
}

// ChangePassword replaces the password of a user who knows the current one. All sessions
// are revoked and a fresh pair is returned for the caller.
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) (*domain.TokenPair, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.change_password")
	defer span.End()

	if !user.HasPassword() || !s.hasher.Verify(currentPassword, user.PasswordHash) {
		return nil, domain.ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}
	version, err := s.userRepo.UpdatePassword(ctx, user.ID, hash)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if _, err := s.sessions.RevokeRefreshTokens(ctx, user.ID); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	fresh := *user
	fresh.PasswordHash = hash
	fresh.TokenVersion = version
	pair, err := s.sessions.GenerateTokenPair(ctx, &fresh)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	s.publish(ctx, domain.AuthEventPasswordChanged, user.ID, map[string]string{"via": "change"})
	return pair, nil
}

// GetUser retrieves a user by ID
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

// otpEligibleUser runs the checks shared by both login phases and resend.
// Elevated accounts pass so that their answers match a regular account's.
func (s *AuthService) otpEligibleUser(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.userRepo.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	if !user.IsActive {
		return nil, domain.ErrUserInactive
	}
	if s.config.RequireVerifiedEmail && !user.IsEmailVerified {
		return nil, domain.ErrEmailNotVerified
	}
	return user, nil
}

// consumeCode maps store outcomes to login errors. A missing code reads as a wrong one.
func (s *AuthService) consumeCode(ctx context.Context, userID, code string) error {
	err := s.codeRepo.VerifyAndConsume(ctx, userID, code)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrCodeNotFound):
		return domain.ErrInvalidVerificationCode
	default:
		return err
	}
}

func (s *AuthService) completeLogin(ctx context.Context, user *domain.User, method string) (*LoginResult, error) {
	pair, err := s.sessions.GenerateTokenPair(ctx, user)
	if err != nil {
		s.metrics.Login(ctx, method, metrics.OutcomeFailure)
		return nil, err
	}

	now := time.Now()
	if err := s.userRepo.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.log.Warn("failed to update last login", zap.String("user_id", user.ID), zap.Error(err))
	} else {
		user.LastLoginAt = &now
	}

	s.metrics.Login(ctx, method, metrics.OutcomeSuccess)
	s.publish(ctx, domain.AuthEventUserLoggedIn, user.ID, map[string]string{"method": method})
	return &LoginResult{User: user, Tokens: pair}, nil
}

// sendCode stores a fresh code and hands it to the mailer. Delivery failures are logged only.
func (s *AuthService) sendCode(ctx context.Context, user *domain.User) error {
	code, err := s.codeRepo.Create(ctx, user.ID)
	if err != nil {
		return err
	}
	// Elevated accounts get a stored code that is never mailed and never logs them in
	if user.Role.IsElevated() {
		return nil
	}
	s.deliver(ctx, verificationCodeEmail(user.Email, code, int(s.config.CodeTTL.Minutes())))
	return nil
}

func (s *AuthService) sendVerificationLink(ctx context.Context, user *domain.User) {
	if s.config.VerifyURL == "" {
		return
	}
	tok, err := s.sessions.IssueEmailVerificationToken(user)
	if err != nil {
		s.log.Error("failed to issue email verification token", zap.String("user_id", user.ID), zap.Error(err))
		return
	}
	link, err := linkWithParams(s.config.VerifyURL, map[string]string{"token": tok})
	if err != nil {
		s.log.Error("failed to build verification link", zap.Error(err))
		return
	}
	s.deliver(ctx, emailVerificationEmail(user.Email, link))
}

func (s *AuthService) deliver(ctx context.Context, msg *EmailMessage) {
	if err := s.email.Send(ctx, msg); err != nil {
		s.log.Error("failed to send email", zap.String("subject", msg.Subject), zap.Error(err))
	}
}

// saveWithUniqueID assigns the unique ID matching user.Role and saves, retrying on the
// rare collision with another account's ID
func (s *AuthService) saveWithUniqueID(ctx context.Context, user *domain.User) error {
	prefix := domain.UniqueIDPrefix(user.Role)
	if prefix == "" {
		user.UniqueID = ""
		return s.userRepo.Update(ctx, user)
	}

	var err error
	for attempt := 0; attempt < uniqueIDAttempts; attempt++ {
		if user.UniqueID, err = security.GenerateUniqueID(prefix, s.config.UniqueIDLength); err != nil {
			return err
		}
		if err = s.userRepo.Update(ctx, user); !errors.Is(err, domain.ErrUserAlreadyExists) {
			return err
		}
	}
	return err
}

func (s *AuthService) publish(ctx context.Context, eventType domain.AuthEventType, userID string, data map[string]string) {
	publishEvent(ctx, s.events, s.log, eventType, userID, data)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
