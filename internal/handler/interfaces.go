package handler

import (
	"context"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/internal/service"
	"github.com/Miasufee/connect-sub000/internal/worker"
)

// AuthService is the part of service.AuthService the handlers use
type AuthService interface {
	Register(ctx context.Context, in service.RegisterInput) (*domain.User, error)
	Login(ctx context.Context, email, code string) (*service.LoginResult, error)
	ResendCode(ctx context.Context, email string) error
	ElevatedLogin(ctx context.Context, email, password, uniqueID string) (*service.LoginResult, error)
	LoginWithVerifiedEmail(ctx context.Context, email, name string) (*service.LoginResult, error)
	VerifyEmail(ctx context.Context, verificationToken string) (*domain.User, error)
	VerifyEmailWithCode(ctx context.Context, email, code string) (*service.LoginResult, error)
	SendEmailVerification(ctx context.Context, user *domain.User) error
	UpdateRole(ctx context.Context, actor *domain.User, targetEmail string, newRole domain.Role) (*domain.User, error)
	BootstrapSuperuser(ctx context.Context, secret, email, password, name string) (*domain.User, error)
	ChangePassword(ctx context.Context, user *domain.User, currentPassword, newPassword string) (*domain.TokenPair, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
}

// SessionService is the part of service.SessionManager the handlers use
type SessionService interface {
	RotateRefreshToken(ctx context.Context, oldToken string) (*domain.TokenPair, error)
	VerifyAccessToken(ctx context.Context, accessToken string) (*domain.Claims, *domain.User, error)
	LogoutCurrentDevice(ctx context.Context, refreshToken string) (bool, error)
	LogoutAllOtherDevices(ctx context.Context, user *domain.User, currentRefreshToken string) (int64, *domain.TokenPair, error)
	LogoutAllDevices(ctx context.Context, actor *domain.User, targetID string) (int64, error)
}

// PasswordResetService is the part of service.PasswordResetService the handlers use
type PasswordResetService interface {
	Request(ctx context.Context, email, uniqueID string) error
	Validate(ctx context.Context, email, raw string) (*service.ResetTokenInfo, error)
	Confirm(ctx context.Context, in service.ConfirmResetInput) error
}

// Purger runs one token purge pass
type Purger interface {
	RunOnce(ctx context.Context) (*worker.PurgeResult, error)
}

var (
	_ AuthService          = (*service.AuthService)(nil)
	_ SessionService       = (*service.SessionManager)(nil)
	_ PasswordResetService = (*service.PasswordResetService)(nil)
	_ Purger               = (*worker.TokenPurgeWorker)(nil)
)
