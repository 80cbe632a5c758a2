package dto

import (
	"net/mail"
	"strings"
	"time"
	"unicode"

	"github.com/Miasufee/connect-sub000/internal/domain"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72 // bcrypt input limit
	codeLength        = 6
)

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Name     string `json:"name" binding:"required,max=100"`
	Password string `json:"password,omitempty"`
}

// ValidateEmail checks the email format
func (r *RegisterRequest) ValidateEmail() (bool, string) {
	return validateEmail(r.Email)
}

// ValidatePassword checks password strength when a password is supplied
func (r *RegisterRequest) ValidatePassword() (bool, string) {
	if r.Password == "" {
		return true, ""
	}
	return validatePassword(r.Password)
}

// LoginRequest is both phases of the code login. Code is empty in the first phase.
type LoginRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code,omitempty"`
}

// Validate validates the login request
func (r *LoginRequest) Validate() (bool, string) {
	if ok, msg := validateEmail(r.Email); !ok {
		return false, msg
	}
	if r.Code != "" {
		return validateCode(r.Code)
	}
	return true, ""
}

// ResendCodeRequest asks for a fresh login code
type ResendCodeRequest struct {
	Email string `json:"email" binding:"required"`
}

// ElevatedLoginRequest represents a password + unique ID login
type ElevatedLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	UniqueID string `json:"unique_id" binding:"required"`
}

// VerifiedEmailLoginRequest carries an email a federated provider already verified
type VerifiedEmailLoginRequest struct {
	Email string `json:"email" binding:"required"`
	Name  string `json:"name,omitempty"`
}

// RefreshTokenRequest carries a refresh token
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// LogoutAllRequest targets the caller when UserID is empty
type LogoutAllRequest struct {
	UserID string `json:"user_id,omitempty"`
}

// VerifyEmailRequest verifies an email by link token, or by email + code
type VerifyEmailRequest struct {
	Token string `json:"token,omitempty"`
	Email string `json:"email,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Validate requires exactly one of the two forms
func (r *VerifyEmailRequest) Validate() (bool, string) {
	switch {
	case r.Token != "" && (r.Email != "" || r.Code != ""):
		return false, "Provide either a token or an email and code"
	case r.Token != "":
		return true, ""
	case r.Email == "" || r.Code == "":
		return false, "Token, or email and code, are required"
	}
	if ok, msg := validateEmail(r.Email); !ok {
		return false, msg
	}
	return validateCode(r.Code)
}

// ChangePasswordRequest represents an authenticated password change
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password" binding:"required"`
	NewPassword     string `json:"new_password" binding:"required"`
}

// ValidatePassword checks the new password
func (r *ChangePasswordRequest) ValidatePassword() (bool, string) {
	if r.CurrentPassword == r.NewPassword {
		return false, "New password must differ from the current password"
	}
	return validatePassword(r.NewPassword)
}

// UpdateRoleRequest changes the role of the user with Email
type UpdateRoleRequest struct {
	Email string      `json:"email" binding:"required"`
	Role  domain.Role `json:"role" binding:"required"`
}

// Validate validates the role update
func (r *UpdateRoleRequest) Validate() (bool, string) {
	if ok, msg := validateEmail(r.Email); !ok {
		return false, msg
	}
	if !r.Role.Valid() {
		return false, "Role must be one of user, admin, super_admin, superuser"
	}
	return true, ""
}

// BootstrapRequest creates the first superuser
type BootstrapRequest struct {
	Secret   string `json:"secret" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name,omitempty"`
}

// Validate validates the bootstrap request
func (r *BootstrapRequest) Validate() (bool, string) {
	if ok, msg := validateEmail(r.Email); !ok {
		return false, msg
	}
	return validatePassword(r.Password)
}

// UserResponse represents a user in API responses. Secrets and the unique ID never leave the service.
type UserResponse struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            string     `json:"role"`
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// FromUser converts a domain User to UserResponse
func FromUser(u *domain.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:              u.ID,
		Email:           u.Email,
		Name:            u.Name,
		Role:            string(u.Role),
		IsActive:        u.IsActive,
		IsEmailVerified: u.IsEmailVerified,
		LastLoginAt:     u.LastLoginAt,
		CreatedAt:       u.CreatedAt,
	}
}

// TokenResponse represents an issued token pair
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// FromTokenPair converts a domain TokenPair to TokenResponse
func FromTokenPair(p *domain.TokenPair) *TokenResponse {
	if p == nil {
		return nil
	}
	return &TokenResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    p.TokenType,
		ExpiresIn:    p.ExpiresIn,
	}
}

// LoginResponse represents either step of a login
type LoginResponse struct {
	User     *UserResponse  `json:"user,omitempty"`
	Tokens   *TokenResponse `json:"tokens,omitempty"`
	CodeSent bool           `json:"code_sent"`
	Message  string         `json:"message,omitempty"`
}

// LogoutResponse reports how many sessions a logout ended
type LogoutResponse struct {
	Revoked int64          `json:"revoked"`
	Tokens  *TokenResponse `json:"tokens,omitempty"`
	Message string         `json:"message"`
}

// MessageResponse carries a human readable message
type MessageResponse struct {
	Message string `json:"message"`
}

func validateEmail(email string) (bool, string) {
	email = strings.TrimSpace(email)
	if email == "" {
		return false, "Email is required"
	}
	if len(email) > 254 {
		return false, "Email is too long"
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@"):], ".") {
		return false, "Invalid email format"
	}
	return true, ""
}

func validatePassword(password string) (bool, string) {
	if len(password) < minPasswordLength {
		return false, "Password must be at least 8 characters long"
	}
	if len(password) > maxPasswordLength {
		return false, "Password must be at most 72 bytes long"
	}

	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return false, "Password must contain at least one letter and one number"
	}
	return true, ""
}

func validateCode(code string) (bool, string) {
	if len(code) != codeLength {
		return false, "Code must be 6 digits"
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false, "Code must be 6 digits"
		}
	}
	return true, ""
}
