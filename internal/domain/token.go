package domain

import "time"

// TokenKind is the "type" claim of a signed token
type TokenKind string

const (
	TokenKindAccess            TokenKind = "access"
	TokenKindRefresh           TokenKind = "refresh"
	TokenKindPasswordReset     TokenKind = "password_reset"
	TokenKindEmailVerification TokenKind = "email_verification"
)

// Claims is the verified claim set of a token
type Claims struct {
	Subject   string
	Kind      TokenKind
	IssuedAt  time.Time
	ExpiresAt time.Time
	ID        string // jti, traceability only
	Version   int
}

// TokenPair represents access and refresh tokens
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"` // seconds until access token expires
}

// RefreshToken is a persisted refresh token
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still be rotated or used for auth
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && t.ExpiresAt.After(now)
}

// VerificationCode is the single live OTP of a user
type VerificationCode struct {
	UserID    string
	Code      string
	ExpiresAt time.Time
	Attempts  int
	CreatedAt time.Time
}

// PasswordResetToken is a single-use reset token bound to an email
type PasswordResetToken struct {
	ID        string
	Email     string
	Token     string
	ExpiresAt time.Time
	Used      bool
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the reset token can still be redeemed
func (t *PasswordResetToken) Usable(now time.Time) bool {
	return !t.Used && t.ExpiresAt.After(now)
}
