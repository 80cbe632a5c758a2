package domain

import "time"

// Role represents user role
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
	RoleSuperuser  Role = "superuser"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleSuperAdmin, RoleSuperuser:
		return true
	}
	return false
}

// IsElevated reports whether r logs in with password + unique ID
func (r Role) IsElevated() bool {
	return r == RoleAdmin || r == RoleSuperAdmin || r == RoleSuperuser
}

// User represents a user entity
type User struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	Name            string     `json:"name"`
	Role            Role       `json:"role"`
	PasswordHash    string     `json:"-"` // empty for OTP-only users
	UniqueID        string     `json:"-"` // only set for elevated roles
	IsActive        bool       `json:"is_active"`
	IsEmailVerified bool       `json:"is_email_verified"`
	TokenVersion    int        `json:"-"`
	LastLoginAt     *time.Time `json:"last_login_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// HasPassword reports whether a password hash is set
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
