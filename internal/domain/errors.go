package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Every domain error unwraps to exactly one of these.
var (
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("expired")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
)

type kindError struct {
	msg  string
	kind error
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func newKindError(kind error, msg string) error {
	return &kindError{msg: msg, kind: kind}
}

// Domain errors
var (
	// User errors
	ErrUserNotFound       = newKindError(ErrNotFound, "user not found")
	ErrUserAlreadyExists  = newKindError(ErrConflict, "user already exists")
	ErrUserInactive       = newKindError(ErrForbidden, "user is inactive")
	ErrEmailNotVerified   = newKindError(ErrForbidden, "email is not verified")
	ErrInvalidCredentials = newKindError(ErrForbidden, "Invalid credentials")

	// Verification code errors
	ErrCodeNotFound            = newKindError(ErrNotFound, "verification code not found")
	ErrCodeExpired             = newKindError(ErrExpired, "verification code has expired")
	ErrInvalidVerificationCode = newKindError(ErrInvalidInput, "invalid verification code")
	ErrTooManyAttempts         = newKindError(ErrForbidden, "too many verification attempts")

	// Role errors
	ErrInvalidRole        = newKindError(ErrInvalidInput, "invalid role")
	ErrRoleChangeDenied   = newKindError(ErrForbidden, "not allowed to change this role")
	ErrAlreadyInThatState = newKindError(ErrConflict, "user already has this role")

	// Session errors
	ErrInvalidSession           = newKindError(ErrUnauthorized, "invalid or expired session")
	ErrSessionTerminationDenied = newKindError(ErrForbidden, "not allowed to terminate sessions of another user")

	// Password reset errors
	ErrResetTokenInvalid = newKindError(ErrForbidden, "invalid or expired reset token")
	ErrPasswordMismatch  = newKindError(ErrInvalidInput, "passwords do not match")

	// Bootstrap errors
	ErrBootstrapDenied = newKindError(ErrForbidden, "invalid bootstrap secret")
	ErrSuperuserExists = newKindError(ErrConflict, "a superuser already exists")
)

// Invalidf builds an InvalidInput error whose message is safe to show to callers
func Invalidf(format string, args ...any) error {
	return newKindError(ErrInvalidInput, fmt.Sprintf(format, args...))
}

// Kind returns the error kind err belongs to, or ErrInternal for anything unclassified
func Kind(err error) error {
	for _, k := range []error{ErrInvalidInput, ErrNotFound, ErrExpired, ErrUnauthorized, ErrForbidden, ErrConflict} {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrInternal
}
