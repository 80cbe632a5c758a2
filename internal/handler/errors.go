package handler

import (
	"errors"
	"net/http"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/middleware"
	"github.com/Miasufee/connect-sub000/pkg/response"
	"github.com/Miasufee/connect-sub000/pkg/telemetry"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// errorCodes gives specific errors a stable machine-readable code
var errorCodes = []struct {
	err  error
	code string
}{
	{domain.ErrUserNotFound, "USER_NOT_FOUND"},
	{domain.ErrUserAlreadyExists, "USER_EXISTS"},
	{domain.ErrUserInactive, "USER_INACTIVE"},
	{domain.ErrEmailNotVerified, "EMAIL_NOT_VERIFIED"},
	{domain.ErrInvalidCredentials, "INVALID_CREDENTIALS"},
	{domain.ErrCodeExpired, "CODE_EXPIRED"},
	{domain.ErrInvalidVerificationCode, "INVALID_CODE"},
	{domain.ErrTooManyAttempts, "TOO_MANY_ATTEMPTS"},
	{domain.ErrInvalidRole, "INVALID_ROLE"},
	{domain.ErrAlreadyInThatState, "ALREADY_IN_THAT_STATE"},
	{domain.ErrInvalidSession, "INVALID_SESSION"},
	{domain.ErrResetTokenInvalid, "INVALID_RESET_TOKEN"},
	{domain.ErrPasswordMismatch, "PASSWORD_MISMATCH"},
	{domain.ErrSuperuserExists, "SUPERUSER_EXISTS"},
}

var kindStatus = []struct {
	kind   error
	status int
	code   string
}{
	{domain.ErrInvalidInput, http.StatusBadRequest, "VALIDATION_ERROR"},
	{domain.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{domain.ErrExpired, http.StatusGone, "EXPIRED"},
	{domain.ErrUnauthorized, http.StatusUnauthorized, "UNAUTHORIZED"},
	{domain.ErrForbidden, http.StatusForbidden, "FORBIDDEN"},
	{domain.ErrConflict, http.StatusConflict, "CONFLICT"},
}

// respondError writes the envelope for err. Unclassified errors are logged and
// answered with a generic 500.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	kind := domain.Kind(err)
	for _, ks := range kindStatus {
		if kind != ks.kind {
			continue
		}
		code := ks.code
		for _, ec := range errorCodes {
			if errors.Is(err, ec.err) {
				code = ec.code
				break
			}
		}
		message := err.Error()
		if kind == domain.ErrUnauthorized {
			message = "Invalid or expired session"
		}
		response.Error(c, ks.status, code, message)
		return
	}

	log.Error("request failed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("trace_id", telemetry.GetTraceID(c.Request.Context())),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	response.InternalError(c)
}
