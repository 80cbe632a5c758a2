package handler

import (
	"net/http"

	"github.com/Miasufee/connect-sub000/internal/dto"
	"github.com/Miasufee/connect-sub000/internal/service"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

const resetRequestedMessage = "If this account exists, a reset link has been sent"

// PasswordResetHandler handles the three password reset steps
type PasswordResetHandler struct {
	reset PasswordResetService
	log   *logger.Logger
}

// NewPasswordResetHandler creates a new PasswordResetHandler
func NewPasswordResetHandler(reset PasswordResetService, log *logger.Logger) *PasswordResetHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &PasswordResetHandler{reset: reset, log: log}
}

// Request sends a reset link. The answer is the same whether or not the account exists.
// POST /api/v1/auth/password-reset/request
func (h *PasswordResetHandler) Request(c *gin.Context) {
	var req dto.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.reset.Request(c.Request.Context(), req.Email, req.UniqueID); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.MessageResponse{Message: resetRequestedMessage})
}

// Validate checks a reset link without consuming it
// POST /api/v1/auth/password-reset/validate
func (h *PasswordResetHandler) Validate(c *gin.Context) {
	var req dto.ValidateResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	info, err := h.reset.Validate(c.Request.Context(), req.Email, req.Token)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.ResetValidationResponse{
		Valid:        true,
		MaskedUserID: info.MaskedUserID,
		ExpiresAt:    info.ExpiresAt,
	})
}

// Confirm sets the new password
// POST /api/v1/auth/password-reset/confirm
func (h *PasswordResetHandler) Confirm(c *gin.Context) {
	var req dto.ConfirmResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.ValidatePassword(); !valid {
		response.Error(c, http.StatusBadRequest, "WEAK_PASSWORD", msg)
		return
	}

	err := h.reset.Confirm(c.Request.Context(), service.ConfirmResetInput{
		Email:           req.Email,
		Token:           req.Token,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.MessageResponse{Message: "Password has been reset, please log in again"})
}
