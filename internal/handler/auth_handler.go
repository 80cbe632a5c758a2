package handler

import (
	"net/http"

	"github.com/Miasufee/connect-sub000/internal/dto"
	"github.com/Miasufee/connect-sub000/internal/service"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles login, registration and account HTTP requests
type AuthHandler struct {
	auth AuthService
	log  *logger.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(auth AuthService, log *logger.Logger) *AuthHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AuthHandler{auth: auth, log: log}
}

// Register handles user registration
// POST /api/v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.ValidateEmail(); !valid {
		response.Error(c, http.StatusBadRequest, "INVALID_EMAIL", msg)
		return
	}
	if valid, msg := req.ValidatePassword(); !valid {
		response.Error(c, http.StatusBadRequest, "WEAK_PASSWORD", msg)
		return
	}

	user, err := h.auth.Register(c.Request.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	response.Created(c, dto.LoginResponse{
		User:     dto.FromUser(user),
		CodeSent: true,
		Message:  "Registration successful, a login code has been sent",
	})
}

// Login handles both phases of the code login
// POST /api/v1/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.Validate(); !valid {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, loginResponse(result))
}

// ResendCode issues a fresh login code
// POST /api/v1/auth/login/resend
func (h *AuthHandler) ResendCode(c *gin.Context) {
	var req dto.ResendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	if err := h.auth.ResendCode(c.Request.Context(), req.Email); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.LoginResponse{CodeSent: true, Message: "A new login code has been sent"})
}

// ElevatedLogin handles password + unique ID login
// POST /api/v1/auth/login/elevated
func (h *AuthHandler) ElevatedLogin(c *gin.Context) {
	var req dto.ElevatedLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.auth.ElevatedLogin(c.Request.Context(), req.Email, req.Password, req.UniqueID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, loginResponse(result))
}

// VerifiedEmailLogin mints tokens for an email a federated provider verified.
// It is mounted on the internal route group only.
// POST /api/v1/auth/login/oauth
func (h *AuthHandler) VerifiedEmailLogin(c *gin.Context) {
	var req dto.VerifiedEmailLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	result, err := h.auth.LoginWithVerifiedEmail(c.Request.Context(), req.Email, req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, loginResponse(result))
}

// VerifyEmail verifies an email by link token or by email + code
// POST /api/v1/auth/verify-email
func (h *AuthHandler) VerifyEmail(c *gin.Context) {
	var req dto.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.Validate(); !valid {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}

	if req.Token != "" {
		user, err := h.auth.VerifyEmail(c.Request.Context(), req.Token)
		if err != nil {
			respondError(c, h.log, err)
			return
		}
		response.Success(c, dto.LoginResponse{User: dto.FromUser(user), Message: "Email verified"})
		return
	}

	result, err := h.auth.VerifyEmailWithCode(c.Request.Context(), req.Email, req.Code)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	resp := loginResponse(result)
	resp.Message = "Email verified"
	response.Success(c, resp)
}

// ResendVerification emails a fresh verification link to the signed-in user
// POST /api/v1/auth/verify-email/resend
func (h *AuthHandler) ResendVerification(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	if err := h.auth.SendEmailVerification(c.Request.Context(), user); err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.MessageResponse{Message: "A verification link has been sent to your email"})
}

// Bootstrap creates the first superuser
// POST /api/v1/auth/bootstrap
func (h *AuthHandler) Bootstrap(c *gin.Context) {
	var req dto.BootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.Validate(); !valid {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}

	user, err := h.auth.BootstrapSuperuser(c.Request.Context(), req.Secret, req.Email, req.Password, req.Name)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Created(c, gin.H{
		"user":      dto.FromUser(user),
		"unique_id": user.UniqueID,
	})
}

// Me returns current user info
// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}
	response.Success(c, dto.FromUser(user))
}

// ChangePassword handles an authenticated password change
// POST /api/v1/auth/password/change
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.ValidatePassword(); !valid {
		response.Error(c, http.StatusBadRequest, "WEAK_PASSWORD", msg)
		return
	}

	pair, err := h.auth.ChangePassword(c.Request.Context(), user, req.CurrentPassword, req.NewPassword)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.LoginResponse{
		User:    dto.FromUser(user),
		Tokens:  dto.FromTokenPair(pair),
		Message: "Password changed, all other sessions were signed out",
	})
}

// UpdateRole changes another user's role
// PATCH /api/v1/auth/users/role
func (h *AuthHandler) UpdateRole(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var req dto.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if valid, msg := req.Validate(); !valid {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
		return
	}

	user, err := h.auth.UpdateRole(c.Request.Context(), actor, req.Email, req.Role)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.FromUser(user))
}

// loginResponse exposes the profile only once tokens are issued
func loginResponse(result *service.LoginResult) dto.LoginResponse {
	if result.Tokens == nil {
		resp := dto.LoginResponse{CodeSent: result.CodeSent}
		if result.CodeSent {
			resp.Message = "A login code has been sent to your email"
		}
		return resp
	}
	return dto.LoginResponse{
		User:   dto.FromUser(result.User),
		Tokens: dto.FromTokenPair(result.Tokens),
	}
}
