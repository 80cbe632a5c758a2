package handler

import (
	"github.com/Miasufee/connect-sub000/internal/dto"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

// SessionHandler handles token refresh and logout HTTP requests
type SessionHandler struct {
	sessions SessionService
	log      *logger.Logger
}

// NewSessionHandler creates a new SessionHandler
func NewSessionHandler(sessions SessionService, log *logger.Logger) *SessionHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &SessionHandler{sessions: sessions, log: log}
}

// Refresh rotates a refresh token
// POST /api/v1/auth/refresh
func (h *SessionHandler) Refresh(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	pair, err := h.sessions.RotateRefreshToken(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.FromTokenPair(pair))
}

// Logout revokes the given refresh token. Repeating it is not an error.
// POST /api/v1/auth/logout
func (h *SessionHandler) Logout(c *gin.Context) {
	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	revoked, err := h.sessions.LogoutCurrentDevice(c.Request.Context(), req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	resp := dto.LogoutResponse{Message: "Already logged out"}
	if revoked {
		resp = dto.LogoutResponse{Revoked: 1, Message: "Logged out successfully"}
	}
	response.Success(c, resp)
}

// LogoutOthers signs out every other device and returns a fresh pair for this one
// POST /api/v1/auth/logout-others
func (h *SessionHandler) LogoutOthers(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var req dto.RefreshTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	count, pair, err := h.sessions.LogoutAllOtherDevices(c.Request.Context(), user, req.RefreshToken)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.LogoutResponse{
		Revoked: count,
		Tokens:  dto.FromTokenPair(pair),
		Message: "Other sessions logged out",
	})
}

// LogoutAll signs out every device of the caller, or of user_id for privileged callers
// POST /api/v1/auth/logout-all
func (h *SessionHandler) LogoutAll(c *gin.Context) {
	actor := currentUser(c)
	if actor == nil {
		response.Unauthorized(c, "User not authenticated")
		return
	}

	var req dto.LogoutAllRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
	}
	target := req.UserID
	if target == "" {
		target = actor.ID
	}

	count, err := h.sessions.LogoutAllDevices(c.Request.Context(), actor, target)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.LogoutResponse{Revoked: count, Message: "All sessions logged out successfully"})
}
