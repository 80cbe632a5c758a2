package handler

import (
	"github.com/Miasufee/connect-sub000/internal/dto"
	"github.com/Miasufee/connect-sub000/pkg/logger"
	"github.com/Miasufee/connect-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

// AdminHandler exposes maintenance operations to superusers
type AdminHandler struct {
	purger Purger
	log    *logger.Logger
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(purger Purger, log *logger.Logger) *AdminHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &AdminHandler{purger: purger, log: log}
}

// Purge runs one token purge pass, for externally scheduled cleanup
// POST /api/v1/auth/admin/purge
func (h *AdminHandler) Purge(c *gin.Context) {
	result, err := h.purger.RunOnce(c.Request.Context())
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	response.Success(c, dto.PurgeResponse{
		RevokedPurged:      result.RevokedPurged,
		ExpiredCleaned:     result.ExpiredCleaned,
		ResetTokensDeleted: result.ResetTokensDeleted,
	})
}
