package handler

import (
	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/middleware"
	"github.com/gin-gonic/gin"
)

// Handlers groups every HTTP handler of the service
type Handlers struct {
	Auth     *AuthHandler
	Session  *SessionHandler
	Reset    *PasswordResetHandler
	Admin    *AdminHandler
	Health   *HealthHandler
	Sessions SessionService
}

// RouteConfig tunes route registration
type RouteConfig struct {
	// RateLimit throttles code-sending and reset-request endpoints per client
	RateLimit middleware.RateLimitConfig
	// InternalRoutes mounts endpoints meant for other services (provider-verified login)
	InternalRoutes bool
}

// RegisterRoutes mounts the health probes and the /api/v1/auth API on router
func RegisterRoutes(router *gin.Engine, h *Handlers, cfg RouteConfig) {
	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	throttle := middleware.RateLimit(cfg.RateLimit)

	v1 := router.Group("/api/v1")
	auth := v1.Group("/auth")
	{
		// Public endpoints
		auth.POST("/register", throttle, h.Auth.Register)
		auth.POST("/login", throttle, h.Auth.Login)
		auth.POST("/login/resend", throttle, h.Auth.ResendCode)
		auth.POST("/login/elevated", throttle, h.Auth.ElevatedLogin)
		auth.POST("/refresh", h.Session.Refresh)
		auth.POST("/logout", h.Session.Logout)
		auth.POST("/verify-email", h.Auth.VerifyEmail)
		auth.POST("/bootstrap", throttle, h.Auth.Bootstrap)

		reset := auth.Group("/password-reset")
		{
			reset.POST("/request", throttle, h.Reset.Request)
			reset.POST("/validate", h.Reset.Validate)
			reset.POST("/confirm", throttle, h.Reset.Confirm)
		}

		if cfg.InternalRoutes {
			auth.POST("/login/oauth", h.Auth.VerifiedEmailLogin)
		}

		// Protected endpoints
		protected := auth.Group("")
		protected.Use(RequireAuth(h.Sessions))
		{
			protected.GET("/me", h.Auth.Me)
			protected.POST("/verify-email/resend", throttle, h.Auth.ResendVerification)
			protected.POST("/logout-others", h.Session.LogoutOthers)
			protected.POST("/logout-all", h.Session.LogoutAll)
			protected.POST("/password/change", h.Auth.ChangePassword)
			protected.PATCH("/users/role", RequireRole(domain.RoleSuperAdmin, domain.RoleSuperuser), h.Auth.UpdateRole)
			protected.POST("/admin/purge", RequireRole(domain.RoleSuperuser), h.Admin.Purge)
		}
	}
}
