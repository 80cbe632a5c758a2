package handler

import (
	"net/http"
	"strings"

	"github.com/Miasufee/connect-sub000/internal/domain"
	"github.com/Miasufee/connect-sub000/pkg/middleware"
	"github.com/Miasufee/connect-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

const (
	ctxUserKey   = "auth_user"
	ctxUserIDKey = middleware.UserIDKey
)

// RequireAuth verifies the bearer access token against the live user and stores
// the user in the gin context
func RequireAuth(sessions SessionService) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := bearerToken(c.GetHeader("Authorization"))
		if raw == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}

		_, user, err := sessions.VerifyAccessToken(c.Request.Context(), raw)
		if err != nil {
			if domain.Kind(err) == domain.ErrUnauthorized {
				response.Abort(c, http.StatusUnauthorized, "INVALID_SESSION", "Invalid or expired session")
				return
			}
			response.Abort(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal Server Error")
			return
		}

		c.Set(ctxUserKey, user)
		c.Set(ctxUserIDKey, user.ID)
		c.Next()
	}
}

// RequireRole lets through only users holding one of roles. It must run after RequireAuth.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "User not authenticated")
			return
		}
		for _, r := range roles {
			if user.Role == r {
				c.Next()
				return
			}
		}
		response.Abort(c, http.StatusForbidden, "FORBIDDEN", "Insufficient role")
	}
}

func currentUser(c *gin.Context) *domain.User {
	v, ok := c.Get(ctxUserKey)
	if !ok {
		return nil
	}
	user, _ := v.(*domain.User)
	return user
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
