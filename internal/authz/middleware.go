package authz

import (
	"errors"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const identityKey = "authz.identity"

// RequireAdminMiddleware guards a route group behind the external verifier,
// demanding the admin role. IMF_AUTH_DISABLED=true bypasses it for local
// development.
func RequireAdminMiddleware(client *Client, logger *zap.Logger) gin.HandlerFunc {
	disabled := strings.EqualFold(os.Getenv("IMF_AUTH_DISABLED"), "true") || os.Getenv("IMF_AUTH_DISABLED") == "1"

	return func(c *gin.Context) {
		if disabled {
			c.Next()
			return
		}

		auth := strings.TrimSpace(c.GetHeader("Authorization"))
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

		id, err := client.Verify(c.Request.Context(), token)
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
				return
			}
			if logger != nil {
				logger.Warn("auth verification failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "authorization unavailable"})
			return
		}
		if !id.HasRole(RoleAdmin) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}

		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the verified identity stored by the middleware.
func IdentityFrom(c *gin.Context) (*Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*Identity)
	return id, ok
}
