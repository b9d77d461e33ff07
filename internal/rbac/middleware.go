package rbac

import (
	"net/http"

	"dealer-crm/internal/auth"
	"dealer-crm/internal/tenancy"
	"dealer-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RequireDealership rejects requests that cannot be narrowed to a single
// dealership. Handlers build the same scope again for every read.
func RequireDealership() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, err := tenancy.ScopeFromContext(c.Request.Context()); err != nil {
			logger.FromGin(c).Warn("request without dealership scope", "path", c.FullPath(), "err", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "dealership_id required"})
			return
		}
		c.Next()
	}
}

// RequireAnyRole allows access if the caller has any of the provided roles.
// super_admin bypasses the check.
func RequireAnyRole(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = struct{}{}
	}

	return func(c *gin.Context) {
		role, err := auth.Role(c.Request.Context())
		if err != nil || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "role required"})
			return
		}
		if IsSuperAdmin(role) {
			c.Next()
			return
		}
		if _, ok := allowedSet[role]; !ok {
			logger.From(c.Request.Context()).Info("role not allowed", "role", role, "path", c.FullPath())
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}
