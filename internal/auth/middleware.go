package auth

import (
	"net/http"
	"strings"
	"time"

	"dealer-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// Gin context keys set by RequireAccessToken.
const (
	KeyUserID       = "user_id"
	KeyDealershipID = "dealership_id"
	KeyRole         = "role"
)

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform RBAC checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
		if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tok := strings.TrimPrefix(raw, bearerPrefix)

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		id := claims.Identity()
		ctx := WithIdentity(c.Request.Context(), id)
		// Downstream log lines carry who asked and for which dealership.
		ctx = logger.With(ctx, logger.From(ctx).With("user_id", id.UserID, "dealership_id", id.DealershipID, "role", id.Role))
		c.Request = c.Request.WithContext(ctx)

		c.Set(KeyUserID, id.UserID)
		c.Set(KeyDealershipID, id.DealershipID)
		c.Set(KeyRole, id.Role)

		c.Next()
	}
}
