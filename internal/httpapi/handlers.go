package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dealer-crm/internal/auth"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/knowledge"
	"dealer-crm/internal/metrics"
	"dealer-crm/internal/reporting"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/users"
	"dealer-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth      *auth.Manager
	Users     users.Repository
	CallLogs  calllogs.Repository
	Reporting *reporting.Service
	Knowledge *knowledge.Service
	Metrics   *metrics.Metrics

	// Health reports whether backing stores are reachable.
	Health func(ctx context.Context) error
	Now    func() time.Time
}

func (h *Handlers) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// scope returns the caller's dealership scope or aborts with 401.
func scope(c *gin.Context) (tenancy.Scope, bool) {
	s, err := tenancy.ScopeFromContext(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "dealership_id required"})
		return tenancy.Scope{}, false
	}
	return s, true
}

func pageParam(c *gin.Context) int {
	p, err := strconv.Atoi(c.Query("page"))
	if err != nil || p < 1 {
		return 1
	}
	return p
}

// departmentParam reads ?department=. Absent or empty means no filter; anything
// other than a known department aborts with 400.
func departmentParam(c *gin.Context) (*calllogs.Department, bool) {
	raw := c.Query("department")
	if raw == "" {
		return nil, true
	}
	d, ok := calllogs.ParseDepartment(raw)
	if !ok {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "department must be one of sales, service, parts"})
		return nil, false
	}
	return &d, true
}

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
		return 0, false
	}
	return id, true
}

// writeError maps service errors onto HTTP responses.
func writeError(c *gin.Context, err error) {
	var verr *knowledge.ValidationError
	switch {
	case errors.As(err, &verr):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"success": false, "errors": verr.Fields})
	case errors.Is(err, calllogs.ErrNotFound), errors.Is(err, knowledge.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, knowledge.ErrNoFile):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"success": false, "message": "No file associated with this knowledge base"})
	case errors.Is(err, tenancy.ErrInvalidScope):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "dealership_id required"})
	case errors.Is(err, reporting.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
	case errors.Is(err, knowledge.ErrStorageDisabled):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "file storage not configured"})
	default:
		_ = c.Error(err)
		logger.FromGin(c).ErrorContext(c.Request.Context(), "request failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// --- Ops ---

func (h *Handlers) Healthz(c *gin.Context) {
	if h.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.Health(ctx); err != nil {
			logger.FromGin(c).WarnContext(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// --- Auth ---

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// Login exchanges email and password for a token pair carrying the user's dealership.
func (h *Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Users == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	ctx := c.Request.Context()
	u, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil && !errors.Is(err, users.ErrNotFound) {
		writeError(c, err)
		return
	}
	if err != nil || auth.CheckPassword(u.PasswordHash, req.Password) != nil {
		h.Metrics.RecordLoginAttempt(false)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	pair, err := h.Auth.IssuePair(h.now(), auth.Identity{
		UserID:       u.ID,
		DealershipID: u.DealershipID,
		TenantID:     u.TenantID,
		Role:         u.Role,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	h.Metrics.RecordLoginAttempt(true)
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt,
		"user":          u,
	})
}

func (h *Handlers) Me(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user_id":       id.UserID,
		"dealership_id": id.DealershipID,
		"tenant_id":     id.TenantID,
		"role":          id.Role,
	})
}
