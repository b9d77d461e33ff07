package httpapi

import (
	"dealer-crm/internal/rbac"

	"github.com/gin-gonic/gin"
)

// Register mounts health, metrics and the /v1 API. authMW must populate the
// request identity (auth.RequireAccessToken).
func Register(r gin.IRouter, h *Handlers, authMW gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)
	if h.Metrics != nil {
		r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	}

	v1 := r.Group("/v1")
	v1.POST("/auth/login", h.Login)

	api := v1.Group("")
	api.Use(authMW, rbac.RequireDealership())
	{
		api.GET("/me", h.Me)

		api.GET("/dashboard", h.Dashboard)
		api.GET("/dashboard/call-logs", h.DashboardSummary)

		api.GET("/call-logs", h.ListCallLogs)
		api.GET("/call-logs/:id", h.GetCallLog)

		kb := api.Group("/knowledge-bases")
		kb.GET("", h.ListKnowledgeBases)
		kb.POST("", rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleManager), h.CreateKnowledgeBase)
		kb.GET("/:id", h.GetKnowledgeBase)
		kb.GET("/:id/download", h.DownloadKnowledgeBase)
	}
}
