package main

import (
	"log/slog"

	"dealer-crm/internal/auth"
	"dealer-crm/internal/httpapi"
	"dealer-crm/internal/ingest"
	"dealer-crm/internal/metrics"
	"dealer-crm/pkg/logger"

	"github.com/gin-gonic/gin"
)

// newRouter wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers delegate to internal modules.
func newRouter(log *slog.Logger, api *httpapi.Handlers, webhooks *ingest.Handler, m *metrics.Metrics) *gin.Engine {
	r := gin.New()
	// A redirect would drop the delivery body; /webhook/ goes to the catch-all instead.
	r.RedirectTrailingSlash = false
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))
	if m != nil {
		r.Use(m.Middleware())
	}

	httpapi.Register(r, api, auth.RequireAccessToken(api.Auth))

	// Provider webhooks are public. Every alias the provider may be configured
	// against is mounted, and unmatched POSTs are treated as deliveries too.
	webhooks.Register(r)
	r.NoRoute(webhooks.NoRoute())
	return r
}
