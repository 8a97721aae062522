package main

import (
	"voicebridge/internal/httpapi"
	"voicebridge/internal/rbac"
	"voicebridge/internal/webhooks"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, wh webhooks.Handlers, api httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", api.Health)

	// Carrier and AI-backend webhooks (public at the HTTP layer; authenticated
	// per-session by signature inside the orchestrator).
	wh.Register(r.Group("/webhooks"))

	// protected API group
	v1 := r.Group("/v1")

	// Token issuance sits outside the auth middleware.
	v1.POST("/auth/login", api.Login)

	authed := v1.Group("")
	authed.Use(authMW)
	{
		// CALLS routes
		callsGroup := authed.Group("/calls")
		callsGroup.Use(httpapi.RequireCompanyAndAnyRole(rbac.RoleAdmin, rbac.RoleOperator)...)
		{
			callsGroup.POST("", api.InitiateCall)
			callsGroup.GET("/:call_sid", api.GetCall)
			callsGroup.POST("/:call_sid/retry", api.RetryCall)
			callsGroup.POST("/:call_sid/fallback", api.FallbackToDirect)
		}

		// CONFERENCE routes
		conferences := authed.Group("/conferences")
		conferences.Use(httpapi.RequireCompanyAndAnyRole(rbac.RoleAdmin, rbac.RoleOperator)...)
		{
			conferences.GET("", api.ListConferences)
			conferences.GET("/stats", api.ConferenceStats)
			conferences.POST("/:conference_sid/terminate", api.TerminateConference)
		}

		// MONITORING routes (read-only; viewers included)
		monitoring := authed.Group("/monitoring")
		monitoring.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleOperator, rbac.RoleViewer))
		{
			monitoring.GET("", api.MonitoringSnapshot)
			monitoring.GET("/sessions", api.ActiveSessions)
		}

		// Media relays push samples with automation tokens.
		authed.POST("/monitoring/quality",
			rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleAutomation), api.ReportQualitySample)

		// ADMIN routes
		// Hidden automation role is intentionally allowed on the cleanup
		// endpoints; internal schedulers call them.
		admin := authed.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin, rbac.RoleAutomation))
		{
			admin.POST("/cleanup/stale", api.CleanupStale)
			admin.POST("/breaker/recover", api.BreakerRecover)
		}

		// The all-sessions hammer is super_admin only.
		authed.POST("/admin/cleanup/all", rbac.RequireAnyRole(rbac.RoleSuperAdmin), api.CleanupAll)
	}
}
