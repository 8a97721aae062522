package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"voicebridge/internal/auth"
	"voicebridge/internal/breaker"
	"voicebridge/internal/calls"
	"voicebridge/internal/conference"
	"voicebridge/internal/creds"
	"voicebridge/internal/orchestrator"
	"voicebridge/internal/quality"
	"voicebridge/internal/rbac"
	"voicebridge/internal/registry"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Log         *slog.Logger
	Auth        *auth.Manager
	Orch        *orchestrator.Orchestrator
	Conferences *conference.Scheduler
	Breaker     *breaker.Breaker
	Monitor     *quality.Monitor
	Registry    *registry.Registry
	Repo        calls.Repository

	// DB and Redis are only pinged by the health endpoint; nil means the
	// component is reported as "disabled" rather than failing.
	DB    *sql.DB
	Redis *redis.Client
}

// identity pulls the caller's identity out of request context. The auth
// middleware guarantees these are present on protected routes.
type identity struct {
	UserID    string
	CompanyID string
	Role      string
	Scope     creds.Scope
}

func callerIdentity(c *gin.Context) (identity, bool) {
	ctx := c.Request.Context()
	userID, err := auth.UserID(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return identity{}, false
	}
	scopeStr, err := auth.Scope(ctx)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "scope required"})
		return identity{}, false
	}
	id := identity{UserID: userID, Scope: creds.ScopeCompany}
	if scopeStr == auth.ScopeFull {
		id.Scope = creds.ScopeFull
	}
	id.CompanyID, _ = auth.CompanyID(ctx)
	id.Role, _ = auth.Role(ctx)
	return id, true
}

// canSee enforces tenant isolation on read paths: company-scoped callers only
// see their own company's records.
func (id identity) canSee(companyID string) bool {
	return id.Scope == creds.ScopeFull || id.CompanyID == companyID
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id"`
	Role      string `json:"role"`
	Scope     string `json:"scope"`
}

// Login issues an access token.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Scope == "" {
		req.Scope = auth.ScopeCompany
	}
	if req.UserID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and role required"})
		return
	}
	if req.Scope == auth.ScopeCompany && req.CompanyID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "company_id required for company scope"})
		return
	}
	token, err := h.Auth.Issue(time.Now(), req.UserID, req.CompanyID, req.Role, req.Scope)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": token})
}

/* ===================== HEALTH ===================== */

// Health pings the process's hard dependencies. It is public and cheap; load
// balancers poll it.
func (h Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	components := gin.H{}
	healthy := true

	if h.DB != nil {
		if err := h.DB.PingContext(ctx); err != nil {
			components["postgres"] = "down"
			healthy = false
		} else {
			components["postgres"] = "ok"
		}
	} else {
		components["postgres"] = "disabled"
	}

	if h.Redis != nil {
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			components["redis"] = "down"
			healthy = false
		} else {
			components["redis"] = "ok"
		}
	} else {
		components["redis"] = "disabled"
	}

	if h.Breaker != nil && h.Breaker.State().IsOpen {
		components["carrier"] = "circuit_open"
	} else {
		components["carrier"] = "ok"
	}

	status := http.StatusOK
	state := "ok"
	if !healthy {
		status = http.StatusServiceUnavailable
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "components": components})
}

/* ===================== CALLS ===================== */

func (h Handlers) GetCall(c *gin.Context) {
	id, ok := callerIdentity(c)
	if !ok {
		return
	}
	callSID := c.Param("call_sid")
	rec, err := h.Repo.GetByCallSID(c.Request.Context(), callSID)
	if err != nil {
		abortForError(c, err)
		return
	}
	if !id.canSee(rec.CompanyID) {
		// 404 rather than 403: do not leak the record's existence across tenants.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

type initiateCallRequest struct {
	To           string `json:"to"`
	From         string `json:"from,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`

	// CompanyID is honored only for full-scope tokens; company-scoped tokens
	// always act on their own company.
	CompanyID string `json:"company_id,omitempty"`
}

func (h Handlers) InitiateCall(c *gin.Context) {
	id, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	companyID := id.CompanyID
	if id.Scope == creds.ScopeFull && req.CompanyID != "" {
		companyID = req.CompanyID
	}

	rec, err := h.Orch.InitiateCall(c.Request.Context(), orchestrator.OutboundRequest{
		CompanyID:    companyID,
		ConnectionID: req.ConnectionID,
		Scope:        id.Scope,
		To:           req.To,
		From:         req.From,
	})
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

func (h Handlers) RetryCall(c *gin.Context) {
	id, ok := callerIdentity(c)
	if !ok {
		return
	}
	orig, err := h.Repo.GetByCallSID(c.Request.Context(), c.Param("call_sid"))
	if err != nil {
		abortForError(c, err)
		return
	}
	if !id.canSee(orig.CompanyID) {
		// A retry places a call on the record's carrier credentials; same
		// 404-over-403 treatment as GetCall.
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	rec, err := h.Orch.RetryCall(c.Request.Context(), orig.CallSID, id.Scope)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

type fallbackRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) FallbackToDirect(c *gin.Context) {
	id, ok := callerIdentity(c)
	if !ok {
		return
	}
	var req fallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.Reason == "" {
		req.Reason = "manual fallback"
	}
	orig, err := h.Repo.GetByCallSID(c.Request.Context(), c.Param("call_sid"))
	if err != nil {
		abortForError(c, err)
		return
	}
	if !id.canSee(orig.CompanyID) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
		return
	}
	rec, err := h.Orch.FallbackToDirect(c.Request.Context(), orig.CallSID, req.Reason, id.Scope)
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

/* ===================== MONITORING ===================== */

func (h Handlers) MonitoringSnapshot(c *gin.Context) {
	snapshot := gin.H{
		"active_sessions": h.Registry.Len(),
		"quality":         h.Monitor.AggregateMetrics(),
		"breaker":         h.Breaker.State(),
	}
	if h.Conferences != nil {
		stats, err := h.Conferences.Stats(c.Request.Context())
		if err == nil {
			snapshot["conferences"] = stats
		} else {
			snapshot["conferences_error"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, snapshot)
}

type qualitySampleRequest struct {
	CallSID        string  `json:"call_sid"`
	RTTMs          float64 `json:"rtt_ms"`
	PacketLossRate float64 `json:"packet_loss_rate"`
	JitterMs       float64 `json:"jitter_ms"`

	// Reconnected marks a sample taken right after the relay re-established
	// the media leg.
	Reconnected bool `json:"reconnected,omitempty"`
}

// ReportQualitySample ingests one media quality measurement from a relay.
func (h Handlers) ReportQualitySample(c *gin.Context) {
	var req qualitySampleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.CallSID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "call_sid required"})
		return
	}

	sample := quality.Sample{RTTMs: req.RTTMs, PacketLossRate: req.PacketLossRate, JitterMs: req.JitterMs}
	level := h.Monitor.RecordSample(req.CallSID, sample)
	if req.Reconnected {
		h.Monitor.RecordReconnection()
	}
	if sess, ok := h.Registry.Get(req.CallSID); ok {
		sess.SetMetrics(sample, level)
	}
	c.JSON(http.StatusOK, gin.H{"level": level})
}

func (h Handlers) ActiveSessions(c *gin.Context) {
	id, ok := callerIdentity(c)
	if !ok {
		return
	}
	all := h.Registry.ListAll()
	visible := make([]registry.Info, 0, len(all))
	for _, sess := range all {
		info := sess.Snapshot()
		if id.canSee(info.CompanyID) {
			visible = append(visible, info)
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": visible, "count": len(visible)})
}

/* ===================== ADMIN ===================== */

func (h Handlers) CleanupStale(c *gin.Context) {
	removed := h.Orch.SweepStaleSessions()
	c.JSON(http.StatusOK, gin.H{"removed": removed, "count": len(removed)})
}

// CleanupAll is the last-resort operator hammer; it drops every tracked
// session and timer. RBAC: super_admin only.
func (h Handlers) CleanupAll(c *gin.Context) {
	removed := h.Orch.ForceCleanupAll()
	c.JSON(http.StatusOK, gin.H{"removed": removed, "count": len(removed)})
}

func (h Handlers) BreakerRecover(c *gin.Context) {
	res := h.Breaker.AttemptRecovery()
	status := http.StatusOK
	if !res.Success {
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"success": res.Success, "message": res.Message, "state": h.Breaker.State()})
}

/* ===================== CONFERENCES ===================== */

func (h Handlers) ListConferences(c *gin.Context) {
	infos, err := h.Conferences.ListActive(c.Request.Context())
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conferences": infos, "count": len(infos)})
}

func (h Handlers) ConferenceStats(c *gin.Context) {
	stats, err := h.Conferences.Stats(c.Request.Context())
	if err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h Handlers) TerminateConference(c *gin.Context) {
	id, ok := callerIdentity(c)
	if !ok {
		return
	}
	if err := h.Conferences.Terminate(c.Request.Context(), id.CompanyID, c.Param("conference_sid")); err != nil {
		abortForError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "terminated"})
}

/* ===================== SHARED ===================== */

func abortForError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrValidation), errors.Is(err, conference.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, calls.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "call not found"})
	case errors.Is(err, orchestrator.ErrRetryNotAllowed), errors.Is(err, orchestrator.ErrFallbackNotAllowed):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, orchestrator.ErrRetryLimit), errors.Is(err, orchestrator.ErrTooManyCalls):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	case errors.Is(err, breaker.ErrCircuitOpen):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// Convenience middleware bundles.

func RequireCompanyAndAnyRole(roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{rbac.RequireCompany(), rbac.RequireAnyRole(roles...)}
}
