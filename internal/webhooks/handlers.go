package webhooks

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"voicebridge/internal/carrier"
	"voicebridge/internal/conference"
	"voicebridge/internal/orchestrator"
	"voicebridge/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers terminates carrier webhooks. These endpoints are unauthenticated at
// the HTTP layer; per-session signature verification happens inside the
// orchestrator against the credentials each call was established with.
//
// Response contract: the carrier retries on non-2xx, so anything already
// handled (including webhooks for unknown calls) answers 200. Only malformed
// requests (400) and signature failures (403) refuse.

const dedupTTL = 10 * time.Minute

type Handlers struct {
	Log           *slog.Logger
	Orch          *orchestrator.Orchestrator
	Conferences   *conference.Scheduler
	PublicBaseURL string
	VerifyToken   string

	// Redis is optional; without it duplicate deliveries are handled by the
	// idempotent status upserts alone.
	Redis *redis.Client
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

// Register mounts the webhook routes on the given group.
func (h Handlers) Register(g *gin.RouterGroup) {
	g.GET("/voice/status", h.VerifyChallenge)
	g.POST("/voice/status", h.StatusCallback)
	g.POST("/voice/stream", h.StreamEvent)
	g.POST("/voice/conference", h.ConferenceEvent)
	g.POST("/voice/inbound/:flow_id/:node_id", h.InboundCall)
	g.POST("/ai/events", h.AIEvent)
}

// VerifyChallenge answers the carrier console's endpoint verification probe.
func (h Handlers) VerifyChallenge(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && h.VerifyToken != "" && token == h.VerifyToken {
		c.String(http.StatusOK, challenge)
		return
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "verification failed"})
}

// fullURL reconstructs the public URL the carrier signed. The service sits
// behind a proxy, so the request's own host/scheme are not trustworthy.
func (h Handlers) fullURL(c *gin.Context) string {
	return h.PublicBaseURL + c.Request.URL.RequestURI()
}

// claimed reports whether this delivery is the first one seen. Redis being
// down must not drop webhooks, so errors claim rather than refuse.
func (h Handlers) claimed(c *gin.Context, parts ...string) bool {
	if h.Redis == nil {
		return true
	}
	key := "webhook:delivery"
	for _, p := range parts {
		key += ":" + p
	}
	ok, err := utils.ClaimDelivery(c.Request.Context(), h.Redis, key, dedupTTL)
	if err != nil {
		h.logger().Warn("webhook dedup unavailable, processing anyway", "error", err)
		return true
	}
	return ok
}

func (h Handlers) StatusCallback(c *gin.Context) {
	form, err := carrier.ParseStatusCallback(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if form.CallSID != "" && form.SequenceNumber != "" {
		if !h.claimed(c, "status", form.CallSID, form.CallStatus, form.SequenceNumber) {
			h.logger().Info("duplicate status delivery dropped",
				"call_sid", form.CallSID, "status", form.CallStatus, "sequence", form.SequenceNumber)
			respondEmpty(c)
			return
		}
	}

	err = h.Orch.ProcessStatusCallback(c.Request.Context(), orchestrator.StatusRequest{
		FullURL:   h.fullURL(c),
		Signature: c.GetHeader(carrier.SignatureHeader),
		Params:    carrier.FormParams(c.Request),
		Form:      form,
	})
	if err != nil {
		abortForWebhookError(c, err)
		return
	}
	respondEmpty(c)
}

func (h Handlers) StreamEvent(c *gin.Context) {
	form, err := carrier.ParseStreamEvent(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if err := h.Orch.ProcessStreamEvent(c.Request.Context(), form); err != nil {
		abortForWebhookError(c, err)
		return
	}
	respondEmpty(c)
}

func (h Handlers) ConferenceEvent(c *gin.Context) {
	form, err := carrier.ParseConferenceEvent(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	if form.ConferenceSID != "" && form.Event != "" {
		if !h.claimed(c, "conference", form.ConferenceSID, form.Event, form.CallSID, form.Timestamp) {
			h.logger().Info("duplicate conference delivery dropped",
				"conference_sid", form.ConferenceSID, "event", form.Event)
			respondEmpty(c)
			return
		}
	}

	if err := h.Conferences.HandleEvent(c.Request.Context(), form); err != nil {
		if errors.Is(err, conference.ErrValidation) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger().Error("conference event failed", "error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	respondEmpty(c)
}

// InboundCall answers a new inbound call with bridging markup. The response
// body is markup even on failure paths; the orchestrator degrades to an
// apology message rather than leaving the caller in dead air.
func (h Handlers) InboundCall(c *gin.Context) {
	form, err := carrier.ParseInboundCall(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid form"})
		return
	}

	markup, err := h.Orch.HandleInboundCall(c.Request.Context(), orchestrator.InboundRequest{
		FlowID:    c.Param("flow_id"),
		NodeID:    c.Param("node_id"),
		FullURL:   h.fullURL(c),
		Signature: c.GetHeader(carrier.SignatureHeader),
		Params:    carrier.FormParams(c.Request),
		Form:      form,
	})
	if err != nil {
		abortForWebhookError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(markup))
}

// maxAIEventBody bounds AI callback bodies; transcript turns are small.
const maxAIEventBody = 1 << 20

// AIEvent terminates callbacks from the AI conversational backend. Unlike the
// carrier endpoints these are raw JSON, signed over the exact body bytes with
// the session's AI API key.
func (h Handlers) AIEvent(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxAIEventBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	err = h.Orch.ProcessAIEvent(c.Request.Context(), orchestrator.AIEventRequest{
		Body:      body,
		Signature: c.GetHeader(carrier.BodySignatureHeader),
	})
	if err != nil {
		abortForWebhookError(c, err)
		return
	}
	// The AI backend speaks JSON, not carrier markup.
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func abortForWebhookError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, carrier.ErrSignature):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
	default:
		_ = c.Error(fmt.Errorf("webhook: %w", err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func respondEmpty(c *gin.Context) {
	c.Data(http.StatusOK, "text/xml; charset=utf-8", []byte(carrier.RenderEmpty()))
}
