package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"voicebridge/internal/aiprovider"
	"voicebridge/internal/breaker"
	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/config"
	"voicebridge/internal/creds"
	"voicebridge/internal/crm"
	"voicebridge/internal/events"
	"voicebridge/internal/flows"
	"voicebridge/internal/quality"
	"voicebridge/internal/registry"

	"github.com/gorilla/websocket"
)

// MediaDialer is implemented by AI providers that expose a dialable
// media/control leg in addition to session registration.
type MediaDialer interface {
	DialMedia(ctx context.Context, signedURL string) (*websocket.Conn, error)
}

var (
	ErrValidation         = errors.New("invalid webhook payload")
	ErrRetryNotAllowed    = errors.New("call status does not allow retry")
	ErrRetryLimit         = errors.New("retry limit reached")
	ErrFallbackNotAllowed = errors.New("fallback requires an ai-powered call")
	ErrTooManyCalls       = errors.New("concurrent call limit reached")
)

// Orchestrator is the call session state machine. It owns no HTTP concerns;
// handlers parse and authenticate transport-level input, then drive it.
type Orchestrator struct {
	log      *slog.Logger
	repo     calls.Repository
	reg      *registry.Registry
	timers   *registry.TimerStore
	resolver *creds.Resolver
	verifier *carrier.Verifier
	api      carrier.API
	brk      *breaker.Breaker
	sink     events.Sink
	crm      crm.Store
	flows    flows.Repository
	ai       aiprovider.Provider
	monitor  *quality.Monitor
	limiter  CapLimiter

	baseURL string
	cfg     config.CallsConfig

	clock func() time.Time

	// runAsync decouples post-response bookkeeping from the webhook response
	// path. Tests replace it with a synchronous call.
	runAsync func(func())
}

type Deps struct {
	Log      *slog.Logger
	Repo     calls.Repository
	Registry *registry.Registry
	Timers   *registry.TimerStore
	Resolver *creds.Resolver
	Verifier *carrier.Verifier
	Carrier  carrier.API
	Breaker  *breaker.Breaker
	Sink     events.Sink
	CRM      crm.Store
	Flows    flows.Repository
	AI       aiprovider.Provider
	Monitor  *quality.Monitor
	Limiter  CapLimiter

	PublicBaseURL string
	Calls         config.CallsConfig
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		log:      d.Log,
		repo:     d.Repo,
		reg:      d.Registry,
		timers:   d.Timers,
		resolver: d.Resolver,
		verifier: d.Verifier,
		api:      d.Carrier,
		brk:      d.Breaker,
		sink:     d.Sink,
		crm:      d.CRM,
		flows:    d.Flows,
		ai:       d.AI,
		monitor:  d.Monitor,
		limiter:  d.Limiter,
		baseURL:  d.PublicBaseURL,
		cfg:      d.Calls,
		clock:    time.Now,
		runAsync: func(f func()) { go f() },
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	if o.limiter == nil {
		o.limiter = NoopLimiter{}
	}
	if o.monitor == nil {
		o.monitor = quality.NewMonitor(0)
	}
	return o
}

// SetClock injects a deterministic clock for tests.
func (o *Orchestrator) SetClock(clock func() time.Time) { o.clock = clock }

// SetSynchronous makes fire-and-forget bookkeeping run inline, for tests.
func (o *Orchestrator) SetSynchronous() { o.runAsync = func(f func()) { f() } }

// Timers exposes the shared timer store so the conference scheduler and the
// status path cancel the same handles.
func (o *Orchestrator) Timers() *registry.TimerStore { return o.timers }

func (o *Orchestrator) emit(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = o.clock().UTC()
	}
	if err := o.sink.Publish(ctx, ev); err != nil {
		o.log.Warn("event publish failed", "type", ev.Type, "company_id", ev.CompanyID, "error", err)
	}
}

// statusCallbackURL is where the carrier posts lifecycle webhooks.
func (o *Orchestrator) statusCallbackURL() string {
	return o.baseURL + "/webhooks/voice/status"
}

// conferenceCallbackURL is where the carrier posts conference events.
func (o *Orchestrator) conferenceCallbackURL() string {
	return o.baseURL + "/webhooks/voice/conference"
}

// RunStaleSweeper evicts sessions with no lifecycle activity until ctx ends.
func (o *Orchestrator) RunStaleSweeper(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.StaleSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := o.SweepStaleSessions()
			if len(removed) > 0 {
				o.log.Info("stale session sweep", "removed", len(removed))
			}
		}
	}
}

// SweepStaleSessions evicts stale sessions and cancels their timers.
func (o *Orchestrator) SweepStaleSessions() []registry.Info {
	removed := o.reg.SweepStale(o.cfg.StaleSessionMaxAge)
	for _, info := range removed {
		if info.RecordID != "" {
			o.timers.Cancel(registry.ConferenceTimerKey(info.RecordID))
			o.timers.Cancel(registry.AgentJoinTimerKey(info.RecordID))
		}
		o.log.Warn("evicted stale call session",
			"call_sid", info.CallSID,
			"company_id", info.CompanyID,
			"last_activity", info.LastActivity,
		)
	}
	return removed
}

// ForceCleanupAll evicts every live session. Emergency operator action.
func (o *Orchestrator) ForceCleanupAll() []registry.Info {
	removed := o.reg.ForceCleanupAll()
	cancelled := o.timers.CancelAll()
	o.log.Warn("forced cleanup of all call sessions", "removed", len(removed), "timers_cancelled", cancelled)
	return removed
}
