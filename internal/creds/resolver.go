package creds

import (
	"context"
	"errors"
	"fmt"

	"voicebridge/internal/carrier"
	"voicebridge/internal/config"
)

// ErrCredentialsMissing means no usable carrier credentials could be resolved
// for the call under the caller's scope.
var ErrCredentialsMissing = errors.New("credentials missing")

// Scope bounds which resolution sources a caller may reach. Company-scoped
// callers can only use their own channel connections; the process-wide env
// fallback requires full scope.
type Scope string

const (
	ScopeFull    Scope = "full"
	ScopeCompany Scope = "company"
)

// Connection is a channel-connection record owned by the CRM collaborator.
// Only the credential fields the orchestrator reads are modeled.
type Connection struct {
	ID        string
	CompanyID string
	Active    bool

	Carrier    carrier.Credentials
	FromNumber string

	AIAPIKey  string
	AIAgentID string
}

// ConnectionRepository looks up channel connection records.
type ConnectionRepository interface {
	GetByID(ctx context.Context, id string) (Connection, error)
	GetActiveByCompany(ctx context.Context, companyID string) (Connection, error)
}

var ErrConnectionNotFound = errors.New("channel connection not found")

// AICredentials select the conversational backend for an AI-powered call.
type AICredentials struct {
	APIKey  string
	AgentID string
}

// Credentials is the fully resolved per-call credential set.
type Credentials struct {
	Carrier    carrier.Credentials
	AI         AICredentials
	FromNumber string

	// ConnectionID is empty when the env fallback was used.
	ConnectionID string
	Source       Source
}

type Source string

const (
	SourceConnection Source = "connection"
	SourceFallback   Source = "fallback"
)

// AIPowered reports whether the resolved credentials can drive an AI call.
func (c Credentials) AIPowered() bool { return c.AI.APIKey != "" }

// Overrides carry flow-node-level settings that take precedence over both the
// connection record and the fallback.
type Overrides struct {
	AIAPIKey   string
	AIAgentID  string
	FromNumber string
}

// ResolveRequest names the sources the resolver may consult.
type ResolveRequest struct {
	ConnectionID string
	CompanyID    string
	Scope        Scope
	Override     *Overrides
}

// Resolver is a pure lookup: per-call override > named channel connection >
// process-wide fallback (full scope only). It keeps no state.
type Resolver struct {
	conns ConnectionRepository

	fallbackCarrier carrier.Credentials
	fallbackAI      AICredentials
	fallbackFrom    string
}

func NewResolver(conns ConnectionRepository, carrierCfg config.CarrierConfig, aiCfg config.AIConfig) *Resolver {
	return &Resolver{
		conns: conns,
		fallbackCarrier: carrier.Credentials{
			AccountSID: carrierCfg.AccountSID,
			AuthToken:  carrierCfg.AuthToken,
			APIKey:     carrierCfg.APIKey,
			APISecret:  carrierCfg.APISecret,
			AppSID:     carrierCfg.AppSID,
		},
		fallbackAI:   AICredentials{APIKey: aiCfg.APIKey, AgentID: aiCfg.AgentID},
		fallbackFrom: carrierCfg.DefaultFromNumber,
	}
}

func (r *Resolver) Resolve(ctx context.Context, req ResolveRequest) (Credentials, error) {
	out, err := r.resolveBase(ctx, req)
	if err != nil {
		return Credentials{}, err
	}

	if o := req.Override; o != nil {
		if o.AIAPIKey != "" {
			out.AI.APIKey = o.AIAPIKey
		}
		if o.AIAgentID != "" {
			out.AI.AgentID = o.AIAgentID
		}
		if o.FromNumber != "" {
			out.FromNumber = o.FromNumber
		}
	}

	if !out.Carrier.Valid() {
		return Credentials{}, ErrCredentialsMissing
	}
	return out, nil
}

func (r *Resolver) resolveBase(ctx context.Context, req ResolveRequest) (Credentials, error) {
	if r.conns != nil {
		if req.ConnectionID != "" {
			conn, err := r.conns.GetByID(ctx, req.ConnectionID)
			if err == nil && conn.Active {
				return fromConnection(conn), nil
			}
			if err != nil && !errors.Is(err, ErrConnectionNotFound) {
				return Credentials{}, fmt.Errorf("resolve connection %s: %w", req.ConnectionID, err)
			}
		}
		if req.CompanyID != "" {
			conn, err := r.conns.GetActiveByCompany(ctx, req.CompanyID)
			if err == nil {
				return fromConnection(conn), nil
			}
			if !errors.Is(err, ErrConnectionNotFound) {
				return Credentials{}, fmt.Errorf("resolve company connection: %w", err)
			}
		}
	}

	if req.Scope != ScopeFull {
		return Credentials{}, ErrCredentialsMissing
	}
	if !r.fallbackCarrier.Valid() {
		return Credentials{}, ErrCredentialsMissing
	}
	return Credentials{
		Carrier:    r.fallbackCarrier,
		AI:         r.fallbackAI,
		FromNumber: r.fallbackFrom,
		Source:     SourceFallback,
	}, nil
}

func fromConnection(conn Connection) Credentials {
	return Credentials{
		Carrier:      conn.Carrier,
		AI:           AICredentials{APIKey: conn.AIAPIKey, AgentID: conn.AIAgentID},
		FromNumber:   conn.FromNumber,
		ConnectionID: conn.ID,
		Source:       SourceConnection,
	}
}

// Redact renders a secret safe for logs: first and last two runes only.
func Redact(secret string) string {
	rs := []rune(secret)
	if len(rs) == 0 {
		return ""
	}
	if len(rs) <= 6 {
		return "****"
	}
	return string(rs[:2]) + "…" + string(rs[len(rs)-2:])
}
