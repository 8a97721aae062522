package creds

import (
	"context"
	"errors"
	"testing"

	"voicebridge/internal/carrier"
	"voicebridge/internal/config"
)

func testResolver(withFallback bool) (*Resolver, *MemoryConnectionRepository) {
	repo := NewMemoryConnectionRepository()
	carrierCfg := config.CarrierConfig{}
	aiCfg := config.AIConfig{}
	if withFallback {
		carrierCfg.AccountSID = "AC-env"
		carrierCfg.AuthToken = "tok-env"
		carrierCfg.DefaultFromNumber = "+15550001111"
		aiCfg.APIKey = "ai-env"
	}
	return NewResolver(repo, carrierCfg, aiCfg), repo
}

func TestResolvePrefersNamedConnection(t *testing.T) {
	r, repo := testResolver(true)
	repo.Put(Connection{
		ID:        "conn1",
		CompanyID: "co1",
		Active:    true,
		Carrier:   carrier.Credentials{AccountSID: "AC-conn", AuthToken: "tok-conn"},
		AIAPIKey:  "ai-conn",
	})

	got, err := r.Resolve(context.Background(), ResolveRequest{ConnectionID: "conn1", CompanyID: "co1", Scope: ScopeCompany})
	if err != nil {
		t.Fatalf("expected resolution, got %v", err)
	}
	if got.Carrier.AccountSID != "AC-conn" || got.Source != SourceConnection {
		t.Fatalf("expected connection credentials, got %+v", got)
	}
	if !got.AIPowered() {
		t.Fatalf("expected AI-powered credentials")
	}
}

func TestResolveOverrideWins(t *testing.T) {
	r, repo := testResolver(true)
	repo.Put(Connection{
		ID:        "conn1",
		CompanyID: "co1",
		Active:    true,
		Carrier:   carrier.Credentials{AccountSID: "AC-conn", AuthToken: "tok-conn"},
		AIAPIKey:  "ai-conn",
	})

	got, err := r.Resolve(context.Background(), ResolveRequest{
		CompanyID: "co1",
		Scope:     ScopeCompany,
		Override:  &Overrides{AIAPIKey: "ai-node", AIAgentID: "agent-node"},
	})
	if err != nil {
		t.Fatalf("expected resolution, got %v", err)
	}
	if got.AI.APIKey != "ai-node" || got.AI.AgentID != "agent-node" {
		t.Fatalf("expected node-level override, got %+v", got.AI)
	}
}

func TestResolveFallbackRequiresFullScope(t *testing.T) {
	r, _ := testResolver(true)

	if _, err := r.Resolve(context.Background(), ResolveRequest{CompanyID: "co-missing", Scope: ScopeCompany}); !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("company scope must not reach env fallback, got %v", err)
	}

	got, err := r.Resolve(context.Background(), ResolveRequest{CompanyID: "co-missing", Scope: ScopeFull})
	if err != nil {
		t.Fatalf("expected env fallback under full scope, got %v", err)
	}
	if got.Source != SourceFallback || got.Carrier.AccountSID != "AC-env" {
		t.Fatalf("expected fallback credentials, got %+v", got)
	}
}

func TestResolveMissingEverywhere(t *testing.T) {
	r, _ := testResolver(false)
	if _, err := r.Resolve(context.Background(), ResolveRequest{Scope: ScopeFull}); !errors.Is(err, ErrCredentialsMissing) {
		t.Fatalf("expected ErrCredentialsMissing, got %v", err)
	}
}

func TestRedact(t *testing.T) {
	if got := Redact("supersecrettoken"); got != "su…en" {
		t.Fatalf("unexpected redaction: %q", got)
	}
	if got := Redact("short"); got != "****" {
		t.Fatalf("short secrets must be fully masked, got %q", got)
	}
	if got := Redact(""); got != "" {
		t.Fatalf("empty secret renders empty, got %q", got)
	}
}
