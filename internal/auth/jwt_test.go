package auth

import (
	"testing"
	"time"

	"voicebridge/internal/config"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:      "test-secret",
		JWTIssuer:      "voicebridge",
		JWTAudience:    "ops",
		AccessTokenTTL: 15 * time.Minute,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0)

	tok, err := m.Issue(now, "u1", "co1", "operator", ScopeCompany)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := m.Verify(tok, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "u1" || claims.CompanyID != "co1" || claims.Role != "operator" || claims.Scope != ScopeCompany {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestVerifyExpired(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0)

	tok, err := m.Issue(now, "u1", "co1", "operator", ScopeCompany)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now.Add(16*time.Minute)); err == nil {
		t.Fatalf("expected expiry rejection")
	}
}

func TestVerifyWrongSecret(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0)

	other, err := NewManager(config.AuthConfig{JWTSecret: "other", AccessTokenTTL: time.Minute})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	tok, err := other.Issue(now, "u1", "co1", "operator", ScopeCompany)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected signature rejection")
	}
}

func TestVerifyScopeRules(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0)

	// Company scope without a company id is invalid.
	tok, err := m.Issue(now, "u1", "", "operator", ScopeCompany)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); err == nil {
		t.Fatalf("expected company_id requirement")
	}

	// Full scope does not require a company id.
	tok, err = m.Issue(now, "u1", "", "super_admin", ScopeFull)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(tok, now); err != nil {
		t.Fatalf("full scope verify: %v", err)
	}
}
