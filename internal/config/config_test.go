package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	c := Config{}
	c.App.Env = "local"
	c.App.Port = 8080
	c.App.PublicBaseURL = "https://voice.example.com"
	c.DB.Host = "localhost"
	c.DB.Port = 5432
	c.DB.User = "voicebridge"
	c.DB.Name = "voicebridge"
	c.Redis.Host = "localhost"
	c.Redis.Port = 6379
	c.Auth.JWTSecret = "secret"
	return c
}

func TestValidateAppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected local sslmode default, got %q", c.DB.SSLMode)
	}
	if c.Calls.MaxConferenceDuration != 4*time.Hour {
		t.Fatalf("expected 4h conference cap, got %v", c.Calls.MaxConferenceDuration)
	}
	if c.Calls.AgentJoinTimeout != 10*time.Second {
		t.Fatalf("expected 10s agent join timeout, got %v", c.Calls.AgentJoinTimeout)
	}
	if c.Calls.BreakerFailureThreshold != 5 {
		t.Fatalf("expected breaker threshold 5, got %d", c.Calls.BreakerFailureThreshold)
	}
	if c.Calls.CostCurrency != "USD" {
		t.Fatalf("expected USD default, got %q", c.Calls.CostCurrency)
	}
}

func TestValidateRejectsUnsignedWebhooksInProduction(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "voicebridge"
	c.Auth.JWTAudience = "voicebridge-admin"
	c.Carrier.AllowUnsignedWebhooks = true

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "CARRIER_ALLOW_UNSIGNED_WEBHOOKS") {
		t.Fatalf("expected unsigned-webhook error, got %v", err)
	}
}

func TestValidateRejectsPartialCarrierFallback(t *testing.T) {
	c := validConfig()
	c.Carrier.AccountSID = "AC123"

	err := c.Validate()
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "CARRIER_ACCOUNT_SID") {
		t.Fatalf("expected carrier pairing error, got %v", err)
	}
}
