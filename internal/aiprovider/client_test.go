package aiprovider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"voicebridge/internal/config"
)

func testClient(baseURL string) *Client {
	return NewClient(config.AIConfig{
		BaseURL:               baseURL,
		SessionRequestTimeout: time.Second,
	})
}

func TestSignedSessionURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/agents/agent1/sessions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key1" {
			t.Errorf("unexpected auth header %q", got)
		}
		var body struct {
			CallSID string `json:"call_sid"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.CallSID != "CA1" {
			t.Errorf("unexpected body: %+v err=%v", body, err)
		}
		json.NewEncoder(w).Encode(map[string]string{"signed_url": "wss://ai.example/session/abc"})
	}))
	defer srv.Close()

	got, err := testClient(srv.URL).SignedSessionURL(context.Background(), SessionRequest{
		APIKey: "key1", AgentID: "agent1", CallSID: "CA1",
	})
	if err != nil {
		t.Fatalf("expected signed url, got %v", err)
	}
	if got != "wss://ai.example/session/abc" {
		t.Fatalf("unexpected url %q", got)
	}
}

func TestSignedSessionURLBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SignedSessionURL(context.Background(), SessionRequest{
		APIKey: "key1", AgentID: "agent1", CallSID: "CA1",
	})
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable, got %v", err)
	}
}

func TestSignedSessionURLMissingConfig(t *testing.T) {
	_, err := testClient("").SignedSessionURL(context.Background(), SessionRequest{AgentID: "agent1"})
	if !errors.Is(err, ErrSessionUnavailable) {
		t.Fatalf("expected ErrSessionUnavailable, got %v", err)
	}
}
