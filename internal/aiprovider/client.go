package aiprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"voicebridge/internal/config"
)

// ErrSessionUnavailable means the AI backend could not hand out a streaming
// session. Callers degrade to direct mode instead of failing the call.
var ErrSessionUnavailable = errors.New("ai session unavailable")

// SessionRequest asks for a signed streaming session URL for one call.
type SessionRequest struct {
	APIKey  string
	AgentID string
	CallSID string
}

// Provider is the part of the AI backend the orchestrator depends on.
type Provider interface {
	SignedSessionURL(ctx context.Context, req SessionRequest) (string, error)
}

// Client talks to the AI conversational backend over HTTP and dials its media
// websocket.
type Client struct {
	baseURL string
	timeout time.Duration
	httpc   *http.Client
	dialer  *websocket.Dialer
}

func NewClient(cfg config.AIConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		timeout: cfg.SessionRequestTimeout,
		httpc:   &http.Client{Timeout: cfg.SessionRequestTimeout},
		dialer:  websocket.DefaultDialer,
	}
}

// SignedSessionURL registers a streaming session with the agent and returns
// the signed websocket URL the carrier media is relayed to. Any failure maps
// to ErrSessionUnavailable so the caller can fall back cleanly.
func (c *Client) SignedSessionURL(ctx context.Context, req SessionRequest) (string, error) {
	if c.baseURL == "" || req.APIKey == "" || req.AgentID == "" {
		return "", ErrSessionUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"call_sid": req.CallSID})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}

	url := fmt.Sprintf("%s/v1/agents/%s/sessions", c.baseURL, req.AgentID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("%w: backend returned %d", ErrSessionUnavailable, resp.StatusCode)
	}

	var out struct {
		SignedURL string `json:"signed_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSessionUnavailable, err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("%w: empty signed url", ErrSessionUnavailable)
	}
	return out.SignedURL, nil
}

// DialMedia opens the AI-side media websocket for a live call.
func (c *Client) DialMedia(ctx context.Context, signedURL string) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, signedURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial ai media: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial ai media: %w", err)
	}
	return conn, nil
}
