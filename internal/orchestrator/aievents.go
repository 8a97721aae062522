package orchestrator

import (
	"context"
	"encoding/json"
)

// AIEventRequest carries one raw AI-backend callback. The body stays raw
// because the signature covers its exact bytes.
type AIEventRequest struct {
	Body      []byte
	Signature string
}

type aiEvent struct {
	CallSID string `json:"call_sid"`
	Event   string `json:"event"`
	Role    string `json:"role,omitempty"`
	Text    string `json:"text,omitempty"`
}

// ProcessAIEvent handles a callback from the AI conversational backend.
//
// Each event is authenticated with a raw-body HMAC against the session's AI
// API key; the key is per-session state, so events for unknown calls cannot
// be authenticated and are dropped without retry pressure.
func (o *Orchestrator) ProcessAIEvent(ctx context.Context, req AIEventRequest) error {
	var ev aiEvent
	if err := json.Unmarshal(req.Body, &ev); err != nil {
		return ErrValidation
	}
	if ev.CallSID == "" || ev.Event == "" {
		return ErrValidation
	}

	session, ok := o.reg.Get(ev.CallSID)
	if !ok {
		o.log.Warn("ai event for unknown call session, ignoring", "call_sid", ev.CallSID, "event", ev.Event)
		return nil
	}

	if err := o.verifier.VerifyBody(req.Body, req.Signature, session.Config.AI.APIKey); err != nil {
		o.log.Warn("ai event signature rejected", "call_sid", ev.CallSID, "event", ev.Event)
		return err
	}

	switch ev.Event {
	case "turn":
		role := ev.Role
		if role == "" {
			role = "assistant"
		}
		session.AppendTurn(role, ev.Text, o.clock().UTC())
	default:
		// Unknown event types only refresh activity; the backend versions its
		// event set independently of us.
		o.log.Debug("unhandled ai event", "call_sid", ev.CallSID, "event", ev.Event)
	}
	o.reg.Touch(ev.CallSID)
	return nil
}
