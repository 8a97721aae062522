package flows

import (
	"context"
	"errors"
)

var ErrNodeNotFound = errors.New("flow node not found")

// Node is a voice entry point inside an automation flow. Node-level AI
// settings override connection-level settings when deciding how to answer.
type Node struct {
	ID        string `json:"id"`
	FlowID    string `json:"flow_id"`
	CompanyID string `json:"company_id"`
	Label     string `json:"label,omitempty"`

	AIAPIKey  string `json:"-"`
	AIAgentID string `json:"ai_agent_id,omitempty"`

	// Greeting is spoken before bridging when the node answers in direct mode.
	Greeting string `json:"greeting,omitempty"`

	// DialNumber is the bridge target for direct-mode answers.
	DialNumber string `json:"dial_number,omitempty"`
}

// Repository resolves the flow node an inbound call webhook addresses.
type Repository interface {
	GetNode(ctx context.Context, flowID, nodeID string) (Node, error)
}
