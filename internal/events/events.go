package events

import (
	"context"
	"time"
)

// Type enumerates the UI-facing event kinds this service emits.
type Type string

const (
	TypeStatusUpdate      Type = "call_status_update"
	TypeCallCompleted     Type = "call_completed"
	TypeCallFailed        Type = "call_failed"
	TypeCallError         Type = "call_error"
	TypeParticipantJoined Type = "participant_joined"
	TypeParticipantLeft   Type = "participant_left"
	TypeAgentJoinTimeout  Type = "agent_join_timeout"
)

// Event is one company-scoped notification.
type Event struct {
	Type           Type           `json:"type"`
	CompanyID      string         `json:"company_id"`
	CallSID        string         `json:"call_sid,omitempty"`
	CallRecordID   string         `json:"call_record_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Status         string         `json:"status,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	Payload        map[string]any `json:"payload,omitempty"`
	At             time.Time      `json:"at"`
}

// Sink delivers events to the UI-facing collaborator. Implementations must be
// safe for concurrent use.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}
