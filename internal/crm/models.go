package crm

import (
	"context"
	"errors"
	"time"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Contact is a calling party known to the CRM.
type Contact struct {
	ID          string    `json:"id"`
	CompanyID   string    `json:"company_id"`
	PhoneNumber string    `json:"phone_number"`
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Conversation groups the messages exchanged during one call.
type Conversation struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	ContactID string    `json:"contact_id"`
	ChannelID string    `json:"channel_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Message is one entry in a conversation, e.g. the synthesized transcript
// appended after a completed AI call.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Body           string    `json:"body"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	MessageInbound  = "inbound"
	MessageOutbound = "outbound"
)

// Store is the CRM collaborator surface the orchestrator uses. All writes are
// fire-and-forget bookkeeping from the caller's point of view.
type Store interface {
	FindOrCreateContact(ctx context.Context, companyID, phoneNumber string) (Contact, error)
	CreateConversation(ctx context.Context, companyID, contactID, channelID string) (Conversation, error)
	AppendMessage(ctx context.Context, conversationID, direction, body string) (Message, error)
}
