package crm

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// PGStore persists contacts, conversations and messages in Postgres.
//
// Expected tables:
//
//	contacts (
//	  id UUID PRIMARY KEY,
//	  company_id TEXT NOT NULL,
//	  phone_number TEXT NOT NULL,
//	  name TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL,
//	  UNIQUE (company_id, phone_number)
//	)
//	conversations (
//	  id UUID PRIMARY KEY,
//	  company_id TEXT NOT NULL,
//	  contact_id UUID NOT NULL REFERENCES contacts(id),
//	  channel_id TEXT NOT NULL DEFAULT '',
//	  created_at TIMESTAMPTZ NOT NULL
//	)
//	messages (
//	  id UUID PRIMARY KEY,
//	  conversation_id UUID NOT NULL REFERENCES conversations(id),
//	  direction TEXT NOT NULL,
//	  body TEXT NOT NULL,
//	  created_at TIMESTAMPTZ NOT NULL
//	)
type PGStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, clock: time.Now}
}

func (s *PGStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *PGStore) FindOrCreateContact(ctx context.Context, companyID, phoneNumber string) (Contact, error) {
	if companyID == "" || phoneNumber == "" {
		return Contact{}, ErrInvalidArgument
	}

	// Upsert-returning: the no-op DO UPDATE makes RETURNING yield the existing
	// row on conflict, so concurrent webhooks for the same caller converge on
	// one contact.
	const q = `
INSERT INTO contacts (id, company_id, phone_number, name, created_at)
VALUES ($1, $2, $3, '', $4)
ON CONFLICT (company_id, phone_number)
DO UPDATE SET phone_number = EXCLUDED.phone_number
RETURNING id, company_id, phone_number, name, created_at
`
	var c Contact
	err := s.db.QueryRowContext(ctx, q, uuid.NewString(), companyID, phoneNumber, s.clock().UTC()).
		Scan(&c.ID, &c.CompanyID, &c.PhoneNumber, &c.Name, &c.CreatedAt)
	if err != nil {
		return Contact{}, err
	}
	return c, nil
}

func (s *PGStore) CreateConversation(ctx context.Context, companyID, contactID, channelID string) (Conversation, error) {
	if companyID == "" || contactID == "" {
		return Conversation{}, ErrInvalidArgument
	}

	const q = `
INSERT INTO conversations (id, company_id, contact_id, channel_id, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, company_id, contact_id, channel_id, created_at
`
	var conv Conversation
	err := s.db.QueryRowContext(ctx, q, uuid.NewString(), companyID, contactID, channelID, s.clock().UTC()).
		Scan(&conv.ID, &conv.CompanyID, &conv.ContactID, &conv.ChannelID, &conv.CreatedAt)
	if err != nil {
		return Conversation{}, err
	}
	return conv, nil
}

func (s *PGStore) AppendMessage(ctx context.Context, conversationID, direction, body string) (Message, error) {
	if conversationID == "" || direction == "" {
		return Message{}, ErrInvalidArgument
	}

	const q = `
INSERT INTO messages (id, conversation_id, direction, body, created_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, conversation_id, direction, body, created_at
`
	var m Message
	err := s.db.QueryRowContext(ctx, q, uuid.NewString(), conversationID, direction, body, s.clock().UTC()).
		Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Body, &m.CreatedAt)
	if err != nil {
		return Message{}, err
	}
	return m, nil
}
