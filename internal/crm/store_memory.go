package crm

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests.
type MemoryStore struct {
	mu            sync.Mutex
	clock         func() time.Time
	contacts      map[string]Contact // keyed by companyID+"\x00"+phone
	conversations map[string]Conversation
	messages      map[string][]Message // keyed by conversation id
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clock:         time.Now,
		contacts:      make(map[string]Contact),
		conversations: make(map[string]Conversation),
		messages:      make(map[string][]Message),
	}
}

func (s *MemoryStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func contactKey(companyID, phone string) string {
	return companyID + "\x00" + phone
}

func (s *MemoryStore) FindOrCreateContact(ctx context.Context, companyID, phoneNumber string) (Contact, error) {
	if companyID == "" || phoneNumber == "" {
		return Contact{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := contactKey(companyID, phoneNumber)
	if c, ok := s.contacts[key]; ok {
		return c, nil
	}
	c := Contact{
		ID:          uuid.NewString(),
		CompanyID:   companyID,
		PhoneNumber: phoneNumber,
		CreatedAt:   s.clock().UTC(),
	}
	s.contacts[key] = c
	return c, nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, companyID, contactID, channelID string) (Conversation, error) {
	if companyID == "" || contactID == "" {
		return Conversation{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	conv := Conversation{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		ContactID: contactID,
		ChannelID: channelID,
		CreatedAt: s.clock().UTC(),
	}
	s.conversations[conv.ID] = conv
	return conv, nil
}

func (s *MemoryStore) AppendMessage(ctx context.Context, conversationID, direction, body string) (Message, error) {
	if conversationID == "" || direction == "" {
		return Message{}, ErrInvalidArgument
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m := Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Direction:      direction,
		Body:           body,
		CreatedAt:      s.clock().UTC(),
	}
	s.messages[conversationID] = append(s.messages[conversationID], m)
	return m, nil
}

// Messages returns the messages appended to a conversation, for assertions.
func (s *MemoryStore) Messages(conversationID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages[conversationID]))
	copy(out, s.messages[conversationID])
	return out
}

// ContactCount reports how many distinct contacts exist, for assertions.
func (s *MemoryStore) ContactCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.contacts)
}
