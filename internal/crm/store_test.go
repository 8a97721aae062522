package crm

import (
	"context"
	"testing"
)

func TestFindOrCreateContactConverges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	first, err := s.FindOrCreateContact(ctx, "co1", "+15550001111")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.FindOrCreateContact(ctx, "co1", "+15550001111")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same caller must map to one contact: %q vs %q", first.ID, second.ID)
	}

	other, err := s.FindOrCreateContact(ctx, "co2", "+15550001111")
	if err != nil {
		t.Fatalf("other company: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("contacts must be company-scoped")
	}
	if s.ContactCount() != 2 {
		t.Fatalf("expected 2 contacts, got %d", s.ContactCount())
	}
}

func TestConversationAndMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	contact, err := s.FindOrCreateContact(ctx, "co1", "+15550001111")
	if err != nil {
		t.Fatalf("contact: %v", err)
	}
	conv, err := s.CreateConversation(ctx, "co1", contact.ID, "chan1")
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	if conv.ContactID != contact.ID || conv.ChannelID != "chan1" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}

	if _, err := s.AppendMessage(ctx, conv.ID, MessageInbound, "user: hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	msgs := s.Messages(conv.ID)
	if len(msgs) != 1 || msgs[0].Body != "user: hello" {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestStoreValidation(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if _, err := s.FindOrCreateContact(ctx, "", "+1555"); err == nil {
		t.Fatalf("missing company must be rejected")
	}
	if _, err := s.CreateConversation(ctx, "co1", "", ""); err == nil {
		t.Fatalf("missing contact must be rejected")
	}
	if _, err := s.AppendMessage(ctx, "", MessageInbound, "x"); err == nil {
		t.Fatalf("missing conversation must be rejected")
	}
}
