package utils

import (
	"context"
	"testing"
	"time"
)

func TestClaimDeliveryValidatesArgs(t *testing.T) {
	if _, err := ClaimDelivery(context.Background(), nil, "k", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestAcquireConcurrencyCapValidatesArgs(t *testing.T) {
	if _, err := AcquireConcurrencyCap(context.Background(), nil, "k", 1, time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}
