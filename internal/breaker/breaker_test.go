package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestOpensAtThreshold(t *testing.T) {
	b := New(3, time.Second)
	for i := 0; i < 2; i++ {
		b.RecordFailure("api_error")
	}
	if b.State().IsOpen {
		t.Fatalf("breaker must stay closed below threshold")
	}
	b.RecordFailure("api_error")

	s := b.State()
	if !s.IsOpen {
		t.Fatalf("breaker must open at threshold")
	}
	if s.FailureCountByType["api_error"] != 3 {
		t.Fatalf("expected 3 api_error failures, got %d", s.FailureCountByType["api_error"])
	}
	if s.NextAttemptTime == nil {
		t.Fatalf("expected next attempt time while open")
	}
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestHalfOpenAfterCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := New(1, time.Second)
	b.SetClock(func() time.Time { return now })

	b.RecordFailure("timeout")
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open, got %v", err)
	}

	now = now.Add(2 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("expected half-open trial, got %v", err)
	}
	// Single-shot: the second concurrent attempt is rejected.
	if err := b.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected single-shot trial, got %v", err)
	}
}

func TestManualRecovery(t *testing.T) {
	b := New(1, time.Second)

	if res := b.AttemptRecovery(); res.Success {
		t.Fatalf("recovery on a closed breaker must report failure")
	}

	b.RecordFailure("api_error")
	res := b.AttemptRecovery()
	if !res.Success {
		t.Fatalf("expected recovery to succeed: %+v", res)
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial call allowed, got %v", err)
	}

	b.RecordSuccess()
	if b.State().IsOpen {
		t.Fatalf("success after recovery must keep breaker closed")
	}
}

func TestFailureAfterRecoveryReopens(t *testing.T) {
	now := time.Unix(1700000000, 0)
	b := New(1, time.Second)
	b.SetClock(func() time.Time { return now })

	b.RecordFailure("api_error")
	b.AttemptRecovery()
	if err := b.Allow(); err != nil {
		t.Fatalf("expected trial allowed, got %v", err)
	}

	b.RecordFailure("api_error")
	s := b.State()
	if !s.IsOpen {
		t.Fatalf("failure during trial must reopen immediately")
	}
	// Second trip: backoff doubles.
	if got := s.NextAttemptTime.Sub(now); got != 2*time.Second {
		t.Fatalf("expected doubled backoff, got %v", got)
	}
}
