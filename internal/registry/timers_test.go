package registry

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestScheduleReplacesPrior(t *testing.T) {
	ts := NewTimerStore()
	var fired atomic.Int32

	ts.Schedule("rec1", 20*time.Millisecond, func() { fired.Add(1) })
	ts.Schedule("rec1", 20*time.Millisecond, func() { fired.Add(1) })
	if ts.Len() != 1 {
		t.Fatalf("expected one live timer per key, got %d", ts.Len())
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 1 {
		t.Fatalf("expected exactly one fire, got %d", got)
	}
	if ts.Len() != 0 {
		t.Fatalf("fired timer must clear itself, got %d", ts.Len())
	}
}

func TestCancelBeforeExpiry(t *testing.T) {
	ts := NewTimerStore()
	var fired atomic.Int32

	ts.Schedule("rec1", 20*time.Millisecond, func() { fired.Add(1) })
	if !ts.Cancel("rec1") {
		t.Fatalf("expected cancel to find the timer")
	}
	if ts.Cancel("rec1") {
		t.Fatalf("second cancel must report not found")
	}

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("cancelled timer must not fire, got %d", got)
	}
}

func TestCancelAll(t *testing.T) {
	ts := NewTimerStore()
	var fired atomic.Int32

	ts.Schedule("rec1", 20*time.Millisecond, func() { fired.Add(1) })
	ts.Schedule("rec2", 20*time.Millisecond, func() { fired.Add(1) })

	if n := ts.CancelAll(); n != 2 {
		t.Fatalf("expected 2 cleared, got %d", n)
	}
	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got != 0 {
		t.Fatalf("no timer may fire after CancelAll, got %d", got)
	}
}
