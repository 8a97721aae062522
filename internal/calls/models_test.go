package calls

import "testing"

func TestNormalizeStatus(t *testing.T) {
	if got := NormalizeStatus("No_Answer"); got != StatusNoAnswer {
		t.Fatalf("expected no-answer, got %q", got)
	}
	if got := NormalizeStatus("  In Progress "); got != StatusInProgress {
		t.Fatalf("expected in-progress, got %q", got)
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []string{StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled} {
		if !IsTerminal(s) {
			t.Fatalf("expected %q terminal", s)
		}
	}
	for _, s := range []string{StatusQueued, StatusInitiated, StatusRinging, StatusInProgress, "something-new"} {
		if IsTerminal(s) {
			t.Fatalf("expected %q non-terminal", s)
		}
	}
}

func TestIsFailure(t *testing.T) {
	if IsFailure(StatusCompleted) {
		t.Fatalf("completed is not a failure")
	}
	for _, s := range []string{StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled} {
		if !IsFailure(s) {
			t.Fatalf("expected %q failure class", s)
		}
	}
}

func TestKnownStatus(t *testing.T) {
	if !KnownStatus("RINGING") {
		t.Fatalf("ringing should be known")
	}
	if KnownStatus("transferring") {
		t.Fatalf("unknown status should not be known")
	}
}
