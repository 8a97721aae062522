package registry

import (
	"testing"
	"time"

	"voicebridge/internal/creds"
	"voicebridge/internal/quality"
)

func TestSetGetRemove(t *testing.T) {
	r := New()
	now := time.Unix(1700000000, 0)
	r.SetClock(func() time.Time { return now })

	s := NewSession("CA1", creds.Credentials{}, now)
	r.Set("CA1", s)

	got, ok := r.Get("CA1")
	if !ok || got.CallSID != "CA1" {
		t.Fatalf("expected session CA1, got %v %v", got, ok)
	}
	if r.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", r.Len())
	}

	removed, ok := r.Remove("CA1")
	if !ok || removed != s {
		t.Fatalf("expected removed session")
	}
	if _, ok := r.Get("CA1"); ok {
		t.Fatalf("session must be gone after remove")
	}
	if _, ok := r.Remove("CA1"); ok {
		t.Fatalf("double remove must report not found")
	}
}

func TestSweepStale(t *testing.T) {
	r := New()
	now := time.Unix(1700000000, 0)
	r.SetClock(func() time.Time { return now })

	old := NewSession("CA-old", creds.Credentials{}, now)
	r.Set("CA-old", old)
	fresh := NewSession("CA-fresh", creds.Credentials{}, now)
	r.Set("CA-fresh", fresh)

	now = now.Add(3 * time.Hour)
	r.Touch("CA-fresh")

	removed := r.SweepStale(2 * time.Hour)
	if len(removed) != 1 || removed[0].CallSID != "CA-old" {
		t.Fatalf("expected only CA-old swept, got %+v", removed)
	}
	if _, ok := r.Get("CA-fresh"); !ok {
		t.Fatalf("touched session must survive the sweep")
	}

	if got := r.SweepStale(2 * time.Hour); len(got) != 0 {
		t.Fatalf("second sweep must remove nothing, got %+v", got)
	}
}

func TestForceCleanupAll(t *testing.T) {
	r := New()
	now := time.Unix(1700000000, 0)
	r.SetClock(func() time.Time { return now })

	s := NewSession("CA1", creds.Credentials{}, now)
	s.Flow.CompanyID = "co1"
	r.Set("CA1", s)
	r.Set("CA2", NewSession("CA2", creds.Credentials{}, now))

	removed := r.ForceCleanupAll()
	if len(removed) != 2 {
		t.Fatalf("expected 2 evictions, got %d", len(removed))
	}
	if r.Len() != 0 {
		t.Fatalf("registry must be empty after force cleanup")
	}

	carrierSide, aiSide := s.Media()
	if carrierSide.State != ConnClosed || aiSide.State != ConnClosed {
		t.Fatalf("media legs must be closed on eviction")
	}
}

func TestSessionTranscript(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewSession("CA1", creds.Credentials{}, now)
	if got := s.TranscriptText(); got != "" {
		t.Fatalf("empty transcript renders empty, got %q", got)
	}

	s.AppendTurn("user", "hello", now)
	s.AppendTurn("assistant", "hi there", now.Add(time.Second))

	want := "user: hello\nassistant: hi there"
	if got := s.TranscriptText(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if turns := s.Transcript(); len(turns) != 2 || turns[1].Role != "assistant" {
		t.Fatalf("unexpected turns: %+v", turns)
	}
}

func TestSessionStreamAndMetrics(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewSession("CA1", creds.Credentials{}, now)

	s.UpdateStream(func(sm *StreamMetadata) {
		sm.StreamSID = "MZ1"
		sm.Status = "started"
	})
	if st := s.Stream(); st.StreamSID != "MZ1" || st.Status != "started" {
		t.Fatalf("unexpected stream metadata: %+v", st)
	}

	if _, _, ok := s.Metrics(); ok {
		t.Fatalf("metrics must be absent initially")
	}
	s.SetMetrics(quality.Sample{RTTMs: 80}, quality.LevelExcellent)
	sample, level, ok := s.Metrics()
	if !ok || sample.RTTMs != 80 || level != quality.LevelExcellent {
		t.Fatalf("unexpected metrics: %v %v %v", sample, level, ok)
	}
}
