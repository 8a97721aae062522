package costs

import (
	"context"
	"testing"
	"time"

	"voicebridge/internal/calls"
)

func ts(sec int64) time.Time { return time.Unix(1700000000+sec, 0).UTC() }

func tsp(sec int64) *time.Time {
	t := ts(sec)
	return &t
}

func TestConferenceCost(t *testing.T) {
	calc := NewCalculator(14, "USD")

	md := calls.Metadata{
		ConferenceStartedAt: tsp(0),
		ConferenceEndedAt:   tsp(150),
		Participants: []calls.Participant{
			{Label: "customer", JoinedAt: ts(0), LeftAt: tsp(150)}, // 2m30s -> 3 minutes
			{Label: "agent", JoinedAt: ts(30)},                     // never left -> billed to end, 2 minutes
		},
	}

	got := calc.ConferenceCost(md)
	if got.Currency != "USD" {
		t.Fatalf("unexpected currency %q", got.Currency)
	}
	if got.Breakdown.DurationSeconds != 150 || got.Breakdown.ParticipantCount != 2 {
		t.Fatalf("unexpected breakdown: %+v", got.Breakdown)
	}
	if got.Breakdown.Participants[0].BilledMinutes != 3 || got.Breakdown.Participants[1].BilledMinutes != 2 {
		t.Fatalf("unexpected billed minutes: %+v", got.Breakdown.Participants)
	}
	if want := int64(5 * 14); got.TotalMinor != want {
		t.Fatalf("expected total %d, got %d", want, got.TotalMinor)
	}
}

func TestConferenceCostWithoutWindow(t *testing.T) {
	calc := NewCalculator(14, "USD")
	got := calc.ConferenceCost(calls.Metadata{
		Participants: []calls.Participant{{Label: "customer", JoinedAt: ts(0)}},
	})
	if got.TotalMinor != 0 || len(got.Breakdown.Participants) != 0 {
		t.Fatalf("cost without a conference window must be zero, got %+v", got)
	}
}

func TestTrackCostIdempotent(t *testing.T) {
	repo := NewMemoryChargeRepository()
	tr := NewTracker(repo)
	tr.SetClock(func() time.Time { return ts(0) })
	ctx := context.Background()

	first, err := tr.TrackCost(ctx, "rec1", "co1", 70, "USD")
	if err != nil || !first {
		t.Fatalf("first track must insert: %v %v", first, err)
	}
	second, err := tr.TrackCost(ctx, "rec1", "co1", 70, "USD")
	if err != nil {
		t.Fatalf("re-track must not error: %v", err)
	}
	if second {
		t.Fatalf("re-track must not double-charge")
	}

	ch, ok, err := repo.GetByCallRecordID(ctx, "rec1")
	if err != nil || !ok {
		t.Fatalf("expected stored charge: %v %v", ok, err)
	}
	if ch.AmountMinor != 70 || ch.Currency != "USD" || ch.CompanyID != "co1" {
		t.Fatalf("unexpected charge: %+v", ch)
	}
}

func TestTrackCostValidation(t *testing.T) {
	tr := NewTracker(NewMemoryChargeRepository())
	if _, err := tr.TrackCost(context.Background(), "", "co1", 70, "USD"); err == nil {
		t.Fatalf("empty record id must be rejected")
	}
	if _, err := tr.TrackCost(context.Background(), "rec1", "co1", -1, "USD"); err == nil {
		t.Fatalf("negative amount must be rejected")
	}
}
