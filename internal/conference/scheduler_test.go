package conference

import (
	"context"
	"sync"
	"testing"
	"time"

	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/config"
	"voicebridge/internal/costs"
	"voicebridge/internal/creds"
	"voicebridge/internal/events"
	"voicebridge/internal/registry"
)

type fakeCarrier struct {
	mu         sync.Mutex
	terminated []string
	failFor    map[string]error
}

func (f *fakeCarrier) CreateCall(ctx context.Context, c carrier.Credentials, req carrier.CreateCallRequest) (carrier.CallRef, error) {
	return carrier.CallRef{}, nil
}

func (f *fakeCarrier) EndCall(ctx context.Context, c carrier.Credentials, callSID string) error {
	return nil
}

func (f *fakeCarrier) TerminateConference(ctx context.Context, c carrier.Credentials, conferenceSID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[conferenceSID]; ok {
		return err
	}
	f.terminated = append(f.terminated, conferenceSID)
	return nil
}

func (f *fakeCarrier) ListActiveConferences(ctx context.Context, c carrier.Credentials) ([]carrier.ConferenceInfo, error) {
	return nil, nil
}

func (f *fakeCarrier) terminations() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.terminated))
	copy(out, f.terminated)
	return out
}

type env struct {
	s       *Scheduler
	repo    *calls.MemoryRepository
	timers  *registry.TimerStore
	sink    *events.MemorySink
	charges *costs.MemoryChargeRepository
	fc      *fakeCarrier
	now     time.Time
	setNow  func(time.Time)
}

func newEnv(t *testing.T, agentJoinTimeout, maxDuration time.Duration) *env {
	t.Helper()
	now := time.Unix(1700000000, 0).UTC()
	current := &now
	clock := func() time.Time { return *current }

	e := &env{
		repo:    calls.NewMemoryRepository(),
		timers:  registry.NewTimerStore(),
		sink:    events.NewMemorySink(),
		charges: costs.NewMemoryChargeRepository(),
		fc:      &fakeCarrier{},
		now:     now,
		setNow:  func(ts time.Time) { *current = ts },
	}
	e.repo.SetClock(clock)

	tracker := costs.NewTracker(e.charges)
	tracker.SetClock(clock)

	e.s = New(Deps{
		Repo:     e.repo,
		Timers:   e.timers,
		Carrier:  e.fc,
		Resolver: creds.NewResolver(nil, config.CarrierConfig{AccountSID: "AC-env", AuthToken: "tok-env"}, config.AIConfig{}),
		Calc:     costs.NewCalculator(14, "USD"),
		Tracker:  tracker,
		Sink:     e.sink,
		Calls: config.CallsConfig{
			MaxConferenceDuration: maxDuration,
			AgentJoinTimeout:      agentJoinTimeout,
			ConferenceSweep:       time.Minute,
		},
	})
	e.s.SetClock(clock)
	return e
}

func (e *env) record(t *testing.T, callSID string, md calls.Metadata) calls.Record {
	t.Helper()
	rec, err := e.repo.Create(context.Background(), calls.Record{
		CallSID:   callSID,
		CompanyID: "co1",
		Status:    calls.StatusInProgress,
		Direction: calls.DirectionOutbound,
		From:      "+15550009999",
		To:        "+15553334444",
		Metadata:  md,
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	return rec
}

func TestConferenceStartSchedulesOneTimer(t *testing.T) {
	e := newEnv(t, time.Second, time.Hour)
	rec := e.record(t, "CA1", calls.Metadata{})

	start := carrier.ConferenceEventForm{
		Event: carrier.ConferenceEventStart, ConferenceSID: "CF1",
		FriendlyName: "call-" + rec.ID, CallSID: "CA1",
	}
	if err := e.s.HandleEvent(context.Background(), start); err != nil {
		t.Fatalf("start: %v", err)
	}
	// Duplicate delivery replaces, not duplicates, the timer.
	if err := e.s.HandleEvent(context.Background(), start); err != nil {
		t.Fatalf("duplicate start: %v", err)
	}
	if e.timers.Len() != 1 {
		t.Fatalf("expected exactly one live timer, got %d", e.timers.Len())
	}

	got, _ := e.repo.GetByID(context.Background(), rec.ID)
	if got.Metadata.ConferenceSID != "CF1" || got.Metadata.ConferenceStartedAt == nil || !got.Metadata.CleanupScheduled {
		t.Fatalf("unexpected metadata: %+v", got.Metadata)
	}
}

func TestConferenceEndComputesCostAndCompletes(t *testing.T) {
	e := newEnv(t, time.Hour, time.Hour)
	rec := e.record(t, "CA1", calls.Metadata{})
	ctx := context.Background()

	sidForm := func(event, participantSID, label string) carrier.ConferenceEventForm {
		return carrier.ConferenceEventForm{
			Event: event, ConferenceSID: "CF1",
			FriendlyName: "call-" + rec.ID, CallSID: participantSID, ParticipantLabel: label,
		}
	}

	if err := e.s.HandleEvent(ctx, sidForm(carrier.ConferenceEventStart, "CA1", "")); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.s.HandleEvent(ctx, sidForm(carrier.ParticipantEventJoin, "CA1", LabelCustomer)); err != nil {
		t.Fatalf("customer join: %v", err)
	}
	if err := e.s.HandleEvent(ctx, sidForm(carrier.ParticipantEventJoin, "CA-agent", LabelAgent)); err != nil {
		t.Fatalf("agent join: %v", err)
	}

	e.setNow(e.now.Add(150 * time.Second))
	if err := e.s.HandleEvent(ctx, sidForm(carrier.ConferenceEventEnd, "CA1", "")); err != nil {
		t.Fatalf("end: %v", err)
	}

	got, _ := e.repo.GetByID(ctx, rec.ID)
	if got.Metadata.ConferenceEndedAt == nil || got.Metadata.CleanupScheduled {
		t.Fatalf("end not recorded: %+v", got.Metadata)
	}
	if got.Status != calls.StatusCompleted || got.DurationSeconds != 150 {
		t.Fatalf("expected completed with duration 150, got %+v", got)
	}
	if got.Metadata.MaxConcurrentParticipants != 2 {
		t.Fatalf("expected max 2 concurrent participants, got %d", got.Metadata.MaxConcurrentParticipants)
	}

	// Two legs, 150s each, billed at 3 minutes per leg.
	ch, ok, err := e.charges.GetByCallRecordID(ctx, rec.ID)
	if err != nil || !ok {
		t.Fatalf("expected tracked charge: %v %v", ok, err)
	}
	if ch.AmountMinor != 6*14 || ch.Currency != "USD" {
		t.Fatalf("unexpected charge: %+v", ch)
	}
	if got.Metadata.CostMinor != 6*14 {
		t.Fatalf("cost not recorded on metadata: %+v", got.Metadata)
	}
	if e.timers.Len() != 0 {
		t.Fatalf("end must clear all timers, got %d", e.timers.Len())
	}

	// Redelivered end event must not double-charge.
	if err := e.s.HandleEvent(ctx, sidForm(carrier.ConferenceEventEnd, "CA1", "")); err != nil {
		t.Fatalf("duplicate end: %v", err)
	}
	ch2, _, _ := e.charges.GetByCallRecordID(ctx, rec.ID)
	if ch2.AmountMinor != ch.AmountMinor {
		t.Fatalf("duplicate end changed the charge: %+v", ch2)
	}
}

func TestAgentJoinTimeoutAlert(t *testing.T) {
	e := newEnv(t, 30*time.Millisecond, time.Hour)
	rec := e.record(t, "CA1", calls.Metadata{})
	ctx := context.Background()

	join := carrier.ConferenceEventForm{
		Event: carrier.ParticipantEventJoin, ConferenceSID: "CF1",
		FriendlyName: "call-" + rec.ID, CallSID: "CA1", ParticipantLabel: LabelCustomer,
	}
	if err := e.s.HandleEvent(ctx, join); err != nil {
		t.Fatalf("join: %v", err)
	}
	// Duplicate join delivery must not arm a second timer.
	if err := e.s.HandleEvent(ctx, join); err != nil {
		t.Fatalf("duplicate join: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	alerts := e.sink.ByType(events.TypeAgentJoinTimeout)
	if len(alerts) != 1 {
		t.Fatalf("expected exactly one agent join timeout alert, got %d", len(alerts))
	}
	if alerts[0].CallRecordID != rec.ID {
		t.Fatalf("unexpected alert: %+v", alerts[0])
	}
}

func TestAgentJoinWithinWindow(t *testing.T) {
	e := newEnv(t, 50*time.Millisecond, time.Hour)
	rec := e.record(t, "CA1", calls.Metadata{})
	ctx := context.Background()

	form := func(sid, label string) carrier.ConferenceEventForm {
		return carrier.ConferenceEventForm{
			Event: carrier.ParticipantEventJoin, ConferenceSID: "CF1",
			FriendlyName: "call-" + rec.ID, CallSID: sid, ParticipantLabel: label,
		}
	}
	if err := e.s.HandleEvent(ctx, form("CA1", LabelCustomer)); err != nil {
		t.Fatalf("customer join: %v", err)
	}
	if err := e.s.HandleEvent(ctx, form("CA-agent", LabelAgent)); err != nil {
		t.Fatalf("agent join: %v", err)
	}

	time.Sleep(150 * time.Millisecond)

	if alerts := e.sink.ByType(events.TypeAgentJoinTimeout); len(alerts) != 0 {
		t.Fatalf("agent joined in time, expected no alerts, got %d", len(alerts))
	}
}

func TestEndBeforeExpiryPreventsTermination(t *testing.T) {
	e := newEnv(t, time.Hour, 30*time.Millisecond)
	rec := e.record(t, "CA1", calls.Metadata{})
	ctx := context.Background()

	form := func(event string) carrier.ConferenceEventForm {
		return carrier.ConferenceEventForm{
			Event: event, ConferenceSID: "CF1", FriendlyName: "call-" + rec.ID, CallSID: "CA1",
		}
	}
	if err := e.s.HandleEvent(ctx, form(carrier.ConferenceEventStart)); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := e.s.HandleEvent(ctx, form(carrier.ConferenceEventEnd)); err != nil {
		t.Fatalf("end: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if got := e.fc.terminations(); len(got) != 0 {
		t.Fatalf("cancelled timer must not terminate, got %v", got)
	}
}

func TestSweepOnce(t *testing.T) {
	e := newEnv(t, time.Hour, 4*time.Hour)
	ctx := context.Background()

	orphanStart := e.now.Add(-5 * time.Hour)
	freshStart := e.now.Add(-1 * time.Hour)

	e.record(t, "CA-orphan", calls.Metadata{ConferenceSID: "CF-orphan", ConferenceStartedAt: &orphanStart})
	e.record(t, "CA-fresh", calls.Metadata{ConferenceSID: "CF-fresh", ConferenceStartedAt: &freshStart})
	e.record(t, "CA-bad", calls.Metadata{ConferenceSID: "CF-bad", ConferenceStartedAt: &orphanStart})
	e.fc.failFor = map[string]error{"CF-bad": context.DeadlineExceeded}

	stats := e.s.SweepOnce(ctx)
	if stats.Cleaned != 1 || stats.StillActive != 1 || stats.Errors != 1 {
		t.Fatalf("unexpected sweep stats: %+v", stats)
	}
	if got := e.fc.terminations(); len(got) != 1 || got[0] != "CF-orphan" {
		t.Fatalf("expected CF-orphan terminated, got %v", got)
	}
}

func TestEventForUnknownRecordIsNoop(t *testing.T) {
	e := newEnv(t, time.Hour, time.Hour)
	err := e.s.HandleEvent(context.Background(), carrier.ConferenceEventForm{
		Event: carrier.ConferenceEventStart, ConferenceSID: "CF-x", FriendlyName: "call-missing",
	})
	if err != nil {
		t.Fatalf("unknown record must be a no-op, got %v", err)
	}
	if e.timers.Len() != 0 {
		t.Fatalf("no timer may be scheduled for unknown records")
	}
}
