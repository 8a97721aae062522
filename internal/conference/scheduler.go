package conference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/config"
	"voicebridge/internal/costs"
	"voicebridge/internal/creds"
	"voicebridge/internal/events"
	"voicebridge/internal/registry"
)

// Participant labels the bridging markup assigns.
const (
	LabelCustomer = "customer"
	LabelAgent    = "agent"
)

var ErrValidation = errors.New("invalid conference event")

// Scheduler tracks conference lifecycles: it persists start/end metadata onto
// call records, enforces the max-duration cap with cancellable timers, raises
// agent-join-timeout alerts, and computes duration and cost at conference end.
type Scheduler struct {
	log      *slog.Logger
	repo     calls.Repository
	timers   *registry.TimerStore
	api      carrier.API
	resolver *creds.Resolver
	calc     *costs.Calculator
	tracker  *costs.Tracker
	sink     events.Sink

	maxDuration      time.Duration
	agentJoinTimeout time.Duration
	sweepInterval    time.Duration

	clock func() time.Time
}

type Deps struct {
	Log      *slog.Logger
	Repo     calls.Repository
	Timers   *registry.TimerStore
	Carrier  carrier.API
	Resolver *creds.Resolver
	Calc     *costs.Calculator
	Tracker  *costs.Tracker
	Sink     events.Sink
	Calls    config.CallsConfig
}

func New(d Deps) *Scheduler {
	s := &Scheduler{
		log:              d.Log,
		repo:             d.Repo,
		timers:           d.Timers,
		api:              d.Carrier,
		resolver:         d.Resolver,
		calc:             d.Calc,
		tracker:          d.Tracker,
		sink:             d.Sink,
		maxDuration:      d.Calls.MaxConferenceDuration,
		agentJoinTimeout: d.Calls.AgentJoinTimeout,
		sweepInterval:    d.Calls.ConferenceSweep,
		clock:            time.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// SetClock injects a deterministic clock for tests.
func (s *Scheduler) SetClock(clock func() time.Time) { s.clock = clock }

// HandleEvent processes one conference webhook. Failures in any single step
// are logged and must never take down the webhook path.
func (s *Scheduler) HandleEvent(ctx context.Context, form carrier.ConferenceEventForm) error {
	if form.Event == "" {
		return fmt.Errorf("%w: event is required", ErrValidation)
	}

	rec, found, err := s.linkedRecord(ctx, form)
	if err != nil {
		return err
	}
	if !found {
		s.log.Warn("conference event for unknown call record, ignoring",
			"event", form.Event, "conference_sid", form.ConferenceSID, "call_sid", form.CallSID)
		return nil
	}

	switch form.Event {
	case carrier.ConferenceEventStart:
		return s.handleStart(ctx, rec, form)
	case carrier.ConferenceEventEnd:
		return s.handleEnd(ctx, rec, form)
	case carrier.ParticipantEventJoin:
		return s.handleJoin(ctx, rec, form)
	case carrier.ParticipantEventLeave:
		return s.handleLeave(ctx, rec, form)
	default:
		s.log.Warn("unknown conference event", "event", form.Event, "conference_sid", form.ConferenceSID)
		return nil
	}
}

// linkedRecord resolves the call record a conference event belongs to: by the
// participant's call sid when present, otherwise by the "call-<record id>"
// naming of the bridging markup.
func (s *Scheduler) linkedRecord(ctx context.Context, form carrier.ConferenceEventForm) (calls.Record, bool, error) {
	if form.CallSID != "" {
		rec, err := s.repo.GetByCallSID(ctx, form.CallSID)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, calls.ErrNotFound) {
			return calls.Record{}, false, err
		}
	}
	if id, ok := strings.CutPrefix(form.FriendlyName, "call-"); ok && id != "" {
		rec, err := s.repo.GetByID(ctx, id)
		if err == nil {
			return rec, true, nil
		}
		if !errors.Is(err, calls.ErrNotFound) {
			return calls.Record{}, false, err
		}
	}
	return calls.Record{}, false, nil
}

func (s *Scheduler) handleStart(ctx context.Context, rec calls.Record, form carrier.ConferenceEventForm) error {
	now := s.clock().UTC()

	if _, _, err := s.repo.UpdateMetadata(ctx, rec.ID, func(md *calls.Metadata) {
		md.ConferenceSID = form.ConferenceSID
		if form.FriendlyName != "" {
			md.ConferenceName = form.FriendlyName
		}
		if md.ConferenceStartedAt == nil {
			md.ConferenceStartedAt = &now
		}
		md.CleanupScheduled = true
	}); err != nil {
		return fmt.Errorf("conference start metadata: %w", err)
	}

	// One live timer per record: a duplicate start webhook re-schedules and
	// the previous timer is cancelled.
	recordID := rec.ID
	companyID := rec.CompanyID
	conferenceSID := form.ConferenceSID
	s.timers.Schedule(registry.ConferenceTimerKey(recordID), s.maxDuration, func() {
		s.forceEnd(context.Background(), recordID, companyID, conferenceSID)
	})
	return nil
}

// forceEnd fires when a conference outlives the max-duration cap.
func (s *Scheduler) forceEnd(ctx context.Context, recordID, companyID, conferenceSID string) {
	rec, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		s.log.Warn("max-duration check on missing record", "record_id", recordID, "error", err)
		return
	}
	if rec.Metadata.ConferenceEndedAt != nil {
		return
	}

	s.log.Warn("conference exceeded max duration, terminating",
		"record_id", recordID, "conference_sid", conferenceSID)

	if err := s.terminate(ctx, companyID, conferenceSID); err != nil {
		s.log.Error("forced conference termination failed",
			"record_id", recordID, "conference_sid", conferenceSID, "error", err)
	}
}

func (s *Scheduler) handleEnd(ctx context.Context, rec calls.Record, form carrier.ConferenceEventForm) error {
	now := s.clock().UTC()

	// The end event makes both timers moot.
	s.timers.Cancel(registry.ConferenceTimerKey(rec.ID))
	s.timers.Cancel(registry.AgentJoinTimerKey(rec.ID))

	updated, found, err := s.repo.UpdateMetadata(ctx, rec.ID, func(md *calls.Metadata) {
		if md.ConferenceEndedAt == nil {
			md.ConferenceEndedAt = &now
		}
		md.CleanupScheduled = false
	})
	if err != nil {
		return fmt.Errorf("conference end metadata: %w", err)
	}
	if !found {
		return nil
	}

	cost := s.calc.ConferenceCost(updated.Metadata)
	if cost.TotalMinor > 0 {
		tracked, err := s.tracker.TrackCost(ctx, rec.ID, rec.CompanyID, cost.TotalMinor, cost.Currency)
		if err != nil {
			s.log.Error("cost tracking failed", "record_id", rec.ID, "error", err)
		} else if tracked {
			if _, _, err := s.repo.UpdateMetadata(ctx, rec.ID, func(md *calls.Metadata) {
				md.CostMinor = cost.TotalMinor
				md.CostCurrency = cost.Currency
			}); err != nil {
				s.log.Warn("cost metadata update failed", "record_id", rec.ID, "error", err)
			}
		}
	}

	if !calls.IsTerminal(updated.Status) {
		durationSec := cost.Breakdown.DurationSeconds
		if _, _, err := s.repo.ApplyStatus(ctx, updated.CallSID, calls.StatusCompleted, &durationSec, &now); err != nil {
			s.log.Warn("conference end status update failed", "call_sid", updated.CallSID, "error", err)
		}
	}
	return nil
}

func (s *Scheduler) handleJoin(ctx context.Context, rec calls.Record, form carrier.ConferenceEventForm) error {
	now := s.clock().UTC()
	label := form.ParticipantLabel
	if label == "" {
		label = LabelCustomer
	}

	if _, _, err := s.repo.UpdateMetadata(ctx, rec.ID, func(md *calls.Metadata) {
		for _, p := range md.Participants {
			if p.SID == form.CallSID && p.LeftAt == nil {
				return // duplicate join delivery
			}
		}
		md.Participants = append(md.Participants, calls.Participant{
			Label:    label,
			SID:      form.CallSID,
			JoinedAt: now,
		})
		active := 0
		for _, p := range md.Participants {
			if p.LeftAt == nil {
				active++
			}
		}
		if active > md.MaxConcurrentParticipants {
			md.MaxConcurrentParticipants = active
		}
	}); err != nil {
		return fmt.Errorf("participant join metadata: %w", err)
	}

	s.emit(ctx, events.Event{
		Type:         events.TypeParticipantJoined,
		CompanyID:    rec.CompanyID,
		CallSID:      form.CallSID,
		CallRecordID: rec.ID,
		Payload:      map[string]any{"label": label, "conference_sid": form.ConferenceSID},
	})

	switch label {
	case LabelCustomer:
		// The customer leg is waiting; if no agent joins in time, raise one
		// alert. The timer fires at most once and is cleared by agent join,
		// conference end, or call completion.
		recID := rec.ID
		companyID := rec.CompanyID
		callSID := form.CallSID
		s.timers.Schedule(registry.AgentJoinTimerKey(recID), s.agentJoinTimeout, func() {
			s.emit(context.Background(), events.Event{
				Type:         events.TypeAgentJoinTimeout,
				CompanyID:    companyID,
				CallSID:      callSID,
				CallRecordID: recID,
				Reason:       fmt.Sprintf("no agent joined within %s", s.agentJoinTimeout),
			})
		})
	case LabelAgent:
		s.timers.Cancel(registry.AgentJoinTimerKey(rec.ID))
	}
	return nil
}

func (s *Scheduler) handleLeave(ctx context.Context, rec calls.Record, form carrier.ConferenceEventForm) error {
	now := s.clock().UTC()

	if _, _, err := s.repo.UpdateMetadata(ctx, rec.ID, func(md *calls.Metadata) {
		for i := range md.Participants {
			if md.Participants[i].SID == form.CallSID && md.Participants[i].LeftAt == nil {
				md.Participants[i].LeftAt = &now
				return
			}
		}
	}); err != nil {
		return fmt.Errorf("participant leave metadata: %w", err)
	}

	s.emit(ctx, events.Event{
		Type:         events.TypeParticipantLeft,
		CompanyID:    rec.CompanyID,
		CallSID:      form.CallSID,
		CallRecordID: rec.ID,
		Payload:      map[string]any{"label": form.ParticipantLabel, "conference_sid": form.ConferenceSID},
	})
	return nil
}

func (s *Scheduler) emit(ctx context.Context, ev events.Event) {
	if ev.At.IsZero() {
		ev.At = s.clock().UTC()
	}
	if err := s.sink.Publish(ctx, ev); err != nil {
		s.log.Warn("event publish failed", "type", ev.Type, "company_id", ev.CompanyID, "error", err)
	}
}

// terminate resolves company credentials and ends the conference carrier-side.
func (s *Scheduler) terminate(ctx context.Context, companyID, conferenceSID string) error {
	if conferenceSID == "" {
		return fmt.Errorf("%w: conference sid is required", ErrValidation)
	}
	resolved, err := s.resolver.Resolve(ctx, creds.ResolveRequest{
		CompanyID: companyID,
		Scope:     creds.ScopeFull,
	})
	if err != nil {
		return fmt.Errorf("resolve credentials for company %s: %w", companyID, err)
	}
	return s.api.TerminateConference(ctx, resolved.Carrier, conferenceSID)
}

// Terminate is the administrative entry point for ending a conference.
func (s *Scheduler) Terminate(ctx context.Context, companyID, conferenceSID string) error {
	return s.terminate(ctx, companyID, conferenceSID)
}

// ListActive returns the carrier-side view of in-progress conferences under
// the process-wide credentials.
func (s *Scheduler) ListActive(ctx context.Context) ([]carrier.ConferenceInfo, error) {
	resolved, err := s.resolver.Resolve(ctx, creds.ResolveRequest{Scope: creds.ScopeFull})
	if err != nil {
		return nil, err
	}
	return s.api.ListActiveConferences(ctx, resolved.Carrier)
}

// Stats summarizes the scheduler's view for the monitoring surface.
type Stats struct {
	OpenConferences int `json:"open_conferences"`
	PendingTimers   int `json:"pending_timers"`
}

func (s *Scheduler) Stats(ctx context.Context) (Stats, error) {
	open, err := s.repo.ListOpenConferences(ctx, s.clock().UTC())
	if err != nil {
		return Stats{}, err
	}
	return Stats{OpenConferences: len(open), PendingTimers: s.timers.Len()}, nil
}
