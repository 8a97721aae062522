package orchestrator

import (
	"context"
	"fmt"
	"time"

	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/crm"
	"voicebridge/internal/events"
	"voicebridge/internal/registry"
)

// StatusRequest carries one parsed status-callback webhook plus the material
// needed for per-session signature verification.
type StatusRequest struct {
	FullURL   string
	Signature string
	Params    map[string]string
	Form      carrier.StatusCallbackForm
}

// ProcessStatusCallback advances a call through its lifecycle.
//
// Ordering: signature first, then the durable upsert, then side effects. A
// webhook for an unknown record is logged and dropped; bare status callbacks
// never fabricate records.
func (o *Orchestrator) ProcessStatusCallback(ctx context.Context, req StatusRequest) error {
	form := req.Form
	if form.CallSID == "" || form.CallStatus == "" {
		return fmt.Errorf("%w: call sid and status are required", ErrValidation)
	}

	normalized := calls.NormalizeStatus(form.CallStatus)
	if !calls.KnownStatus(form.CallStatus) {
		o.log.Warn("unknown call status, recording verbatim", "call_sid", form.CallSID, "status", form.CallStatus)
	}

	session, hasSession := o.reg.Get(form.CallSID)

	// A live session carries its own resolved auth secret; a signed webhook
	// must verify against it before any mutation.
	if hasSession && req.Signature != "" {
		if err := o.verifier.VerifyForm(req.FullURL, req.Params, req.Signature, session.Config.Carrier.AuthToken); err != nil {
			o.log.Warn("status callback signature rejected", "call_sid", form.CallSID)
			return err
		}
	}

	terminal := calls.IsTerminal(form.CallStatus)

	var durationSec *int
	var endedAt *time.Time
	if terminal {
		durationSec = form.CallDuration
		now := o.clock().UTC()
		endedAt = &now
	}

	rec, found, err := o.repo.ApplyStatus(ctx, form.CallSID, form.CallStatus, durationSec, endedAt)
	if err != nil {
		return fmt.Errorf("apply status %s: %w", form.CallSID, err)
	}
	if !found {
		o.log.Warn("status callback for unknown call, ignoring", "call_sid", form.CallSID, "status", form.CallStatus)
		return nil
	}

	if !terminal {
		o.reg.Touch(form.CallSID)
		o.emit(ctx, events.Event{
			Type:         events.TypeStatusUpdate,
			CompanyID:    rec.CompanyID,
			CallSID:      rec.CallSID,
			CallRecordID: rec.ID,
			Status:       form.CallStatus,
		})
		return nil
	}

	switch {
	case normalized == calls.StatusCompleted:
		o.finishCompleted(ctx, rec, session, hasSession)
	case calls.IsFailure(form.CallStatus):
		o.finishFailed(ctx, rec, form)
	}

	// Terminal either way: the session leaves the registry and any pending
	// conference or agent-join timer for this record is cancelled so neither
	// can fire after legitimate call end.
	if removed, ok := o.reg.Remove(form.CallSID); ok {
		removed.CloseMedia()
		if rec.Direction == calls.DirectionOutbound {
			if err := o.limiter.Release(ctx, rec.CompanyID); err != nil {
				o.log.Warn("concurrency cap release failed", "company_id", rec.CompanyID, "error", err)
			}
		}
	}
	o.timers.Cancel(registry.ConferenceTimerKey(rec.ID))
	o.timers.Cancel(registry.AgentJoinTimerKey(rec.ID))

	return nil
}

func (o *Orchestrator) finishCompleted(ctx context.Context, rec calls.Record, session *registry.Session, hasSession bool) {
	var transcript, conversationID string
	if hasSession {
		transcript = session.TranscriptText()
		conversationID = session.Flow.ConversationID
	}
	if conversationID == "" {
		conversationID = rec.ConversationID
	}

	if transcript != "" {
		callSID := rec.CallSID
		o.runAsync(func() {
			ctx := context.Background()
			if err := o.repo.SetTranscript(ctx, callSID, transcript); err != nil {
				o.log.Error("transcript attach failed", "call_sid", callSID, "error", err)
			}
			if conversationID != "" {
				if _, err := o.crm.AppendMessage(ctx, conversationID, crm.MessageInbound, transcript); err != nil {
					o.log.Error("conversation message append failed", "conversation_id", conversationID, "error", err)
				}
			}
		})
	}

	o.emit(ctx, events.Event{
		Type:           events.TypeCallCompleted,
		CompanyID:      rec.CompanyID,
		CallSID:        rec.CallSID,
		CallRecordID:   rec.ID,
		ConversationID: conversationID,
		Status:         calls.StatusCompleted,
		Payload:        map[string]any{"duration_seconds": rec.DurationSeconds},
	})
}

func (o *Orchestrator) finishFailed(ctx context.Context, rec calls.Record, form carrier.StatusCallbackForm) {
	reason := "call ended with status " + form.CallStatus
	if form.ErrorCode != "" {
		reason = fmt.Sprintf("carrier error %s: %s", form.ErrorCode, form.ErrorMessage)
	}

	if form.ErrorCode != "" {
		if _, _, err := o.repo.UpdateMetadata(ctx, rec.ID, func(md *calls.Metadata) {
			md.ErrorCode = form.ErrorCode
			md.ErrorMessage = form.ErrorMessage
		}); err != nil {
			o.log.Warn("error metadata update failed", "call_sid", rec.CallSID, "error", err)
		}
	}

	o.emit(ctx, events.Event{
		Type:         events.TypeCallFailed,
		CompanyID:    rec.CompanyID,
		CallSID:      rec.CallSID,
		CallRecordID: rec.ID,
		Status:       form.CallStatus,
		Reason:       reason,
	})
}

// ProcessStreamEvent updates stream metadata on the live session. It never
// touches the persisted status; stream lifecycle and call lifecycle are
// separate state machines.
func (o *Orchestrator) ProcessStreamEvent(ctx context.Context, form carrier.StreamEventForm) error {
	if form.CallSID == "" || form.StreamEvent == "" {
		return fmt.Errorf("%w: call sid and stream event are required", ErrValidation)
	}

	session, ok := o.reg.Get(form.CallSID)
	if !ok {
		o.log.Warn("stream event for unknown session, ignoring", "call_sid", form.CallSID, "event", form.StreamEvent)
		return nil
	}

	now := o.clock().UTC()
	switch form.StreamEvent {
	case carrier.StreamEventStarted:
		// A second start with a new stream sid means the carrier re-established
		// the media leg.
		if prev := session.Stream(); prev.StreamSID != "" && prev.StreamSID != form.StreamSID {
			o.monitor.RecordReconnection()
		}
		session.UpdateStream(func(sm *registry.StreamMetadata) {
			sm.StreamSID = form.StreamSID
			sm.Status = "started"
			sm.StartedAt = &now
		})
		o.dialAILeg(ctx, session)
	case carrier.StreamEventStopped:
		session.UpdateStream(func(sm *registry.StreamMetadata) {
			sm.Status = "stopped"
			sm.EndedAt = &now
		})
		session.CloseMedia()
	case carrier.StreamEventError:
		session.UpdateStream(func(sm *registry.StreamMetadata) {
			sm.Status = "error"
			sm.ErrorCode = form.ErrorCode
			sm.ErrorMessage = firstNonEmpty(form.ErrorMessage, form.StreamError)
		})
		session.CloseMedia()
	default:
		o.log.Warn("unknown stream event", "call_sid", form.CallSID, "event", form.StreamEvent)
	}
	o.reg.Touch(form.CallSID)

	o.emit(ctx, events.Event{
		Type:      events.TypeStatusUpdate,
		CompanyID: session.Flow.CompanyID,
		CallSID:   form.CallSID,
		Status:    form.StreamEvent,
	})

	if form.StreamEvent == carrier.StreamEventError && session.Flow.FlowID != "" {
		o.emit(ctx, events.Event{
			Type:      events.TypeCallError,
			CompanyID: session.Flow.CompanyID,
			CallSID:   form.CallSID,
			Reason:    fmt.Sprintf("media stream error %s: %s", form.ErrorCode, firstNonEmpty(form.ErrorMessage, form.StreamError)),
		})
	}
	return nil
}

// dialAILeg opens the control connection to the AI backend once the carrier
// stream is live. Failure is not fatal to the call; the media still flows
// carrier-to-backend directly.
func (o *Orchestrator) dialAILeg(ctx context.Context, session *registry.Session) {
	if session.Mode != registry.ModeAI || session.MediaURL == "" {
		return
	}
	dialer, ok := o.ai.(MediaDialer)
	if !ok {
		return
	}

	session.SetAIMedia(registry.ConnConnecting, nil)
	callSID := session.CallSID
	o.runAsync(func() {
		conn, err := dialer.DialMedia(context.WithoutCancel(ctx), session.MediaURL)
		if err != nil {
			o.log.Warn("ai control leg dial failed", "call_sid", callSID, "error", err)
			session.SetAIMedia(registry.ConnAbsent, nil)
			return
		}
		session.SetAIMedia(registry.ConnConnected, conn)
	})
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
