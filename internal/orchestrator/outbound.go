package orchestrator

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"voicebridge/internal/aiprovider"
	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/creds"
	"voicebridge/internal/events"
	"voicebridge/internal/registry"
)

// OutboundRequest describes an operator-initiated outbound call.
type OutboundRequest struct {
	CompanyID    string
	ConnectionID string
	Scope        creds.Scope
	To           string
	From         string

	// ForceDirect skips the AI leg even when the resolved credentials could
	// drive one. Used by fallback re-initiation.
	ForceDirect bool
}

// InitiateCall places an outbound call. The circuit breaker gates the carrier
// request and the per-company cap bounds concurrency; both reject before any
// network I/O.
func (o *Orchestrator) InitiateCall(ctx context.Context, req OutboundRequest) (calls.Record, error) {
	if req.To == "" || req.CompanyID == "" {
		return calls.Record{}, fmt.Errorf("%w: company id and destination are required", ErrValidation)
	}

	if err := o.brk.Allow(); err != nil {
		return calls.Record{}, err
	}

	acquired, err := o.limiter.Acquire(ctx, req.CompanyID)
	if err != nil {
		return calls.Record{}, fmt.Errorf("concurrency cap acquire: %w", err)
	}
	if !acquired {
		return calls.Record{}, ErrTooManyCalls
	}

	rec, err := o.initiateLocked(ctx, req)
	if err != nil {
		if relErr := o.limiter.Release(ctx, req.CompanyID); relErr != nil {
			o.log.Warn("concurrency cap release failed", "company_id", req.CompanyID, "error", relErr)
		}
		return calls.Record{}, err
	}
	return rec, nil
}

func (o *Orchestrator) initiateLocked(ctx context.Context, req OutboundRequest) (calls.Record, error) {
	resolved, err := o.resolver.Resolve(ctx, creds.ResolveRequest{
		ConnectionID: req.ConnectionID,
		CompanyID:    req.CompanyID,
		Scope:        req.Scope,
	})
	if err != nil {
		return calls.Record{}, err
	}

	from := req.From
	if from == "" {
		from = resolved.FromNumber
	}
	if from == "" {
		return calls.Record{}, fmt.Errorf("%w: no caller id available", ErrValidation)
	}

	recordID := uuid.NewString()
	mode, answer := o.answerForOutbound(ctx, resolved, recordID, req.ForceDirect)
	markup, err := carrier.RenderAnswer(answer)
	if err != nil {
		return calls.Record{}, fmt.Errorf("outbound markup: %w", err)
	}

	ref, err := o.api.CreateCall(ctx, resolved.Carrier, carrier.CreateCallRequest{
		To:                req.To,
		From:              from,
		Markup:            markup,
		StatusCallbackURL: o.statusCallbackURL(),
	})
	if err != nil {
		o.brk.RecordFailure("api_error")
		return calls.Record{}, fmt.Errorf("initiate call: %w", err)
	}
	o.brk.RecordSuccess()

	status := ref.Status
	if status == "" {
		status = calls.StatusQueued
	}

	rec, err := o.repo.Create(ctx, calls.Record{
		ID:        recordID,
		CallSID:   ref.SID,
		CompanyID: req.CompanyID,
		ChannelID: resolved.ConnectionID,
		Status:    status,
		Direction: calls.DirectionOutbound,
		From:      from,
		To:        req.To,
		Metadata: calls.Metadata{
			AIPowered:      mode == registry.ModeAI,
			ConferenceName: answer.ConferenceName,
		},
	})
	if err != nil {
		return calls.Record{}, fmt.Errorf("outbound record create: %w", err)
	}

	session := registry.NewSession(ref.SID, resolved, o.clock())
	session.RecordID = rec.ID
	session.Mode = mode
	session.Direction = string(calls.DirectionOutbound)
	session.From = from
	session.To = req.To
	session.MediaURL = answer.StreamURL
	session.Flow = registry.FlowContext{CompanyID: req.CompanyID}
	o.reg.Set(ref.SID, session)

	o.emit(ctx, events.Event{
		Type:         events.TypeStatusUpdate,
		CompanyID:    rec.CompanyID,
		CallSID:      rec.CallSID,
		CallRecordID: rec.ID,
		Status:       rec.Status,
	})
	return rec, nil
}

// answerForOutbound bridges the callee into a per-call conference so an agent
// can join from the UI; AI-capable credentials stream to the agent instead.
func (o *Orchestrator) answerForOutbound(ctx context.Context, resolved creds.Credentials, recordID string, forceDirect bool) (registry.Mode, carrier.Answer) {
	if !forceDirect && resolved.AIPowered() && resolved.AI.AgentID != "" {
		signedURL, err := o.ai.SignedSessionURL(ctx, aiprovider.SessionRequest{
			APIKey:  resolved.AI.APIKey,
			AgentID: resolved.AI.AgentID,
		})
		if err == nil {
			return registry.ModeAI, carrier.Answer{
				Mode:         carrier.AnswerModeStream,
				StreamURL:    signedURL,
				StreamParams: map[string]string{"record_id": recordID},
			}
		}
		o.log.Warn("ai session unavailable for outbound call, using conference", "record_id", recordID, "error", err)
	}
	return registry.ModeDirect, carrier.Answer{
		Mode:               carrier.AnswerModeConference,
		ConferenceName:     "call-" + recordID,
		ParticipantLabel:   "customer",
		ConferenceCallback: o.conferenceCallbackURL(),
	}
}

// RetryCall re-initiates a failed outbound call. Permitted only for
// failed/no-answer/busy records, capped at two retries per original call.
func (o *Orchestrator) RetryCall(ctx context.Context, callSID string, scope creds.Scope) (calls.Record, error) {
	orig, err := o.repo.GetByCallSID(ctx, callSID)
	if err != nil {
		return calls.Record{}, err
	}

	switch calls.NormalizeStatus(orig.Status) {
	case calls.StatusFailed, calls.StatusNoAnswer, calls.StatusBusy:
	default:
		return calls.Record{}, fmt.Errorf("%w: status %q", ErrRetryNotAllowed, orig.Status)
	}
	if orig.Metadata.RetryCount >= 2 {
		return calls.Record{}, ErrRetryLimit
	}

	newRec, err := o.InitiateCall(ctx, OutboundRequest{
		CompanyID:    orig.CompanyID,
		ConnectionID: orig.ChannelID,
		Scope:        scope,
		To:           orig.To,
		From:         orig.From,
	})
	if err != nil {
		return calls.Record{}, err
	}

	retryCount := orig.Metadata.RetryCount + 1
	if _, _, err := o.repo.UpdateMetadata(ctx, newRec.ID, func(md *calls.Metadata) {
		md.RetryOfCallSID = orig.CallSID
		md.RetryCount = retryCount
	}); err != nil {
		o.log.Warn("retry link update failed", "call_sid", newRec.CallSID, "error", err)
	}
	if _, _, err := o.repo.UpdateMetadata(ctx, orig.ID, func(md *calls.Metadata) {
		md.RetryCount = retryCount
		md.RetriedByCallSID = newRec.CallSID
	}); err != nil {
		o.log.Warn("retry count update failed", "call_sid", orig.CallSID, "error", err)
	}

	o.emit(ctx, events.Event{
		Type:         events.TypeStatusUpdate,
		CompanyID:    newRec.CompanyID,
		CallSID:      newRec.CallSID,
		CallRecordID: newRec.ID,
		Status:       newRec.Status,
		Payload:      map[string]any{"retry_of_call_sid": orig.CallSID, "retry_count": retryCount},
	})
	return newRec, nil
}

// FallbackToDirect re-initiates an AI-powered call as a plain direct call,
// recording the original mode and the reason.
func (o *Orchestrator) FallbackToDirect(ctx context.Context, callSID, reason string, scope creds.Scope) (calls.Record, error) {
	orig, err := o.repo.GetByCallSID(ctx, callSID)
	if err != nil {
		return calls.Record{}, err
	}
	if !orig.Metadata.AIPowered {
		return calls.Record{}, ErrFallbackNotAllowed
	}

	newRec, err := o.InitiateCall(ctx, OutboundRequest{
		CompanyID:    orig.CompanyID,
		ConnectionID: orig.ChannelID,
		Scope:        scope,
		To:           orig.To,
		From:         orig.From,
		ForceDirect:  true,
	})
	if err != nil {
		return calls.Record{}, err
	}

	if _, _, err := o.repo.UpdateMetadata(ctx, newRec.ID, func(md *calls.Metadata) {
		md.OriginalMode = string(registry.ModeAI)
		md.FallbackReason = reason
	}); err != nil {
		o.log.Warn("fallback metadata update failed", "call_sid", newRec.CallSID, "error", err)
	}
	if o.monitor != nil {
		o.monitor.RecordFallback()
	}

	return newRec, nil
}
