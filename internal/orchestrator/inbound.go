package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"voicebridge/internal/aiprovider"
	"voicebridge/internal/calls"
	"voicebridge/internal/carrier"
	"voicebridge/internal/creds"
	"voicebridge/internal/events"
	"voicebridge/internal/flows"
	"voicebridge/internal/registry"
)

// InboundRequest carries one parsed inbound-call webhook addressed to a flow
// entry point.
type InboundRequest struct {
	FlowID    string
	NodeID    string
	FullURL   string
	Signature string
	Params    map[string]string
	Form      carrier.InboundCallForm
}

// HandleInboundCall answers a new call arriving at a flow entry point and
// returns the markup to bridge its media.
//
// The markup must be produced synchronously; contact, conversation, record and
// session registration run as fire-and-forget follow-up so caller-side latency
// stays flat. Configuration errors answer with an apology instead of silence.
func (o *Orchestrator) HandleInboundCall(ctx context.Context, req InboundRequest) (string, error) {
	form := req.Form
	if form.CallSID == "" {
		return "", ErrValidation
	}

	node, err := o.flows.GetNode(ctx, req.FlowID, req.NodeID)
	if err != nil {
		o.log.Error("inbound call to unresolvable flow node",
			"flow_id", req.FlowID, "node_id", req.NodeID, "call_sid", form.CallSID, "error", err)
		return o.apology(), nil
	}

	resolved, err := o.resolver.Resolve(ctx, creds.ResolveRequest{
		CompanyID: node.CompanyID,
		Scope:     creds.ScopeCompany,
		Override: &creds.Overrides{
			AIAPIKey:  node.AIAPIKey,
			AIAgentID: node.AIAgentID,
		},
	})
	if err != nil {
		o.log.Error("inbound call with no resolvable credentials",
			"company_id", node.CompanyID, "call_sid", form.CallSID, "error", err)
		return o.apology(), nil
	}

	if err := o.verifier.VerifyForm(req.FullURL, req.Params, req.Signature, resolved.Carrier.AuthToken); err != nil {
		o.log.Warn("inbound call signature rejected", "call_sid", form.CallSID, "company_id", node.CompanyID)
		return "", err
	}

	// The record id is minted before the markup so conference names can carry
	// it; conference events resolve back to the record by that name alone.
	recordID := uuid.NewString()
	mode, answer := o.answerForNode(ctx, node, resolved, form.CallSID, recordID)
	markup, err := carrier.RenderAnswer(answer)
	if err != nil {
		o.log.Error("answer markup render failed", "call_sid", form.CallSID, "error", err)
		return o.apology(), nil
	}

	o.registerInbound(ctx, node, resolved, form, mode, answer, recordID)

	return markup, nil
}

// answerForNode decides AI-powered vs direct. AI requires a key and an agent
// id; a failed session registration silently degrades to direct rather than
// failing the call.
func (o *Orchestrator) answerForNode(ctx context.Context, node flows.Node, resolved creds.Credentials, callSID, recordID string) (registry.Mode, carrier.Answer) {
	if resolved.AIPowered() && resolved.AI.AgentID != "" {
		signedURL, err := o.ai.SignedSessionURL(ctx, aiprovider.SessionRequest{
			APIKey:  resolved.AI.APIKey,
			AgentID: resolved.AI.AgentID,
			CallSID: callSID,
		})
		if err == nil {
			return registry.ModeAI, carrier.Answer{
				Mode:      carrier.AnswerModeStream,
				StreamURL: signedURL,
				StreamParams: map[string]string{
					"call_sid": callSID,
					"flow_id":  node.FlowID,
				},
				Say: node.Greeting,
			}
		}
		o.log.Warn("ai session unavailable, degrading to direct mode", "call_sid", callSID, "error", err)
	}

	if node.DialNumber != "" {
		return registry.ModeDirect, carrier.Answer{
			Mode:       carrier.AnswerModeDirect,
			DialNumber: node.DialNumber,
			Say:        node.Greeting,
		}
	}
	return registry.ModeDirect, carrier.Answer{
		Mode:               carrier.AnswerModeConference,
		ConferenceName:     "call-" + recordID,
		ParticipantLabel:   "customer",
		ConferenceCallback: o.conferenceCallbackURL(),
		Say:                node.Greeting,
	}
}

func (o *Orchestrator) registerInbound(ctx context.Context, node flows.Node, resolved creds.Credentials, form carrier.InboundCallForm, mode registry.Mode, answer carrier.Answer, recordID string) {
	o.runAsync(func() {
		ctx := context.WithoutCancel(ctx)

		var contactID, conversationID string
		contact, err := o.crm.FindOrCreateContact(ctx, node.CompanyID, form.From)
		if err != nil {
			o.log.Error("contact resolution failed", "call_sid", form.CallSID, "error", err)
		} else {
			contactID = contact.ID
			conv, err := o.crm.CreateConversation(ctx, node.CompanyID, contact.ID, resolved.ConnectionID)
			if err != nil {
				o.log.Error("conversation create failed", "call_sid", form.CallSID, "error", err)
			} else {
				conversationID = conv.ID
			}
		}

		rec, err := o.repo.Create(ctx, calls.Record{
			ID:             recordID,
			CallSID:        form.CallSID,
			CompanyID:      node.CompanyID,
			ChannelID:      resolved.ConnectionID,
			ContactID:      contactID,
			ConversationID: conversationID,
			FlowID:         node.FlowID,
			FlowNodeID:     node.ID,
			Status:         calls.StatusRinging,
			Direction:      calls.DirectionInbound,
			From:           form.From,
			To:             form.To,
			Metadata: calls.Metadata{
				AIPowered:      mode == registry.ModeAI,
				ConferenceName: answer.ConferenceName,
			},
		})
		if err != nil {
			o.log.Error("call record create failed", "call_sid", form.CallSID, "error", err)
			return
		}

		now := o.clock()
		session := registry.NewSession(form.CallSID, resolved, now)
		session.RecordID = rec.ID
		session.Mode = mode
		session.Direction = string(calls.DirectionInbound)
		session.From = form.From
		session.To = form.To
		session.MediaURL = answer.StreamURL
		session.Flow = registry.FlowContext{
			CompanyID:      node.CompanyID,
			FlowID:         node.FlowID,
			NodeID:         node.ID,
			ConversationID: conversationID,
			ContactID:      contactID,
		}
		o.reg.Set(form.CallSID, session)

		o.emit(ctx, events.Event{
			Type:           events.TypeStatusUpdate,
			CompanyID:      node.CompanyID,
			CallSID:        form.CallSID,
			CallRecordID:   rec.ID,
			ConversationID: conversationID,
			Status:         calls.StatusRinging,
		})
	})
}

func (o *Orchestrator) apology() string {
	markup, err := carrier.RenderAnswer(carrier.Answer{Mode: carrier.AnswerModeApology})
	if err != nil {
		// The apology template has no dynamic input; this cannot happen.
		return carrier.RenderEmpty()
	}
	return markup
}
