package carrier

import (
	"net/http"
	"strconv"
	"strings"
)

// Webhook form parsing. The carrier posts application/x-www-form-urlencoded
// bodies; these structs capture only the fields the orchestrator reads.
// No business logic here.

// SignatureHeader is the header carrying the URL+form HMAC signature.
const SignatureHeader = "X-Twilio-Signature"

// BodySignatureHeader carries the raw-body sha256=<hex> signature used by
// messaging-platform style webhooks.
const BodySignatureHeader = "X-Hub-Signature-256"

type StatusCallbackForm struct {
	CallSID    string
	AccountSID string
	CallStatus string

	// CallDuration is nil when absent or not a non-negative integer.
	CallDuration *int

	ErrorCode    string
	ErrorMessage string

	SequenceNumber string
	Timestamp      string
}

func ParseStatusCallback(r *http.Request) (StatusCallbackForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallbackForm{}, err
	}
	f := StatusCallbackForm{
		CallSID:        strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSID:     r.PostFormValue("AccountSid"),
		CallStatus:     strings.TrimSpace(r.PostFormValue("CallStatus")),
		ErrorCode:      r.PostFormValue("ErrorCode"),
		ErrorMessage:   r.PostFormValue("ErrorMessage"),
		SequenceNumber: r.PostFormValue("SequenceNumber"),
		Timestamp:      r.PostFormValue("Timestamp"),
	}
	if raw := strings.TrimSpace(r.PostFormValue("CallDuration")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
			f.CallDuration = &n
		}
	}
	return f, nil
}

type InboundCallForm struct {
	CallSID    string
	AccountSID string
	From       string
	To         string
	Direction  string
	CallerName string
}

func ParseInboundCall(r *http.Request) (InboundCallForm, error) {
	if err := r.ParseForm(); err != nil {
		return InboundCallForm{}, err
	}
	return InboundCallForm{
		CallSID:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSID: r.PostFormValue("AccountSid"),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Direction:  r.PostFormValue("Direction"),
		CallerName: r.PostFormValue("CallerName"),
	}, nil
}

// Stream lifecycle vocabulary.
const (
	StreamEventStarted = "stream-started"
	StreamEventStopped = "stream-stopped"
	StreamEventError   = "stream-error"
)

type StreamEventForm struct {
	CallSID      string
	StreamSID    string
	StreamEvent  string
	StreamError  string
	ErrorCode    string
	ErrorMessage string
}

func ParseStreamEvent(r *http.Request) (StreamEventForm, error) {
	if err := r.ParseForm(); err != nil {
		return StreamEventForm{}, err
	}
	return StreamEventForm{
		CallSID:      strings.TrimSpace(r.PostFormValue("CallSid")),
		StreamSID:    strings.TrimSpace(r.PostFormValue("StreamSid")),
		StreamEvent:  strings.TrimSpace(r.PostFormValue("StreamEvent")),
		StreamError:  r.PostFormValue("StreamError"),
		ErrorCode:    r.PostFormValue("ErrorCode"),
		ErrorMessage: r.PostFormValue("ErrorMessage"),
	}, nil
}

// Conference event vocabulary (statusCallbackEvent="start end join leave").
const (
	ConferenceEventStart  = "conference-start"
	ConferenceEventEnd    = "conference-end"
	ParticipantEventJoin  = "participant-join"
	ParticipantEventLeave = "participant-leave"
)

type ConferenceEventForm struct {
	ConferenceSID    string
	FriendlyName     string
	Event            string
	CallSID          string
	ParticipantLabel string
	Timestamp        string
}

func ParseConferenceEvent(r *http.Request) (ConferenceEventForm, error) {
	if err := r.ParseForm(); err != nil {
		return ConferenceEventForm{}, err
	}
	return ConferenceEventForm{
		ConferenceSID:    strings.TrimSpace(r.PostFormValue("ConferenceSid")),
		FriendlyName:     strings.TrimSpace(r.PostFormValue("FriendlyName")),
		Event:            strings.TrimSpace(r.PostFormValue("StatusCallbackEvent")),
		CallSID:          strings.TrimSpace(r.PostFormValue("CallSid")),
		ParticipantLabel: strings.TrimSpace(r.PostFormValue("ParticipantLabel")),
		Timestamp:        r.PostFormValue("Timestamp"),
	}, nil
}

// FormParams flattens a parsed POST form into the map shape the signature
// validator expects (first value wins, matching the carrier's signing rule).
func FormParams(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.PostForm))
	for k, vs := range r.PostForm {
		if len(vs) > 0 {
			out[k] = vs[0]
		}
	}
	return out
}
