package carrier

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func formRequest(t *testing.T, path, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseStatusCallback(t *testing.T) {
	r := formRequest(t, "/webhooks/status", "CallSid=CA123&CallStatus=completed&CallDuration=42")
	f, err := ParseStatusCallback(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.CallSID != "CA123" || f.CallStatus != "completed" {
		t.Fatalf("unexpected form: %+v", f)
	}
	if f.CallDuration == nil || *f.CallDuration != 42 {
		t.Fatalf("expected duration 42, got %v", f.CallDuration)
	}
}

func TestParseStatusCallbackDropsBadDuration(t *testing.T) {
	r := formRequest(t, "/webhooks/status", "CallSid=CA123&CallStatus=completed&CallDuration=-3")
	f, err := ParseStatusCallback(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.CallDuration != nil {
		t.Fatalf("negative duration must be omitted, got %v", *f.CallDuration)
	}

	r = formRequest(t, "/webhooks/status", "CallSid=CA123&CallStatus=completed&CallDuration=abc")
	f, _ = ParseStatusCallback(r)
	if f.CallDuration != nil {
		t.Fatalf("non-integer duration must be omitted")
	}
}

func TestParseInboundCall(t *testing.T) {
	r := formRequest(t, "/webhooks/voice/f1/n1", "CallSid=CA9&From=%2B15551234567&To=%2B15557654321")
	f, err := ParseInboundCall(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.CallSID != "CA9" || f.From != "+15551234567" || f.To != "+15557654321" {
		t.Fatalf("unexpected form: %+v", f)
	}
}

func TestParseConferenceEvent(t *testing.T) {
	r := formRequest(t, "/webhooks/conference",
		"ConferenceSid=CF1&FriendlyName=call-abc&StatusCallbackEvent=participant-join&CallSid=CA9&ParticipantLabel=customer")
	f, err := ParseConferenceEvent(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if f.Event != ParticipantEventJoin || f.ParticipantLabel != "customer" {
		t.Fatalf("unexpected form: %+v", f)
	}
}
