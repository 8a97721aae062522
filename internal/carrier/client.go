package carrier

import (
	"context"
	"errors"
	"fmt"

	twilio "github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Credentials identify one carrier account for a single call. Resolved per
// call by the credential resolver; never log AuthToken or APISecret.
type Credentials struct {
	AccountSID string
	AuthToken  string
	APIKey     string
	APISecret  string
	AppSID     string
}

func (c Credentials) Valid() bool {
	return c.AccountSID != "" && (c.AuthToken != "" || (c.APIKey != "" && c.APISecret != ""))
}

// CreateCallRequest describes an outbound call.
type CreateCallRequest struct {
	To   string
	From string

	// Markup is inline call instructions; URL is an instructions webhook.
	// Exactly one must be set.
	Markup string
	URL    string

	StatusCallbackURL string
	TimeoutSeconds    int
}

// CallRef is the carrier's handle for a created call.
type CallRef struct {
	SID    string
	Status string
}

// ConferenceInfo is a carrier-side conference summary.
type ConferenceInfo struct {
	SID          string
	FriendlyName string
	Status       string
}

// API is the outbound surface of the carrier's REST API used by the
// orchestrator and the cleanup scheduler.
type API interface {
	CreateCall(ctx context.Context, creds Credentials, req CreateCallRequest) (CallRef, error)
	EndCall(ctx context.Context, creds Credentials, callSID string) error
	TerminateConference(ctx context.Context, creds Credentials, conferenceSID string) error
	ListActiveConferences(ctx context.Context, creds Credentials) ([]ConferenceInfo, error)
}

// Client implements API against the carrier's REST endpoints via the provider
// SDK. The SDK does not take a context; the ctx parameter bounds nothing here
// but keeps the interface honest for fakes and future transports.
type Client struct{}

func NewClient() *Client { return &Client{} }

var statusCallbackEvents = []string{"initiated", "ringing", "answered", "completed"}

func (c *Client) CreateCall(ctx context.Context, creds Credentials, req CreateCallRequest) (CallRef, error) {
	if !creds.Valid() {
		return CallRef{}, errors.New("carrier: incomplete credentials")
	}
	if req.To == "" || req.From == "" {
		return CallRef{}, errors.New("carrier: to and from are required")
	}
	if (req.Markup == "") == (req.URL == "") {
		return CallRef{}, errors.New("carrier: exactly one of markup or url is required")
	}

	params := &openapi.CreateCallParams{}
	params.SetTo(req.To)
	params.SetFrom(req.From)
	if req.Markup != "" {
		params.SetTwiml(req.Markup)
	} else {
		params.SetUrl(req.URL)
	}
	if req.StatusCallbackURL != "" {
		params.SetStatusCallback(req.StatusCallbackURL)
		params.SetStatusCallbackEvent(statusCallbackEvents)
	}
	if req.TimeoutSeconds > 0 {
		params.SetTimeout(req.TimeoutSeconds)
	}

	call, err := restClient(creds).Api.CreateCall(params)
	if err != nil {
		return CallRef{}, fmt.Errorf("carrier create call: %w", err)
	}

	ref := CallRef{}
	if call.Sid != nil {
		ref.SID = *call.Sid
	}
	if call.Status != nil {
		ref.Status = *call.Status
	}
	return ref, nil
}

func (c *Client) EndCall(ctx context.Context, creds Credentials, callSID string) error {
	if callSID == "" {
		return errors.New("carrier: call sid is required")
	}
	params := &openapi.UpdateCallParams{}
	params.SetStatus("completed")
	if _, err := restClient(creds).Api.UpdateCall(callSID, params); err != nil {
		return fmt.Errorf("carrier end call %s: %w", callSID, err)
	}
	return nil
}

func (c *Client) TerminateConference(ctx context.Context, creds Credentials, conferenceSID string) error {
	if conferenceSID == "" {
		return errors.New("carrier: conference sid is required")
	}
	params := &openapi.UpdateConferenceParams{}
	params.SetStatus("completed")
	if _, err := restClient(creds).Api.UpdateConference(conferenceSID, params); err != nil {
		return fmt.Errorf("carrier terminate conference %s: %w", conferenceSID, err)
	}
	return nil
}

func (c *Client) ListActiveConferences(ctx context.Context, creds Credentials) ([]ConferenceInfo, error) {
	params := &openapi.ListConferenceParams{}
	params.SetStatus("in-progress")
	params.SetLimit(100)

	confs, err := restClient(creds).Api.ListConference(params)
	if err != nil {
		return nil, fmt.Errorf("carrier list conferences: %w", err)
	}

	out := make([]ConferenceInfo, 0, len(confs))
	for _, cf := range confs {
		info := ConferenceInfo{}
		if cf.Sid != nil {
			info.SID = *cf.Sid
		}
		if cf.FriendlyName != nil {
			info.FriendlyName = *cf.FriendlyName
		}
		if cf.Status != nil {
			info.Status = *cf.Status
		}
		out = append(out, info)
	}
	return out, nil
}

func restClient(creds Credentials) *twilio.RestClient {
	p := twilio.ClientParams{AccountSid: creds.AccountSID}
	if creds.APIKey != "" && creds.APISecret != "" {
		p.Username = creds.APIKey
		p.Password = creds.APISecret
	} else {
		p.Username = creds.AccountSID
		p.Password = creds.AuthToken
	}
	return twilio.NewRestClientWithParams(p)
}
