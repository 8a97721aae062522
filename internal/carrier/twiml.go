package carrier

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Minimal carrier markup (TwiML) builder. It intentionally avoids the provider
// SDK's markup helpers; only the verbs used at this boundary are modeled.
//
// The markup response to an inbound-call webhook must be produced
// synchronously - the carrier hangs up on silence.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlDial struct {
	XMLName    xml.Name         `xml:"Dial"`
	Number     string           `xml:"Number,omitempty"`
	Conference *twimlConference `xml:"Conference,omitempty"`
}

type twimlConference struct {
	StatusCallback      string `xml:"statusCallback,attr,omitempty"`
	StatusCallbackEvent string `xml:"statusCallbackEvent,attr,omitempty"`
	ParticipantLabel    string `xml:"participantLabel,attr,omitempty"`
	EndOnExit           bool   `xml:"endConferenceOnExit,attr,omitempty"`
	Name                string `xml:",chardata"`
}

type twimlConnect struct {
	XMLName xml.Name     `xml:"Connect"`
	Stream  *twimlStream `xml:"Stream,omitempty"`
}

type twimlStream struct {
	URL        string           `xml:"url,attr"`
	Parameters []twimlParameter `xml:"Parameter,omitempty"`
}

type twimlParameter struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

// Answer describes how an inbound call should be bridged.
type Answer struct {
	Mode AnswerMode

	// DialNumber for direct mode.
	DialNumber string

	// Conference bridge for direct conference mode.
	ConferenceName     string
	ParticipantLabel   string
	ConferenceCallback string

	// StreamURL for AI-powered mode; StreamParams ride along as custom
	// <Parameter> elements.
	StreamURL    string
	StreamParams map[string]string

	// Say is spoken before bridging (or before hanging up for Apology).
	Say string
}

type AnswerMode string

const (
	AnswerModeDirect     AnswerMode = "direct"
	AnswerModeConference AnswerMode = "conference"
	AnswerModeStream     AnswerMode = "stream"

	// AnswerModeApology speaks an apology and hangs up. Used on
	// configuration errors so the caller is never left in silence.
	AnswerModeApology AnswerMode = "apology"
)

const conferenceEvents = "start end join leave"

// RenderAnswer maps an Answer to carrier markup.
func RenderAnswer(a Answer) (string, error) {
	var r twimlResponse

	if a.Say != "" {
		r.Verbs = append(r.Verbs, twimlSay{Text: a.Say})
	}

	switch a.Mode {
	case AnswerModeApology:
		if a.Say == "" {
			r.Verbs = append(r.Verbs, twimlSay{Text: "We are sorry, this service is temporarily unavailable. Please try again later."})
		}
		r.Verbs = append(r.Verbs, twimlHangup{})
	case AnswerModeDirect:
		if strings.TrimSpace(a.DialNumber) == "" {
			return "", errors.New("carrier: dial number required for direct answer")
		}
		r.Verbs = append(r.Verbs, twimlDial{Number: a.DialNumber})
	case AnswerModeConference:
		if strings.TrimSpace(a.ConferenceName) == "" {
			return "", errors.New("carrier: conference name required")
		}
		r.Verbs = append(r.Verbs, twimlDial{Conference: &twimlConference{
			Name:                a.ConferenceName,
			ParticipantLabel:    a.ParticipantLabel,
			StatusCallback:      a.ConferenceCallback,
			StatusCallbackEvent: conferenceEvents,
		}})
	case AnswerModeStream:
		if strings.TrimSpace(a.StreamURL) == "" {
			return "", errors.New("carrier: stream url required for stream answer")
		}
		s := &twimlStream{URL: a.StreamURL}
		for name, value := range a.StreamParams {
			s.Parameters = append(s.Parameters, twimlParameter{Name: name, Value: value})
		}
		r.Verbs = append(r.Verbs, twimlConnect{Stream: s})
	default:
		return "", errors.New("carrier: unknown answer mode")
	}

	return renderResponse(r)
}

// RenderEmpty returns the bare acknowledgment document expected on status
// callbacks.
func RenderEmpty() string {
	return xml.Header + "<Response></Response>"
}

func renderResponse(r twimlResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
