package costs

import (
	"time"

	"voicebridge/internal/calls"
)

// ParticipantCharge is the billed share of one conference leg.
type ParticipantCharge struct {
	Label         string `json:"label"`
	BilledMinutes int    `json:"billed_minutes"`
	AmountMinor   int64  `json:"amount_minor"`
}

// Breakdown explains how a conference total was computed.
type Breakdown struct {
	DurationSeconds               int                 `json:"duration_seconds"`
	ParticipantCount              int                 `json:"participant_count"`
	RatePerParticipantMinuteMinor int64               `json:"rate_per_participant_minute_minor"`
	Participants                  []ParticipantCharge `json:"participants"`
}

// ConferenceCost is the computed charge for one conference call.
type ConferenceCost struct {
	TotalMinor int64     `json:"total_minor"`
	Currency   string    `json:"currency"`
	Breakdown  Breakdown `json:"breakdown"`
}

// Calculator prices conferences per participant-minute. Amounts are integer
// minor units so totals never accumulate float drift.
type Calculator struct {
	rateMinor int64
	currency  string
}

func NewCalculator(ratePerParticipantMinuteMinor int64, currency string) *Calculator {
	return &Calculator{rateMinor: ratePerParticipantMinuteMinor, currency: currency}
}

// ConferenceCost is a pure function of the conference window and participant
// legs recorded in call metadata. Each leg is billed for its own presence,
// rounded up to whole minutes; legs that never left are billed to conference
// end. A conference with no recorded start costs nothing.
func (c *Calculator) ConferenceCost(md calls.Metadata) ConferenceCost {
	out := ConferenceCost{Currency: c.currency}
	out.Breakdown.RatePerParticipantMinuteMinor = c.rateMinor

	if md.ConferenceStartedAt == nil || md.ConferenceEndedAt == nil {
		return out
	}
	end := *md.ConferenceEndedAt
	duration := end.Sub(*md.ConferenceStartedAt)
	if duration < 0 {
		return out
	}

	out.Breakdown.DurationSeconds = int(duration / time.Second)
	out.Breakdown.ParticipantCount = len(md.Participants)

	for _, p := range md.Participants {
		left := end
		if p.LeftAt != nil {
			left = *p.LeftAt
		}
		presence := left.Sub(p.JoinedAt)
		if presence < 0 {
			presence = 0
		}
		minutes := int((presence + time.Minute - 1) / time.Minute)
		charge := ParticipantCharge{
			Label:         p.Label,
			BilledMinutes: minutes,
			AmountMinor:   int64(minutes) * c.rateMinor,
		}
		out.Breakdown.Participants = append(out.Breakdown.Participants, charge)
		out.TotalMinor += charge.AmountMinor
	}
	return out
}
