package calls

import (
	"strings"
	"time"
)

// Record is the durable mirror of a call's lifecycle state.
//
// Multi-tenant invariant: CompanyID is required on every row.
//
// The in-memory session owned by the registry is transient; this record is the
// durable one. It is created on call initiation or on the first inbound-call
// webhook, updated on every relevant webhook, and never deleted here.
type Record struct {
	ID             string `json:"id" db:"id"`
	CallSID        string `json:"call_sid" db:"call_sid"`
	CompanyID      string `json:"company_id" db:"company_id"`
	ChannelID      string `json:"channel_id,omitempty" db:"channel_id"`
	ContactID      string `json:"contact_id,omitempty" db:"contact_id"`
	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`
	FlowID         string `json:"flow_id,omitempty" db:"flow_id"`
	FlowNodeID     string `json:"flow_node_id,omitempty" db:"flow_node_id"`

	// Status stores the carrier's status string verbatim. Unknown statuses are
	// recorded as-is for forward compatibility; Normalize is for anomaly
	// logging and terminal classification only.
	Status    string    `json:"status" db:"status"`
	Direction Direction `json:"direction" db:"direction"`

	From string `json:"from" db:"from_number"`
	To   string `json:"to" db:"to_number"`

	DurationSeconds int    `json:"duration_seconds" db:"duration_seconds"`
	RecordingURL    string `json:"recording_url,omitempty" db:"recording_url"`
	Transcript      string `json:"transcript,omitempty" db:"transcript"`

	Metadata Metadata `json:"metadata" db:"metadata"`

	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`
}

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Metadata is stored as a single JSONB column but typed in Go so retry counts,
// call mode and conference bookkeeping carry real invariants instead of
// free-form map lookups.
type Metadata struct {
	ConferenceName      string     `json:"conference_name,omitempty"`
	ConferenceSID       string     `json:"conference_sid,omitempty"`
	ConferenceStartedAt *time.Time `json:"conference_started_at,omitempty"`
	ConferenceEndedAt   *time.Time `json:"conference_ended_at,omitempty"`

	Participants              []Participant `json:"participants,omitempty"`
	MaxConcurrentParticipants int           `json:"max_concurrent_participants,omitempty"`

	AIPowered      bool   `json:"ai_powered,omitempty"`
	OriginalMode   string `json:"original_mode,omitempty"`
	FallbackReason string `json:"fallback_reason,omitempty"`

	RetryCount       int    `json:"retry_count,omitempty"`
	RetryOfCallSID   string `json:"retry_of_call_sid,omitempty"`
	RetriedByCallSID string `json:"retried_by_call_sid,omitempty"`

	CleanupScheduled bool `json:"cleanup_scheduled,omitempty"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`

	CostMinor    int64  `json:"cost_minor,omitempty"`
	CostCurrency string `json:"cost_currency,omitempty"`
}

// Participant is one leg inside a conference.
type Participant struct {
	Label    string     `json:"label"`
	SID      string     `json:"sid,omitempty"`
	JoinedAt time.Time  `json:"joined_at"`
	LeftAt   *time.Time `json:"left_at,omitempty"`
}

// Call lifecycle vocabulary. The bracketed terminal set is closed; the
// non-terminal prefix is what the carrier advances through.
const (
	StatusQueued     = "queued"
	StatusInitiated  = "initiated"
	StatusRinging    = "ringing"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusBusy       = "busy"
	StatusNoAnswer   = "no-answer"
	StatusCanceled   = "canceled"
)

// NormalizeStatus lowercases and unifies separators so that "No_Answer",
// "no answer" and "no-answer" classify identically. Recording always uses the
// carrier's original string; normalization feeds classification and logging.
func NormalizeStatus(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}

// KnownStatus reports whether the normalized status belongs to the lifecycle
// vocabulary. Unknown statuses are still recorded verbatim.
func KnownStatus(s string) bool {
	switch NormalizeStatus(s) {
	case StatusQueued, StatusInitiated, StatusRinging, StatusInProgress,
		StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether no further transition occurs from this status.
func IsTerminal(s string) bool {
	switch NormalizeStatus(s) {
	case StatusCompleted, StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsFailure reports whether the status is in the failure class of terminal
// statuses (everything terminal except completed).
func IsFailure(s string) bool {
	switch NormalizeStatus(s) {
	case StatusFailed, StatusBusy, StatusNoAnswer, StatusCanceled:
		return true
	default:
		return false
	}
}
