package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"voicebridge/internal/creds"
	"voicebridge/internal/quality"
)

// Mode says how the call's media is handled.
type Mode string

const (
	ModeAI     Mode = "ai"
	ModeDirect Mode = "direct"
)

// ConnState is the lifecycle of one media/control connection leg.
type ConnState string

const (
	ConnAbsent     ConnState = "absent"
	ConnConnecting ConnState = "connecting"
	ConnConnected  ConnState = "connected"
	ConnClosed     ConnState = "closed"
)

// MediaConnection is a handle to one live media leg.
type MediaConnection struct {
	State ConnState
	Conn  *websocket.Conn
}

// Turn is one conversation exchange accumulated during a live call.
type Turn struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// FlowContext links a live session to the automation flow that answered it.
type FlowContext struct {
	CompanyID      string `json:"company_id"`
	FlowID         string `json:"flow_id"`
	NodeID         string `json:"node_id"`
	ConversationID string `json:"conversation_id"`
	ContactID      string `json:"contact_id"`
}

// StreamMetadata tracks the media stream attached to a call.
type StreamMetadata struct {
	StreamSID    string     `json:"stream_sid,omitempty"`
	Status       string     `json:"status,omitempty"`
	ErrorCode    string     `json:"error_code,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
}

// Session is the in-memory state of one live call. Exactly one session exists
// per live call sid; the registry removes it on terminal status or forced
// cleanup.
type Session struct {
	CallSID   string
	RecordID  string
	Config    creds.Credentials
	Mode      Mode
	Direction string
	From      string
	To        string
	StartTime time.Time
	Flow      FlowContext

	// MediaURL is the signed AI media endpoint for AI-mode sessions; the
	// control leg is dialed against it when the carrier stream starts.
	MediaURL string

	mu           sync.Mutex
	lastActivity time.Time
	transcript   []Turn
	carrierMedia MediaConnection
	aiMedia      MediaConnection
	metrics      *quality.Sample
	metricsLevel quality.Level
	stream       StreamMetadata
}

func NewSession(callSID string, config creds.Credentials, now time.Time) *Session {
	return &Session{
		CallSID:      callSID,
		Config:       config,
		Mode:         ModeDirect,
		StartTime:    now,
		lastActivity: now,
		carrierMedia: MediaConnection{State: ConnAbsent},
		aiMedia:      MediaConnection{State: ConnAbsent},
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// AppendTurn records one conversation exchange.
func (s *Session) AppendTurn(role, text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, Turn{Role: role, Text: text, At: at})
}

func (s *Session) Transcript() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// TranscriptText renders the accumulated turns as one readable block.
func (s *Session) TranscriptText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.transcript) == 0 {
		return ""
	}
	var b strings.Builder
	for i, turn := range s.transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(turn.Role)
		b.WriteString(": ")
		b.WriteString(turn.Text)
	}
	return b.String()
}

// UpdateStream applies a partial stream metadata change.
func (s *Session) UpdateStream(mutate func(*StreamMetadata)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.stream)
}

func (s *Session) Stream() StreamMetadata {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

func (s *Session) SetMetrics(sample quality.Sample, level quality.Level) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := sample
	s.metrics = &copied
	s.metricsLevel = level
}

func (s *Session) Metrics() (quality.Sample, quality.Level, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		return quality.Sample{}, "", false
	}
	return *s.metrics, s.metricsLevel, true
}

func (s *Session) SetCarrierMedia(state ConnState, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.carrierMedia = MediaConnection{State: state, Conn: conn}
}

func (s *Session) SetAIMedia(state ConnState, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiMedia = MediaConnection{State: state, Conn: conn}
}

func (s *Session) Media() (carrierSide, aiSide MediaConnection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.carrierMedia, s.aiMedia
}

// CloseMedia tears down both media legs. Safe to call more than once.
func (s *Session) CloseMedia() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, mc := range []*MediaConnection{&s.carrierMedia, &s.aiMedia} {
		if mc.Conn != nil {
			_ = mc.Conn.Close()
		}
		mc.State = ConnClosed
		mc.Conn = nil
	}
}

// Info is an audit snapshot of a session, returned by eviction paths.
type Info struct {
	CallSID      string    `json:"call_sid"`
	RecordID     string    `json:"record_id,omitempty"`
	CompanyID    string    `json:"company_id,omitempty"`
	Mode         Mode      `json:"mode"`
	StartTime    time.Time `json:"start_time"`
	LastActivity time.Time `json:"last_activity"`
	StreamStatus string    `json:"stream_status,omitempty"`
}

func (s *Session) Snapshot() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Info{
		CallSID:      s.CallSID,
		RecordID:     s.RecordID,
		CompanyID:    s.Flow.CompanyID,
		Mode:         s.Mode,
		StartTime:    s.StartTime,
		LastActivity: s.lastActivity,
		StreamStatus: s.stream.Status,
	}
}
