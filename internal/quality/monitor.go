package quality

import "sync"

// Sample is one media quality measurement pushed from a live relay.
type Sample struct {
	RTTMs          float64 `json:"rtt_ms"`
	PacketLossRate float64 `json:"packet_loss_rate"`
	JitterMs       float64 `json:"jitter_ms"`
}

// Level is the audio quality classification of a sample.
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelFair      Level = "fair"
	LevelPoor      Level = "poor"
)

// Classify maps a sample to a quality level using fixed thresholds.
func Classify(s Sample) Level {
	switch {
	case s.RTTMs < 150 && s.PacketLossRate < 0.01:
		return LevelExcellent
	case s.RTTMs < 300 && s.PacketLossRate < 0.03:
		return LevelGood
	case s.RTTMs < 500 && s.PacketLossRate < 0.08:
		return LevelFair
	default:
		return LevelPoor
	}
}

// Aggregate is a rolling view over the most recent samples.
type Aggregate struct {
	AverageRTTMs          float64 `json:"average_rtt_ms"`
	AveragePacketLossRate float64 `json:"average_packet_loss_rate"`
	CallCount             int     `json:"call_count"`
	SampleCount           int     `json:"sample_count"`
	TotalReconnections    int     `json:"total_reconnections"`
	TotalFallbacks        int     `json:"total_fallbacks"`
}

type observation struct {
	callSID string
	sample  Sample
}

// Monitor aggregates quality samples across calls into a bounded window.
// Reconnection and fallback counters are monotonic for the process lifetime.
type Monitor struct {
	mu         sync.Mutex
	windowSize int
	window     []observation
	next       int
	full       bool

	reconnections int
	fallbacks     int
}

func NewMonitor(windowSize int) *Monitor {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &Monitor{
		windowSize: windowSize,
		window:     make([]observation, windowSize),
	}
}

// RecordSample stores the sample and returns its classification.
func (m *Monitor) RecordSample(callSID string, s Sample) Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.window[m.next] = observation{callSID: callSID, sample: s}
	m.next++
	if m.next == m.windowSize {
		m.next = 0
		m.full = true
	}
	return Classify(s)
}

func (m *Monitor) RecordReconnection() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconnections++
}

func (m *Monitor) RecordFallback() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks++
}

// AggregateMetrics averages the current window. CallCount is the number of
// distinct call ids still present in the window.
func (m *Monitor) AggregateMetrics() Aggregate {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := m.next
	if m.full {
		n = m.windowSize
	}

	agg := Aggregate{
		SampleCount:        n,
		TotalReconnections: m.reconnections,
		TotalFallbacks:     m.fallbacks,
	}
	if n == 0 {
		return agg
	}

	calls := make(map[string]struct{}, n)
	var rtt, loss float64
	for i := 0; i < n; i++ {
		obs := m.window[i]
		rtt += obs.sample.RTTMs
		loss += obs.sample.PacketLossRate
		calls[obs.callSID] = struct{}{}
	}
	agg.AverageRTTMs = rtt / float64(n)
	agg.AveragePacketLossRate = loss / float64(n)
	agg.CallCount = len(calls)
	return agg
}
