package quality

import "testing"

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		sample Sample
		want   Level
	}{
		{"excellent", Sample{RTTMs: 80, PacketLossRate: 0.001}, LevelExcellent},
		{"good rtt boundary", Sample{RTTMs: 150, PacketLossRate: 0.001}, LevelGood},
		{"good loss boundary", Sample{RTTMs: 80, PacketLossRate: 0.02}, LevelGood},
		{"fair", Sample{RTTMs: 400, PacketLossRate: 0.05}, LevelFair},
		{"poor rtt", Sample{RTTMs: 900, PacketLossRate: 0}, LevelPoor},
		{"poor loss", Sample{RTTMs: 80, PacketLossRate: 0.2}, LevelPoor},
	}
	for _, tc := range cases {
		if got := Classify(tc.sample); got != tc.want {
			t.Fatalf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestAggregateMetrics(t *testing.T) {
	m := NewMonitor(10)

	if agg := m.AggregateMetrics(); agg.SampleCount != 0 || agg.CallCount != 0 {
		t.Fatalf("empty monitor must report zeros, got %+v", agg)
	}

	m.RecordSample("CA1", Sample{RTTMs: 100, PacketLossRate: 0.01})
	m.RecordSample("CA1", Sample{RTTMs: 200, PacketLossRate: 0.03})
	m.RecordSample("CA2", Sample{RTTMs: 300, PacketLossRate: 0.05})
	m.RecordReconnection()
	m.RecordFallback()
	m.RecordFallback()

	agg := m.AggregateMetrics()
	if agg.SampleCount != 3 || agg.CallCount != 2 {
		t.Fatalf("unexpected counts: %+v", agg)
	}
	if agg.AverageRTTMs != 200 {
		t.Fatalf("expected average rtt 200, got %v", agg.AverageRTTMs)
	}
	if agg.AveragePacketLossRate != 0.03 {
		t.Fatalf("expected average loss 0.03, got %v", agg.AveragePacketLossRate)
	}
	if agg.TotalReconnections != 1 || agg.TotalFallbacks != 2 {
		t.Fatalf("unexpected counters: %+v", agg)
	}
}

func TestAggregateWindowBounded(t *testing.T) {
	m := NewMonitor(2)
	m.RecordSample("CA1", Sample{RTTMs: 1000})
	m.RecordSample("CA2", Sample{RTTMs: 100})
	m.RecordSample("CA3", Sample{RTTMs: 100})

	agg := m.AggregateMetrics()
	if agg.SampleCount != 2 {
		t.Fatalf("window must be bounded at 2, got %d", agg.SampleCount)
	}
	// The oldest sample (CA1) has been evicted.
	if agg.AverageRTTMs != 100 {
		t.Fatalf("expected evicted outlier, average %v", agg.AverageRTTMs)
	}
	if agg.CallCount != 2 {
		t.Fatalf("expected 2 distinct calls in window, got %d", agg.CallCount)
	}
}
