package registry

import (
	"sync"
	"time"
)

// TimerStore holds cancellable timers keyed by a stable identifier.
// Scheduling a key that already has a live timer cancels the previous one, so
// at most one timer exists per key.
type TimerStore struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func NewTimerStore() *TimerStore {
	return &TimerStore{timers: make(map[string]*time.Timer)}
}

// Timer key conventions shared by the call status path and the conference
// scheduler, so either side can cancel the other's handles.
func ConferenceTimerKey(recordID string) string { return recordID }
func AgentJoinTimerKey(recordID string) string  { return recordID + ":agent-join" }

// Schedule arms fn to run after d, replacing any existing timer for key.
func (ts *TimerStore) Schedule(key string, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if prev, ok := ts.timers[key]; ok {
		prev.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(d, func() {
		ts.mu.Lock()
		current, ok := ts.timers[key]
		if !ok || current != t {
			// Cancelled or superseded after firing began.
			ts.mu.Unlock()
			return
		}
		delete(ts.timers, key)
		ts.mu.Unlock()
		fn()
	})
	ts.timers[key] = t
}

// Cancel stops and clears the timer for key. Reports whether one existed.
func (ts *TimerStore) Cancel(key string) bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(ts.timers, key)
	return true
}

func (ts *TimerStore) Len() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return len(ts.timers)
}

// CancelAll stops every pending timer and returns how many were cleared.
func (ts *TimerStore) CancelAll() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	n := len(ts.timers)
	for key, t := range ts.timers {
		t.Stop()
		delete(ts.timers, key)
	}
	return n
}
