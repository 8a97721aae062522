package registry

import (
	"sync"
	"time"
)

// Registry is the single source of truth for live calls. Webhook handlers and
// sweep loops share it, so every access goes through the mutex.
type Registry struct {
	mu       sync.Mutex
	clock    func() time.Time
	sessions map[string]*Session
}

func New() *Registry {
	return &Registry{
		clock:    time.Now,
		sessions: make(map[string]*Session),
	}
}

// SetClock injects a deterministic clock for tests.
func (r *Registry) SetClock(clock func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clock = clock
}

func (r *Registry) Now() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clock()
}

func (r *Registry) Get(callSID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callSID]
	return s, ok
}

func (r *Registry) Set(callSID string, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[callSID] = s
	s.touch(r.clock())
}

// Remove evicts the session and returns it so the caller can tear down media.
func (r *Registry) Remove(callSID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[callSID]
	if ok {
		delete(r.sessions, callSID)
	}
	return s, ok
}

func (r *Registry) ListAll() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Touch marks lifecycle activity on a call so the stale sweep skips it.
func (r *Registry) Touch(callSID string) {
	r.mu.Lock()
	s, ok := r.sessions[callSID]
	now := r.clock()
	r.mu.Unlock()
	if ok {
		s.touch(now)
	}
}

// SweepStale evicts sessions with no lifecycle activity for longer than
// maxAge, closes their media, and returns their snapshots.
func (r *Registry) SweepStale(maxAge time.Duration) []Info {
	r.mu.Lock()
	cutoff := r.clock().Add(-maxAge)
	var stale []*Session
	for sid, s := range r.sessions {
		if s.LastActivity().Before(cutoff) {
			stale = append(stale, s)
			delete(r.sessions, sid)
		}
	}
	r.mu.Unlock()

	removed := make([]Info, 0, len(stale))
	for _, s := range stale {
		s.CloseMedia()
		removed = append(removed, s.Snapshot())
	}
	return removed
}

// ForceCleanupAll evicts every session and returns full details for audit.
// Emergency operator action, not part of normal flow.
func (r *Registry) ForceCleanupAll() []Info {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	removed := make([]Info, 0, len(all))
	for _, s := range all {
		s.CloseMedia()
		removed = append(removed, s.Snapshot())
	}
	return removed
}
