package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen means call initiation must fail fast without network I/O.
var ErrCircuitOpen = errors.New("circuit breaker open")

const maxBackoff = time.Hour

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

// Breaker gates outbound call initiation on consecutive failures.
//
// Opens after `threshold` consecutive failures; the retry window backs off
// exponentially with each trip. The half-open trial is single-shot: one call
// is let through, and one failure during it re-opens immediately.
type Breaker struct {
	mu    sync.Mutex
	clock func() time.Time

	threshold int
	cooldown  time.Duration

	state         state
	trialInFlight bool
	failures      int
	byType        map[string]int
	trips         int
	nextAttempt   time.Time
}

func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		clock:     time.Now,
		threshold: threshold,
		cooldown:  cooldown,
		byType:    make(map[string]int),
	}
}

// SetClock injects a deterministic clock for tests.
func (b *Breaker) SetClock(clock func() time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clock = clock
}

// Allow reports whether a new outbound call may be initiated now.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return nil
	case stateOpen:
		if !b.clock().Before(b.nextAttempt) {
			b.state = stateHalfOpen
			b.trialInFlight = true
			return nil
		}
		return ErrCircuitOpen
	default: // half-open
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	}
}

// RecordFailure notes a failed initiation of the given type.
func (b *Breaker) RecordFailure(failureType string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if failureType != "" {
		b.byType[failureType]++
	}

	if b.state == stateHalfOpen || (b.state == stateClosed && b.failures >= b.threshold) {
		b.trip()
	}
}

// RecordSuccess closes the breaker and clears consecutive-failure tracking.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = stateClosed
	b.trialInFlight = false
	b.failures = 0
	b.byType = make(map[string]int)
}

func (b *Breaker) trip() {
	b.trips++
	b.state = stateOpen
	b.trialInFlight = false

	backoff := b.cooldown
	for i := 1; i < b.trips; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			backoff = maxBackoff
			break
		}
	}
	b.nextAttempt = b.clock().Add(backoff)
}

// State is a snapshot for monitoring.
type State struct {
	IsOpen             bool           `json:"is_open"`
	FailureCount       int            `json:"failure_count"`
	FailureCountByType map[string]int `json:"failure_count_by_type"`
	NextAttemptTime    *time.Time     `json:"next_attempt_time,omitempty"`
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := State{
		IsOpen:             b.state == stateOpen,
		FailureCount:       b.failures,
		FailureCountByType: make(map[string]int, len(b.byType)),
	}
	for k, v := range b.byType {
		s.FailureCountByType[k] = v
	}
	if b.state == stateOpen {
		t := b.nextAttempt
		s.NextAttemptTime = &t
	}
	return s
}

// RecoveryResult reports the outcome of a manual recovery attempt.
type RecoveryResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// AttemptRecovery is an explicit administrative override: it clears the open
// flag and lets one trial call through. A failure during the trial re-opens
// immediately with an incremented backoff.
func (b *Breaker) AttemptRecovery() RecoveryResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateClosed {
		return RecoveryResult{Success: false, Message: "circuit breaker is not open"}
	}
	b.state = stateHalfOpen
	b.trialInFlight = false
	return RecoveryResult{Success: true, Message: "circuit breaker reset; next call is a single trial"}
}
