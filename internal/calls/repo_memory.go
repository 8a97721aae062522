package calls

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-memory Repository useful for tests.
// It is not intended for production use.
type MemoryRepository struct {
	mu    sync.Mutex
	byID  map[string]*Record
	bySID map[string]string
	clock func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:  make(map[string]*Record),
		bySID: make(map[string]string),
		clock: time.Now,
	}
}

// SetClock injects a deterministic clock for tests.
func (r *MemoryRepository) SetClock(clock func() time.Time) { r.clock = clock }

func (r *MemoryRepository) Create(ctx context.Context, rec Record) (Record, error) {
	if rec.CallSID == "" || rec.CompanyID == "" {
		return Record{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.bySID[rec.CallSID]; ok {
		return *r.byID[id], nil
	}
	now := r.clock().UTC()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	rec.CreatedAt = now
	rec.UpdatedAt = now
	cp := rec
	r.byID[rec.ID] = &cp
	r.bySID[rec.CallSID] = rec.ID
	return rec, nil
}

func (r *MemoryRepository) GetByCallSID(ctx context.Context, callSID string) (Record, error) {
	if callSID == "" {
		return Record{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySID[callSID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *r.byID[id], nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return *rec, nil
}

func (r *MemoryRepository) ApplyStatus(ctx context.Context, callSID, status string, durationSec *int, endedAt *time.Time) (Record, bool, error) {
	if callSID == "" || status == "" {
		return Record{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.bySID[callSID]
	if !ok {
		return Record{}, false, nil
	}
	rec := r.byID[id]
	rec.Status = status
	if durationSec != nil {
		rec.DurationSeconds = *durationSec
	}
	if endedAt != nil {
		t := endedAt.UTC()
		rec.EndedAt = &t
	}
	rec.UpdatedAt = r.clock().UTC()
	return *rec, true, nil
}

func (r *MemoryRepository) SetTranscript(ctx context.Context, callSID, transcript string) error {
	if callSID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.bySID[callSID]
	if !ok {
		return nil
	}
	r.byID[id].Transcript = transcript
	r.byID[id].UpdatedAt = r.clock().UTC()
	return nil
}

func (r *MemoryRepository) UpdateMetadata(ctx context.Context, id string, mutate func(*Metadata)) (Record, bool, error) {
	if id == "" || mutate == nil {
		return Record{}, false, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, false, nil
	}
	mutate(&rec.Metadata)
	rec.UpdatedAt = r.clock().UTC()
	return *rec, true, nil
}

func (r *MemoryRepository) ListOpenConferences(ctx context.Context, startedBefore time.Time) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Record
	for _, rec := range r.byID {
		if rec.Metadata.ConferenceSID == "" || rec.Metadata.ConferenceEndedAt != nil {
			continue
		}
		if rec.Metadata.ConferenceStartedAt == nil || !rec.Metadata.ConferenceStartedAt.Before(startedBefore) {
			continue
		}
		if IsTerminal(rec.Status) {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}
