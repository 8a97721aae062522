package costs

import (
	"context"
	"sync"
)

// MemoryChargeRepository is an in-memory ChargeRepository for tests.
type MemoryChargeRepository struct {
	mu      sync.Mutex
	charges map[string]Charge
}

func NewMemoryChargeRepository() *MemoryChargeRepository {
	return &MemoryChargeRepository{charges: make(map[string]Charge)}
}

func (r *MemoryChargeRepository) Insert(ctx context.Context, ch Charge) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.charges[ch.CallRecordID]; ok {
		return false, nil
	}
	r.charges[ch.CallRecordID] = ch
	return true, nil
}

func (r *MemoryChargeRepository) GetByCallRecordID(ctx context.Context, callRecordID string) (Charge, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.charges[callRecordID]
	return ch, ok, nil
}
