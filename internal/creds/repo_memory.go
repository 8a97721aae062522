package creds

import (
	"context"
	"sync"
)

// MemoryConnectionRepository is an in-memory ConnectionRepository for tests.
type MemoryConnectionRepository struct {
	mu    sync.Mutex
	conns map[string]Connection
}

func NewMemoryConnectionRepository() *MemoryConnectionRepository {
	return &MemoryConnectionRepository{conns: make(map[string]Connection)}
}

func (r *MemoryConnectionRepository) Put(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[conn.ID] = conn
}

func (r *MemoryConnectionRepository) GetByID(ctx context.Context, id string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.conns[id]
	if !ok {
		return Connection{}, ErrConnectionNotFound
	}
	return conn, nil
}

func (r *MemoryConnectionRepository) GetActiveByCompany(ctx context.Context, companyID string) (Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		if conn.CompanyID == companyID && conn.Active {
			return conn, nil
		}
	}
	return Connection{}, ErrConnectionNotFound
}
