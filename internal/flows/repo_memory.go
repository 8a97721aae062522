package flows

import (
	"context"
	"sync"
)

// MemoryRepository is an in-memory Repository for tests.
type MemoryRepository struct {
	mu    sync.Mutex
	nodes map[string]Node // keyed by flowID+"\x00"+nodeID
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{nodes: make(map[string]Node)}
}

func (r *MemoryRepository) Put(node Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[node.FlowID+"\x00"+node.ID] = node
}

func (r *MemoryRepository) GetNode(ctx context.Context, flowID, nodeID string) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.nodes[flowID+"\x00"+nodeID]
	if !ok {
		return Node{}, ErrNodeNotFound
	}
	return node, nil
}
