package withdrawal

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory withdrawal store for demo/development mode.
type MemoryStore struct {
	mu       sync.Mutex
	requests map[string]*Request
	order    []string // insertion order for listing
}

// NewMemoryStore creates a new in-memory withdrawal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{requests: make(map[string]*Request)}
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (m *MemoryStore) Create(ctx context.Context, req *Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *req
	m.requests[cp.ID] = &cp
	m.order = append(m.order, cp.ID)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, accountID string, limit int) ([]*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Request
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		req := m.requests[m.order[i]]
		if req.AccountID != accountID {
			continue
		}
		cp := *req
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*Request
	for i := len(m.order) - 1; i >= 0 && len(result) < limit; i-- {
		req := m.requests[m.order[i]]
		if req.Status != status {
			continue
		}
		cp := *req
		result = append(result, &cp)
	}
	return result, nil
}

// transition applies a CAS status change under the store lock.
func (m *MemoryStore) transition(id string, from, to Status, mutate func(*Request)) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, ErrNotFound
	}
	if req.Status != from {
		return nil, ErrStateConflict
	}

	req.Status = to
	if mutate != nil {
		mutate(req)
	}
	cp := *req
	return &cp, nil
}

func (m *MemoryStore) MarkProcessing(ctx context.Context, id string) (*Request, error) {
	return m.transition(id, StatusPending, StatusProcessing, nil)
}

func (m *MemoryStore) MarkCompleted(ctx context.Context, id, transferID string) (*Request, error) {
	return m.transition(id, StatusProcessing, StatusCompleted, func(req *Request) {
		now := time.Now()
		req.TransferID = transferID
		req.ProcessedAt = &now
	})
}

func (m *MemoryStore) MarkRejected(ctx context.Context, id, reason string) (*Request, error) {
	return m.transition(id, StatusPending, StatusRejected, func(req *Request) {
		now := time.Now()
		req.RejectionReason = reason
		req.ProcessedAt = &now
	})
}

func (m *MemoryStore) MarkPending(ctx context.Context, id string) (*Request, error) {
	return m.transition(id, StatusProcessing, StatusPending, nil)
}

func (m *MemoryStore) ReopenForSettlement(ctx context.Context, id string) (*Request, error) {
	return m.transition(id, StatusCompleted, StatusProcessing, nil)
}
