package recovery

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Request
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Request)}
}

func (r *memoryRepository) Create(_ context.Context, request Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[request.ID]; exists {
		return ErrStateConflict
	}
	r.storage[request.ID] = request
	return nil
}

func (r *memoryRepository) Load(_ context.Context, id string) (Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	request, ok := r.storage[id]
	if !ok {
		return Request{}, ErrNotFound
	}
	return request, nil
}

func (r *memoryRepository) Update(_ context.Context, request Request, expectedStatus string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[request.ID]
	if !ok {
		return ErrNotFound
	}
	if current.Status != expectedStatus {
		return ErrStateConflict
	}
	r.storage[request.ID] = request
	return nil
}
