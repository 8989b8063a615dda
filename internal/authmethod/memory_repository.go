package authmethod

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	methods map[string][]Method
}

// NewMemoryRepository builds an in-memory method store for development and
// tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{methods: make(map[string][]Method)}
}

func (r *memoryRepository) ListByUser(_ context.Context, userID string) ([]Method, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	stored := r.methods[userID]
	out := make([]Method, len(stored))
	copy(out, stored)
	return out, nil
}

func (r *memoryRepository) Upsert(_ context.Context, userID string, methods []Method) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := make([]Method, len(methods))
	copy(stored, methods)
	r.methods[userID] = stored
	return nil
}
