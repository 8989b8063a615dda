package deposit

import (
	"context"
	"sync"
)

type memoryRepository struct {
	mu      sync.RWMutex
	storage map[string]Deposit
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{storage: make(map[string]Deposit)}
}

func (r *memoryRepository) Create(_ context.Context, d Deposit) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.storage[d.ID]; exists {
		return ErrStateConflict
	}
	r.storage[d.ID] = d
	return nil
}

func (r *memoryRepository) Load(_ context.Context, id string) (Deposit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.storage[id]
	if !ok {
		return Deposit{}, ErrNotFound
	}
	return d, nil
}

func (r *memoryRepository) FindActiveByUser(_ context.Context, userID string) (Deposit, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var (
		found  bool
		latest Deposit
	)
	for _, d := range r.storage {
		if d.UserID != userID || d.Terminal() {
			continue
		}
		if !found || d.CreatedAt.After(latest.CreatedAt) {
			latest = d
			found = true
		}
	}
	if !found {
		return Deposit{}, ErrNotFound
	}
	return latest, nil
}

func (r *memoryRepository) Update(_ context.Context, d Deposit, expectedState string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.storage[d.ID]
	if !ok {
		return ErrNotFound
	}
	if current.State != expectedState {
		return ErrStateConflict
	}
	r.storage[d.ID] = d
	return nil
}
