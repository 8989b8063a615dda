package identity

import (
	"context"
	"sync"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]User
	byPhone map[zk.Digest]string
}

// NewMemoryRepository constructs an in-memory repository for tests and
// development mode.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:    make(map[string]User),
		byPhone: make(map[zk.Digest]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[user.ID]; exists {
		return ErrPhoneRegistered
	}
	if _, exists := r.byPhone[user.PhoneDigest]; exists {
		return ErrPhoneRegistered
	}
	r.byID[user.ID] = user
	r.byPhone[user.PhoneDigest] = user.ID
	return nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.byID[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByPhoneDigest(_ context.Context, digest zk.Digest) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPhone[digest]
	if !ok {
		return User{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) UpdateFactors(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	if current.PhoneDigest != user.PhoneDigest {
		delete(r.byPhone, current.PhoneDigest)
		r.byPhone[user.PhoneDigest] = user.ID
	}
	r.byID[user.ID] = user
	return nil
}
