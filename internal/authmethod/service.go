package authmethod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/audit"
)

var (
	// ErrMethodNotFound occurs when a mutation targets a method the user
	// does not have.
	ErrMethodNotFound = errors.New("auth method not found")

	// ErrBelowMinimum occurs when a removal would leave fewer than
	// MinMethods valid methods.
	ErrBelowMinimum = errors.New("auth method set would drop below minimum")
)

// Service manages a user's registered authentication methods under the
// registry invariant.
type Service struct {
	repo     Repository
	registry *Registry
	audit    *audit.Recorder
}

// NewService creates an auth method service.
func NewService(repo Repository, registry *Registry, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, registry: registry, audit: recorder}
}

// List returns the user's registered methods.
func (s *Service) List(ctx context.Context, userID string) ([]Method, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ValidateSeeds reports whether the declared set would satisfy the registry
// invariant, without persisting anything. Signup uses it to reject a bad
// declaration before any record is written.
func (s *Service) ValidateSeeds(seeds []Seed) error {
	now := time.Now().UTC()
	methods := make([]Method, 0, len(seeds))
	for _, seed := range seeds {
		methods = append(methods, Method{ID: "candidate", Type: seed.Type, Data: seed.Data, CreatedAt: now})
	}
	return s.registry.Validate(methods)
}

// Register stores the initial method set declared at signup. The whole set
// must satisfy the registry invariant; nothing is persisted otherwise.
func (s *Service) Register(ctx context.Context, userID string, seeds []Seed) ([]Method, error) {
	now := time.Now().UTC()
	methods := make([]Method, 0, len(seeds))
	for _, seed := range seeds {
		methods = append(methods, Method{
			ID:        uuid.NewString(),
			UserID:    userID,
			Type:      seed.Type,
			Data:      seed.Data,
			CreatedAt: now,
		})
	}

	if err := s.registry.Validate(methods); err != nil {
		return nil, err
	}
	if err := s.repo.Upsert(ctx, userID, methods); err != nil {
		return nil, err
	}

	s.audit.Emit(audit.Event{UserID: userID, Subject: userID, Action: "authmethod.registered", Outcome: fmt.Sprintf("%d methods", len(methods))})
	return methods, nil
}

// Add appends one method to the user's set.
func (s *Service) Add(ctx context.Context, userID string, seed Seed) (Method, error) {
	existing, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return Method{}, err
	}

	method := Method{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      seed.Type,
		Data:      seed.Data,
		CreatedAt: time.Now().UTC(),
	}

	updated := append(existing, method)
	if err := s.registry.Validate(updated); err != nil {
		return Method{}, err
	}
	if err := s.repo.Upsert(ctx, userID, updated); err != nil {
		return Method{}, err
	}

	s.audit.Emit(audit.Event{UserID: userID, Subject: method.ID, Action: "authmethod.added", Outcome: string(method.Type)})
	return method, nil
}

// Remove deletes one method, rejecting removals that would break the
// invariant. The stored set is untouched on rejection.
func (s *Service) Remove(ctx context.Context, userID, methodID string) error {
	existing, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	index := -1
	for i, m := range existing {
		if m.ID == methodID {
			index = i
			break
		}
	}
	if index < 0 {
		return ErrMethodNotFound
	}

	if !s.registry.CanRemove(existing, methodID) {
		return fmt.Errorf("%w: %d methods required", ErrBelowMinimum, MinMethods)
	}

	removed := existing[index]
	remaining := append(existing[:index:index], existing[index+1:]...)
	if err := s.repo.Upsert(ctx, userID, remaining); err != nil {
		return err
	}

	s.audit.Emit(audit.Event{UserID: userID, Subject: methodID, Action: "authmethod.removed", Outcome: string(removed.Type)})
	return nil
}

// Touch stamps LastUsedAt on every method of the given types. Called after a
// successful login with those factors.
func (s *Service) Touch(ctx context.Context, userID string, types ...Type) error {
	existing, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	touched := false
	for i := range existing {
		for _, t := range types {
			if existing[i].Type == t {
				existing[i].LastUsedAt = &now
				touched = true
				break
			}
		}
	}
	if !touched {
		return nil
	}
	return s.repo.Upsert(ctx, userID, existing)
}
