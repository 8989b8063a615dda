package authmethod

import (
	"errors"
	"fmt"
	"log/slog"
)

// MinMethods is the smallest method set an identity may hold.
const MinMethods = 3

var (
	// ErrTooFewMethods occurs when a method set is smaller than MinMethods.
	ErrTooFewMethods = errors.New("too few auth methods")
)

// MissingFieldError reports a type-specific required field absent from a
// method.
type MissingFieldError struct {
	Type  Type
	Field string
}

func (e MissingFieldError) Error() string {
	return fmt.Sprintf("auth method %s missing %s", e.Type, e.Field)
}

// Registry enforces the structural rules over a user's registered methods:
// at least MinMethods entries, each valid for its type.
type Registry struct {
	logger *slog.Logger
}

// NewRegistry builds a registry. The logger records unknown method types,
// which are accepted rather than rejected.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Validate checks the whole method set. It fails with ErrTooFewMethods below
// MinMethods entries, and with MissingFieldError for the first structurally
// invalid entry.
func (r *Registry) Validate(methods []Method) error {
	if len(methods) < MinMethods {
		return fmt.Errorf("%w: need %d, have %d", ErrTooFewMethods, MinMethods, len(methods))
	}
	for _, m := range methods {
		if err := r.validateMethod(m); err != nil {
			return err
		}
	}
	return nil
}

// CanRemove reports whether the set stays valid after removing the method
// with the given id.
func (r *Registry) CanRemove(methods []Method, targetID string) bool {
	valid := 0
	for _, m := range methods {
		if m.ID == targetID {
			continue
		}
		if r.validateMethod(m) == nil {
			valid++
		}
	}
	return valid >= MinMethods
}

func (r *Registry) validateMethod(m Method) error {
	if m.CreatedAt.IsZero() {
		return MissingFieldError{Type: m.Type, Field: "createdAt"}
	}

	switch m.Type {
	case TypePin, TypeFace:
		if len(m.Data) == 0 {
			return MissingFieldError{Type: m.Type, Field: "data"}
		}
	case TypePhone, TypeBiometric, TypePasskey, TypeFingerprint:
		// No payload required.
	default:
		if r.logger != nil {
			r.logger.Warn("unknown auth method type accepted", "type", string(m.Type))
		}
	}
	return nil
}
