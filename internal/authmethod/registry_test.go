package authmethod

import (
	"errors"
	"testing"
	"time"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/logging"
)

func validSet(t *testing.T) []Method {
	t.Helper()
	now := time.Now().UTC()
	return []Method{
		{ID: "m-phone", Type: TypePhone, CreatedAt: now},
		{ID: "m-pin", Type: TypePin, Data: []byte("hashed-pin"), CreatedAt: now},
		{ID: "m-passkey", Type: TypePasskey, CreatedAt: now},
		{ID: "m-finger", Type: TypeFingerprint, CreatedAt: now},
	}
}

func TestValidateTooFewMethods(t *testing.T) {
	registry := NewRegistry(logging.Discard())

	err := registry.Validate(validSet(t)[:2])
	if !errors.Is(err, ErrTooFewMethods) {
		t.Fatalf("expected ErrTooFewMethods, got %v", err)
	}
}

func TestValidateMissingPinData(t *testing.T) {
	registry := NewRegistry(logging.Discard())

	methods := validSet(t)
	methods[1].Data = nil

	err := registry.Validate(methods)
	var missing MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if missing.Type != TypePin || missing.Field != "data" {
		t.Fatalf("expected MissingField(pin, data), got (%s, %s)", missing.Type, missing.Field)
	}
}

func TestValidateMissingCreatedAt(t *testing.T) {
	registry := NewRegistry(logging.Discard())

	methods := validSet(t)
	methods[2].CreatedAt = time.Time{}

	err := registry.Validate(methods)
	var missing MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if missing.Field != "createdAt" {
		t.Fatalf("expected createdAt field, got %s", missing.Field)
	}
}

func TestValidateFaceRequiresData(t *testing.T) {
	registry := NewRegistry(logging.Discard())

	methods := validSet(t)[:3]
	methods = append(methods, Method{ID: "m-face", Type: TypeFace, CreatedAt: time.Now().UTC()})

	err := registry.Validate(methods)
	var missing MissingFieldError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingFieldError, got %v", err)
	}
	if missing.Type != TypeFace || missing.Field != "data" {
		t.Fatalf("expected MissingField(face, data), got (%s, %s)", missing.Type, missing.Field)
	}
}

func TestValidateAcceptsUnknownType(t *testing.T) {
	registry := NewRegistry(logging.Discard())

	methods := validSet(t)[:3]
	methods = append(methods, Method{ID: "m-new", Type: Type("voiceprint"), CreatedAt: time.Now().UTC()})

	if err := registry.Validate(methods); err != nil {
		t.Fatalf("expected unknown type to pass, got %v", err)
	}
}

func TestCanRemove(t *testing.T) {
	registry := NewRegistry(logging.Discard())
	methods := validSet(t)

	// Four valid methods: removing one leaves three.
	if !registry.CanRemove(methods, "m-finger") {
		t.Fatal("expected removal from a set of four to be allowed")
	}

	// Exactly three valid methods: nothing may go.
	if registry.CanRemove(methods[:3], "m-phone") {
		t.Fatal("expected removal from a set of three to be blocked")
	}
}

func TestCanRemoveIgnoresInvalidEntries(t *testing.T) {
	registry := NewRegistry(logging.Discard())

	methods := validSet(t)
	methods[1].Data = nil // pin without data no longer counts as valid

	// Three valid + one invalid: removing a valid one leaves two.
	if registry.CanRemove(methods, "m-phone") {
		t.Fatal("expected removal to be blocked when invalid entries do not count")
	}
}
