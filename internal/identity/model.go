package identity

import (
	"errors"
	"time"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

var (
	// ErrNotFound occurs when no user exists for the identifier.
	ErrNotFound = errors.New("user not found")

	// ErrPhoneRegistered occurs when a signup or identifier change targets
	// a phone digest already bound to another user.
	ErrPhoneRegistered = errors.New("phone already registered")

	// ErrValidation occurs on malformed caller input.
	ErrValidation = errors.New("invalid identity input")

	// ErrInvalidFactors occurs when login factors do not prove the stored
	// commitment. Unknown identifiers yield the same error so callers
	// cannot probe which phones are registered.
	ErrInvalidFactors = errors.New("invalid factors")
)

// User is one anchored identity. Raw factors are never stored; the record
// keeps only their digests and the commitment combined from them.
type User struct {
	ID              string
	Address         string
	PhoneDigest     zk.Digest
	BiometricDigest zk.Digest
	PasskeyDigest   zk.Digest
	Commitment      zk.Commitment
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Factors carries the raw signup or login secrets. Values live for the
// duration of one call, are digested immediately and never persisted.
type Factors struct {
	Phone     string
	Biometric string
	Passkey   string
}
