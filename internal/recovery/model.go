package recovery

import (
	"errors"
	"fmt"
	"time"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Workflow kinds. Both share one state machine; they differ only in policy.
const (
	KindPhoneChange     = "phone_change"
	KindAccountRecovery = "account_recovery"
)

const (
	// StatusPending accepts code attempts until expiry or exhaustion.
	StatusPending = "pending"
	// StatusVerified means a code matched; the change may be applied.
	StatusVerified = "verified"
	// StatusCompleted is terminal: the identifier change was applied.
	StatusCompleted = "completed"
	// StatusFailed is terminal: the attempt cap was reached.
	StatusFailed = "failed"
	// StatusExpired is terminal: the window closed before verification.
	StatusExpired = "expired"
)

// Code delivery methods.
const (
	MethodSMS   = "sms"
	MethodEmail = "email"
)

var (
	// ErrNotFound occurs when no request exists for the identifier.
	ErrNotFound = errors.New("recovery request not found")

	// ErrUserNotFound occurs when no user matches the supplied identifier.
	ErrUserNotFound = errors.New("user not found")

	// ErrStateConflict occurs when a compare-and-set update loses against a
	// concurrent transition.
	ErrStateConflict = errors.New("recovery request state conflict")

	// ErrValidation occurs on malformed caller input.
	ErrValidation = errors.New("invalid recovery input")

	// ErrCodeRejected occurs when the supplied code does not match and
	// attempts remain.
	ErrCodeRejected = errors.New("code rejected")

	// ErrAttemptsExhausted occurs once the attempt cap is reached. A new
	// request is required.
	ErrAttemptsExhausted = errors.New("recovery attempts exhausted")

	// ErrExpired occurs when the request window has closed. Expiry is
	// evaluated lazily on every attempt, so it holds even if no sweep ran.
	ErrExpired = errors.New("recovery request expired")
)

// InvalidStateError reports an operation applied in a status that does not
// permit it.
type InvalidStateError struct {
	Op     string
	Status string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s not permitted in status %s", e.Op, e.Status)
}

// Request is one bounded recovery or phone-change workflow. Identifiers are
// stored as digests only; the raw values pass through at creation time and
// are discarded.
type Request struct {
	ID                    string
	Kind                  string
	UserID                string
	CurrentIdentifierHash zk.Digest
	NewIdentifierHash     zk.Digest
	Method                string
	CodeHash              []byte
	Attempts              int
	MaxAttempts           int
	Status                string
	ExpiresAt             time.Time
	CompletedAt           *time.Time
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Terminal reports whether the request reached a status that admits no
// further transitions.
func (r Request) Terminal() bool {
	switch r.Status {
	case StatusCompleted, StatusFailed, StatusExpired:
		return true
	default:
		return false
	}
}
