package deposit

import (
	"errors"
	"fmt"
	"time"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

const (
	// StateInitialized is the freshly created record, before the funding
	// transaction is submitted.
	StateInitialized = "initialized"
	// StateAwaitingConfirmation means the funding transaction is submitted
	// and waiting to reach the confirmation threshold.
	StateAwaitingConfirmation = "awaiting_onchain_confirmation"
	// StatePendingVerification means the deposit is confirmed on chain and
	// proof attempts are accepted.
	StatePendingVerification = "pending_verification"
	// StateVerified means a proof matched the commitment.
	StateVerified = "verified"
	// StateSignupCompleted is terminal: the verified deposit anchored a
	// finished signup.
	StateSignupCompleted = "signup_completed"
	// StateFailed means the attempt cap was reached. Failed deposits accept
	// no further proofs but may still be refunded.
	StateFailed = "failed"
	// StateRefunded is terminal: the locked funds were paid back.
	StateRefunded = "refunded"
	// StateAbandoned is terminal: the caller cancelled the cycle.
	StateAbandoned = "abandoned"
)

var (
	// ErrNotFound occurs when no deposit exists for the identifier.
	ErrNotFound = errors.New("deposit not found")

	// ErrStateConflict occurs when a compare-and-set update loses against a
	// concurrent transition. Callers should reload and retry.
	ErrStateConflict = errors.New("deposit state conflict")

	// ErrActiveDepositExists occurs when a user opens a deposit while a
	// previous cycle is still live.
	ErrActiveDepositExists = errors.New("active deposit exists")

	// ErrValidation occurs on malformed caller input.
	ErrValidation = errors.New("invalid deposit input")

	// ErrInsufficientConfirmations occurs when a confirmation report is
	// below the configured threshold. The deposit stays where it is.
	ErrInsufficientConfirmations = errors.New("insufficient confirmations")

	// ErrProofRejected occurs when a structurally sound proof does not
	// match the deposit commitment and attempts remain.
	ErrProofRejected = errors.New("proof rejected")

	// ErrAttemptsExhausted occurs once the verification attempt cap is
	// reached. It is not retryable; a new deposit cycle is required.
	ErrAttemptsExhausted = errors.New("verification attempts exhausted")

	// ErrUtxoNotFound occurs when no script output carries the deposit
	// commitment, because it was already spent or never confirmed.
	ErrUtxoNotFound = errors.New("utxo not found")

	// ErrSubmissionFailed occurs when the provider rejects a transaction.
	// Retry only with a freshly listed UTXO set.
	ErrSubmissionFailed = errors.New("transaction submission failed")
)

// InvalidStateError reports an operation applied in a state that does not
// permit it.
type InvalidStateError struct {
	Op    string
	State string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("%s not permitted in state %s", e.Op, e.State)
}

// ProviderError wraps a blockchain provider failure on a read path. Reads
// are safe to retry as-is.
type ProviderError struct {
	Op  string
	Err error
}

func (e ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Op, e.Err)
}

func (e ProviderError) Unwrap() error {
	return e.Err
}

// Deposit is one signup collateral cycle. Records are never deleted, only
// transitioned until a terminal state.
type Deposit struct {
	ID                   string
	UserID               string
	UserAddress          string
	SenderAddress        string
	Commitment           zk.Commitment
	Amount               int64
	TxHash               string
	State                string
	VerificationAttempts int
	LastAttemptAt        *time.Time
	RefundTxHash         string
	RefundedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Terminal reports whether the deposit reached a state that admits no
// further transitions.
func (d Deposit) Terminal() bool {
	switch d.State {
	case StateSignupCompleted, StateRefunded, StateAbandoned:
		return true
	default:
		return false
	}
}
