package deposit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/audit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/chain"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/keylock"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/logging"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/metrics"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/notification"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Lifecycle defaults, overridable through Options.
const (
	DefaultAmount           = 2_000_000
	DefaultMaxAttempts      = 3
	DefaultMinConfirmations = 1
)

// Options tunes the deposit lifecycle. Zero fields fall back to defaults.
type Options struct {
	ScriptAddress    string
	Amount           int64
	MaxAttempts      int
	MinConfirmations int
	Logger           *slog.Logger
	Metrics          *metrics.Metrics
	Audit            *audit.Recorder
	Notifier         notification.Notifier
}

// Service drives signup deposits from creation to a terminal state. All
// transitions for one deposit are serialized on a per-deposit lock and
// persisted with compare-and-set, so a lost race surfaces as ErrStateConflict
// instead of a silent overwrite.
type Service struct {
	repo             Repository
	engine           *zk.Engine
	provider         chain.Provider
	locks            *keylock.KeyLock
	scriptAddress    string
	amount           int64
	maxAttempts      int
	minConfirmations int
	logger           *slog.Logger
	metrics          *metrics.Metrics
	audit            *audit.Recorder
	notifier         notification.Notifier
}

// NewService constructs a deposit service.
func NewService(repo Repository, engine *zk.Engine, provider chain.Provider, opts Options) *Service {
	if opts.Amount <= 0 {
		opts.Amount = DefaultAmount
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.MinConfirmations <= 0 {
		opts.MinConfirmations = DefaultMinConfirmations
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		repo:             repo,
		engine:           engine,
		provider:         provider,
		locks:            keylock.New(),
		scriptAddress:    opts.ScriptAddress,
		amount:           opts.Amount,
		maxAttempts:      opts.MaxAttempts,
		minConfirmations: opts.MinConfirmations,
		logger:           opts.Logger,
		metrics:          opts.Metrics,
		audit:            opts.Audit,
		notifier:         opts.Notifier,
	}
}

// Open starts a deposit cycle for the user: it records the deposit, submits
// the funding transaction locking the amount at the script address with the
// user's commitment in the datum, and leaves the deposit awaiting on-chain
// confirmation. A user may hold at most one non-terminal deposit; when the
// funding submission fails the fresh record is abandoned so the user is not
// locked out of retrying.
func (s *Service) Open(ctx context.Context, userID, userAddress string, commitment zk.Commitment, amount int64) (Deposit, error) {
	if strings.TrimSpace(userID) == "" {
		return Deposit{}, fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(userAddress) == "" {
		return Deposit{}, fmt.Errorf("%w: user address is required", ErrValidation)
	}
	if commitment.IsZero() {
		return Deposit{}, fmt.Errorf("%w: commitment is required", ErrValidation)
	}
	if amount <= 0 {
		amount = s.amount
	}

	unlock := s.locks.Lock("open/" + userID)
	defer unlock()

	switch _, err := s.repo.FindActiveByUser(ctx, userID); {
	case err == nil:
		return Deposit{}, ErrActiveDepositExists
	case !errors.Is(err, ErrNotFound):
		return Deposit{}, err
	}

	now := time.Now().UTC()
	d := Deposit{
		ID:          uuid.New().String(),
		UserID:      userID,
		UserAddress: userAddress,
		Commitment:  commitment,
		Amount:      amount,
		State:       StateInitialized,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return Deposit{}, err
	}
	s.metrics.IncDepositTransition(StateInitialized)

	start := time.Now()
	txHash, err := s.provider.PlaceFunds(ctx, s.scriptAddress, d.Commitment, d.Amount)
	s.metrics.ObserveProvider("place_funds", time.Since(start))
	if err != nil {
		s.logger.Error("funding submission failed", "deposit_id", d.ID, "error", err)
		if aerr := s.transition(ctx, &d, StateInitialized, StateAbandoned); aerr != nil {
			s.logger.Error("could not abandon unfunded deposit", "deposit_id", d.ID, "error", aerr)
		}
		s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.opened", Outcome: "failed", Reason: "funding submission rejected"})
		return Deposit{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	d.TxHash = txHash
	if err := s.transition(ctx, &d, StateInitialized, StateAwaitingConfirmation); err != nil {
		return Deposit{}, err
	}
	s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.opened", Outcome: "ok"})
	s.logger.Info("deposit opened", "deposit_id", d.ID, "user_id", d.UserID, "tx_hash", txHash, "amount", d.Amount)
	return d, nil
}

// RecordDeposit applies an externally observed confirmation report, for
// example from a chain watcher callback. The deposit advances to pending
// verification once the threshold is met; below it nothing changes.
func (s *Service) RecordDeposit(ctx context.Context, id, txHash, senderAddress string, confirmations int) (Deposit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	if d.State != StateAwaitingConfirmation {
		return d, InvalidStateError{Op: "record deposit", State: d.State}
	}
	if txHash != "" && d.TxHash != "" && txHash != d.TxHash {
		return d, fmt.Errorf("%w: tx hash does not match the funding transaction", ErrValidation)
	}
	if txHash != "" && d.TxHash == "" {
		d.TxHash = txHash
	}
	return s.advance(ctx, d, senderAddress, confirmations)
}

// Confirm asks the provider for the funding transaction's confirmation count
// and advances the deposit when the threshold is met. The observed count is
// returned either way.
func (s *Service) Confirm(ctx context.Context, id, senderAddress string) (Deposit, int, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, 0, err
	}
	if d.State != StateAwaitingConfirmation {
		return d, 0, InvalidStateError{Op: "confirm", State: d.State}
	}
	confirmations, err := s.confirmationsFor(ctx, d.TxHash)
	if err != nil {
		return d, 0, err
	}
	d, err = s.advance(ctx, d, senderAddress, confirmations)
	return d, confirmations, err
}

func (s *Service) advance(ctx context.Context, d Deposit, senderAddress string, confirmations int) (Deposit, error) {
	if confirmations < s.minConfirmations {
		return d, fmt.Errorf("%w: %d of %d", ErrInsufficientConfirmations, confirmations, s.minConfirmations)
	}
	if sender := strings.TrimSpace(senderAddress); sender != "" {
		d.SenderAddress = sender
	}
	if err := s.transition(ctx, &d, StateAwaitingConfirmation, StatePendingVerification); err != nil {
		return Deposit{}, err
	}
	s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.confirmed", Outcome: "ok"})
	return d, nil
}

// Status returns the deposit together with the funding transaction's current
// confirmation count. It never changes state.
func (s *Service) Status(ctx context.Context, id string) (Deposit, int, error) {
	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, 0, err
	}
	if d.TxHash == "" {
		return d, 0, nil
	}
	confirmations, err := s.confirmationsFor(ctx, d.TxHash)
	if err != nil {
		return d, 0, err
	}
	return d, confirmations, nil
}

// AttemptVerification evaluates a prepared proof object against the deposit
// commitment. The attempt is persisted before the outcome is evaluated, so a
// crash between the two can only waste an attempt, never grant a free one.
func (s *Service) AttemptVerification(ctx context.Context, id string, proof zk.Proof) (Deposit, error) {
	return s.attempt(ctx, id, func(Deposit) (zk.Proof, error) { return proof, nil })
}

// AttemptVerificationWithFactors derives a proof from raw factors and
// evaluates it. Structurally malformed factors are rejected before the
// attempt counter moves; a wrong-but-well-formed secret consumes an attempt.
func (s *Service) AttemptVerificationWithFactors(ctx context.Context, id string, factors zk.RawFactors) (Deposit, error) {
	return s.attempt(ctx, id, func(d Deposit) (zk.Proof, error) {
		return s.engine.ProveFor(factors, d.Commitment)
	})
}

func (s *Service) attempt(ctx context.Context, id string, prove func(Deposit) (zk.Proof, error)) (Deposit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	switch d.State {
	case StatePendingVerification:
	case StateFailed:
		return d, ErrAttemptsExhausted
	default:
		return d, InvalidStateError{Op: "attempt verification", State: d.State}
	}

	proof, err := prove(d)
	if err != nil {
		return d, err
	}

	now := time.Now().UTC()
	d.VerificationAttempts++
	d.LastAttemptAt = &now
	d.UpdatedAt = now
	if err := s.repo.Update(ctx, d, StatePendingVerification); err != nil {
		return Deposit{}, err
	}

	if s.engine.Verify(proof, d.Commitment) {
		if err := s.transition(ctx, &d, StatePendingVerification, StateVerified); err != nil {
			return Deposit{}, err
		}
		s.metrics.IncVerification("verified")
		s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.verification", Outcome: "verified"})
		return d, nil
	}

	if d.VerificationAttempts >= s.maxAttempts {
		if err := s.transition(ctx, &d, StatePendingVerification, StateFailed); err != nil {
			return Deposit{}, err
		}
		s.metrics.IncVerification("exhausted")
		s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.verification", Outcome: "exhausted"})
		return d, ErrAttemptsExhausted
	}

	s.metrics.IncVerification("rejected")
	s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.verification", Outcome: "rejected"})
	return d, fmt.Errorf("%w: attempt %d of %d", ErrProofRejected, d.VerificationAttempts, s.maxAttempts)
}

// CompleteSignup closes a verified deposit. The locked funds stay at the
// script address as the anchor for the finished signup.
func (s *Service) CompleteSignup(ctx context.Context, id string) (Deposit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	if d.State != StateVerified {
		return d, InvalidStateError{Op: "complete signup", State: d.State}
	}
	if err := s.transition(ctx, &d, StateVerified, StateSignupCompleted); err != nil {
		return Deposit{}, err
	}
	s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.signup_completed", Outcome: "ok"})
	return d, nil
}

// IssueRefund pays the locked amount back to the owner. It lists the script
// UTXOs, picks the one whose datum carries the deposit commitment and spends
// it to the owner address, defaulting to the user address captured at open.
// Completed and abandoned cycles are rejected outright; a deposit already
// refunded naturally fails the UTXO lookup because its output is spent.
func (s *Service) IssueRefund(ctx context.Context, id, ownerAddress string) (Deposit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	switch d.State {
	case StateSignupCompleted, StateAbandoned:
		return d, InvalidStateError{Op: "issue refund", State: d.State}
	}

	owner := strings.TrimSpace(ownerAddress)
	if owner == "" {
		owner = d.UserAddress
	}

	utxos, err := s.listUtxos(ctx)
	if err != nil {
		return d, err
	}
	var match *chain.Utxo
	for i := range utxos {
		if utxos[i].DatumCommitment == d.Commitment {
			match = &utxos[i]
			break
		}
	}
	if match == nil {
		return d, fmt.Errorf("%w: no script output carries the deposit commitment", ErrUtxoNotFound)
	}

	redeemer, err := json.Marshal(refundRedeemer{Action: "refund", DepositID: d.ID, Owner: owner})
	if err != nil {
		return d, err
	}

	start := time.Now()
	refundTx, err := s.provider.SpendUtxo(ctx, *match, redeemer, owner)
	s.metrics.ObserveProvider("spend_utxo", time.Since(start))
	if err != nil {
		s.logger.Error("refund submission failed", "deposit_id", d.ID, "utxo", match.TxHash, "error", err)
		return d, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	expected := d.State
	now := time.Now().UTC()
	d.RefundTxHash = refundTx
	d.RefundedAt = &now
	if err := s.transition(ctx, &d, expected, StateRefunded); err != nil {
		return Deposit{}, err
	}
	s.metrics.IncRefund()
	s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.refunded", Outcome: "ok"})
	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindDepositRefunded,
			Destination: owner,
			Body:        fmt.Sprintf("Deposit %s refunded in transaction %s", d.ID, refundTx),
		})
	}
	s.logger.Info("deposit refunded", "deposit_id", d.ID, "refund_tx", refundTx, "owner", owner)
	return d, nil
}

// Abandon cancels a deposit cycle before it reaches a terminal state.
// Abandonment is final: a caller who wants locked funds back must issue the
// refund before abandoning.
func (s *Service) Abandon(ctx context.Context, id string) (Deposit, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	d, err := s.repo.Load(ctx, id)
	if err != nil {
		return Deposit{}, err
	}
	if d.Terminal() {
		return d, InvalidStateError{Op: "abandon", State: d.State}
	}
	expected := d.State
	if err := s.transition(ctx, &d, expected, StateAbandoned); err != nil {
		return Deposit{}, err
	}
	s.audit.Emit(audit.Event{UserID: d.UserID, Subject: d.ID, Action: "deposit.abandoned", Outcome: "ok"})
	return d, nil
}

func (s *Service) transition(ctx context.Context, d *Deposit, from, to string) error {
	d.State = to
	d.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, *d, from); err != nil {
		return err
	}
	s.metrics.IncDepositTransition(to)
	return nil
}

func (s *Service) confirmationsFor(ctx context.Context, txHash string) (int, error) {
	start := time.Now()
	confirmations, err := s.provider.GetConfirmations(ctx, txHash)
	s.metrics.ObserveProvider("get_confirmations", time.Since(start))
	if err != nil {
		return 0, ProviderError{Op: "get_confirmations", Err: err}
	}
	return confirmations, nil
}

// listUtxos reads the script outputs with a short exponential backoff; the
// listing is a pure read, safe to repeat.
func (s *Service) listUtxos(ctx context.Context) ([]chain.Utxo, error) {
	var utxos []chain.Utxo
	backoff := retry.WithMaxRetries(2, retry.NewExponential(50*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		start := time.Now()
		found, lerr := s.provider.ListUtxosAt(ctx, s.scriptAddress)
		s.metrics.ObserveProvider("list_utxos", time.Since(start))
		if lerr != nil {
			return retry.RetryableError(lerr)
		}
		utxos = found
		return nil
	})
	if err != nil {
		return nil, ProviderError{Op: "list_utxos", Err: err}
	}
	return utxos, nil
}

// refundRedeemer is the witness attached to the refund spend. The script
// checks the recorded owner matches the payout address.
type refundRedeemer struct {
	Action    string `json:"action"`
	DepositID string `json:"deposit_id"`
	Owner     string `json:"owner"`
}
