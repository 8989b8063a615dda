package deposit

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/chain"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/notification"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

const testScript = "addr_test1wtestscript00000000000000000000000000000000000000"

type testNotifier struct {
	last notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.last = msg
	return nil
}

func newTestService(t *testing.T, opts Options) (*Service, *chain.SimulatedProvider, Repository, *zk.Engine) {
	t.Helper()
	provider := chain.NewSimulatedProvider(1)
	repo := NewMemoryRepository()
	engine, err := zk.NewEngine("test-commitment-key")
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	opts.ScriptAddress = testScript
	return NewService(repo, engine, provider, opts), provider, repo, engine
}

func testFactors() zk.RawFactors {
	return zk.CanonicalFactors("+15550001111", "bio-template-7", "passkey-pub-42")
}

func commitmentFor(t *testing.T, engine *zk.Engine, factors zk.RawFactors) zk.Commitment {
	t.Helper()
	digests := make([]zk.FactorDigest, 0, len(factors))
	for _, f := range factors {
		fd, err := zk.DigestFactor(f.Kind, f.Value)
		if err != nil {
			t.Fatalf("digest %s: %v", f.Kind, err)
		}
		digests = append(digests, fd)
	}
	c, err := engine.Combine(digests)
	if err != nil {
		t.Fatalf("combine: %v", err)
	}
	return c
}

func openPending(t *testing.T, svc *Service, commitment zk.Commitment) Deposit {
	t.Helper()
	ctx := context.Background()
	d, err := svc.Open(ctx, uuid.NewString(), "addr_test1qowner", commitment, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d, _, err = svc.Confirm(ctx, d.ID, "addr_test1qsender")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	return d
}

func TestSignupDepositLifecycle(t *testing.T) {
	svc, provider, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	factors := testFactors()
	commitment := commitmentFor(t, engine, factors)

	d, err := svc.Open(ctx, uuid.NewString(), "addr_test1qowner", commitment, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.State != StateAwaitingConfirmation {
		t.Fatalf("expected awaiting confirmation, got %s", d.State)
	}
	if d.TxHash == "" {
		t.Fatalf("expected a funding tx hash")
	}
	if d.Amount != DefaultAmount {
		t.Fatalf("expected default amount %d, got %d", DefaultAmount, d.Amount)
	}
	utxos, err := provider.ListUtxosAt(ctx, testScript)
	if err != nil || len(utxos) != 1 {
		t.Fatalf("expected one locked output, got %d (%v)", len(utxos), err)
	}

	d, confirmations, err := svc.Confirm(ctx, d.ID, "addr_test1qsender")
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmations != 1 || d.State != StatePendingVerification {
		t.Fatalf("expected pending verification at 1 confirmation, got %s at %d", d.State, confirmations)
	}
	if d.SenderAddress != "addr_test1qsender" {
		t.Fatalf("sender address not recorded: %q", d.SenderAddress)
	}

	d, err = svc.AttemptVerificationWithFactors(ctx, d.ID, factors)
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	if d.State != StateVerified || d.VerificationAttempts != 1 {
		t.Fatalf("expected verified after one attempt, got %s after %d", d.State, d.VerificationAttempts)
	}

	d, err = svc.CompleteSignup(ctx, d.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if d.State != StateSignupCompleted {
		t.Fatalf("expected signup completed, got %s", d.State)
	}
}

func TestVerificationAttemptsExhausted(t *testing.T) {
	svc, _, repo, engine := newTestService(t, Options{})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())
	d := openPending(t, svc, commitment)

	wrong := zk.CanonicalFactors("+15550009999", "other-bio", "other-passkey")
	for i := 1; i <= 2; i++ {
		if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, wrong); !errors.Is(err, ErrProofRejected) {
			t.Fatalf("attempt %d: expected proof rejected, got %v", i, err)
		}
	}
	if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, wrong); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("third attempt: expected exhaustion, got %v", err)
	}

	stored, err := repo.Load(ctx, d.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.State != StateFailed || stored.VerificationAttempts != DefaultMaxAttempts {
		t.Fatalf("expected failed after %d attempts, got %s after %d", DefaultMaxAttempts, stored.State, stored.VerificationAttempts)
	}

	// Further attempts are rejected without moving the counter.
	if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, testFactors()); !errors.Is(err, ErrAttemptsExhausted) {
		t.Fatalf("expected exhaustion after failure, got %v", err)
	}
	stored, _ = repo.Load(ctx, d.ID)
	if stored.VerificationAttempts != DefaultMaxAttempts {
		t.Fatalf("counter moved after failure: %d", stored.VerificationAttempts)
	}
}

func TestConcurrentAttemptsNeverExceedCap(t *testing.T) {
	svc, _, repo, engine := newTestService(t, Options{})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())
	d := openPending(t, svc, commitment)

	wrong := zk.CanonicalFactors("+15550009999", "other-bio", "other-passkey")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.AttemptVerificationWithFactors(ctx, d.ID, wrong)
		}()
	}
	wg.Wait()

	stored, err := repo.Load(ctx, d.ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if stored.State != StateFailed {
		t.Fatalf("expected failed, got %s", stored.State)
	}
	if stored.VerificationAttempts != DefaultMaxAttempts {
		t.Fatalf("expected exactly %d attempts, got %d", DefaultMaxAttempts, stored.VerificationAttempts)
	}
}

func TestRefundAfterFailedVerification(t *testing.T) {
	notifier := &testNotifier{}
	svc, provider, _, engine := newTestService(t, Options{Notifier: notifier})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())
	d := openPending(t, svc, commitment)

	wrong := zk.CanonicalFactors("+15550009999", "other-bio", "other-passkey")
	for i := 0; i < DefaultMaxAttempts; i++ {
		_, _ = svc.AttemptVerificationWithFactors(ctx, d.ID, wrong)
	}

	d, err := svc.IssueRefund(ctx, d.ID, "")
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if d.State != StateRefunded || d.RefundTxHash == "" || d.RefundedAt == nil {
		t.Fatalf("refund not recorded: %+v", d)
	}
	utxos, _ := provider.ListUtxosAt(ctx, testScript)
	if len(utxos) != 0 {
		t.Fatalf("expected the locked output to be spent, %d remain", len(utxos))
	}
	if notifier.last.Kind != notification.KindDepositRefunded {
		t.Fatalf("expected refund notification, got %q", notifier.last.Kind)
	}
}

func TestSecondRefundFindsNoUtxo(t *testing.T) {
	svc, _, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	factors := testFactors()
	commitment := commitmentFor(t, engine, factors)
	d := openPending(t, svc, commitment)

	if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, factors); err != nil {
		t.Fatalf("verification: %v", err)
	}
	if _, err := svc.IssueRefund(ctx, d.ID, "addr_test1qelsewhere"); err != nil {
		t.Fatalf("first refund: %v", err)
	}
	if _, err := svc.IssueRefund(ctx, d.ID, "addr_test1qelsewhere"); !errors.Is(err, ErrUtxoNotFound) {
		t.Fatalf("expected utxo not found, got %v", err)
	}
}

func TestOpenRejectsSecondActiveDeposit(t *testing.T) {
	svc, _, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())
	userID := uuid.NewString()

	if _, err := svc.Open(ctx, userID, "addr_test1qowner", commitment, 0); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := svc.Open(ctx, userID, "addr_test1qowner", commitment, 0); !errors.Is(err, ErrActiveDepositExists) {
		t.Fatalf("expected active deposit conflict, got %v", err)
	}
}

func TestOpenFundingFailureLeavesNoActiveDeposit(t *testing.T) {
	svc, provider, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())
	userID := uuid.NewString()

	provider.FailNextSubmit(errors.New("mempool full"))
	if _, err := svc.Open(ctx, userID, "addr_test1qowner", commitment, 0); !errors.Is(err, ErrSubmissionFailed) {
		t.Fatalf("expected submission failure, got %v", err)
	}

	// The abandoned record must not block a retry.
	if _, err := svc.Open(ctx, userID, "addr_test1qowner", commitment, 0); err != nil {
		t.Fatalf("retry open: %v", err)
	}
}

func TestConfirmBelowThreshold(t *testing.T) {
	svc, provider, _, engine := newTestService(t, Options{MinConfirmations: 3})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())

	d, err := svc.Open(ctx, uuid.NewString(), "addr_test1qowner", commitment, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	d, confirmations, err := svc.Confirm(ctx, d.ID, "")
	if !errors.Is(err, ErrInsufficientConfirmations) {
		t.Fatalf("expected insufficient confirmations, got %v", err)
	}
	if confirmations != 1 || d.State != StateAwaitingConfirmation {
		t.Fatalf("deposit moved below threshold: %s at %d", d.State, confirmations)
	}

	provider.SetConfirmations(d.TxHash, 3)
	d, confirmations, err = svc.Confirm(ctx, d.ID, "")
	if err != nil {
		t.Fatalf("confirm at threshold: %v", err)
	}
	if confirmations != 3 || d.State != StatePendingVerification {
		t.Fatalf("expected pending verification at 3 confirmations, got %s at %d", d.State, confirmations)
	}
}

func TestRecordDepositAppliesWatcherReport(t *testing.T) {
	svc, _, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())

	d, err := svc.Open(ctx, uuid.NewString(), "addr_test1qowner", commitment, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	if _, err := svc.RecordDeposit(ctx, d.ID, "deadbeef", "addr_test1qsender", 5); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected tx hash mismatch, got %v", err)
	}

	d, err = svc.RecordDeposit(ctx, d.ID, d.TxHash, "addr_test1qsender", 5)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if d.State != StatePendingVerification || d.SenderAddress != "addr_test1qsender" {
		t.Fatalf("watcher report not applied: %+v", d)
	}
}

func TestMalformedFactorsDoNotConsumeAttempt(t *testing.T) {
	svc, _, repo, engine := newTestService(t, Options{})
	ctx := context.Background()
	commitment := commitmentFor(t, engine, testFactors())
	d := openPending(t, svc, commitment)

	malformed := zk.CanonicalFactors("not-a-phone", "bio", "passkey")
	if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, malformed); !errors.Is(err, zk.ErrMalformedInput) {
		t.Fatalf("expected malformed input, got %v", err)
	}

	stored, _ := repo.Load(ctx, d.ID)
	if stored.VerificationAttempts != 0 {
		t.Fatalf("malformed input consumed an attempt: %d", stored.VerificationAttempts)
	}
}

func TestRefundBlockedAfterCompletion(t *testing.T) {
	svc, _, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	factors := testFactors()
	commitment := commitmentFor(t, engine, factors)
	d := openPending(t, svc, commitment)

	if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, factors); err != nil {
		t.Fatalf("verification: %v", err)
	}
	if _, err := svc.CompleteSignup(ctx, d.ID); err != nil {
		t.Fatalf("complete: %v", err)
	}

	var stateErr InvalidStateError
	if _, err := svc.IssueRefund(ctx, d.ID, ""); !errors.As(err, &stateErr) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if stateErr.State != StateSignupCompleted {
		t.Fatalf("unexpected state in error: %s", stateErr.State)
	}
}

func TestAbandonStopsTheCycle(t *testing.T) {
	svc, _, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	factors := testFactors()
	commitment := commitmentFor(t, engine, factors)
	d := openPending(t, svc, commitment)

	d, err := svc.Abandon(ctx, d.ID)
	if err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if d.State != StateAbandoned {
		t.Fatalf("expected abandoned, got %s", d.State)
	}

	var stateErr InvalidStateError
	if _, err := svc.AttemptVerificationWithFactors(ctx, d.ID, factors); !errors.As(err, &stateErr) {
		t.Fatalf("expected invalid state error, got %v", err)
	}
	if _, err := svc.Abandon(ctx, d.ID); !errors.As(err, &stateErr) {
		t.Fatalf("expected abandon of terminal deposit to fail, got %v", err)
	}
}

func TestVerifyWithProofObject(t *testing.T) {
	svc, _, _, engine := newTestService(t, Options{})
	ctx := context.Background()
	factors := testFactors()
	commitment := commitmentFor(t, engine, factors)
	d := openPending(t, svc, commitment)

	foreign := commitmentFor(t, engine, zk.CanonicalFactors("+15550009999", "other-bio", "other-passkey"))
	mismatched, err := engine.ProveFor(factors, foreign)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if _, err := svc.AttemptVerification(ctx, d.ID, mismatched); !errors.Is(err, ErrProofRejected) {
		t.Fatalf("expected rejection for foreign binding, got %v", err)
	}

	proof, err := engine.ProveFor(factors, d.Commitment)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	d, err = svc.AttemptVerification(ctx, d.ID, proof)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if d.State != StateVerified || d.VerificationAttempts != 2 {
		t.Fatalf("expected verified on second attempt, got %s after %d", d.State, d.VerificationAttempts)
	}
}
