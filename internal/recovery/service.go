package recovery

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/audit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/keylock"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/logging"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/metrics"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/notification"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Directory is the identity lookup the workflows depend on. The identity
// service implements it; keeping it an interface here avoids a dependency
// cycle and lets tests substitute a fake.
type Directory interface {
	// FindUserIDByIdentifier resolves a user by the digest of their current
	// identifier. Unknown digests yield ErrUserNotFound.
	FindUserIDByIdentifier(ctx context.Context, identifier zk.Digest) (string, error)
	// ApplyIdentifierChange replaces the user's identifier digest and
	// refreshes their commitment.
	ApplyIdentifierChange(ctx context.Context, userID, kind string, newIdentifier zk.Digest) error
}

// Policy bounds one workflow kind: how long a request stays open and how
// many code attempts it accepts.
type Policy struct {
	Window      time.Duration
	MaxAttempts int
}

// Workflow defaults. Phone changes run on a short leash; account recovery is
// roomier because the user has lost a factor and may be on unfamiliar ground.
var (
	DefaultPhoneChangePolicy     = Policy{Window: 15 * time.Minute, MaxAttempts: 3}
	DefaultAccountRecoveryPolicy = Policy{Window: time.Hour, MaxAttempts: 5}
)

// Options tunes the recovery service. Zero policies fall back to defaults.
type Options struct {
	PhoneChange     Policy
	AccountRecovery Policy
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
	Audit           *audit.Recorder
	Notifier        notification.Notifier
}

// Service runs the two bounded verification workflows over one state
// machine. Per-request operations are serialized on a per-entity lock and
// persisted with compare-and-set.
type Service struct {
	repo      Repository
	directory Directory
	locks     *keylock.KeyLock
	policies  map[string]Policy
	logger    *slog.Logger
	metrics   *metrics.Metrics
	audit     *audit.Recorder
	notifier  notification.Notifier

	now          func() time.Time
	generateCode func() (string, error)
}

// NewService constructs a recovery service.
func NewService(repo Repository, directory Directory, opts Options) *Service {
	if opts.PhoneChange.Window <= 0 {
		opts.PhoneChange.Window = DefaultPhoneChangePolicy.Window
	}
	if opts.PhoneChange.MaxAttempts <= 0 {
		opts.PhoneChange.MaxAttempts = DefaultPhoneChangePolicy.MaxAttempts
	}
	if opts.AccountRecovery.Window <= 0 {
		opts.AccountRecovery.Window = DefaultAccountRecoveryPolicy.Window
	}
	if opts.AccountRecovery.MaxAttempts <= 0 {
		opts.AccountRecovery.MaxAttempts = DefaultAccountRecoveryPolicy.MaxAttempts
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		locks:     keylock.New(),
		policies: map[string]Policy{
			KindPhoneChange:     opts.PhoneChange,
			KindAccountRecovery: opts.AccountRecovery,
		},
		logger:       opts.Logger,
		metrics:      opts.Metrics,
		audit:        opts.Audit,
		notifier:     opts.Notifier,
		now:          func() time.Time { return time.Now().UTC() },
		generateCode: generateCode,
	}
}

// CreateInput carries the raw material for a new request. Identifiers arrive
// raw, are digested immediately and never persisted in clear.
type CreateInput struct {
	Kind              string
	UserID            string
	CurrentIdentifier string
	NewIdentifier     string
	Method            string
}

// Create opens a request: it binds the current and new identifier digests,
// generates a one-time code, stores only the code's hash and delivers the
// code to the new identifier. When UserID is empty the user is resolved from
// the current identifier; when it is set, the identifier must belong to it.
func (s *Service) Create(ctx context.Context, input CreateInput) (Request, error) {
	policy, ok := s.policies[input.Kind]
	if !ok {
		return Request{}, fmt.Errorf("%w: unknown workflow kind %q", ErrValidation, input.Kind)
	}
	method := strings.TrimSpace(input.Method)
	if method == "" {
		method = MethodSMS
	}
	if method != MethodSMS && method != MethodEmail {
		return Request{}, fmt.Errorf("%w: unknown delivery method %q", ErrValidation, input.Method)
	}

	currentDigest, err := identifierDigest(input.CurrentIdentifier)
	if err != nil {
		return Request{}, err
	}
	newDigest, err := identifierDigest(input.NewIdentifier)
	if err != nil {
		return Request{}, err
	}
	if currentDigest == newDigest {
		return Request{}, fmt.Errorf("%w: new identifier equals the current one", ErrValidation)
	}

	ownerID, err := s.directory.FindUserIDByIdentifier(ctx, currentDigest)
	if err != nil {
		return Request{}, err
	}
	if input.UserID != "" && input.UserID != ownerID {
		return Request{}, fmt.Errorf("%w: current identifier does not belong to the caller", ErrValidation)
	}

	code, err := s.generateCode()
	if err != nil {
		return Request{}, err
	}
	codeHash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return Request{}, err
	}

	now := s.now()
	request := Request{
		ID:                    uuid.New().String(),
		Kind:                  input.Kind,
		UserID:                ownerID,
		CurrentIdentifierHash: currentDigest,
		NewIdentifierHash:     newDigest,
		Method:                method,
		CodeHash:              codeHash,
		MaxAttempts:           policy.MaxAttempts,
		Status:                StatusPending,
		ExpiresAt:             now.Add(policy.Window),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, request); err != nil {
		return Request{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notificationKind(input.Kind),
			Destination: strings.TrimSpace(input.NewIdentifier),
			Body:        fmt.Sprintf("Your verification code is %s", code),
		})
	}
	s.metrics.IncRecovery(request.Kind, "created")
	s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.created", Outcome: request.Kind})
	s.logger.Info("recovery request created", "request_id", request.ID, "kind", request.Kind, "expires_at", request.ExpiresAt)
	return request, nil
}

// Attempt evaluates one code against the request. Expiry is checked lazily
// before anything else, so a correct code after the window still expires the
// request. The attempt counter is persisted before the code is compared; a
// crash in between wastes an attempt rather than granting a free one.
func (s *Service) Attempt(ctx context.Context, id, code string) (Request, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	request, err := s.repo.Load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	switch request.Status {
	case StatusPending:
	case StatusExpired:
		return request, ErrExpired
	case StatusFailed:
		return request, ErrAttemptsExhausted
	default:
		return request, InvalidStateError{Op: "attempt", Status: request.Status}
	}

	now := s.now()
	if now.After(request.ExpiresAt) {
		if err := s.transition(ctx, &request, StatusPending, StatusExpired); err != nil {
			return Request{}, err
		}
		s.metrics.IncRecovery(request.Kind, "expired")
		s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.attempt", Outcome: "expired"})
		return request, ErrExpired
	}

	request.Attempts++
	request.UpdatedAt = now
	if err := s.repo.Update(ctx, request, StatusPending); err != nil {
		return Request{}, err
	}

	if bcrypt.CompareHashAndPassword(request.CodeHash, []byte(code)) == nil {
		if err := s.transition(ctx, &request, StatusPending, StatusVerified); err != nil {
			return Request{}, err
		}
		s.metrics.IncRecovery(request.Kind, "verified")
		s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.attempt", Outcome: "verified"})
		return request, nil
	}

	if request.Attempts >= request.MaxAttempts {
		if err := s.transition(ctx, &request, StatusPending, StatusFailed); err != nil {
			return Request{}, err
		}
		s.metrics.IncRecovery(request.Kind, "exhausted")
		s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.attempt", Outcome: "exhausted"})
		return request, ErrAttemptsExhausted
	}

	s.metrics.IncRecovery(request.Kind, "rejected")
	s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.attempt", Outcome: "rejected"})
	return request, fmt.Errorf("%w: attempt %d of %d", ErrCodeRejected, request.Attempts, request.MaxAttempts)
}

// Complete applies the identifier change recorded on a verified request. The
// directory write happens first; if it fails the request stays Verified and
// the call can be retried.
func (s *Service) Complete(ctx context.Context, id string) (Request, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	request, err := s.repo.Load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if request.Status != StatusVerified {
		return request, InvalidStateError{Op: "complete", Status: request.Status}
	}

	if err := s.directory.ApplyIdentifierChange(ctx, request.UserID, request.Kind, request.NewIdentifierHash); err != nil {
		return request, err
	}

	now := s.now()
	request.CompletedAt = &now
	if err := s.transition(ctx, &request, StatusVerified, StatusCompleted); err != nil {
		return Request{}, err
	}
	s.metrics.IncRecovery(request.Kind, "completed")
	s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.completed", Outcome: "ok"})
	s.logger.Info("recovery request completed", "request_id", request.ID, "kind", request.Kind, "user_id", request.UserID)
	return request, nil
}

// Expire proactively closes a request before its window ends, for example
// from an operator sweep. Attempts past the window expire lazily regardless.
func (s *Service) Expire(ctx context.Context, id string) (Request, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	request, err := s.repo.Load(ctx, id)
	if err != nil {
		return Request{}, err
	}
	if request.Terminal() {
		return request, InvalidStateError{Op: "expire", Status: request.Status}
	}
	expected := request.Status
	if err := s.transition(ctx, &request, expected, StatusExpired); err != nil {
		return Request{}, err
	}
	s.metrics.IncRecovery(request.Kind, "expired")
	s.audit.Emit(audit.Event{UserID: request.UserID, Subject: request.ID, Action: "recovery.expired", Outcome: "ok"})
	return request, nil
}

// Status returns the request without changing it.
func (s *Service) Status(ctx context.Context, id string) (Request, error) {
	return s.repo.Load(ctx, id)
}

func (s *Service) transition(ctx context.Context, request *Request, from, to string) error {
	request.Status = to
	request.UpdatedAt = s.now()
	return s.repo.Update(ctx, *request, from)
}

func identifierDigest(raw string) (zk.Digest, error) {
	fd, err := zk.DigestFactor(zk.FactorPhone, raw)
	if err != nil {
		return zk.Digest{}, err
	}
	return fd.Digest, nil
}

func notificationKind(kind string) string {
	if kind == KindPhoneChange {
		return notification.KindPhoneChangeCode
	}
	return notification.KindRecoveryCode
}

// generateCode draws a uniform six digit one-time code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
