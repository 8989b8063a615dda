package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/audit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/auth"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/authmethod"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/deposit"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/logging"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/recovery"
	"github.com/K33P-repo/K33P-Smart-Contract-sub006/internal/zk"
)

// Options carries the ambient collaborators of the identity service.
type Options struct {
	Logger *slog.Logger
	Audit  *audit.Recorder
}

// Service orchestrates the identity lifecycle: signup binds factors into a
// commitment and opens the deposit, login proves the factors against the
// stored commitment, and the recovery workflows call back through the
// Directory methods to swap identifiers.
type Service struct {
	repo     Repository
	engine   *zk.Engine
	methods  *authmethod.Service
	deposits *deposit.Service
	issuer   *auth.Issuer
	logger   *slog.Logger
	audit    *audit.Recorder
}

// NewService constructs an identity service.
func NewService(repo Repository, engine *zk.Engine, methods *authmethod.Service, deposits *deposit.Service, issuer *auth.Issuer, opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return &Service{
		repo:     repo,
		engine:   engine,
		methods:  methods,
		deposits: deposits,
		issuer:   issuer,
		logger:   opts.Logger,
		audit:    opts.Audit,
	}
}

// SignupInput is the material a new identity is built from.
type SignupInput struct {
	Factors     Factors
	Address     string
	AuthMethods []authmethod.Seed
	Amount      int64
}

// SignupResult pairs the created user with the opened deposit.
type SignupResult struct {
	User    User
	Deposit deposit.Deposit
}

// Signup creates an identity and opens its signup deposit: the three factors
// are digested in canonical order, the declared auth method set is checked
// against the registry invariant, the commitment is combined and persisted
// with the user, and finally the deposit cycle starts. Every check runs
// before the first write, so a rejected signup leaves no records behind.
func (s *Service) Signup(ctx context.Context, input SignupInput) (SignupResult, error) {
	address := strings.TrimSpace(input.Address)
	if address == "" {
		return SignupResult{}, fmt.Errorf("%w: address is required", ErrValidation)
	}

	digests, err := factorDigests(input.Factors)
	if err != nil {
		return SignupResult{}, err
	}

	switch _, err := s.repo.FindByPhoneDigest(ctx, digests[0].Digest); {
	case err == nil:
		return SignupResult{}, ErrPhoneRegistered
	case !errors.Is(err, ErrNotFound):
		return SignupResult{}, err
	}

	seeds := input.AuthMethods
	if len(seeds) == 0 {
		seeds = []authmethod.Seed{
			{Type: authmethod.TypePhone},
			{Type: authmethod.TypeBiometric},
			{Type: authmethod.TypePasskey},
		}
	}
	if err := s.methods.ValidateSeeds(seeds); err != nil {
		return SignupResult{}, err
	}

	commitment, err := s.engine.Combine(digests)
	if err != nil {
		return SignupResult{}, err
	}

	now := time.Now().UTC()
	user := User{
		ID:              uuid.New().String(),
		Address:         address,
		PhoneDigest:     digests[0].Digest,
		BiometricDigest: digests[1].Digest,
		PasskeyDigest:   digests[2].Digest,
		Commitment:      commitment,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return SignupResult{}, err
	}
	if _, err := s.methods.Register(ctx, user.ID, seeds); err != nil {
		return SignupResult{}, err
	}
	s.audit.Emit(audit.Event{UserID: user.ID, Subject: user.ID, Action: "identity.signup", Outcome: "ok"})
	s.logger.Info("user signed up", "user_id", user.ID, "commitment", user.Commitment.String())

	d, err := s.deposits.Open(ctx, user.ID, user.Address, user.Commitment, input.Amount)
	if err != nil {
		// The identity stands; a new cycle can be opened through OpenDeposit.
		s.logger.Error("signup deposit failed to open", "user_id", user.ID, "error", err)
		return SignupResult{}, err
	}
	return SignupResult{User: user, Deposit: d}, nil
}

// Login proves the supplied factors against the stored commitment and issues
// an access token. Unknown phones and failed proofs are indistinguishable to
// the caller.
func (s *Service) Login(ctx context.Context, factors Factors) (User, string, error) {
	fd, err := zk.DigestFactor(zk.FactorPhone, factors.Phone)
	if err != nil {
		return User{}, "", err
	}
	user, err := s.repo.FindByPhoneDigest(ctx, fd.Digest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, "", ErrInvalidFactors
		}
		return User{}, "", err
	}

	raw := zk.CanonicalFactors(factors.Phone, factors.Biometric, factors.Passkey)
	proof, err := s.engine.ProveFor(raw, user.Commitment)
	if err != nil {
		return User{}, "", err
	}
	if !s.engine.Verify(proof, user.Commitment) {
		s.audit.Emit(audit.Event{UserID: user.ID, Subject: user.ID, Action: "identity.login", Outcome: "rejected"})
		return User{}, "", ErrInvalidFactors
	}

	token, err := s.issuer.Issue(user.ID)
	if err != nil {
		return User{}, "", err
	}
	if err := s.methods.Touch(ctx, user.ID, authmethod.TypePhone, authmethod.TypeBiometric, authmethod.TypePasskey); err != nil {
		s.logger.Warn("could not stamp auth methods", "user_id", user.ID, "error", err)
	}
	s.audit.Emit(audit.Event{UserID: user.ID, Subject: user.ID, Action: "identity.login", Outcome: "ok"})
	return user, token, nil
}

// Get fetches a user by identifier.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.FindByID(ctx, id)
}

// OpenDeposit starts a fresh deposit cycle for an existing user, after a
// refund or an abandoned signup attempt.
func (s *Service) OpenDeposit(ctx context.Context, userID string, amount int64) (deposit.Deposit, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return deposit.Deposit{}, err
	}
	return s.deposits.Open(ctx, user.ID, user.Address, user.Commitment, amount)
}

// FindUserIDByIdentifier resolves a user from a phone digest. It serves the
// recovery workflows as their Directory.
func (s *Service) FindUserIDByIdentifier(ctx context.Context, identifier zk.Digest) (string, error) {
	user, err := s.repo.FindByPhoneDigest(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return "", recovery.ErrUserNotFound
		}
		return "", err
	}
	return user.ID, nil
}

// ApplyIdentifierChange swaps the user's phone digest and recombines their
// commitment from the stored digest set. Deposits already anchored keep the
// commitment they were opened with.
func (s *Service) ApplyIdentifierChange(ctx context.Context, userID, kind string, newIdentifier zk.Digest) error {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}

	switch existing, err := s.repo.FindByPhoneDigest(ctx, newIdentifier); {
	case err == nil && existing.ID != user.ID:
		return ErrPhoneRegistered
	case err != nil && !errors.Is(err, ErrNotFound):
		return err
	}

	user.PhoneDigest = newIdentifier
	commitment, err := s.engine.Combine(digestSet(user))
	if err != nil {
		return err
	}
	user.Commitment = commitment
	user.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpdateFactors(ctx, user); err != nil {
		return err
	}
	s.audit.Emit(audit.Event{UserID: user.ID, Subject: user.ID, Action: "identity.identifier_changed", Outcome: kind})
	s.logger.Info("identifier changed", "user_id", user.ID, "kind", kind)
	return nil
}

func factorDigests(factors Factors) ([]zk.FactorDigest, error) {
	raw := zk.CanonicalFactors(factors.Phone, factors.Biometric, factors.Passkey)
	digests := make([]zk.FactorDigest, 0, len(raw))
	for _, f := range raw {
		fd, err := zk.DigestFactor(f.Kind, f.Value)
		if err != nil {
			return nil, err
		}
		digests = append(digests, fd)
	}
	return digests, nil
}

func digestSet(user User) []zk.FactorDigest {
	return []zk.FactorDigest{
		{Kind: zk.FactorPhone, Digest: user.PhoneDigest},
		{Kind: zk.FactorBiometric, Digest: user.BiometricDigest},
		{Kind: zk.FactorPasskey, Digest: user.PasskeyDigest},
	}
}
