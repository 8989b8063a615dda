package zk

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrInsufficientFactors occurs when fewer than MinFactors digests are
	// supplied to Combine.
	ErrInsufficientFactors = errors.New("insufficient factors")

	// ErrMalformedInput occurs when ProveFor receives raw inputs that fail
	// structural validation. A wrong-but-well-formed secret is not an error;
	// it yields a proof with Valid=false.
	ErrMalformedInput = errors.New("malformed proof input")
)

// MinFactors is the smallest digest set a commitment may bind. Signup always
// supplies three (phone, biometric, passkey).
const MinFactors = 2

const (
	commitmentContext = "k33p/commitment/v1"
	proofContext      = "k33p/proof/v1"
)

// Commitment is a fixed-width value binding an ordered set of factor digests
// without revealing them.
type Commitment [DigestSize]byte

// String renders the commitment as lowercase hex.
func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// IsZero reports whether the commitment is unset.
func (c Commitment) IsZero() bool {
	return c == Commitment{}
}

// ParseCommitment decodes a hex-encoded commitment.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Commitment{}, fmt.Errorf("%w: commitment is not hex", ErrInvalidInput)
	}
	if len(raw) != DigestSize {
		return Commitment{}, fmt.Errorf("%w: commitment must be %d bytes", ErrInvalidInput, DigestSize)
	}
	copy(c[:], raw)
	return c, nil
}

// Proof asserts that a commitment was derived from particular raw factors.
// It is created once per verification attempt and never mutated afterwards.
type Proof struct {
	Payload         []byte
	BoundCommitment Commitment
	Valid           bool
}

// RawFactor is one raw secret paired with its kind.
type RawFactor struct {
	Kind  FactorKind
	Value string
}

// RawFactors is an ordered list of raw secrets. Order is significant: the
// same factors in a different order produce a different commitment.
type RawFactors []RawFactor

// CanonicalFactors arranges the three signup secrets in the fixed order every
// commitment derivation must use: phone, biometric, passkey.
func CanonicalFactors(phone, biometric, passkey string) RawFactors {
	return RawFactors{
		{Kind: FactorPhone, Value: phone},
		{Kind: FactorBiometric, Value: biometric},
		{Kind: FactorPasskey, Value: passkey},
	}
}

// Engine derives commitments and proof objects with a keyed hash. The keyed
// hash stands in for a succinct proof system; callers depend only on the
// Combine/ProveFor/Verify contract so a real backend can be swapped in.
type Engine struct {
	key [DigestSize]byte
}

// NewEngine builds an engine from the configured commitment key. The key
// material is folded to a fixed width so any non-empty secret works.
func NewEngine(key string) (*Engine, error) {
	if strings.TrimSpace(key) == "" {
		return nil, errors.New("commitment key is required")
	}
	return &Engine{key: blake2b.Sum256([]byte(key))}, nil
}

// Combine aggregates an ordered digest list into a single commitment.
// Identical digests in identical order always reproduce the same value.
func (e *Engine) Combine(digests []FactorDigest) (Commitment, error) {
	if len(digests) < MinFactors {
		return Commitment{}, fmt.Errorf("%w: need at least %d digests, got %d", ErrInsufficientFactors, MinFactors, len(digests))
	}

	h, err := blake2b.New256(e.key[:])
	if err != nil {
		return Commitment{}, err
	}
	h.Write([]byte(commitmentContext))
	h.Write([]byte{0})
	for _, fd := range digests {
		h.Write([]byte(fd.Kind))
		h.Write([]byte{0})
		h.Write(fd.Digest[:])
	}

	var c Commitment
	copy(c[:], h.Sum(nil))
	return c, nil
}

// ProveFor recomputes digests and the commitment from raw inputs and binds
// the result to the supplied commitment. A mismatch is not an error: the
// returned proof carries Valid=false. Only structurally invalid inputs fail,
// with ErrMalformedInput.
func (e *Engine) ProveFor(raw RawFactors, commitment Commitment) (Proof, error) {
	digests := make([]FactorDigest, 0, len(raw))
	for _, f := range raw {
		fd, err := DigestFactor(f.Kind, f.Value)
		if err != nil {
			return Proof{}, fmt.Errorf("%w: %s", ErrMalformedInput, err)
		}
		digests = append(digests, fd)
	}

	recomputed, err := e.Combine(digests)
	if err != nil {
		return Proof{}, err
	}

	return Proof{
		Payload:         e.proofPayload(recomputed),
		BoundCommitment: commitment,
		Valid:           recomputed == commitment,
	}, nil
}

// Verify reports whether the proof attests to the given commitment. The check
// is pure: no raw secrets and no recomputation, so a relying party holding
// only the proof object can evaluate it.
func (e *Engine) Verify(proof Proof, commitment Commitment) bool {
	return proof.Valid && proof.BoundCommitment == commitment
}

func (e *Engine) proofPayload(c Commitment) []byte {
	h, err := blake2b.New256(e.key[:])
	if err != nil {
		return nil
	}
	h.Write([]byte(proofContext))
	h.Write([]byte{0})
	h.Write(c[:])
	return h.Sum(nil)
}
