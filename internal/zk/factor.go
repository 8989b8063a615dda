package zk

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

var (
	// ErrInvalidInput occurs when a raw factor value is empty or does not
	// satisfy the structural rules of its kind.
	ErrInvalidInput = errors.New("invalid factor input")
)

// FactorKind identifies which identity factor a raw value or digest represents.
type FactorKind string

const (
	// FactorPhone is the user's phone number.
	FactorPhone FactorKind = "phone"
	// FactorBiometric is an opaque biometric template.
	FactorBiometric FactorKind = "biometric"
	// FactorPasskey is a passkey credential identifier.
	FactorPasskey FactorKind = "passkey"
	// FactorPin is a short numeric secret.
	FactorPin FactorKind = "pin"
)

// DigestSize is the width of every factor digest and commitment.
const DigestSize = 32

const factorContext = "k33p/factor/v1"

// Digest is the one-way hash of a single raw identity factor.
type Digest [DigestSize]byte

// String renders the digest as lowercase hex.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether the digest is unset.
func (d Digest) IsZero() bool {
	return d == Digest{}
}

// ParseDigest decodes a hex-encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Digest{}, fmt.Errorf("%w: digest is not hex", ErrInvalidInput)
	}
	if len(raw) != DigestSize {
		return Digest{}, fmt.Errorf("%w: digest must be %d bytes", ErrInvalidInput, DigestSize)
	}
	copy(d[:], raw)
	return d, nil
}

// FactorDigest couples a digest with the kind of factor that produced it.
type FactorDigest struct {
	Kind   FactorKind
	Digest Digest
}

// DigestFactor normalizes and hashes one raw identity factor. The result is
// deterministic for identical (kind, raw) pairs and one-way for holders of
// the digest alone.
func DigestFactor(kind FactorKind, raw string) (FactorDigest, error) {
	normalized, err := normalize(kind, raw)
	if err != nil {
		return FactorDigest{}, err
	}

	h, err := blake2b.New256(nil)
	if err != nil {
		return FactorDigest{}, err
	}
	h.Write([]byte(factorContext))
	h.Write([]byte{0})
	h.Write([]byte(kind))
	h.Write([]byte{0})
	h.Write([]byte(normalized))

	var d Digest
	copy(d[:], h.Sum(nil))
	return FactorDigest{Kind: kind, Digest: d}, nil
}

func normalize(kind FactorKind, raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: %s value is empty", ErrInvalidInput, kind)
	}

	switch kind {
	case FactorPhone:
		phone := strings.Map(func(r rune) rune {
			switch r {
			case ' ', '-', '(', ')', '.':
				return -1
			}
			return r
		}, value)
		digits := strings.TrimPrefix(phone, "+")
		if len(digits) < 7 || len(digits) > 15 || !isNumeric(digits) {
			return "", fmt.Errorf("%w: phone must be 7-15 digits", ErrInvalidInput)
		}
		return phone, nil
	case FactorPin:
		if len(value) < 4 || len(value) > 8 || !isNumeric(value) {
			return "", fmt.Errorf("%w: pin must be 4-8 digits", ErrInvalidInput)
		}
		return value, nil
	case FactorBiometric, FactorPasskey:
		return value, nil
	default:
		return "", fmt.Errorf("%w: unsupported factor kind %q", ErrInvalidInput, kind)
	}
}

func isNumeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
