package zk

import (
	"errors"
	"testing"
)

func TestDigestFactorDeterministic(t *testing.T) {
	first, err := DigestFactor(FactorPhone, "+2348012345678")
	if err != nil {
		t.Fatalf("digest phone: %v", err)
	}
	second, err := DigestFactor(FactorPhone, "+2348012345678")
	if err != nil {
		t.Fatalf("digest phone again: %v", err)
	}
	if first.Digest != second.Digest {
		t.Fatalf("expected identical digests, got %s and %s", first.Digest, second.Digest)
	}
	if first.Kind != FactorPhone {
		t.Fatalf("expected kind phone, got %s", first.Kind)
	}
}

func TestDigestFactorNormalizesPhoneFormatting(t *testing.T) {
	plain, err := DigestFactor(FactorPhone, "+2348012345678")
	if err != nil {
		t.Fatalf("digest plain: %v", err)
	}
	formatted, err := DigestFactor(FactorPhone, "+234 (801) 234-5678")
	if err != nil {
		t.Fatalf("digest formatted: %v", err)
	}
	if plain.Digest != formatted.Digest {
		t.Fatal("expected formatting to be stripped before hashing")
	}
}

func TestDigestFactorKindsDiffer(t *testing.T) {
	asBiometric, err := DigestFactor(FactorBiometric, "template-1")
	if err != nil {
		t.Fatalf("digest biometric: %v", err)
	}
	asPasskey, err := DigestFactor(FactorPasskey, "template-1")
	if err != nil {
		t.Fatalf("digest passkey: %v", err)
	}
	if asBiometric.Digest == asPasskey.Digest {
		t.Fatal("expected distinct digests for the same value under different kinds")
	}
}

func TestDigestFactorRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		kind FactorKind
		raw  string
	}{
		{"empty phone", FactorPhone, "   "},
		{"short phone", FactorPhone, "+123"},
		{"alpha phone", FactorPhone, "+23480x2345678"},
		{"empty biometric", FactorBiometric, ""},
		{"short pin", FactorPin, "12"},
		{"long pin", FactorPin, "123456789"},
		{"alpha pin", FactorPin, "12a4"},
		{"unknown kind", FactorKind("retina"), "whatever"},
	}

	for _, tc := range cases {
		if _, err := DigestFactor(tc.kind, tc.raw); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s: expected ErrInvalidInput, got %v", tc.name, err)
		}
	}
}

func TestParseDigestRoundTrip(t *testing.T) {
	fd, err := DigestFactor(FactorPin, "4821")
	if err != nil {
		t.Fatalf("digest pin: %v", err)
	}

	parsed, err := ParseDigest(fd.Digest.String())
	if err != nil {
		t.Fatalf("parse digest: %v", err)
	}
	if parsed != fd.Digest {
		t.Fatal("expected parsed digest to equal original")
	}

	if _, err := ParseDigest("zz"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad hex, got %v", err)
	}
	if _, err := ParseDigest("abcd"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for short digest, got %v", err)
	}
}
