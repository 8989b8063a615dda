package authmethod

import "time"

// Type names an authentication method category. Unknown categories are
// tolerated by the registry so newer clients can register methods older
// deployments have not learned yet.
type Type string

const (
	TypePhone       Type = "phone"
	TypePin         Type = "pin"
	TypeBiometric   Type = "biometric"
	TypePasskey     Type = "passkey"
	TypeFingerprint Type = "fingerprint"
	TypeFace        Type = "face"
)

// Method is one registered authentication factor of a user.
type Method struct {
	ID         string
	UserID     string
	Type       Type
	Data       []byte
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

// Seed is the caller-supplied shape of a method before registration assigns
// identifiers and timestamps.
type Seed struct {
	Type Type
	Data []byte
}
