// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// User is an account. Key material lives on devices; the user only keeps its signing keys.
type User struct {
	ID          uuid.UUID
	SigningKeys []string // most recent first; SigningKeys[0] is active
	CreatedAt   time.Time
}

// ActiveSigningKey returns the signing key used for new operations.
func (u User) ActiveSigningKey() string {
	if len(u.SigningKeys) == 0 {
		return ""
	}
	return u.SigningKeys[0]
}

// UserTombstone marks a deleted user.
type UserTombstone struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// Device is one client installation of a user.
type Device struct {
	ID                   uuid.UUID
	UserID               uuid.UUID
	IDKey                string // public identity key, unique
	SigningKey           string // public signing key, unique; authentication identity
	Signatures           []string
	FallbackKey          string
	FallbackKeySignature string
	CreatedAt            time.Time
}

// DeviceInput is what a client sends to register a device.
type DeviceInput struct {
	IDKey                string
	SigningKey           string
	Signature            string
	FallbackKey          string
	FallbackKeySignature string
	OneTimeKeys          []OneTimeKeyInput
}

// DeviceTombstone marks a deleted device.
type DeviceTombstone struct {
	ID         uuid.UUID
	IDKey      string
	SigningKey string
	UserID     uuid.UUID
	CreatedAt  time.Time
}

// AddDeviceVerification is the handshake artifact a new device fetches with its server secret.
type AddDeviceVerification struct {
	ID                  uuid.UUID
	DeviceIDKey         string
	VerificationMessage string
	ServerSecret        string
	CreatedAt           time.Time
}

// OneTimeKeyInput is an uploaded one-time key.
type OneTimeKeyInput struct {
	Key       string
	Signature string
}

// OneTimeKey is a single-use key owned by a device.
type OneTimeKey struct {
	Key               string
	Signature         string
	DeviceID          uuid.UUID
	ClaimedByDeviceID uuid.NullUUID
}

// ClaimedKey is the result of a claim against one target device.
type ClaimedKey struct {
	DeviceIDKey string
	Key         string
	Signature   string
	Fallback    bool // true when the pool was exhausted and the fallback key was handed out
}

// Session is the authenticated caller of an operation.
type Session struct {
	Device Device
	User   User
}
