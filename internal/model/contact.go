package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// InvitationStatus is the state of a contact invitation.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "PENDING"
	InvitationAccepted  InvitationStatus = "ACCEPTED"
	InvitationCompleted InvitationStatus = "COMPLETED"
)

// Contact is a directed trust record: UserID trusts ContactUserID.
type Contact struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	ContactUserID     uuid.UUID
	SigningKey        string
	ContactSigningKey string
	Signatures        []string
	CreatedAt         time.Time
}

// ContactInvitation is the handshake state shared by inviter and invitee.
type ContactInvitation struct {
	ID                 uuid.UUID
	UserID             uuid.UUID // inviter
	SigningKey         string
	ServerSecret       string
	Status             InvitationStatus
	ContactInfoMessage *string
	AcceptedByUserID   uuid.NullUUID
	CreatedAt          time.Time
}

// InvitationLookup identifies an invitation by the out-of-band triple.
type InvitationLookup struct {
	UserID       uuid.UUID
	SigningKey   string
	ServerSecret string
}

// AcceptInvitationInput is the invitee's side of the handshake.
type AcceptInvitationInput struct {
	InvitationLookup
	Signature          string
	ContactInfoMessage string
}

// CompleteInvitationInput is the inviter's side of the handshake.
type CompleteInvitationInput struct {
	InvitationID   uuid.UUID
	UserID         uuid.UUID // invitee
	UserSigningKey string
	Signature      string
}

// PrivateInfoContent is a private cross-device sync entry.
type PrivateInfoContent struct {
	ID               uuid.UUID
	DeviceID         uuid.UUID
	EncryptedContent string
	CreatedAt        time.Time
}

// PrivateInfoGroupSessionMessage targets one of the user's own devices.
type PrivateInfoGroupSessionMessage struct {
	ID                   uuid.UUID
	PrivateInfoContentID uuid.UUID
	TargetDeviceIDKey    string
	Type                 int
	Body                 string
}

// PrivateInfoView is the latest private info of one device decryptable by the caller.
type PrivateInfoView struct {
	Content             PrivateInfoContent
	AuthorDevice        Device
	GroupSessionMessage PrivateInfoGroupSessionMessage
}

// PrivateInfoWithMessages is a private info row with a subset of its messages.
type PrivateInfoWithMessages struct {
	Content  PrivateInfoContent
	Messages []PrivateInfoGroupSessionMessage
}
