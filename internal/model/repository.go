package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// EventType enumerates repository events.
type EventType string

const (
	EventDelete              EventType = "DELETE"
	EventRemoveCollaborators EventType = "REMOVE_COLLABORATORS"
)

// Repository is a collaboratively edited encrypted document container.
type Repository struct {
	ID                           uuid.UUID
	CreatorID                    uuid.UUID
	LastContentUpdateIntegrityID string
	Collaborators                []uuid.UUID
	CreatedAt                    time.Time
}

// HasCollaborator reports whether userID is in the collaborator set.
func (r Repository) HasCollaborator(userID uuid.UUID) bool {
	for _, id := range r.Collaborators {
		if id == userID {
			return true
		}
	}
	return false
}

// Content is one append-only entry in a repository history.
type Content struct {
	ID                     uuid.UUID
	RepositoryID           uuid.UUID
	DeviceID               uuid.UUID
	EncryptedContent       string
	SchemaVersion          *int
	SchemaVersionSignature *string
	CreatedAt              time.Time
}

// ContentInput is a client-supplied content version.
type ContentInput struct {
	EncryptedContent       string
	SchemaVersion          *int
	SchemaVersionSignature *string
	GroupSessionMessages   []GroupSessionMessageInput
}

// GroupSessionMessage delivers group-session key material to exactly one device.
type GroupSessionMessage struct {
	ID                uuid.UUID
	ContentID         uuid.UUID
	TargetDeviceIDKey string
	Type              int
	Body              string
}

// GroupSessionMessageInput is a client-supplied group-session message.
type GroupSessionMessageInput struct {
	TargetDeviceIDKey string
	Type              int
	Body              string
}

// ContentWithMessages is a content row together with a subset of its messages.
type ContentWithMessages struct {
	Content  Content
	Messages []GroupSessionMessage
}

// ContentView is the latest content of one author device, decryptable by the requesting device.
type ContentView struct {
	Content             Content
	AuthorUserID        uuid.UUID
	AuthorDevice        Device
	GroupSessionMessage GroupSessionMessage
}

// RepositoryView is a repository as seen by one device.
type RepositoryView struct {
	Repository Repository
	IsCreator  bool
	Content    []ContentView
}

// RepositoryTombstone tells a client to purge local state of a repository.
type RepositoryTombstone struct {
	ID uuid.UUID
}

// RepositoryListing is the result of listing repositories for a collaborator.
type RepositoryListing struct {
	Repositories []RepositoryView
	Tombstones   []RepositoryTombstone
}

// RepositoryEvent is an append-only tombstone/event record.
type RepositoryEvent struct {
	ID                    uuid.UUID
	RepositoryID          uuid.UUID
	Type                  EventType
	AffectedCollaborators []uuid.UUID
	CreatedAt             time.Time
}

// RepositoryDevices is the router consistency check result.
type RepositoryDevices struct {
	Devices                                  []Device
	GroupSessionMessageIDsMatchTargetDevices bool
	AllMessagesFound                         bool
}

// CollaboratorMessages is one entry of AddCollaboratorToRepositories.
type CollaboratorMessages struct {
	RepositoryID         uuid.UUID
	GroupSessionMessages []GroupSessionMessageInput
}

// CollaboratorResult reports the messages now attached to the caller's latest content.
type CollaboratorResult struct {
	RepositoryID           uuid.UUID
	GroupSessionMessageIDs []uuid.UUID
}

// ContentCommit is the result of a content write.
type ContentCommit struct {
	Repository             Repository
	Content                Content
	GroupSessionMessageIDs []uuid.UUID
}
