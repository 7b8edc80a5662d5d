package repository

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ContactRepository stores contact invitations and contacts.
type ContactRepository interface {
	CreateInvitation(ctx context.Context, inv *model.ContactInvitation) error
	GetInvitation(ctx context.Context, id uuid.UUID) (*model.ContactInvitation, error)
	// FindOpenInvitation returns the newest non-completed invitation matching the triple.
	FindOpenInvitation(ctx context.Context, l model.InvitationLookup) (*model.ContactInvitation, error)
	// AcceptInvitation moves the matching PENDING invitation to ACCEPTED and inserts the invitee's contact.
	// No PENDING match yields errs.ErrCannotAcceptInvitation.
	AcceptInvitation(ctx context.Context, l model.InvitationLookup, acceptedBy uuid.UUID, contactInfoMessage string, c *model.Contact) (*model.ContactInvitation, error)
	// CompleteInvitation moves an ACCEPTED invitation owned by inviterID to COMPLETED and inserts the inviter's contact.
	CompleteInvitation(ctx context.Context, id, inviterID uuid.UUID, c *model.Contact) (*model.ContactInvitation, error)
	// ListInvitations returns the user's non-completed invitations.
	ListInvitations(ctx context.Context, userID uuid.UUID) ([]model.ContactInvitation, error)
	DeleteInvitation(ctx context.Context, id uuid.UUID) error

	GetContact(ctx context.Context, id uuid.UUID) (*model.Contact, error)
	ListContacts(ctx context.Context, userID uuid.UUID) ([]model.Contact, error)
	DeleteContact(ctx context.Context, id uuid.UUID) error
}
