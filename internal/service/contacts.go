package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/limiter"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// ContactService implements the contact invitation handshake and contact management.
type ContactService interface {
	CreateInvitation(ctx context.Context, s *model.Session, serverSecret string) (*model.ContactInvitation, error)
	// DevicesForInvitation lets an invitee discover the inviter's devices. Unauthenticated.
	DevicesForInvitation(ctx context.Context, l model.InvitationLookup, peer string) ([]model.Device, error)
	Accept(ctx context.Context, s *model.Session, in model.AcceptInvitationInput, peer string) (*model.ContactInvitation, error)
	Complete(ctx context.Context, s *model.Session, in model.CompleteInvitationInput) (*model.ContactInvitation, error)
	Invitations(ctx context.Context, s *model.Session) ([]model.ContactInvitation, error)
	DeleteInvitation(ctx context.Context, s *model.Session, id uuid.UUID) error
	Contacts(ctx context.Context, s *model.Session) ([]model.Contact, error)
	DevicesForContact(ctx context.Context, s *model.Session, contactID uuid.UUID) ([]model.Device, error)
	DeleteContact(ctx context.Context, s *model.Session, contactID uuid.UUID) error
}

type ContactServiceImpl struct {
	contacts repository.ContactRepository
	devices  repository.DeviceRepository
	guard    secretGuard
}

// NewContactService constructs ContactService. lim may be nil to disable throttling.
func NewContactService(contacts repository.ContactRepository, devices repository.DeviceRepository, lim limiter.Limiter) *ContactServiceImpl {
	return &ContactServiceImpl{contacts: contacts, devices: devices, guard: secretGuard{lim: lim}}
}

// CreateInvitation opens a PENDING invitation bound to the caller's active signing key.
func (s *ContactServiceImpl) CreateInvitation(ctx context.Context, sess *model.Session, serverSecret string) (*model.ContactInvitation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if serverSecret == "" {
		return nil, errs.Validationf("empty server secret")
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	inv := &model.ContactInvitation{
		ID:           id,
		UserID:       sess.User.ID,
		SigningKey:   sess.User.ActiveSigningKey(),
		ServerSecret: serverSecret,
		Status:       model.InvitationPending,
	}
	if err := s.contacts.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}
	return inv, nil
}

// DevicesForInvitation returns the inviter's devices for a non-completed invitation.
func (s *ContactServiceImpl) DevicesForInvitation(ctx context.Context, l model.InvitationLookup, peer string) ([]model.Device, error) {
	if err := s.guard.allow(ctx, limiter.ScopeContactInvitation, peer); err != nil {
		return nil, err
	}
	inv, err := s.contacts.FindOpenInvitation(ctx, l)
	if errors.Is(err, errs.ErrNotFound) {
		if gerr := s.guard.failed(ctx, limiter.ScopeContactInvitation, peer); gerr != nil {
			return nil, gerr
		}
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.guard.succeeded(ctx, limiter.ScopeContactInvitation, peer)
	return s.devices.ListByUser(ctx, inv.UserID)
}

// Accept moves the matching invitation to ACCEPTED and records the invitee's contact.
func (s *ContactServiceImpl) Accept(ctx context.Context, sess *model.Session, in model.AcceptInvitationInput, peer string) (*model.ContactInvitation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if in.UserID == sess.User.ID {
		return nil, errs.ErrCannotAcceptInvitation
	}
	if err := s.guard.allow(ctx, limiter.ScopeContactInvitation, peer); err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	c := &model.Contact{
		ID:                id,
		UserID:            sess.User.ID,
		ContactUserID:     in.UserID,
		SigningKey:        sess.User.ActiveSigningKey(),
		ContactSigningKey: in.SigningKey,
		Signatures:        []string{in.Signature},
	}
	inv, err := s.contacts.AcceptInvitation(ctx, in.InvitationLookup, sess.User.ID, in.ContactInfoMessage, c)
	if errors.Is(err, errs.ErrCannotAcceptInvitation) {
		if gerr := s.guard.failed(ctx, limiter.ScopeContactInvitation, peer); gerr != nil {
			return nil, gerr
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}
	s.guard.succeeded(ctx, limiter.ScopeContactInvitation, peer)
	return inv, nil
}

// Complete finishes the handshake on the inviter's side.
func (s *ContactServiceImpl) Complete(ctx context.Context, sess *model.Session, in model.CompleteInvitationInput) (*model.ContactInvitation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	id, err := newID()
	if err != nil {
		return nil, err
	}
	c := &model.Contact{
		ID:                id,
		UserID:            sess.User.ID,
		ContactUserID:     in.UserID,
		SigningKey:        sess.User.ActiveSigningKey(),
		ContactSigningKey: in.UserSigningKey,
		Signatures:        []string{in.Signature},
	}
	inv, err := s.contacts.CompleteInvitation(ctx, in.InvitationID, sess.User.ID, c)
	if err != nil {
		return nil, fmt.Errorf("complete invitation: %w", err)
	}
	return inv, nil
}

// Invitations lists the caller's non-completed invitations.
func (s *ContactServiceImpl) Invitations(ctx context.Context, sess *model.Session) ([]model.ContactInvitation, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.contacts.ListInvitations(ctx, sess.User.ID)
}

// DeleteInvitation withdraws an invitation of the caller before it completes.
func (s *ContactServiceImpl) DeleteInvitation(ctx context.Context, sess *model.Session, id uuid.UUID) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	inv, err := s.contacts.GetInvitation(ctx, id)
	if err != nil {
		return err
	}
	if inv.UserID != sess.User.ID {
		return errs.ErrAuthorizationFailed
	}
	if inv.Status == model.InvitationCompleted {
		return fmt.Errorf("%w: invitation already completed", errs.ErrInvalidState)
	}
	return s.contacts.DeleteInvitation(ctx, id)
}

// Contacts lists the caller's contacts.
func (s *ContactServiceImpl) Contacts(ctx context.Context, sess *model.Session) ([]model.Contact, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.contacts.ListContacts(ctx, sess.User.ID)
}

func (s *ContactServiceImpl) ownedContact(ctx context.Context, sess *model.Session, id uuid.UUID) (*model.Contact, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	c, err := s.contacts.GetContact(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.UserID != sess.User.ID {
		return nil, errs.ErrAuthorizationFailed
	}
	return c, nil
}

// DevicesForContact lists the devices of a contact owned by the caller.
func (s *ContactServiceImpl) DevicesForContact(ctx context.Context, sess *model.Session, contactID uuid.UUID) ([]model.Device, error) {
	c, err := s.ownedContact(ctx, sess, contactID)
	if err != nil {
		return nil, err
	}
	return s.devices.ListByUser(ctx, c.ContactUserID)
}

// DeleteContact removes a contact owned by the caller.
func (s *ContactServiceImpl) DeleteContact(ctx context.Context, sess *model.Session, contactID uuid.UUID) error {
	if _, err := s.ownedContact(ctx, sess, contactID); err != nil {
		return err
	}
	return s.contacts.DeleteContact(ctx, contactID)
}
