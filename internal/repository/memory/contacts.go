package memory

import (
	"context"
	"sort"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
)

// ContactRepo is the in-memory ContactRepository.
type ContactRepo struct{ s *Store }

func copyInvitation(inv *model.ContactInvitation) *model.ContactInvitation {
	c := *inv
	if inv.ContactInfoMessage != nil {
		m := *inv.ContactInfoMessage
		c.ContactInfoMessage = &m
	}
	return &c
}

func copyContact(c *model.Contact) *model.Contact {
	cc := *c
	cc.Signatures = cloneStrings(c.Signatures)
	return &cc
}

func (s *Store) insertContact(c *model.Contact) {
	c.CreatedAt = s.tick()
	s.contacts[c.ID] = copyContact(c)
}

func (s *Store) matching(l model.InvitationLookup, keep func(*model.ContactInvitation) bool) []*model.ContactInvitation {
	var out []*model.ContactInvitation
	for _, inv := range s.invitations {
		if inv.UserID == l.UserID && inv.SigningKey == l.SigningKey && inv.ServerSecret == l.ServerSecret && keep(inv) {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// CreateInvitation stores a new invitation.
func (r *ContactRepo) CreateInvitation(_ context.Context, inv *model.ContactInvitation) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	inv.CreatedAt = s.tick()
	s.invitations[inv.ID] = copyInvitation(inv)
	return nil
}

// GetInvitation loads an invitation.
func (r *ContactRepo) GetInvitation(_ context.Context, id uuid.UUID) (*model.ContactInvitation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return copyInvitation(inv), nil
}

// FindOpenInvitation returns the newest non-completed match.
func (r *ContactRepo) FindOpenInvitation(_ context.Context, l model.InvitationLookup) (*model.ContactInvitation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.matching(l, func(inv *model.ContactInvitation) bool { return inv.Status != model.InvitationCompleted })
	if len(found) == 0 {
		return nil, errs.ErrNotFound
	}
	return copyInvitation(found[len(found)-1]), nil
}

// AcceptInvitation accepts the oldest PENDING match and stores the invitee's contact.
func (r *ContactRepo) AcceptInvitation(_ context.Context, l model.InvitationLookup, acceptedBy uuid.UUID, contactInfoMessage string, c *model.Contact) (*model.ContactInvitation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	found := s.matching(l, func(inv *model.ContactInvitation) bool { return inv.Status == model.InvitationPending })
	if len(found) == 0 {
		return nil, errs.ErrCannotAcceptInvitation
	}
	inv := found[0]
	msg := contactInfoMessage
	inv.Status = model.InvitationAccepted
	inv.ContactInfoMessage = &msg
	inv.AcceptedByUserID = uuid.NullUUID{UUID: acceptedBy, Valid: true}
	s.insertContact(c)
	return copyInvitation(inv), nil
}

// CompleteInvitation completes an ACCEPTED invitation owned by inviterID.
func (r *ContactRepo) CompleteInvitation(_ context.Context, id, inviterID uuid.UUID, c *model.Contact) (*model.ContactInvitation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if err := repository.CheckCompletable(inv, inviterID, c.ContactUserID); err != nil {
		return nil, err
	}
	inv.Status = model.InvitationCompleted
	s.insertContact(c)
	return copyInvitation(inv), nil
}

// ListInvitations returns the user's open invitations, newest first.
func (r *ContactRepo) ListInvitations(_ context.Context, userID uuid.UUID) ([]model.ContactInvitation, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ContactInvitation
	for _, inv := range s.invitations {
		if inv.UserID == userID && inv.Status != model.InvitationCompleted {
			out = append(out, *copyInvitation(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// DeleteInvitation removes an invitation.
func (r *ContactRepo) DeleteInvitation(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.invitations[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.invitations, id)
	return nil
}

// GetContact loads a contact.
func (r *ContactRepo) GetContact(_ context.Context, id uuid.UUID) (*model.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.contacts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return copyContact(c), nil
}

// ListContacts returns the contacts owned by userID, oldest first.
func (r *ContactRepo) ListContacts(_ context.Context, userID uuid.UUID) ([]model.Contact, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Contact
	for _, c := range s.contacts {
		if c.UserID == userID {
			out = append(out, *copyContact(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteContact removes a contact.
func (r *ContactRepo) DeleteContact(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.contacts[id]; !ok {
		return errs.ErrNotFound
	}
	delete(s.contacts, id)
	return nil
}
