package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestContacts_Handshake(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")

	inv, err := e.contacts.CreateInvitation(ctx, a, "s3cret")
	require.NoError(t, err)
	require.Equal(t, model.InvitationPending, inv.Status)
	require.Equal(t, "alice-usk", inv.SigningKey)

	lookup := model.InvitationLookup{UserID: a.User.ID, SigningKey: inv.SigningKey, ServerSecret: "s3cret"}
	devices, err := e.contacts.DevicesForInvitation(ctx, lookup, "10.0.0.2")
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, a.Device.IDKey, devices[0].IDKey)

	accepted, err := e.contacts.Accept(ctx, b, model.AcceptInvitationInput{
		InvitationLookup:   lookup,
		Signature:          "bob-signs-alice",
		ContactInfoMessage: "hi alice",
	}, "10.0.0.2")
	require.NoError(t, err)
	require.Equal(t, model.InvitationAccepted, accepted.Status)
	require.Equal(t, uuid.NullUUID{UUID: b.User.ID, Valid: true}, accepted.AcceptedByUserID)
	require.NotNil(t, accepted.ContactInfoMessage)
	require.Equal(t, "hi alice", *accepted.ContactInfoMessage)

	bContacts, err := e.contacts.Contacts(ctx, b)
	require.NoError(t, err)
	require.Len(t, bContacts, 1)
	require.Equal(t, a.User.ID, bContacts[0].ContactUserID)
	require.Equal(t, "alice-usk", bContacts[0].ContactSigningKey)
	require.Equal(t, []string{"bob-signs-alice"}, bContacts[0].Signatures)

	open, err := e.contacts.Invitations(ctx, a)
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, model.InvitationAccepted, open[0].Status)

	// a second accept finds no PENDING invitation
	_, err = e.contacts.Accept(ctx, b, model.AcceptInvitationInput{InvitationLookup: lookup}, "10.0.0.2")
	require.ErrorIs(t, err, errs.ErrCannotAcceptInvitation)

	done, err := e.contacts.Complete(ctx, a, model.CompleteInvitationInput{
		InvitationID:   inv.ID,
		UserID:         b.User.ID,
		UserSigningKey: b.User.ActiveSigningKey(),
		Signature:      "alice-signs-bob",
	})
	require.NoError(t, err)
	require.Equal(t, model.InvitationCompleted, done.Status)

	aContacts, err := e.contacts.Contacts(ctx, a)
	require.NoError(t, err)
	require.Len(t, aContacts, 1)
	require.Equal(t, b.User.ID, aContacts[0].ContactUserID)
	require.Equal(t, "bob-usk", aContacts[0].ContactSigningKey)

	open, err = e.contacts.Invitations(ctx, a)
	require.NoError(t, err)
	require.Empty(t, open)

	_, err = e.contacts.DevicesForInvitation(ctx, lookup, "10.0.0.2")
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.contacts.Complete(ctx, a, model.CompleteInvitationInput{InvitationID: inv.ID, UserID: b.User.ID})
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestContacts_AcceptRequiresExactTriple(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")

	inv, err := e.contacts.CreateInvitation(ctx, a, "s3cret")
	require.NoError(t, err)

	for i, l := range []model.InvitationLookup{
		{UserID: a.User.ID, SigningKey: inv.SigningKey, ServerSecret: "wrong"},
		{UserID: a.User.ID, SigningKey: "other-key", ServerSecret: "s3cret"},
		{UserID: b.User.ID, SigningKey: inv.SigningKey, ServerSecret: "s3cret"},
	} {
		_, err := e.contacts.Accept(ctx, b, model.AcceptInvitationInput{InvitationLookup: l}, fmt.Sprintf("10.0.1.%d", i))
		require.ErrorIs(t, err, errs.ErrCannotAcceptInvitation)
	}

	got, err := e.store.Contacts().GetInvitation(ctx, inv.ID)
	require.NoError(t, err)
	require.Equal(t, model.InvitationPending, got.Status)

	contacts, err := e.contacts.Contacts(ctx, b)
	require.NoError(t, err)
	require.Empty(t, contacts)
}

func TestContacts_SelfAcceptRefused(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")

	inv, err := e.contacts.CreateInvitation(ctx, a, "s3cret")
	require.NoError(t, err)

	_, err = e.contacts.Accept(ctx, a, model.AcceptInvitationInput{
		InvitationLookup: model.InvitationLookup{UserID: a.User.ID, SigningKey: inv.SigningKey, ServerSecret: "s3cret"},
	}, "10.0.0.4")
	require.ErrorIs(t, err, errs.ErrCannotAcceptInvitation)

	_, err = e.contacts.CreateInvitation(ctx, a, "")
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestContacts_CompleteChecksParties(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	c := e.newUser(t, "carol")

	inv, err := e.contacts.CreateInvitation(ctx, a, "s3cret")
	require.NoError(t, err)

	// not accepted yet
	_, err = e.contacts.Complete(ctx, a, model.CompleteInvitationInput{InvitationID: inv.ID, UserID: b.User.ID})
	require.ErrorIs(t, err, errs.ErrInvalidState)

	_, err = e.contacts.Accept(ctx, b, model.AcceptInvitationInput{
		InvitationLookup: model.InvitationLookup{UserID: a.User.ID, SigningKey: inv.SigningKey, ServerSecret: "s3cret"},
	}, "10.0.0.5")
	require.NoError(t, err)

	_, err = e.contacts.Complete(ctx, c, model.CompleteInvitationInput{InvitationID: inv.ID, UserID: b.User.ID})
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.contacts.Complete(ctx, a, model.CompleteInvitationInput{InvitationID: inv.ID, UserID: c.User.ID})
	require.ErrorIs(t, err, errs.ErrInvalidState)

	_, err = e.contacts.Complete(ctx, a, model.CompleteInvitationInput{InvitationID: uuid.Must(uuid.NewV4()), UserID: b.User.ID})
	require.ErrorIs(t, err, errs.ErrNotFound)

	contacts, err := e.contacts.Contacts(ctx, a)
	require.NoError(t, err)
	require.Empty(t, contacts)
}

func TestContacts_ContactOwnership(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	e.addDevice(t, b, "bob-laptop")
	m := e.newUser(t, "mallory")
	contact := e.befriend(t, a, b)

	devices, err := e.contacts.DevicesForContact(ctx, a, contact.ID)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	for _, d := range devices {
		require.Equal(t, b.User.ID, d.UserID)
	}

	_, err = e.contacts.DevicesForContact(ctx, m, contact.ID)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
	require.ErrorIs(t, e.contacts.DeleteContact(ctx, m, contact.ID), errs.ErrAuthorizationFailed)

	require.NoError(t, e.contacts.DeleteContact(ctx, a, contact.ID))
	require.ErrorIs(t, e.contacts.DeleteContact(ctx, a, contact.ID), errs.ErrNotFound)

	// the reverse direction is untouched
	bContacts, err := e.contacts.Contacts(ctx, b)
	require.NoError(t, err)
	require.Len(t, bContacts, 1)
}

func TestContacts_DeleteInvitation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	e.befriend(t, a, b)

	invs, err := e.store.Contacts().ListInvitations(ctx, a.User.ID)
	require.NoError(t, err)
	require.Empty(t, invs)

	pending, err := e.contacts.CreateInvitation(ctx, a, "another")
	require.NoError(t, err)
	require.ErrorIs(t, e.contacts.DeleteInvitation(ctx, b, pending.ID), errs.ErrAuthorizationFailed)
	require.NoError(t, e.contacts.DeleteInvitation(ctx, a, pending.ID))
	require.ErrorIs(t, e.contacts.DeleteInvitation(ctx, a, pending.ID), errs.ErrNotFound)
}

func TestContacts_DeleteCompletedInvitationRefused(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")

	inv, err := e.contacts.CreateInvitation(ctx, a, "s3cret")
	require.NoError(t, err)
	_, err = e.contacts.Accept(ctx, b, model.AcceptInvitationInput{
		InvitationLookup: model.InvitationLookup{UserID: a.User.ID, SigningKey: inv.SigningKey, ServerSecret: "s3cret"},
	}, "10.0.0.6")
	require.NoError(t, err)
	_, err = e.contacts.Complete(ctx, a, model.CompleteInvitationInput{InvitationID: inv.ID, UserID: b.User.ID})
	require.NoError(t, err)

	require.ErrorIs(t, e.contacts.DeleteInvitation(ctx, a, inv.ID), errs.ErrInvalidState)
}

func TestContacts_InvitationLookupThrottled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")

	inv, err := e.contacts.CreateInvitation(ctx, a, "s3cret")
	require.NoError(t, err)
	good := model.InvitationLookup{UserID: a.User.ID, SigningKey: inv.SigningKey, ServerSecret: "s3cret"}
	bad := good
	bad.ServerSecret = "guess"

	_, err = e.contacts.DevicesForInvitation(ctx, bad, "10.0.0.7")
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = e.contacts.DevicesForInvitation(ctx, bad, "10.0.0.7")
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = e.contacts.DevicesForInvitation(ctx, bad, "10.0.0.7")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	_, err = e.contacts.DevicesForInvitation(ctx, good, "10.0.0.7")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	devices, err := e.contacts.DevicesForInvitation(ctx, good, "10.0.0.8")
	require.NoError(t, err)
	require.Len(t, devices, 1)
}
