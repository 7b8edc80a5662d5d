package service

import (
	"context"
	"testing"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/stretchr/testify/require"
)

func TestDevices_CreateUserValidation(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	_, _, err := e.devices.CreateUserWithDevice(ctx, "", deviceInput("a"))
	require.ErrorIs(t, err, errs.ErrValidation)

	in := deviceInput("a")
	in.FallbackKey = ""
	_, _, err = e.devices.CreateUserWithDevice(ctx, "usk", in)
	require.ErrorIs(t, err, errs.ErrValidation)

	s := e.newUser(t, "alice", "k1")
	require.Equal(t, "alice-usk", s.User.ActiveSigningKey())
	require.Equal(t, []string{"alice-sig"}, s.Device.Signatures)

	_, _, err = e.devices.CreateUserWithDevice(ctx, "other-usk", deviceInput("alice"))
	require.ErrorIs(t, err, errs.ErrAlreadyExists)
}

func TestDevices_AddDeviceStoresOneTimeKeys(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice", "a1")
	laptop := e.addDevice(t, a, "alice-laptop", "l1", "l2")
	b := e.newUser(t, "bob")

	n, err := e.keys.CountUnclaimed(ctx, laptop, "")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	got, err := e.keys.ClaimForDevices(ctx, b, []string{laptop.Device.IDKey})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.False(t, got[0].Fallback)
	require.Contains(t, []string{"l1", "l2"}, got[0].Key)
}

func TestDevices_AddDeviceRejectsTakenKeyAtomically(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice", "a1")

	_, err := e.devices.AddDevice(ctx, a, deviceInput("alice-laptop", "l1", "a1"), "verify", "secret")
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	_, err = e.store.Devices().GetByIDKey(ctx, "alice-laptop-idk")
	require.ErrorIs(t, err, errs.ErrNotFound)

	n, err := e.keys.CountUnclaimed(ctx, a, "")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestDevices_DeleteOnlyDeviceRefused(t *testing.T) {
	e := newEnv(t)
	s := e.newUser(t, "alice")

	_, err := e.devices.DeleteDevice(context.Background(), s, s.Device.IDKey)
	require.ErrorIs(t, err, errs.ErrCannotRemoveLastDevice)
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestDevices_DeleteSecondDeviceLeavesOneTombstone(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	laptop := e.addDevice(t, a, "alice-laptop", "l1")

	ts, err := e.devices.DeleteDevice(ctx, a, laptop.Device.IDKey)
	require.NoError(t, err)
	require.Equal(t, laptop.Device.IDKey, ts.IDKey)

	all, err := e.devices.DeviceTombstones(ctx, a)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, laptop.Device.IDKey, all[0].IDKey)
	require.Equal(t, laptop.Device.ID, all[0].ID)

	ds, err := e.devices.Devices(ctx, a)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	require.Equal(t, a.Device.ID, ds[0].ID)
}

func TestDevices_DeleteForeignDeviceRejected(t *testing.T) {
	e := newEnv(t)
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	e.addDevice(t, b, "bob-laptop")

	_, err := e.devices.DeleteDevice(context.Background(), a, b.Device.IDKey)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
}

func TestDevices_FetchAddDeviceVerificationThrottlesMisses(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	e.addDevice(t, a, "alice-laptop")

	v, err := e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "alice-laptop-secret", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, "verify", v.VerificationMessage)

	// idempotent
	again, err := e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "alice-laptop-secret", "10.0.0.1")
	require.NoError(t, err)
	require.Equal(t, v.ID, again.ID)

	_, err = e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "wrong", "10.0.0.9")
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
	_, err = e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "wrong", "10.0.0.9")
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
	_, err = e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "wrong", "10.0.0.9")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	// even the right secret is refused while blocked
	_, err = e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "alice-laptop-secret", "10.0.0.9")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	_, err = e.devices.FetchAddDeviceVerification(ctx, "alice-laptop-idk", "alice-laptop-secret", "10.0.0.1")
	require.NoError(t, err)
}

func TestDevices_DeleteUserEmitsTombstonesForOthers(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	contact := e.befriend(t, a, b)

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := commit.Repository.ID
	_, err = e.repos.AddCollaborator(ctx, a, contact.ID, []model.CollaboratorMessages{{RepositoryID: repoID}})
	require.NoError(t, err)

	require.NoError(t, e.devices.DeleteUser(ctx, a))

	list, err := e.repos.List(ctx, b, nil)
	require.NoError(t, err)
	require.Empty(t, list.Repositories)
	require.Equal(t, []model.RepositoryTombstone{{ID: repoID}}, list.Tombstones)

	cs, err := e.contacts.Contacts(ctx, b)
	require.NoError(t, err)
	require.Empty(t, cs)

	_, err = e.store.Users().GetByID(ctx, a.User.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
