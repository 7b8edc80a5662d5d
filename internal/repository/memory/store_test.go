package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

var (
	_ repository.UserRepository        = (*UserRepo)(nil)
	_ repository.DeviceRepository      = (*DeviceRepo)(nil)
	_ repository.OneTimeKeyRepository  = (*KeyRepo)(nil)
	_ repository.CollabRepository      = (*CollabRepo)(nil)
	_ repository.ContactRepository     = (*ContactRepo)(nil)
	_ repository.PrivateInfoRepository = (*PrivateInfoRepo)(nil)
	_ repository.LicenseRepository     = (*LicenseRepo)(nil)
)

func newUser(t *testing.T, s *Store, idKey string, keys ...string) (*model.User, *model.Device) {
	t.Helper()
	u := &model.User{ID: uuid.Must(uuid.NewV4()), SigningKeys: []string{"usk-" + idKey}}
	d := &model.Device{ID: uuid.Must(uuid.NewV4()), UserID: u.ID, IDKey: idKey, SigningKey: "sk-" + idKey, FallbackKey: "fb-" + idKey}
	var in []model.OneTimeKeyInput
	for _, k := range keys {
		in = append(in, model.OneTimeKeyInput{Key: k, Signature: "sig-" + k})
	}
	require.NoError(t, s.Users().Create(context.Background(), u, d, in))
	return u, d
}

func addDevice(t *testing.T, s *Store, u *model.User, idKey string) *model.Device {
	t.Helper()
	d := &model.Device{ID: uuid.Must(uuid.NewV4()), UserID: u.ID, IDKey: idKey, SigningKey: "sk-" + idKey}
	v := &model.AddDeviceVerification{ID: uuid.Must(uuid.NewV4()), DeviceIDKey: idKey, ServerSecret: "s"}
	require.NoError(t, s.Devices().Create(context.Background(), d, v, nil))
	return d
}

func TestUsers_CreateRejectsDuplicateKeysAtomically(t *testing.T) {
	s := New()
	newUser(t, s, "a", "k1")

	u := &model.User{ID: uuid.Must(uuid.NewV4())}
	d := &model.Device{ID: uuid.Must(uuid.NewV4()), UserID: u.ID, IDKey: "b", SigningKey: "sk-b"}
	err := s.Users().Create(context.Background(), u, d, []model.OneTimeKeyInput{{Key: "k1"}})
	require.ErrorIs(t, err, errs.ErrAlreadyExists)

	_, err = s.Users().GetByID(context.Background(), u.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	_, err = s.Devices().GetByIDKey(context.Background(), "b")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestKeys_ConcurrentClaimsNeverShareAKey(t *testing.T) {
	s := New()
	_, target := newUser(t, s, "t", "k1", "k2", "k3", "k4", "k5")
	ctx := context.Background()

	var (
		mu   sync.Mutex
		got  = map[string]int{}
		miss int
		wg   sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k, ok, err := s.Keys().ClaimOne(ctx, target.ID, uuid.Must(uuid.NewV4()))
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if !ok {
				miss++
				return
			}
			got[k.Key]++
		}()
	}
	wg.Wait()

	require.Len(t, got, 5)
	for k, n := range got {
		require.Equal(t, 1, n, "key %s claimed twice", k)
	}
	require.Equal(t, 15, miss)
	n, err := s.Keys().CountUnclaimed(ctx, target.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestKeys_RemoveIsScopedToOwner(t *testing.T) {
	s := New()
	_, a := newUser(t, s, "a", "ka")
	_, b := newUser(t, s, "b")
	ctx := context.Background()

	ok, err := s.Keys().Remove(ctx, b.ID, "ka")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Keys().Remove(ctx, a.ID, "ka")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDevices_DeleteLastDeviceRefused(t *testing.T) {
	s := New()
	u, d := newUser(t, s, "a")
	ctx := context.Background()

	_, err := s.Devices().Delete(ctx, u.ID, d.ID)
	require.ErrorIs(t, err, errs.ErrCannotRemoveLastDevice)

	d2 := addDevice(t, s, u, "a2")
	tomb, err := s.Devices().Delete(ctx, u.ID, d2.ID)
	require.NoError(t, err)
	require.Equal(t, "a2", tomb.IDKey)

	ts, err := s.Devices().Tombstones(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, ts, 1)
}

func TestCollab_ReuseRestrictedToSameRepository(t *testing.T) {
	s := New()
	u, d := newUser(t, s, "a")
	ctx := context.Background()
	repos := s.Repositories()

	mkRepo := func() (*model.Repository, model.GroupSessionMessage) {
		r := &model.Repository{ID: uuid.Must(uuid.NewV4()), CreatorID: u.ID, LastContentUpdateIntegrityID: "t0"}
		c := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: r.ID, DeviceID: d.ID}
		m := model.GroupSessionMessage{ID: uuid.Must(uuid.NewV4()), TargetDeviceIDKey: "a"}
		require.NoError(t, repos.Create(ctx, r, c, []model.GroupSessionMessage{m}))
		return r, m
	}
	r1, m1 := mkRepo()
	_, m2 := mkRepo()

	c2 := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: r1.ID, DeviceID: d.ID}
	require.NoError(t, repos.AppendContent(ctx, c2, nil, []uuid.UUID{m1.ID, m2.ID}, "t1"))

	got, err := repos.LatestContentForDevices(ctx, r1.ID, []uuid.UUID{d.ID}, "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, c2.ID, got[0].Content.ID)
	require.Len(t, got[0].Messages, 1)
	require.Equal(t, m1.ID, got[0].Messages[0].ID)

	r, err := repos.Get(ctx, r1.ID)
	require.NoError(t, err)
	require.Equal(t, "t1", r.LastContentUpdateIntegrityID)
}

func TestCollab_AddCollaboratorUsesNewestContentOfDevice(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, od := newUser(t, s, "o")
	other, xd := newUser(t, s, "x")
	repos := s.Repositories()

	r := &model.Repository{ID: uuid.Must(uuid.NewV4()), CreatorID: owner.ID, LastContentUpdateIntegrityID: "t0"}
	c1 := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: r.ID, DeviceID: od.ID}
	require.NoError(t, repos.Create(ctx, r, c1, nil))
	c2 := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: r.ID, DeviceID: od.ID}
	require.NoError(t, repos.AppendContent(ctx, c2, nil, nil, "t1"))

	msg := model.GroupSessionMessage{ID: uuid.Must(uuid.NewV4()), TargetDeviceIDKey: xd.IDKey, Body: "k"}
	ids, ok, err := repos.AddCollaborator(ctx, r.ID, other.ID, od.ID, []model.GroupSessionMessage{msg}, "t2")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []uuid.UUID{msg.ID}, ids)

	got, err := repos.LatestContentForDevices(ctx, r.ID, []uuid.UUID{od.ID}, xd.IDKey)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, c2.ID, got[0].Content.ID)
	require.Len(t, got[0].Messages, 1)

	_, ok, err = repos.AddCollaborator(ctx, r.ID, other.ID, xd.ID, nil, "")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCollab_RemoveUnknownCollaborator(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, od := newUser(t, s, "o")

	r := &model.Repository{ID: uuid.Must(uuid.NewV4()), CreatorID: owner.ID, LastContentUpdateIntegrityID: "t"}
	c := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: r.ID, DeviceID: od.ID}
	require.NoError(t, s.Repositories().Create(ctx, r, c, nil))

	ghost := uuid.Must(uuid.NewV4())
	ev := &model.RepositoryEvent{ID: uuid.Must(uuid.NewV4()), RepositoryID: r.ID, Type: model.EventDelete, AffectedCollaborators: []uuid.UUID{ghost}}
	require.ErrorIs(t, s.Repositories().RemoveCollaborator(ctx, r.ID, ghost, ev), errs.ErrNotFound)

	evs, err := s.Repositories().EventsForUser(ctx, ghost)
	require.NoError(t, err)
	require.Empty(t, evs)
}

func TestUsers_DeleteCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	owner, od := newUser(t, s, "o", "ko")
	other, xd := newUser(t, s, "x")

	r := &model.Repository{ID: uuid.Must(uuid.NewV4()), CreatorID: owner.ID, LastContentUpdateIntegrityID: "t"}
	c := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: r.ID, DeviceID: od.ID}
	require.NoError(t, s.Repositories().Create(ctx, r, c, nil))
	_, ok, err := s.Repositories().AddCollaborator(ctx, r.ID, other.ID, od.ID, nil, "")
	require.NoError(t, err)
	require.True(t, ok)

	foreign := &model.Repository{ID: uuid.Must(uuid.NewV4()), CreatorID: other.ID, LastContentUpdateIntegrityID: "t"}
	fc := &model.Content{ID: uuid.Must(uuid.NewV4()), RepositoryID: foreign.ID, DeviceID: xd.ID}
	require.NoError(t, s.Repositories().Create(ctx, foreign, fc, nil))
	_, ok, err = s.Repositories().AddCollaborator(ctx, foreign.ID, owner.ID, xd.ID, nil, "")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Users().Delete(ctx, owner.ID))

	_, err = s.Repositories().Get(ctx, r.ID)
	require.ErrorIs(t, err, errs.ErrNotFound)
	fr, err := s.Repositories().Get(ctx, foreign.ID)
	require.NoError(t, err)
	require.False(t, fr.HasCollaborator(owner.ID))

	evs, err := s.Repositories().EventsForUser(ctx, other.ID)
	require.NoError(t, err)
	require.Len(t, evs, 1)
	require.Equal(t, r.ID, evs[0].RepositoryID)
	require.Equal(t, model.EventDelete, evs[0].Type)

	_, err = s.Devices().GetByIDKey(ctx, "o")
	require.ErrorIs(t, err, errs.ErrNotFound)
	keys, err := s.Keys().ListByDevice(ctx, od.ID)
	require.NoError(t, err)
	require.Empty(t, keys)
}

func TestContacts_AcceptOnlyPending(t *testing.T) {
	s := New()
	ctx := context.Background()
	inviter, _ := newUser(t, s, "i")
	invitee, _ := newUser(t, s, "e")

	inv := &model.ContactInvitation{ID: uuid.Must(uuid.NewV4()), UserID: inviter.ID, SigningKey: "usk-i", ServerSecret: "sec", Status: model.InvitationPending}
	require.NoError(t, s.Contacts().CreateInvitation(ctx, inv))

	l := model.InvitationLookup{UserID: inviter.ID, SigningKey: "usk-i", ServerSecret: "sec"}
	c := &model.Contact{ID: uuid.Must(uuid.NewV4()), UserID: invitee.ID, ContactUserID: inviter.ID}
	got, err := s.Contacts().AcceptInvitation(ctx, l, invitee.ID, "info", c)
	require.NoError(t, err)
	require.Equal(t, model.InvitationAccepted, got.Status)

	_, err = s.Contacts().AcceptInvitation(ctx, l, invitee.ID, "info", &model.Contact{ID: uuid.Must(uuid.NewV4())})
	require.ErrorIs(t, err, errs.ErrCannotAcceptInvitation)

	open, err := s.Contacts().FindOpenInvitation(ctx, l)
	require.NoError(t, err)
	require.Equal(t, inv.ID, open.ID)
}
