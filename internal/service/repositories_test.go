package service

import (
	"context"
	"testing"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/notify"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

func TestRepositories_SecondDeviceSeesContentOnceTargeted(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	require.Len(t, commit.GroupSessionMessageIDs, 1)
	require.Equal(t, a.Device.ID, commit.Content.DeviceID)

	list, err := e.repos.List(ctx, a, nil)
	require.NoError(t, err)
	require.Len(t, list.Repositories, 1)
	v := list.Repositories[0]
	require.True(t, v.IsCreator)
	require.Equal(t, []uuid.UUID{a.User.ID}, v.Repository.Collaborators)
	require.Len(t, v.Content, 1)
	require.Equal(t, a.Device.IDKey, v.Content[0].GroupSessionMessage.TargetDeviceIDKey)
	require.Equal(t, a.Device.ID, v.Content[0].AuthorDevice.ID)
	require.Equal(t, a.User.ID, v.Content[0].AuthorUserID)

	b := e.addDevice(t, a, "alice-laptop")
	got, err := e.repos.Get(ctx, b, commit.Repository.ID)
	require.NoError(t, err)
	require.Empty(t, got.Content)

	_, err = e.repos.UpdateContentAndGroupSession(ctx, a, commit.Repository.ID, contentFor(a, a, b))
	require.NoError(t, err)

	got, err = e.repos.Get(ctx, b, commit.Repository.ID)
	require.NoError(t, err)
	require.Len(t, got.Content, 1)
	require.Equal(t, b.Device.IDKey, got.Content[0].GroupSessionMessage.TargetDeviceIDKey)
}

func TestRepositories_IntegrityTokenRotatesAndSkipsUnchanged(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")

	created, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := created.Repository.ID
	oldToken := created.Repository.LastContentUpdateIntegrityID
	require.NotEmpty(t, oldToken)

	updated, err := e.repos.UpdateContent(ctx, a, repoID, contentFor(a), created.GroupSessionMessageIDs)
	require.NoError(t, err)
	newToken := updated.Repository.LastContentUpdateIntegrityID
	require.NotEqual(t, oldToken, newToken)

	last := e.notifier.last()
	require.Equal(t, notify.Event{Type: notify.ContentUpdated, RepositoryID: repoID, IntegrityID: newToken}, last.ev)
	require.Equal(t, []uuid.UUID{a.User.ID}, last.users)

	list, err := e.repos.List(ctx, a, map[uuid.UUID]string{repoID: newToken})
	require.NoError(t, err)
	require.Len(t, list.Repositories, 1)
	require.Empty(t, list.Repositories[0].Content)

	list, err = e.repos.List(ctx, a, map[uuid.UUID]string{repoID: oldToken})
	require.NoError(t, err)
	require.Len(t, list.Repositories[0].Content, 1)
	// the reused message moved onto the new content
	require.Equal(t, updated.Content.ID, list.Repositories[0].Content[0].Content.ID)
}

func TestRepositories_SenderMustBelongToCaller(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")

	_, err := e.repos.Create(ctx, a, contentFor(b, a))
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.repos.Create(ctx, a, model.ContentInput{EncryptedContent: `{"senderIdKey":"ghost"}`})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.repos.Create(ctx, a, model.ContentInput{EncryptedContent: "not an envelope"})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestRepositories_NonCollaboratorRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	c := e.newUser(t, "carol")
	bContact := e.befriend(t, b, c)

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := commit.Repository.ID

	_, err = e.repos.UpdateContent(ctx, b, repoID, contentFor(b), commit.GroupSessionMessageIDs)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.repos.UpdateContentAndGroupSession(ctx, b, repoID, contentFor(b, b))
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.repos.AddCollaborator(ctx, b, bContact.ID, []model.CollaboratorMessages{{RepositoryID: repoID}})
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.repos.Get(ctx, b, repoID)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.repos.UpdateContent(ctx, a, uuid.Must(uuid.NewV4()), contentFor(a), nil)
	require.ErrorIs(t, err, errs.ErrNotFound)

	r, err := e.store.Repositories().Get(ctx, repoID)
	require.NoError(t, err)
	require.Equal(t, commit.Repository.LastContentUpdateIntegrityID, r.LastContentUpdateIntegrityID)
	require.Equal(t, []uuid.UUID{a.User.ID}, r.Collaborators)
}

func TestRepositories_AddCollaboratorChecksEveryEntryFirst(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	c := e.newUser(t, "carol")
	contact := e.befriend(t, a, b)

	own, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	foreign, err := e.repos.Create(ctx, c, contentFor(c, c))
	require.NoError(t, err)

	_, err = e.repos.AddCollaborator(ctx, a, contact.ID, []model.CollaboratorMessages{
		{RepositoryID: own.Repository.ID, GroupSessionMessages: []model.GroupSessionMessageInput{{TargetDeviceIDKey: b.Device.IDKey, Body: "k"}}},
		{RepositoryID: foreign.Repository.ID},
	})
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	r, err := e.store.Repositories().Get(ctx, own.Repository.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{a.User.ID}, r.Collaborators)

	// somebody else's contact
	cContact := e.befriend(t, c, b)
	_, err = e.repos.AddCollaborator(ctx, a, cContact.ID, []model.CollaboratorMessages{{RepositoryID: own.Repository.ID}})
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
}

func TestRepositories_AddCollaboratorConnectsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	contact := e.befriend(t, a, b)

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := commit.Repository.ID
	entry := model.CollaboratorMessages{
		RepositoryID:         repoID,
		GroupSessionMessages: []model.GroupSessionMessageInput{{TargetDeviceIDKey: b.Device.IDKey, Body: "k"}},
	}

	res, err := e.repos.AddCollaborator(ctx, a, contact.ID, []model.CollaboratorMessages{entry})
	require.NoError(t, err)
	require.Len(t, res, 1)
	require.Len(t, res[0].GroupSessionMessageIDs, 2)

	res, err = e.repos.AddCollaborator(ctx, a, contact.ID, []model.CollaboratorMessages{entry})
	require.NoError(t, err)
	require.Len(t, res[0].GroupSessionMessageIDs, 3)

	r, err := e.store.Repositories().Get(ctx, repoID)
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{a.User.ID, b.User.ID}, r.Collaborators)
	require.NotEqual(t, commit.Repository.LastContentUpdateIntegrityID, r.LastContentUpdateIntegrityID)

	got, err := e.repos.Get(ctx, b, repoID)
	require.NoError(t, err)
	require.False(t, got.IsCreator)
	require.Len(t, got.Content, 1)
	require.Equal(t, a.User.ID, got.Content[0].AuthorUserID)

	last := e.notifier.last()
	require.Equal(t, notify.CollaboratorAdded, last.ev.Type)
	require.ElementsMatch(t, []uuid.UUID{a.User.ID, b.User.ID}, last.users)
}

func TestRepositories_AddCollaboratorSkipsRepoWithoutOwnContent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	laptop := e.addDevice(t, a, "alice-laptop")
	b := e.newUser(t, "bob")
	contact := e.befriend(t, a, b)

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)

	res, err := e.repos.AddCollaborator(ctx, laptop, contact.ID, []model.CollaboratorMessages{{RepositoryID: commit.Repository.ID}})
	require.NoError(t, err)
	require.Empty(t, res)
}

func TestRepositories_RemoveCollaboratorIsIdempotent(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	contact := e.befriend(t, a, b)

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := commit.Repository.ID
	added, err := e.repos.AddCollaborator(ctx, a, contact.ID, []model.CollaboratorMessages{{
		RepositoryID:         repoID,
		GroupSessionMessages: []model.GroupSessionMessageInput{{TargetDeviceIDKey: b.Device.IDKey, Body: "k"}},
	}})
	require.NoError(t, err)
	require.Len(t, added[0].GroupSessionMessageIDs, 2)

	for i := 0; i < 2; i++ {
		r, err := e.repos.RemoveCollaborator(ctx, a, repoID, b.User.ID)
		require.NoError(t, err)
		require.Equal(t, []uuid.UUID{a.User.ID}, r.Collaborators)
	}

	list, err := e.repos.List(ctx, b, nil)
	require.NoError(t, err)
	require.Empty(t, list.Repositories)
	require.Equal(t, []model.RepositoryTombstone{{ID: repoID}}, list.Tombstones)

	// messages targeted at the removed user are gone
	devices, err := e.repos.RepositoryDevices(ctx, a, repoID, added[0].GroupSessionMessageIDs)
	require.NoError(t, err)
	require.Len(t, devices.Devices, 1)
	require.False(t, devices.AllMessagesFound)

	list, err = e.repos.List(ctx, a, nil)
	require.NoError(t, err)
	require.Len(t, list.Repositories, 1)
	require.Empty(t, list.Tombstones)
}

func TestRepositories_RemoveCollaboratorRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	c := e.newUser(t, "carol")
	ab := e.befriend(t, a, b)
	ac := e.befriend(t, a, c)

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := commit.Repository.ID
	for _, ct := range []model.Contact{ab, ac} {
		_, err = e.repos.AddCollaborator(ctx, a, ct.ID, []model.CollaboratorMessages{{RepositoryID: repoID}})
		require.NoError(t, err)
	}

	_, err = e.repos.RemoveCollaborator(ctx, a, repoID, a.User.ID)
	require.ErrorIs(t, err, errs.ErrCannotRemoveCreator)

	_, err = e.repos.RemoveCollaborator(ctx, b, repoID, c.User.ID)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	_, err = e.repos.RemoveCollaborator(ctx, b, repoID, b.User.ID)
	require.NoError(t, err)

	_, err = e.repos.RemoveCollaborator(ctx, b, repoID, b.User.ID)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
}

func TestRepositories_RemoveUnknownCollaborator(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")

	commit, err := e.repos.Create(ctx, a, contentFor(a, a))
	require.NoError(t, err)
	repoID := commit.Repository.ID

	_, err = e.repos.RemoveCollaborator(ctx, a, repoID, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)

	list, err := e.repos.List(ctx, a, nil)
	require.NoError(t, err)
	require.Len(t, list.Repositories, 1)
	require.Equal(t, []uuid.UUID{a.User.ID}, list.Repositories[0].Repository.Collaborators)
}

func TestRepositories_DeleteByCreatorOnly(t *testing.T) {
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

	require.ErrorIs(t, e.repos.Delete(ctx, b, repoID), errs.ErrAuthorizationFailed)
	require.NoError(t, e.repos.Delete(ctx, a, repoID))
	require.ErrorIs(t, e.repos.Delete(ctx, a, repoID), errs.ErrNotFound)

	for _, s := range []*model.Session{a, b} {
		list, err := e.repos.List(ctx, s, nil)
		require.NoError(t, err)
		require.Empty(t, list.Repositories)
		require.Equal(t, []model.RepositoryTombstone{{ID: repoID}}, list.Tombstones)
	}
	last := e.notifier.last()
	require.Equal(t, notify.RepositoryDeleted, last.ev.Type)
	require.ElementsMatch(t, []uuid.UUID{a.User.ID, b.User.ID}, last.users)
}

func TestRepositories_RepositoryDevicesMatchesTargets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	laptop := e.addDevice(t, a, "alice-laptop")
	b := e.newUser(t, "bob")
	other := e.newUser(t, "mallory")

	commit, err := e.repos.Create(ctx, a, contentFor(a, a, laptop))
	require.NoError(t, err)
	repoID := commit.Repository.ID
	ids := commit.GroupSessionMessageIDs

	res, err := e.repos.RepositoryDevices(ctx, a, repoID, ids)
	require.NoError(t, err)
	require.Len(t, res.Devices, 2)
	require.True(t, res.AllMessagesFound)
	require.True(t, res.GroupSessionMessageIDsMatchTargetDevices)

	res, err = e.repos.RepositoryDevices(ctx, a, repoID, ids[:1])
	require.NoError(t, err)
	require.True(t, res.AllMessagesFound)
	require.False(t, res.GroupSessionMessageIDsMatchTargetDevices)

	res, err = e.repos.RepositoryDevices(ctx, a, repoID, append([]uuid.UUID{uuid.Must(uuid.NewV4())}, ids...))
	require.NoError(t, err)
	require.False(t, res.AllMessagesFound)
	require.False(t, res.GroupSessionMessageIDsMatchTargetDevices)

	// ids of another repository do not count
	foreign, err := e.repos.Create(ctx, other, contentFor(other, other))
	require.NoError(t, err)
	res, err = e.repos.RepositoryDevices(ctx, a, repoID, append(ids[:1:1], foreign.GroupSessionMessageIDs...))
	require.NoError(t, err)
	require.False(t, res.AllMessagesFound)

	_, err = e.repos.RepositoryDevices(ctx, b, repoID, ids)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
}
