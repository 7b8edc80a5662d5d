package service

import (
	"context"
	"fmt"
	"sort"

	"github.com/and161185/collabvault/internal/envelope"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/notify"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// RepositoryService defines repository, content and group-session routing operations.
type RepositoryService interface {
	Create(ctx context.Context, s *model.Session, in model.ContentInput) (*model.ContentCommit, error)
	// UpdateContent appends content reusing existing group-session messages.
	UpdateContent(ctx context.Context, s *model.Session, repoID uuid.UUID, in model.ContentInput, messageIDs []uuid.UUID) (*model.ContentCommit, error)
	// UpdateContentAndGroupSession appends content with a new set of group-session messages.
	UpdateContentAndGroupSession(ctx context.Context, s *model.Session, repoID uuid.UUID, in model.ContentInput) (*model.ContentCommit, error)
	Get(ctx context.Context, s *model.Session, repoID uuid.UUID) (*model.RepositoryView, error)
	// List returns every repository of the caller plus tombstones. Repositories whose
	// token equals lastTokens[id] come without content.
	List(ctx context.Context, s *model.Session, lastTokens map[uuid.UUID]string) (*model.RepositoryListing, error)
	// RepositoryDevices checks that messageIDs target exactly the devices of all collaborators.
	RepositoryDevices(ctx context.Context, s *model.Session, repoID uuid.UUID, messageIDs []uuid.UUID) (*model.RepositoryDevices, error)
	AddCollaborator(ctx context.Context, s *model.Session, contactID uuid.UUID, entries []model.CollaboratorMessages) ([]model.CollaboratorResult, error)
	RemoveCollaborator(ctx context.Context, s *model.Session, repoID, collaboratorID uuid.UUID) (*model.Repository, error)
	Delete(ctx context.Context, s *model.Session, repoID uuid.UUID) error
}

type RepositoryServiceImpl struct {
	repos    repository.CollabRepository
	devices  repository.DeviceRepository
	contacts repository.ContactRepository
	notifier notify.Notifier
	log      *zap.Logger
}

// NewRepositoryService constructs RepositoryService.
func NewRepositoryService(repos repository.CollabRepository, devices repository.DeviceRepository, contacts repository.ContactRepository, n notify.Notifier, log *zap.Logger) *RepositoryServiceImpl {
	if n == nil {
		n = notify.Nop{}
	}
	return &RepositoryServiceImpl{repos: repos, devices: devices, contacts: contacts, notifier: n, log: log}
}

// collaboratorRepo loads the repository and checks the caller is one of its collaborators.
func (s *RepositoryServiceImpl) collaboratorRepo(ctx context.Context, sess *model.Session, repoID uuid.UUID) (*model.Repository, error) {
	r, err := s.repos.Get(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if !r.HasCollaborator(sess.User.ID) {
		return nil, errs.ErrAuthorizationFailed
	}
	return r, nil
}

func newContent(repoID, deviceID uuid.UUID, in model.ContentInput) (*model.Content, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	return &model.Content{
		ID:                     id,
		RepositoryID:           repoID,
		DeviceID:               deviceID,
		EncryptedContent:       in.EncryptedContent,
		SchemaVersion:          in.SchemaVersion,
		SchemaVersionSignature: in.SchemaVersionSignature,
	}, nil
}

// Create stores a repository whose creator and only collaborator is the caller.
func (s *RepositoryServiceImpl) Create(ctx context.Context, sess *model.Session, in model.ContentInput) (*model.ContentCommit, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	sender, err := envelope.Sender(ctx, s.devices, sess.User.ID, in.EncryptedContent)
	if err != nil {
		return nil, err
	}
	repoID, err := newID()
	if err != nil {
		return nil, err
	}
	token, err := newIntegrityID()
	if err != nil {
		return nil, err
	}
	c, err := newContent(repoID, sender.ID, in)
	if err != nil {
		return nil, err
	}
	msgs, ids, err := toMessages(c.ID, in.GroupSessionMessages)
	if err != nil {
		return nil, err
	}
	r := &model.Repository{ID: repoID, CreatorID: sess.User.ID, LastContentUpdateIntegrityID: token}
	if err := s.repos.Create(ctx, r, c, msgs); err != nil {
		return nil, fmt.Errorf("create repository: %w", err)
	}
	return &model.ContentCommit{Repository: *r, Content: *c, GroupSessionMessageIDs: ids}, nil
}

func (s *RepositoryServiceImpl) appendContent(ctx context.Context, sess *model.Session, repoID uuid.UUID, in model.ContentInput, msgs []model.GroupSessionMessageInput, reuse []uuid.UUID) (*model.ContentCommit, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	sender, err := envelope.Sender(ctx, s.devices, sess.User.ID, in.EncryptedContent)
	if err != nil {
		return nil, err
	}
	r, err := s.collaboratorRepo(ctx, sess, repoID)
	if err != nil {
		return nil, err
	}
	token, err := newIntegrityID()
	if err != nil {
		return nil, err
	}
	c, err := newContent(repoID, sender.ID, in)
	if err != nil {
		return nil, err
	}
	created, ids, err := toMessages(c.ID, msgs)
	if err != nil {
		return nil, err
	}
	if err := s.repos.AppendContent(ctx, c, created, reuse, token); err != nil {
		return nil, fmt.Errorf("append content: %w", err)
	}
	r.LastContentUpdateIntegrityID = token
	s.notifier.Notify(ctx, r.Collaborators, notify.Event{Type: notify.ContentUpdated, RepositoryID: repoID, IntegrityID: token})

	if reuse != nil {
		ids = append(ids, reuse...)
	}
	return &model.ContentCommit{Repository: *r, Content: *c, GroupSessionMessageIDs: ids}, nil
}

// UpdateContent is the reuse path: messageIDs of the same repository move onto the new content.
func (s *RepositoryServiceImpl) UpdateContent(ctx context.Context, sess *model.Session, repoID uuid.UUID, in model.ContentInput, messageIDs []uuid.UUID) (*model.ContentCommit, error) {
	return s.appendContent(ctx, sess, repoID, in, nil, append([]uuid.UUID{}, messageIDs...))
}

// UpdateContentAndGroupSession is the rotation path.
func (s *RepositoryServiceImpl) UpdateContentAndGroupSession(ctx context.Context, sess *model.Session, repoID uuid.UUID, in model.ContentInput) (*model.ContentCommit, error) {
	return s.appendContent(ctx, sess, repoID, in, in.GroupSessionMessages, nil)
}

// decryptableContent applies the retrieval rule: the latest content of every collaborator
// device that carries a message for the requesting device.
func (s *RepositoryServiceImpl) decryptableContent(ctx context.Context, sess *model.Session, r *model.Repository) ([]model.ContentView, error) {
	devices, err := s.devices.ListByUsers(ctx, r.Collaborators)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]model.Device, len(devices))
	ids := make([]uuid.UUID, 0, len(devices))
	for _, d := range devices {
		byID[d.ID] = d
		ids = append(ids, d.ID)
	}
	latest, err := s.repos.LatestContentForDevices(ctx, r.ID, ids, sess.Device.IDKey)
	if err != nil {
		return nil, err
	}
	out := make([]model.ContentView, 0, len(latest))
	for _, cw := range latest {
		if len(cw.Messages) == 0 {
			s.log.Debug("content not decryptable by device",
				zap.String("repository", r.ID.String()),
				zap.String("content", cw.Content.ID.String()),
				zap.String("device", sess.Device.ID.String()),
			)
			continue
		}
		author := byID[cw.Content.DeviceID]
		out = append(out, model.ContentView{
			Content:             cw.Content,
			AuthorUserID:        author.UserID,
			AuthorDevice:        author,
			GroupSessionMessage: cw.Messages[0],
		})
	}
	return out, nil
}

// Get returns the repository with the content decryptable by the calling device.
func (s *RepositoryServiceImpl) Get(ctx context.Context, sess *model.Session, repoID uuid.UUID) (*model.RepositoryView, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	r, err := s.collaboratorRepo(ctx, sess, repoID)
	if err != nil {
		return nil, err
	}
	content, err := s.decryptableContent(ctx, sess, r)
	if err != nil {
		return nil, err
	}
	return &model.RepositoryView{Repository: *r, IsCreator: r.CreatorID == sess.User.ID, Content: content}, nil
}

// List returns live repositories and tombstones of repositories the caller lost.
func (s *RepositoryServiceImpl) List(ctx context.Context, sess *model.Session, lastTokens map[uuid.UUID]string) (*model.RepositoryListing, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	repos, err := s.repos.ListForCollaborator(ctx, sess.User.ID)
	if err != nil {
		return nil, err
	}
	events, err := s.repos.EventsForUser(ctx, sess.User.ID)
	if err != nil {
		return nil, err
	}

	out := &model.RepositoryListing{Repositories: make([]model.RepositoryView, 0, len(repos))}
	active := make(map[uuid.UUID]struct{}, len(repos))
	for i := range repos {
		r := &repos[i]
		active[r.ID] = struct{}{}
		v := model.RepositoryView{Repository: *r, IsCreator: r.CreatorID == sess.User.ID}
		if tok, ok := lastTokens[r.ID]; !ok || tok == "" || tok != r.LastContentUpdateIntegrityID {
			if v.Content, err = s.decryptableContent(ctx, sess, r); err != nil {
				return nil, err
			}
		}
		out.Repositories = append(out.Repositories, v)
	}

	seen := map[uuid.UUID]struct{}{}
	for _, ev := range events {
		if ev.Type != model.EventDelete && ev.Type != model.EventRemoveCollaborators {
			continue
		}
		if _, ok := active[ev.RepositoryID]; ok {
			continue
		}
		if _, ok := seen[ev.RepositoryID]; ok {
			continue
		}
		seen[ev.RepositoryID] = struct{}{}
		out.Tombstones = append(out.Tombstones, model.RepositoryTombstone{ID: ev.RepositoryID})
	}
	return out, nil
}

// RepositoryDevices compares the targets of messageIDs with the devices of all collaborators.
func (s *RepositoryServiceImpl) RepositoryDevices(ctx context.Context, sess *model.Session, repoID uuid.UUID, messageIDs []uuid.UUID) (*model.RepositoryDevices, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	r, err := s.collaboratorRepo(ctx, sess, repoID)
	if err != nil {
		return nil, err
	}
	devices, err := s.devices.ListByUsers(ctx, r.Collaborators)
	if err != nil {
		return nil, err
	}
	unique := dedupeIDs(messageIDs)
	targets, err := s.repos.MessageTargets(ctx, repoID, unique)
	if err != nil {
		return nil, err
	}
	idKeys := make([]string, 0, len(devices))
	for _, d := range devices {
		idKeys = append(idKeys, d.IDKey)
	}
	allFound := len(targets) == len(unique)
	return &model.RepositoryDevices{
		Devices:                                  devices,
		GroupSessionMessageIDsMatchTargetDevices: allFound && sameEntries(idKeys, targets),
		AllMessagesFound:                         allFound,
	}, nil
}

// AddCollaborator checks every entry before writing anything. Entries for repositories
// where the calling device has no content are skipped.
func (s *RepositoryServiceImpl) AddCollaborator(ctx context.Context, sess *model.Session, contactID uuid.UUID, entries []model.CollaboratorMessages) ([]model.CollaboratorResult, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contact.UserID != sess.User.ID {
		return nil, errs.ErrAuthorizationFailed
	}
	repos := make([]*model.Repository, len(entries))
	for i, e := range entries {
		if repos[i], err = s.collaboratorRepo(ctx, sess, e.RepositoryID); err != nil {
			return nil, fmt.Errorf("repository %s: %w", e.RepositoryID, err)
		}
	}

	out := make([]model.CollaboratorResult, 0, len(entries))
	for i, e := range entries {
		msgs, _, err := toMessages(uuid.Nil, e.GroupSessionMessages)
		if err != nil {
			return nil, err
		}
		var token string
		if len(msgs) > 0 {
			if token, err = newIntegrityID(); err != nil {
				return nil, err
			}
		}
		ids, ok, err := s.repos.AddCollaborator(ctx, e.RepositoryID, contact.ContactUserID, sess.Device.ID, msgs, token)
		if err != nil {
			return nil, fmt.Errorf("add collaborator: %w", err)
		}
		if !ok {
			s.log.Info("no content of calling device, skipping",
				zap.String("repository", e.RepositoryID.String()),
				zap.String("device", sess.Device.ID.String()),
			)
			continue
		}
		out = append(out, model.CollaboratorResult{RepositoryID: e.RepositoryID, GroupSessionMessageIDs: ids})

		notified := appendUnique(repos[i].Collaborators, contact.ContactUserID)
		s.notifier.Notify(ctx, notified, notify.Event{Type: notify.CollaboratorAdded, RepositoryID: e.RepositoryID, IntegrityID: token})
	}
	return out, nil
}

// RemoveCollaborator lets the creator remove anyone but themself, and anyone remove themself.
func (s *RepositoryServiceImpl) RemoveCollaborator(ctx context.Context, sess *model.Session, repoID, collaboratorID uuid.UUID) (*model.Repository, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	r, err := s.collaboratorRepo(ctx, sess, repoID)
	if err != nil {
		return nil, err
	}
	if r.CreatorID != sess.User.ID && collaboratorID != sess.User.ID {
		return nil, errs.ErrAuthorizationFailed
	}
	if collaboratorID == r.CreatorID {
		return nil, errs.ErrCannotRemoveCreator
	}
	evID, err := newID()
	if err != nil {
		return nil, err
	}
	ev := &model.RepositoryEvent{
		ID:                    evID,
		RepositoryID:          repoID,
		Type:                  model.EventDelete,
		AffectedCollaborators: []uuid.UUID{collaboratorID},
	}
	if err := s.repos.RemoveCollaborator(ctx, repoID, collaboratorID, ev); err != nil {
		return nil, fmt.Errorf("remove collaborator: %w", err)
	}
	s.notifier.Notify(ctx, appendUnique(r.Collaborators, collaboratorID), notify.Event{Type: notify.CollaboratorRemoved, RepositoryID: repoID})
	return s.repos.Get(ctx, repoID)
}

// Delete purges a repository; only its creator may do so.
func (s *RepositoryServiceImpl) Delete(ctx context.Context, sess *model.Session, repoID uuid.UUID) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	r, err := s.repos.Get(ctx, repoID)
	if err != nil {
		return err
	}
	if r.CreatorID != sess.User.ID {
		return errs.ErrAuthorizationFailed
	}
	evID, err := newID()
	if err != nil {
		return err
	}
	ev := &model.RepositoryEvent{
		ID:                    evID,
		RepositoryID:          repoID,
		Type:                  model.EventDelete,
		AffectedCollaborators: r.Collaborators,
	}
	if err := s.repos.Delete(ctx, repoID, ev); err != nil {
		return fmt.Errorf("delete repository: %w", err)
	}
	s.notifier.Notify(ctx, r.Collaborators, notify.Event{Type: notify.RepositoryDeleted, RepositoryID: repoID})
	return nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func appendUnique(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID{}, ids...)
	for _, x := range out {
		if x == id {
			return out
		}
	}
	return append(out, id)
}

// sameEntries reports multiset equality.
func sameEntries(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	as := append([]string{}, a...)
	bs := append([]string{}, b...)
	sort.Strings(as)
	sort.Strings(bs)
	for i := range as {
		if as[i] != bs[i] {
			return false
		}
	}
	return true
}
