package memory

import (
	"context"
	"sort"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CollabRepo is the in-memory CollabRepository.
type CollabRepo struct{ s *Store }

func (s *Store) sortedRepos() []*model.Repository {
	out := make([]*model.Repository, 0, len(s.repos))
	for _, r := range s.repos {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) appendEvent(ev model.RepositoryEvent) model.RepositoryEvent {
	ev.AffectedCollaborators = cloneUUIDs(ev.AffectedCollaborators)
	ev.CreatedAt = s.tick()
	s.events = append(s.events, ev)
	return ev
}

func (s *Store) deleteContent(id uuid.UUID) {
	for mid, m := range s.messages {
		if m.ContentID == id {
			delete(s.messages, mid)
		}
	}
	delete(s.content, id)
}

func (s *Store) purgeRepository(id uuid.UUID) {
	for cid, c := range s.content {
		if c.RepositoryID == id {
			s.deleteContent(cid)
		}
	}
	delete(s.repos, id)
}

func (s *Store) insertContent(c *model.Content, msgs []model.GroupSessionMessage) {
	c.CreatedAt = s.tick()
	cc := *c
	s.content[c.ID] = &cc
	s.insertMessages(c.ID, msgs)
}

func (s *Store) insertMessages(contentID uuid.UUID, msgs []model.GroupSessionMessage) {
	for _, m := range msgs {
		m.ContentID = contentID
		mm := m
		s.messages[m.ID] = &mm
	}
}

func (s *Store) latestContent(repoID, deviceID uuid.UUID) *model.Content {
	var latest *model.Content
	for _, c := range s.content {
		if c.RepositoryID == repoID && c.DeviceID == deviceID && (latest == nil || c.CreatedAt.After(latest.CreatedAt)) {
			latest = c
		}
	}
	return latest
}

// Create stores a repository with its first content.
func (r *CollabRepo) Create(_ context.Context, repo *model.Repository, c *model.Content, msgs []model.GroupSessionMessage) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.repos[repo.ID]; ok {
		return errs.ErrAlreadyExists
	}
	repo.CreatedAt = s.tick()
	repo.Collaborators = []uuid.UUID{repo.CreatorID}
	stored := copyRepository(repo)
	s.repos[repo.ID] = &stored
	s.insertContent(c, msgs)
	return nil
}

// Get loads a repository.
func (r *CollabRepo) Get(_ context.Context, id uuid.UUID) (*model.Repository, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := copyRepository(repo)
	sortUUIDs(c.Collaborators)
	return &c, nil
}

// ListForCollaborator returns the repositories userID collaborates on, oldest first.
func (r *CollabRepo) ListForCollaborator(_ context.Context, userID uuid.UUID) ([]model.Repository, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Repository
	for _, repo := range s.sortedRepos() {
		if repo.HasCollaborator(userID) {
			c := copyRepository(repo)
			sortUUIDs(c.Collaborators)
			out = append(out, c)
		}
	}
	return out, nil
}

// AppendContent adds a content version, moving reused messages of the same repository onto it.
func (r *CollabRepo) AppendContent(_ context.Context, c *model.Content, msgs []model.GroupSessionMessage, reuseIDs []uuid.UUID, integrityID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[c.RepositoryID]
	if !ok {
		return errs.ErrNotFound
	}
	s.insertContent(c, msgs)
	for _, id := range reuseIDs {
		m, ok := s.messages[id]
		if !ok {
			continue
		}
		if owner, ok := s.content[m.ContentID]; ok && owner.RepositoryID == c.RepositoryID {
			m.ContentID = c.ID
		}
	}
	repo.LastContentUpdateIntegrityID = integrityID
	return nil
}

// LatestContentForDevices returns the newest content per device with messages targeted at targetIDKey.
func (r *CollabRepo) LatestContentForDevices(_ context.Context, repoID uuid.UUID, deviceIDs []uuid.UUID, targetIDKey string) ([]model.ContentWithMessages, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ContentWithMessages
	for _, deviceID := range deviceIDs {
		c := s.latestContent(repoID, deviceID)
		if c == nil {
			continue
		}
		cw := model.ContentWithMessages{Content: *c}
		for _, m := range s.messages {
			if m.ContentID == c.ID && m.TargetDeviceIDKey == targetIDKey {
				cw.Messages = append(cw.Messages, *m)
			}
		}
		sort.Slice(cw.Messages, func(i, j int) bool { return cw.Messages[i].ID.String() < cw.Messages[j].ID.String() })
		out = append(out, cw)
	}
	return out, nil
}

// AddCollaborator connects userID and attaches msgs to the newest content of deviceID.
func (r *CollabRepo) AddCollaborator(_ context.Context, repoID, userID, deviceID uuid.UUID, msgs []model.GroupSessionMessage, integrityID string) ([]uuid.UUID, bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[repoID]
	if !ok {
		return nil, false, errs.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return nil, false, errs.ErrNotFound
	}
	latest := s.latestContent(repoID, deviceID)
	if latest == nil {
		return nil, false, nil
	}
	if !repo.HasCollaborator(userID) {
		repo.Collaborators = append(repo.Collaborators, userID)
	}
	s.insertMessages(latest.ID, msgs)
	if integrityID != "" {
		repo.LastContentUpdateIntegrityID = integrityID
	}

	var ids []uuid.UUID
	for id, m := range s.messages {
		if m.ContentID == latest.ID {
			ids = append(ids, id)
		}
	}
	sortUUIDs(ids)
	return ids, true, nil
}

// RemoveCollaborator drops messages addressed to the user's devices, records ev and disconnects the user.
func (r *CollabRepo) RemoveCollaborator(_ context.Context, repoID, userID uuid.UUID, ev *model.RepositoryEvent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	repo, ok := s.repos[repoID]
	if !ok {
		return errs.ErrNotFound
	}
	if _, ok := s.users[userID]; !ok {
		return errs.ErrNotFound
	}
	targets := map[string]struct{}{}
	for _, d := range s.devicesOf(userID) {
		targets[d.IDKey] = struct{}{}
	}
	for id, m := range s.messages {
		c, ok := s.content[m.ContentID]
		if !ok || c.RepositoryID != repoID {
			continue
		}
		if _, hit := targets[m.TargetDeviceIDKey]; hit {
			delete(s.messages, id)
		}
	}
	*ev = s.appendEvent(*ev)
	repo.Collaborators = removeUUID(repo.Collaborators, userID)
	return nil
}

// Delete records ev and purges the repository.
func (r *CollabRepo) Delete(_ context.Context, repoID uuid.UUID, ev *model.RepositoryEvent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.repos[repoID]; !ok {
		return errs.ErrNotFound
	}
	*ev = s.appendEvent(*ev)
	s.purgeRepository(repoID)
	return nil
}

// EventsForUser lists events affecting userID, oldest first.
func (r *CollabRepo) EventsForUser(_ context.Context, userID uuid.UUID) ([]model.RepositoryEvent, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.RepositoryEvent
	for _, ev := range s.events {
		for _, u := range ev.AffectedCollaborators {
			if u == userID {
				ev.AffectedCollaborators = cloneUUIDs(ev.AffectedCollaborators)
				out = append(out, ev)
				break
			}
		}
	}
	return out, nil
}

// MessageTargets resolves target id keys of the repository's messages among ids.
func (r *CollabRepo) MessageTargets(_ context.Context, repoID uuid.UUID, ids []uuid.UUID) ([]string, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	seen := map[uuid.UUID]struct{}{}
	for _, id := range ids {
		m, ok := s.messages[id]
		if _, dup := seen[id]; !ok || dup {
			continue
		}
		seen[id] = struct{}{}
		if c, ok := s.content[m.ContentID]; ok && c.RepositoryID == repoID {
			out = append(out, m.TargetDeviceIDKey)
		}
	}
	return out, nil
}
