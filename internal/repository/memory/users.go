package memory

import (
	"context"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepo is the in-memory UserRepository.
type UserRepo struct{ s *Store }

// Create stores the user, its first device and keys, or nothing on a duplicate.
func (r *UserRepo) Create(_ context.Context, u *model.User, d *model.Device, keys []model.OneTimeKeyInput) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if err := s.checkDeviceUnique(d); err != nil {
		return err
	}
	if err := s.checkKeysUnique(keys); err != nil {
		return err
	}
	u.CreatedAt = s.tick()
	s.users[u.ID] = copyUser(u)
	s.insertDevice(d)
	s.insertKeys(d.ID, keys)
	return nil
}

// GetByID loads a user.
func (r *UserRepo) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return copyUser(u), nil
}

// Delete removes the user and everything it owns.
func (r *UserRepo) Delete(_ context.Context, id uuid.UUID) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return errs.ErrNotFound
	}

	var created []uuid.UUID
	for _, repo := range s.sortedRepos() {
		if repo.CreatorID != id {
			continue
		}
		created = append(created, repo.ID)
		others := removeUUID(cloneUUIDs(repo.Collaborators), id)
		if len(others) > 0 {
			s.appendEvent(model.RepositoryEvent{
				ID:                    uuid.Must(uuid.NewV4()),
				RepositoryID:          repo.ID,
				Type:                  model.EventDelete,
				AffectedCollaborators: others,
			})
		}
	}
	for _, repoID := range created {
		s.purgeRepository(repoID)
	}
	for _, repo := range s.repos {
		repo.Collaborators = removeUUID(repo.Collaborators, id)
	}

	for _, d := range s.devicesOf(id) {
		s.deleteDevice(d)
	}

	for _, l := range s.licenses {
		if l.UserID.Valid && l.UserID.UUID == id {
			l.UserID = uuid.NullUUID{}
		}
	}
	for invID, inv := range s.invitations {
		if inv.UserID == id || (inv.AcceptedByUserID.Valid && inv.AcceptedByUserID.UUID == id) {
			delete(s.invitations, invID)
		}
	}
	for cID, c := range s.contacts {
		if c.UserID == id || c.ContactUserID == id {
			delete(s.contacts, cID)
		}
	}
	for i := range s.events {
		s.events[i].AffectedCollaborators = removeUUID(s.events[i].AffectedCollaborators, id)
	}

	delete(s.users, id)
	s.userTombstones[id] = model.UserTombstone{ID: id, CreatedAt: s.tick()}
	return nil
}
