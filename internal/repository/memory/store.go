// Package memory implements the repository interfaces in process memory.
// It follows the PostgreSQL semantics closely enough to back development
// servers and service tests; every method holds a single store-wide lock,
// which stands in for the transactions and row locks of the SQL backend.
package memory

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// Store holds all entities. Use the accessor methods to obtain typed repositories.
type Store struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time

	users          map[uuid.UUID]*model.User
	userTombstones map[uuid.UUID]model.UserTombstone

	devices          map[uuid.UUID]*model.Device
	deviceTombstones []model.DeviceTombstone
	verifications    []model.AddDeviceVerification

	keys     map[string]*model.OneTimeKey
	keyOrder []string

	repos    map[uuid.UUID]*model.Repository
	content  map[uuid.UUID]*model.Content
	messages map[uuid.UUID]*model.GroupSessionMessage
	events   []model.RepositoryEvent

	invitations map[uuid.UUID]*model.ContactInvitation
	contacts    map[uuid.UUID]*model.Contact

	privateInfo     map[uuid.UUID]*model.PrivateInfoContent
	privateMessages map[uuid.UUID]*model.PrivateInfoGroupSessionMessage

	accounts    map[uuid.UUID]*model.BillingAccount
	emailTokens map[string]*model.EmailToken
	licenses    map[uuid.UUID]*model.License
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:             time.Now,
		users:           map[uuid.UUID]*model.User{},
		userTombstones:  map[uuid.UUID]model.UserTombstone{},
		devices:         map[uuid.UUID]*model.Device{},
		keys:            map[string]*model.OneTimeKey{},
		repos:           map[uuid.UUID]*model.Repository{},
		content:         map[uuid.UUID]*model.Content{},
		messages:        map[uuid.UUID]*model.GroupSessionMessage{},
		invitations:     map[uuid.UUID]*model.ContactInvitation{},
		contacts:        map[uuid.UUID]*model.Contact{},
		privateInfo:     map[uuid.UUID]*model.PrivateInfoContent{},
		privateMessages: map[uuid.UUID]*model.PrivateInfoGroupSessionMessage{},
		accounts:        map[uuid.UUID]*model.BillingAccount{},
		emailTokens:     map[string]*model.EmailToken{},
		licenses:        map[uuid.UUID]*model.License{},
	}
}

// Users returns the user repository view.
func (s *Store) Users() *UserRepo { return &UserRepo{s: s} }

// Devices returns the device repository view.
func (s *Store) Devices() *DeviceRepo { return &DeviceRepo{s: s} }

// Keys returns the one-time key repository view.
func (s *Store) Keys() *KeyRepo { return &KeyRepo{s: s} }

// Repositories returns the repository store view.
func (s *Store) Repositories() *CollabRepo { return &CollabRepo{s: s} }

// Contacts returns the contact repository view.
func (s *Store) Contacts() *ContactRepo { return &ContactRepo{s: s} }

// PrivateInfo returns the private info repository view.
func (s *Store) PrivateInfo() *PrivateInfoRepo { return &PrivateInfoRepo{s: s} }

// Licenses returns the license repository view.
func (s *Store) Licenses() *LicenseRepo { return &LicenseRepo{s: s} }

// tick returns a strictly increasing timestamp so "latest" is always well defined.
// Callers hold s.mu.
func (s *Store) tick() time.Time {
	t := s.now()
	if !t.After(s.last) {
		t = s.last.Add(time.Microsecond)
	}
	s.last = t
	return t
}

func sortUUIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}

func cloneStrings(ss []string) []string {
	if ss == nil {
		return nil
	}
	return append([]string(nil), ss...)
}

func cloneUUIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return nil
	}
	return append([]uuid.UUID(nil), ids...)
}

func copyUser(u *model.User) *model.User {
	c := *u
	c.SigningKeys = cloneStrings(u.SigningKeys)
	return &c
}

func copyDevice(d *model.Device) model.Device {
	c := *d
	c.Signatures = cloneStrings(d.Signatures)
	return c
}

func copyRepository(r *model.Repository) model.Repository {
	c := *r
	c.Collaborators = cloneUUIDs(r.Collaborators)
	return c
}

func removeUUID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
