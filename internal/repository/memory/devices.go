package memory

import (
	"context"
	"sort"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DeviceRepo is the in-memory DeviceRepository.
type DeviceRepo struct{ s *Store }

func (s *Store) checkDeviceUnique(d *model.Device) error {
	if _, ok := s.devices[d.ID]; ok {
		return errs.ErrAlreadyExists
	}
	for _, x := range s.devices {
		if x.IDKey == d.IDKey || x.SigningKey == d.SigningKey {
			return errs.ErrAlreadyExists
		}
	}
	return nil
}

func (s *Store) insertDevice(d *model.Device) {
	d.CreatedAt = s.tick()
	c := copyDevice(d)
	s.devices[d.ID] = &c
}

func (s *Store) devicesOf(userID uuid.UUID) []*model.Device {
	var out []*model.Device
	for _, d := range s.devices {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// deleteDevice removes the device with its keys, content and private info and leaves a tombstone.
func (s *Store) deleteDevice(d *model.Device) model.DeviceTombstone {
	for id, c := range s.content {
		if c.DeviceID == d.ID {
			s.deleteContent(id)
		}
	}
	for id, p := range s.privateInfo {
		if p.DeviceID == d.ID {
			for mid, m := range s.privateMessages {
				if m.PrivateInfoContentID == id {
					delete(s.privateMessages, mid)
				}
			}
			delete(s.privateInfo, id)
		}
	}
	s.removeKeysOf(d.ID)
	delete(s.devices, d.ID)

	t := model.DeviceTombstone{ID: d.ID, IDKey: d.IDKey, SigningKey: d.SigningKey, UserID: d.UserID, CreatedAt: s.tick()}
	s.deviceTombstones = append(s.deviceTombstones, t)
	return t
}

// Create stores an additional device, its verification and its one-time keys.
func (r *DeviceRepo) Create(_ context.Context, d *model.Device, v *model.AddDeviceVerification, keys []model.OneTimeKeyInput) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[d.UserID]; !ok {
		return errs.ErrNotFound
	}
	if err := s.checkDeviceUnique(d); err != nil {
		return err
	}
	if err := s.checkKeysUnique(keys); err != nil {
		return err
	}
	s.insertDevice(d)
	s.insertKeys(d.ID, keys)
	v.CreatedAt = s.tick()
	s.verifications = append(s.verifications, *v)
	return nil
}

// GetBySigningKey resolves a device by signing key.
func (r *DeviceRepo) GetBySigningKey(_ context.Context, signingKey string) (*model.Device, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.SigningKey == signingKey {
			c := copyDevice(d)
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// GetByIDKey resolves a device by identity key.
func (r *DeviceRepo) GetByIDKey(_ context.Context, idKey string) (*model.Device, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range s.devices {
		if d.IDKey == idKey {
			c := copyDevice(d)
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// ListByUser returns the user's devices, oldest first.
func (r *DeviceRepo) ListByUser(_ context.Context, userID uuid.UUID) ([]model.Device, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Device
	for _, d := range s.devicesOf(userID) {
		out = append(out, copyDevice(d))
	}
	return out, nil
}

// ListByUsers returns devices of every given user.
func (r *DeviceRepo) ListByUsers(_ context.Context, userIDs []uuid.UUID) ([]model.Device, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Device
	for _, id := range userIDs {
		for _, d := range s.devicesOf(id) {
			out = append(out, copyDevice(d))
		}
	}
	return out, nil
}

// Delete removes one of the user's devices unless it is the last one.
func (r *DeviceRepo) Delete(_ context.Context, userID, deviceID uuid.UUID) (*model.DeviceTombstone, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok || d.UserID != userID {
		return nil, errs.ErrNotFound
	}
	if len(s.devicesOf(userID)) <= 1 {
		return nil, errs.ErrCannotRemoveLastDevice
	}
	t := s.deleteDevice(d)
	return &t, nil
}

// UpdateFallbackKey replaces the fallback key of a device.
func (r *DeviceRepo) UpdateFallbackKey(_ context.Context, deviceID uuid.UUID, key, signature string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.devices[deviceID]
	if !ok {
		return errs.ErrNotFound
	}
	d.FallbackKey, d.FallbackKeySignature = key, signature
	return nil
}

// LatestVerification returns the newest verification for (idKey, serverSecret).
func (r *DeviceRepo) LatestVerification(_ context.Context, idKey, serverSecret string) (*model.AddDeviceVerification, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var found *model.AddDeviceVerification
	for i := range s.verifications {
		v := &s.verifications[i]
		if v.DeviceIDKey == idKey && v.ServerSecret == serverSecret && (found == nil || v.CreatedAt.After(found.CreatedAt)) {
			found = v
		}
	}
	if found == nil {
		return nil, errs.ErrNotFound
	}
	c := *found
	return &c, nil
}

// Tombstones lists device tombstones of a user.
func (r *DeviceRepo) Tombstones(_ context.Context, userID uuid.UUID) ([]model.DeviceTombstone, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.DeviceTombstone
	for _, t := range s.deviceTombstones {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}
