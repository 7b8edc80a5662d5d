package memory

import (
	"context"
	"sort"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// KeyRepo is the in-memory OneTimeKeyRepository.
type KeyRepo struct{ s *Store }

func (s *Store) checkKeysUnique(keys []model.OneTimeKeyInput) error {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := s.keys[k.Key]; ok {
			return errs.ErrAlreadyExists
		}
		if _, ok := seen[k.Key]; ok {
			return errs.ErrAlreadyExists
		}
		seen[k.Key] = struct{}{}
	}
	return nil
}

func (s *Store) insertKeys(deviceID uuid.UUID, keys []model.OneTimeKeyInput) {
	for _, k := range keys {
		s.keys[k.Key] = &model.OneTimeKey{Key: k.Key, Signature: k.Signature, DeviceID: deviceID}
		s.keyOrder = append(s.keyOrder, k.Key)
	}
}

func (s *Store) removeKey(key string) {
	delete(s.keys, key)
	for i, k := range s.keyOrder {
		if k == key {
			s.keyOrder = append(s.keyOrder[:i], s.keyOrder[i+1:]...)
			return
		}
	}
}

func (s *Store) removeKeysOf(deviceID uuid.UUID) {
	kept := s.keyOrder[:0]
	for _, k := range s.keyOrder {
		if s.keys[k].DeviceID == deviceID {
			delete(s.keys, k)
			continue
		}
		kept = append(kept, k)
	}
	s.keyOrder = kept
}

// Insert adds keys to the device pool; any duplicate rejects the batch.
func (r *KeyRepo) Insert(_ context.Context, deviceID uuid.UUID, keys []model.OneTimeKeyInput) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.devices[deviceID]; !ok {
		return errs.ErrNotFound
	}
	if err := s.checkKeysUnique(keys); err != nil {
		return err
	}
	s.insertKeys(deviceID, keys)
	return nil
}

// ClaimOne hands out the oldest unclaimed key of the target device.
func (r *KeyRepo) ClaimOne(_ context.Context, targetDeviceID, claimerID uuid.UUID) (*model.OneTimeKey, bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range s.keyOrder {
		k := s.keys[key]
		if k.DeviceID == targetDeviceID && !k.ClaimedByDeviceID.Valid {
			k.ClaimedByDeviceID = uuid.NullUUID{UUID: claimerID, Valid: true}
			c := *k
			return &c, true, nil
		}
	}
	return nil, false, nil
}

// Remove deletes key when owned by deviceID.
func (r *KeyRepo) Remove(_ context.Context, deviceID uuid.UUID, key string) (bool, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	k, ok := s.keys[key]
	if !ok || k.DeviceID != deviceID {
		return false, nil
	}
	s.removeKey(key)
	return true, nil
}

// CountUnclaimed counts the device's unclaimed keys.
func (r *KeyRepo) CountUnclaimed(_ context.Context, deviceID uuid.UUID) (int, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, k := range s.keys {
		if k.DeviceID == deviceID && !k.ClaimedByDeviceID.Valid {
			n++
		}
	}
	return n, nil
}

// ListByDevice returns the device's keys ordered by key.
func (r *KeyRepo) ListByDevice(_ context.Context, deviceID uuid.UUID) ([]model.OneTimeKey, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.OneTimeKey
	for _, k := range s.keys {
		if k.DeviceID == deviceID {
			out = append(out, *k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
