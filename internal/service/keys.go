package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KeyService defines one-time-key ledger operations.
type KeyService interface {
	// Replenish uploads new one-time keys for the calling device.
	Replenish(ctx context.Context, s *model.Session, keys []model.OneTimeKeyInput) error
	// ClaimForDevices claims one key per target device, handing out the fallback key when a pool is empty.
	ClaimForDevices(ctx context.Context, s *model.Session, idKeys []string) ([]model.ClaimedKey, error)
	// RemoveKey deletes a key of the calling device.
	RemoveKey(ctx context.Context, s *model.Session, key string) (bool, error)
	// CountUnclaimed counts unclaimed keys of the caller's device or of another device of the same user.
	CountUnclaimed(ctx context.Context, s *model.Session, idKey string) (int, error)
	OneTimeKeys(ctx context.Context, s *model.Session) ([]model.OneTimeKey, error)
	UpdateFallbackKey(ctx context.Context, s *model.Session, key, signature string) error
}

type KeyServiceImpl struct {
	keys        repository.OneTimeKeyRepository
	devices     repository.DeviceRepository
	parallelism int
	log         *zap.Logger
}

// NewKeyService constructs KeyService; parallelism bounds concurrent per-target claims.
func NewKeyService(keys repository.OneTimeKeyRepository, devices repository.DeviceRepository, parallelism int, log *zap.Logger) *KeyServiceImpl {
	if parallelism <= 0 {
		parallelism = 8
	}
	return &KeyServiceImpl{keys: keys, devices: devices, parallelism: parallelism, log: log}
}

// Replenish inserts the batch; one duplicate rejects all of it.
func (s *KeyServiceImpl) Replenish(ctx context.Context, sess *model.Session, keys []model.OneTimeKeyInput) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if err := validateKeys(keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.keys.Insert(ctx, sess.Device.ID, keys); err != nil {
		return fmt.Errorf("replenish: %w", err)
	}
	return nil
}

// ClaimForDevices claims concurrently. Unknown devices and empty id keys are skipped;
// the result keeps the order of idKeys.
func (s *KeyServiceImpl) ClaimForDevices(ctx context.Context, sess *model.Session, idKeys []string) ([]model.ClaimedKey, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	results := make([]*model.ClaimedKey, len(idKeys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)
	for i, idKey := range idKeys {
		if idKey == "" {
			continue
		}
		g.Go(func() error {
			ck, err := s.claim(gctx, sess, idKey)
			if err != nil {
				return err
			}
			results[i] = ck
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("claim keys: %w", err)
	}

	out := make([]model.ClaimedKey, 0, len(idKeys))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *KeyServiceImpl) claim(ctx context.Context, sess *model.Session, idKey string) (*model.ClaimedKey, error) {
	target, err := s.devices.GetByIDKey(ctx, idKey)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	k, ok, err := s.keys.ClaimOne(ctx, target.ID, sess.Device.ID)
	if err != nil {
		return nil, err
	}
	if ok {
		return &model.ClaimedKey{DeviceIDKey: idKey, Key: k.Key, Signature: k.Signature}, nil
	}
	if target.FallbackKey == "" {
		s.log.Warn("no one-time key and no fallback key", zap.String("device", target.ID.String()))
		return nil, nil
	}
	return &model.ClaimedKey{
		DeviceIDKey: idKey,
		Key:         target.FallbackKey,
		Signature:   target.FallbackKeySignature,
		Fallback:    true,
	}, nil
}

// RemoveKey reports whether the calling device owned and lost the key.
func (s *KeyServiceImpl) RemoveKey(ctx context.Context, sess *model.Session, key string) (bool, error) {
	if err := requireSession(sess); err != nil {
		return false, err
	}
	return s.keys.Remove(ctx, sess.Device.ID, key)
}

// CountUnclaimed defaults to the calling device when idKey is empty.
func (s *KeyServiceImpl) CountUnclaimed(ctx context.Context, sess *model.Session, idKey string) (int, error) {
	if err := requireSession(sess); err != nil {
		return 0, err
	}
	deviceID := sess.Device.ID
	if idKey != "" && idKey != sess.Device.IDKey {
		d, err := s.devices.GetByIDKey(ctx, idKey)
		if errors.Is(err, errs.ErrNotFound) {
			return 0, errs.ErrAuthorizationFailed
		}
		if err != nil {
			return 0, err
		}
		if d.UserID != sess.User.ID {
			return 0, errs.ErrAuthorizationFailed
		}
		deviceID = d.ID
	}
	return s.keys.CountUnclaimed(ctx, deviceID)
}

// OneTimeKeys lists the calling device's keys.
func (s *KeyServiceImpl) OneTimeKeys(ctx context.Context, sess *model.Session) ([]model.OneTimeKey, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.keys.ListByDevice(ctx, sess.Device.ID)
}

// UpdateFallbackKey replaces the calling device's fallback key.
func (s *KeyServiceImpl) UpdateFallbackKey(ctx context.Context, sess *model.Session, key, signature string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if key == "" || signature == "" {
		return errs.Validationf("fallback key and signature are required")
	}
	return s.devices.UpdateFallbackKey(ctx, sess.Device.ID, key, signature)
}
