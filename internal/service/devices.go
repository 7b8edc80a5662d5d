package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/limiter"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// DeviceService defines account and device lifecycle operations.
type DeviceService interface {
	// CreateUserWithDevice registers a user together with its first device and one-time keys.
	CreateUserWithDevice(ctx context.Context, userSigningKey string, d model.DeviceInput) (*model.User, *model.Device, error)
	// AddDevice registers another device of the caller's user.
	AddDevice(ctx context.Context, s *model.Session, d model.DeviceInput, verificationMessage, serverSecret string) (*model.Device, error)
	// FetchAddDeviceVerification returns the newest verification for (idKey, serverSecret).
	FetchAddDeviceVerification(ctx context.Context, idKey, serverSecret, peer string) (*model.AddDeviceVerification, error)
	// DeleteDevice removes one of the caller's devices.
	DeleteDevice(ctx context.Context, s *model.Session, idKey string) (*model.DeviceTombstone, error)
	// DeleteUser removes the caller's account.
	DeleteUser(ctx context.Context, s *model.Session) error
	Devices(ctx context.Context, s *model.Session) ([]model.Device, error)
	DeviceTombstones(ctx context.Context, s *model.Session) ([]model.DeviceTombstone, error)
}

type DeviceServiceImpl struct {
	users   repository.UserRepository
	devices repository.DeviceRepository
	guard   secretGuard
	log     *zap.Logger
}

// NewDeviceService constructs DeviceService. lim may be nil to disable throttling.
func NewDeviceService(users repository.UserRepository, devices repository.DeviceRepository, lim limiter.Limiter, log *zap.Logger) *DeviceServiceImpl {
	return &DeviceServiceImpl{users: users, devices: devices, guard: secretGuard{lim: lim}, log: log}
}

func validateDevice(d model.DeviceInput) error {
	switch {
	case d.IDKey == "":
		return errs.Validationf("device: empty idKey")
	case d.SigningKey == "":
		return errs.Validationf("device: empty signingKey")
	case d.FallbackKey == "" || d.FallbackKeySignature == "":
		return errs.Validationf("device: fallback key and signature are required")
	}
	return validateKeys(d.OneTimeKeys)
}

func validateKeys(keys []model.OneTimeKeyInput) error {
	seen := make(map[string]struct{}, len(keys))
	for i, k := range keys {
		if k.Key == "" || k.Signature == "" {
			return errs.Validationf("oneTimeKeys[%d]: empty key or signature", i)
		}
		if _, dup := seen[k.Key]; dup {
			return fmt.Errorf("oneTimeKeys[%d]: %w", i, errs.ErrAlreadyExists)
		}
		seen[k.Key] = struct{}{}
	}
	return nil
}

func newDevice(userID uuid.UUID, in model.DeviceInput) (*model.Device, error) {
	id, err := newID()
	if err != nil {
		return nil, err
	}
	var sigs []string
	if in.Signature != "" {
		sigs = []string{in.Signature}
	}
	return &model.Device{
		ID:                   id,
		UserID:               userID,
		IDKey:                in.IDKey,
		SigningKey:           in.SigningKey,
		Signatures:           sigs,
		FallbackKey:          in.FallbackKey,
		FallbackKeySignature: in.FallbackKeySignature,
	}, nil
}

// CreateUserWithDevice creates user, device and keys atomically.
func (s *DeviceServiceImpl) CreateUserWithDevice(ctx context.Context, userSigningKey string, in model.DeviceInput) (*model.User, *model.Device, error) {
	if userSigningKey == "" {
		return nil, nil, errs.Validationf("empty user signing key")
	}
	if err := validateDevice(in); err != nil {
		return nil, nil, err
	}
	uid, err := newID()
	if err != nil {
		return nil, nil, err
	}
	u := &model.User{ID: uid, SigningKeys: []string{userSigningKey}}
	d, err := newDevice(uid, in)
	if err != nil {
		return nil, nil, err
	}
	if err := s.users.Create(ctx, u, d, in.OneTimeKeys); err != nil {
		return nil, nil, fmt.Errorf("create user: %w", err)
	}
	return u, d, nil
}

// AddDevice stores the new device and its verification artifact.
func (s *DeviceServiceImpl) AddDevice(ctx context.Context, sess *model.Session, in model.DeviceInput, verificationMessage, serverSecret string) (*model.Device, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	if err := validateDevice(in); err != nil {
		return nil, err
	}
	if serverSecret == "" {
		return nil, errs.Validationf("empty server secret")
	}
	d, err := newDevice(sess.User.ID, in)
	if err != nil {
		return nil, err
	}
	vid, err := newID()
	if err != nil {
		return nil, err
	}
	v := &model.AddDeviceVerification{
		ID:                  vid,
		DeviceIDKey:         in.IDKey,
		VerificationMessage: verificationMessage,
		ServerSecret:        serverSecret,
	}
	if err := s.devices.Create(ctx, d, v, in.OneTimeKeys); err != nil {
		return nil, fmt.Errorf("add device: %w", err)
	}
	return d, nil
}

// FetchAddDeviceVerification is unauthenticated; misses are throttled per peer.
func (s *DeviceServiceImpl) FetchAddDeviceVerification(ctx context.Context, idKey, serverSecret, peer string) (*model.AddDeviceVerification, error) {
	if err := s.guard.allow(ctx, limiter.ScopeAddDeviceVerification, peer); err != nil {
		return nil, err
	}
	v, err := s.devices.LatestVerification(ctx, idKey, serverSecret)
	if errors.Is(err, errs.ErrNotFound) {
		if gerr := s.guard.failed(ctx, limiter.ScopeAddDeviceVerification, peer); gerr != nil {
			return nil, gerr
		}
		return nil, errs.ErrAuthorizationFailed
	}
	if err != nil {
		return nil, err
	}
	s.guard.succeeded(ctx, limiter.ScopeAddDeviceVerification, peer)
	return v, nil
}

// DeleteDevice removes a device of the caller's user; the last one is kept.
func (s *DeviceServiceImpl) DeleteDevice(ctx context.Context, sess *model.Session, idKey string) (*model.DeviceTombstone, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	d, err := s.devices.GetByIDKey(ctx, idKey)
	if err != nil {
		return nil, err
	}
	if d.UserID != sess.User.ID {
		return nil, errs.ErrAuthorizationFailed
	}
	t, err := s.devices.Delete(ctx, sess.User.ID, d.ID)
	if err != nil {
		return nil, fmt.Errorf("delete device: %w", err)
	}
	s.log.Info("device deleted", zap.String("user", sess.User.ID.String()), zap.String("device", d.ID.String()))
	return t, nil
}

// DeleteUser removes the caller's account with everything it owns.
func (s *DeviceServiceImpl) DeleteUser(ctx context.Context, sess *model.Session) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, sess.User.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.log.Info("user deleted", zap.String("user", sess.User.ID.String()))
	return nil
}

// Devices lists the caller's devices.
func (s *DeviceServiceImpl) Devices(ctx context.Context, sess *model.Session) ([]model.Device, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.devices.ListByUser(ctx, sess.User.ID)
}

// DeviceTombstones lists tombstones of the caller's deleted devices.
func (s *DeviceServiceImpl) DeviceTombstones(ctx context.Context, sess *model.Session) ([]model.DeviceTombstone, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.devices.Tombstones(ctx, sess.User.ID)
}
