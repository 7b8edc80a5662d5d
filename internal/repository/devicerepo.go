package repository

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DeviceRepository provides device lifecycle storage.
type DeviceRepository interface {
	// Create inserts an additional device together with its verification artifact
	// and its one-time keys atomically.
	Create(ctx context.Context, d *model.Device, v *model.AddDeviceVerification, keys []model.OneTimeKeyInput) error
	// GetBySigningKey resolves the device authenticating with signingKey.
	GetBySigningKey(ctx context.Context, signingKey string) (*model.Device, error)
	// GetByIDKey loads a device by its public identity key.
	GetByIDKey(ctx context.Context, idKey string) (*model.Device, error)
	// ListByUser returns all devices of a user.
	ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error)
	// ListByUsers returns all devices of the given users.
	ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]model.Device, error)
	// Delete cascades the device removal and returns the created tombstone.
	// It fails with errs.ErrCannotRemoveLastDevice when the device is the user's last one.
	Delete(ctx context.Context, userID, deviceID uuid.UUID) (*model.DeviceTombstone, error)
	// UpdateFallbackKey replaces the device fallback key.
	UpdateFallbackKey(ctx context.Context, deviceID uuid.UUID, key, signature string) error
	// LatestVerification returns the most recent verification for (idKey, serverSecret).
	LatestVerification(ctx context.Context, idKey, serverSecret string) (*model.AddDeviceVerification, error)
	// Tombstones lists device tombstones of a user.
	Tombstones(ctx context.Context, userID uuid.UUID) ([]model.DeviceTombstone, error)
}
