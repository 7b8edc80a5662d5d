package repository

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// OneTimeKeyRepository is the per-device pool of single-use keys.
type OneTimeKeyRepository interface {
	// Insert appends keys owned by deviceID; a duplicate key fails the whole batch.
	Insert(ctx context.Context, deviceID uuid.UUID, keys []model.OneTimeKeyInput) error
	// ClaimOne atomically marks one unclaimed key of targetDeviceID as claimed by claimerID.
	// Rows locked by concurrent claimants are skipped, never waited on.
	// ok is false when the pool is exhausted.
	ClaimOne(ctx context.Context, targetDeviceID, claimerID uuid.UUID) (key *model.OneTimeKey, ok bool, err error)
	// Remove deletes key only when owned by deviceID.
	Remove(ctx context.Context, deviceID uuid.UUID, key string) (bool, error)
	// CountUnclaimed counts keys of deviceID not yet claimed.
	CountUnclaimed(ctx context.Context, deviceID uuid.UUID) (int, error)
	// ListByDevice returns every key of deviceID.
	ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]model.OneTimeKey, error)
}
