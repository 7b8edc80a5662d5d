package repository

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// PrivateInfoRepository stores per-user private sync entries.
type PrivateInfoRepository interface {
	// Create inserts the entry and its messages atomically.
	Create(ctx context.Context, c *model.PrivateInfoContent, msgs []model.PrivateInfoGroupSessionMessage) error
	// LatestForDevices returns, per device, its newest entry with only messages targeted at targetIDKey.
	LatestForDevices(ctx context.Context, deviceIDs []uuid.UUID, targetIDKey string) ([]model.PrivateInfoWithMessages, error)
}
