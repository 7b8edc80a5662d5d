// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// UserRepository provides access to users and their whole-account lifecycle.
type UserRepository interface {
	// Create inserts the user, its first device and the device's one-time keys atomically.
	Create(ctx context.Context, u *model.User, d *model.Device, keys []model.OneTimeKeyInput) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// Delete removes the user with every dependent row in one transaction and leaves a tombstone.
	Delete(ctx context.Context, id uuid.UUID) error
}
