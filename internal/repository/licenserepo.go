package repository

import (
	"context"
	"time"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// LicenseRepository is the storage side of the billing collaborator.
type LicenseRepository interface {
	BillingAccountByEmail(ctx context.Context, email string) (*model.BillingAccount, error)
	BillingAccountByID(ctx context.Context, id uuid.UUID) (*model.BillingAccount, error)
	CreateEmailToken(ctx context.Context, t *model.EmailToken) error
	// ConsumeEmailToken marks an unused, unexpired token as used and returns it.
	ConsumeEmailToken(ctx context.Context, tokenHash string, now time.Time) (*model.EmailToken, error)

	GetLicense(ctx context.Context, id uuid.UUID) (*model.License, error)
	GetLicenseByToken(ctx context.Context, token string) (*model.License, error)
	ListByBillingAccount(ctx context.Context, accountID uuid.UUID) ([]model.License, error)
	// SetLicenseUser connects (Valid) or disconnects the license user.
	SetLicenseUser(ctx context.Context, licenseID uuid.UUID, userID uuid.NullUUID) (*model.License, error)
	// RefreshToken replaces the license token and disconnects the user.
	RefreshToken(ctx context.Context, licenseID uuid.UUID, token string) (*model.License, error)
	LicenseTokensForUser(ctx context.Context, userID uuid.UUID) ([]model.LicenseToken, error)
}
