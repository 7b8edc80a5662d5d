package postgres

import (
	"context"
	"time"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// LicenseRepo implements LicenseRepository using PostgreSQL.
type LicenseRepo struct{ db *DB }

// NewLicenseRepo constructs a license repository.
func NewLicenseRepo(db *DB) *LicenseRepo { return &LicenseRepo{db: db} }

const licenseColumns = `id, token, billing_account_id, user_id, created_at`

func scanAccount(row pgx.Row) (*model.BillingAccount, error) {
	var (
		a      model.BillingAccount
		status string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.SubscriptionPlan, &status, &a.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	a.SubscriptionStatus = model.SubscriptionStatus(status)
	return &a, nil
}

func scanLicense(row pgx.Row) (*model.License, error) {
	var l model.License
	if err := row.Scan(&l.ID, &l.Token, &l.BillingAccountID, &l.UserID, &l.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// BillingAccountByEmail selects an account by email.
func (r *LicenseRepo) BillingAccountByEmail(ctx context.Context, email string) (*model.BillingAccount, error) {
	const q = `SELECT id, email, subscription_plan, subscription_status, created_at FROM billing_accounts WHERE email=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, email))
}

// BillingAccountByID selects an account by id.
func (r *LicenseRepo) BillingAccountByID(ctx context.Context, id uuid.UUID) (*model.BillingAccount, error) {
	const q = `SELECT id, email, subscription_plan, subscription_status, created_at FROM billing_accounts WHERE id=$1`
	return scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

// CreateEmailToken stores a hashed email login token.
func (r *LicenseRepo) CreateEmailToken(ctx context.Context, t *model.EmailToken) error {
	const q = `
INSERT INTO billing_account_email_tokens (token_hash, email, expiration)
VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, t.TokenHash, t.Email, t.Expiration)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ConsumeEmailToken flips an unused, unexpired token to used in a single statement.
func (r *LicenseRepo) ConsumeEmailToken(ctx context.Context, tokenHash string, now time.Time) (*model.EmailToken, error) {
	const q = `
UPDATE billing_account_email_tokens SET used=true
WHERE token_hash=$1 AND used=false AND expiration>$2
RETURNING token_hash, email, expiration, used`
	var t model.EmailToken
	if err := r.db.Pool.QueryRow(ctx, q, tokenHash, now).Scan(&t.TokenHash, &t.Email, &t.Expiration, &t.Used); err != nil {
		return nil, notFound(err)
	}
	return &t, nil
}

// GetLicense selects a license by id.
func (r *LicenseRepo) GetLicense(ctx context.Context, id uuid.UUID) (*model.License, error) {
	return scanLicense(r.db.Pool.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE id=$1`, id))
}

// GetLicenseByToken selects a license by its token.
func (r *LicenseRepo) GetLicenseByToken(ctx context.Context, token string) (*model.License, error) {
	return scanLicense(r.db.Pool.QueryRow(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE token=$1`, token))
}

// ListByBillingAccount returns the licenses of an account.
func (r *LicenseRepo) ListByBillingAccount(ctx context.Context, accountID uuid.UUID) ([]model.License, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT `+licenseColumns+` FROM licenses WHERE billing_account_id=$1 ORDER BY created_at`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}

// SetLicenseUser connects or disconnects the license user.
func (r *LicenseRepo) SetLicenseUser(ctx context.Context, licenseID uuid.UUID, userID uuid.NullUUID) (*model.License, error) {
	const q = `UPDATE licenses SET user_id=$2 WHERE id=$1 RETURNING ` + licenseColumns
	return scanLicense(r.db.Pool.QueryRow(ctx, q, licenseID, userID))
}

// RefreshToken rotates the license token and disconnects its user.
func (r *LicenseRepo) RefreshToken(ctx context.Context, licenseID uuid.UUID, token string) (*model.License, error) {
	const q = `UPDATE licenses SET token=$2, user_id=NULL WHERE id=$1 RETURNING ` + licenseColumns
	return scanLicense(r.db.Pool.QueryRow(ctx, q, licenseID, token))
}

// LicenseTokensForUser lists the licenses connected to userID with their activity state.
func (r *LicenseRepo) LicenseTokensForUser(ctx context.Context, userID uuid.UUID) ([]model.LicenseToken, error) {
	const q = `
SELECT l.token, b.subscription_status IN ('ACTIVE', 'TRIALING'), b.subscription_plan
FROM licenses l
JOIN billing_accounts b ON b.id = l.billing_account_id
WHERE l.user_id=$1
ORDER BY l.created_at`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LicenseToken
	for rows.Next() {
		var t model.LicenseToken
		if err := rows.Scan(&t.Token, &t.IsActive, &t.SubscriptionPlan); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
