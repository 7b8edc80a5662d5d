package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgcrypto "github.com/and161185/collabvault/internal/crypto"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/limiter"
	"github.com/and161185/collabvault/internal/mailer"
	"github.com/and161185/collabvault/internal/model"
	"github.com/and161185/collabvault/internal/repository"
	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"
)

const (
	emailTokenTTL = 15 * time.Minute
	bearerTTL     = 7 * 24 * time.Hour
)

// LicenseService is the billing collaborator: billing account login and license assignment.
type LicenseService interface {
	// SendAuthEmail mails a login token when an account exists for email.
	SendAuthEmail(ctx context.Context, email string) (bool, error)
	// Authenticate exchanges an email token for a bearer credential.
	Authenticate(ctx context.Context, emailToken, peer string) (bearer string, expiresAt time.Time, err error)
	BillingAccount(ctx context.Context, bearer string) (*model.BillingAccount, []model.License, error)
	AddUserToLicense(ctx context.Context, bearer string, licenseID, userID uuid.UUID) (*model.License, error)
	RefreshLicenseToken(ctx context.Context, bearer string, licenseID uuid.UUID) (*model.License, error)

	Connect(ctx context.Context, s *model.Session, token string) (*model.License, error)
	Disconnect(ctx context.Context, s *model.Session, token string) error
	AllTokens(ctx context.Context, s *model.Session) ([]model.LicenseToken, error)
}

type LicenseServiceImpl struct {
	licenses repository.LicenseRepository
	users    repository.UserRepository
	mail     mailer.Mailer
	signKey  []byte
	guard    secretGuard
	now      func() time.Time
}

// NewLicenseService constructs LicenseService. signKey signs bearer credentials.
func NewLicenseService(licenses repository.LicenseRepository, users repository.UserRepository, m mailer.Mailer, signKey []byte, lim limiter.Limiter) *LicenseServiceImpl {
	return &LicenseServiceImpl{licenses: licenses, users: users, mail: m, signKey: signKey, guard: secretGuard{lim: lim}, now: time.Now}
}

// SendAuthEmail reports false, without an error, for unknown addresses.
func (s *LicenseServiceImpl) SendAuthEmail(ctx context.Context, email string) (bool, error) {
	acc, err := s.licenses.BillingAccountByEmail(ctx, email)
	if errors.Is(err, errs.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	raw, err := pkgcrypto.RandomToken(32)
	if err != nil {
		return false, err
	}
	t := &model.EmailToken{
		TokenHash:  pkgcrypto.HashToken(raw),
		Email:      acc.Email,
		Expiration: s.now().Add(emailTokenTTL),
	}
	if err := s.licenses.CreateEmailToken(ctx, t); err != nil {
		return false, fmt.Errorf("store email token: %w", err)
	}
	if err := s.mail.Send(ctx, acc.Email, raw); err != nil {
		return false, err
	}
	return true, nil
}

// Authenticate consumes the email token and issues a signed HS256 JWT for the account.
func (s *LicenseServiceImpl) Authenticate(ctx context.Context, emailToken, peer string) (string, time.Time, error) {
	if err := s.guard.allow(ctx, limiter.ScopeBillingEmail, peer); err != nil {
		return "", time.Time{}, err
	}
	t, err := s.licenses.ConsumeEmailToken(ctx, pkgcrypto.HashToken(emailToken), s.now())
	if errors.Is(err, errs.ErrNotFound) {
		if gerr := s.guard.failed(ctx, limiter.ScopeBillingEmail, peer); gerr != nil {
			return "", time.Time{}, gerr
		}
		return "", time.Time{}, errs.ErrAuthenticationFailed
	}
	if err != nil {
		return "", time.Time{}, err
	}
	acc, err := s.licenses.BillingAccountByEmail(ctx, t.Email)
	if errors.Is(err, errs.ErrNotFound) {
		return "", time.Time{}, errs.ErrAuthenticationFailed
	}
	if err != nil {
		return "", time.Time{}, err
	}
	s.guard.succeeded(ctx, limiter.ScopeBillingEmail, peer)
	return s.issueBearer(acc.ID)
}

// issueBearer creates a signed HS256 JWT for the given billing account.
func (s *LicenseServiceImpl) issueBearer(accountID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(bearerTTL)
	claims := jwt.RegisteredClaims{
		Subject:   accountID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// account resolves the billing account behind a bearer credential.
func (s *LicenseServiceImpl) account(ctx context.Context, bearer string) (*model.BillingAccount, error) {
	if bearer == "" {
		return nil, errs.ErrAuthenticationFailed
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(bearer, &claims, func(*jwt.Token) (any, error) {
		return s.signKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthenticationFailed, err)
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return nil, errs.ErrAuthenticationFailed
	}
	acc, err := s.licenses.BillingAccountByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrAuthenticationFailed
	}
	return acc, err
}

// BillingAccount returns the bearer's account with its licenses.
func (s *LicenseServiceImpl) BillingAccount(ctx context.Context, bearer string) (*model.BillingAccount, []model.License, error) {
	acc, err := s.account(ctx, bearer)
	if err != nil {
		return nil, nil, err
	}
	ls, err := s.licenses.ListByBillingAccount(ctx, acc.ID)
	if err != nil {
		return nil, nil, err
	}
	return acc, ls, nil
}

func (s *LicenseServiceImpl) ownedLicense(ctx context.Context, bearer string, licenseID uuid.UUID) (*model.License, error) {
	acc, err := s.account(ctx, bearer)
	if err != nil {
		return nil, err
	}
	l, err := s.licenses.GetLicense(ctx, licenseID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrAuthorizationFailed
	}
	if err != nil {
		return nil, err
	}
	if l.BillingAccountID != acc.ID {
		return nil, errs.ErrAuthorizationFailed
	}
	return l, nil
}

// AddUserToLicense connects userID to a license of the bearer's account.
func (s *LicenseServiceImpl) AddUserToLicense(ctx context.Context, bearer string, licenseID, userID uuid.UUID) (*model.License, error) {
	if _, err := s.ownedLicense(ctx, bearer, licenseID); err != nil {
		return nil, err
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.licenses.SetLicenseUser(ctx, licenseID, uuid.NullUUID{UUID: userID, Valid: true})
}

// RefreshLicenseToken rotates the license token and disconnects its user.
func (s *LicenseServiceImpl) RefreshLicenseToken(ctx context.Context, bearer string, licenseID uuid.UUID) (*model.License, error) {
	if _, err := s.ownedLicense(ctx, bearer, licenseID); err != nil {
		return nil, err
	}
	tok, err := newIntegrityID()
	if err != nil {
		return nil, err
	}
	return s.licenses.RefreshToken(ctx, licenseID, tok)
}

// Connect binds the caller's user to the license with token.
func (s *LicenseServiceImpl) Connect(ctx context.Context, sess *model.Session, token string) (*model.License, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	l, err := s.licenses.GetLicenseByToken(ctx, token)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrAuthorizationFailed
	}
	if err != nil {
		return nil, err
	}
	return s.licenses.SetLicenseUser(ctx, l.ID, uuid.NullUUID{UUID: sess.User.ID, Valid: true})
}

// Disconnect releases a license connected to the caller.
func (s *LicenseServiceImpl) Disconnect(ctx context.Context, sess *model.Session, token string) error {
	if err := requireSession(sess); err != nil {
		return err
	}
	l, err := s.licenses.GetLicenseByToken(ctx, token)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrAuthorizationFailed
	}
	if err != nil {
		return err
	}
	if !l.UserID.Valid || l.UserID.UUID != sess.User.ID {
		return errs.ErrAuthorizationFailed
	}
	_, err = s.licenses.SetLicenseUser(ctx, l.ID, uuid.NullUUID{})
	return err
}

// AllTokens lists the licenses connected to the caller.
func (s *LicenseServiceImpl) AllTokens(ctx context.Context, sess *model.Session) ([]model.LicenseToken, error) {
	if err := requireSession(sess); err != nil {
		return nil, err
	}
	return s.licenses.LicenseTokensForUser(ctx, sess.User.ID)
}
