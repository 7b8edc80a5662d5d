package memory

import (
	"context"
	"sort"
	"time"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// LicenseRepo is the in-memory LicenseRepository.
type LicenseRepo struct{ s *Store }

// SeedBillingAccount stores a billing account with its licenses. Billing accounts are
// created by the payment provider integration, so this is the only way to get one in memory.
func (s *Store) SeedBillingAccount(a model.BillingAccount, licenses ...model.License) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.tick()
	}
	s.accounts[a.ID] = &a
	for _, l := range licenses {
		l.BillingAccountID = a.ID
		if l.CreatedAt.IsZero() {
			l.CreatedAt = s.tick()
		}
		ll := l
		s.licenses[l.ID] = &ll
	}
}

// BillingAccountByEmail finds an account by email.
func (r *LicenseRepo) BillingAccountByEmail(_ context.Context, email string) (*model.BillingAccount, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// BillingAccountByID loads an account.
func (r *LicenseRepo) BillingAccountByID(_ context.Context, id uuid.UUID) (*model.BillingAccount, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

// CreateEmailToken stores a hashed login token.
func (r *LicenseRepo) CreateEmailToken(_ context.Context, t *model.EmailToken) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emailTokens[t.TokenHash]; ok {
		return errs.ErrAlreadyExists
	}
	c := *t
	s.emailTokens[t.TokenHash] = &c
	return nil
}

// ConsumeEmailToken marks a valid token used.
func (r *LicenseRepo) ConsumeEmailToken(_ context.Context, tokenHash string, now time.Time) (*model.EmailToken, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.emailTokens[tokenHash]
	if !ok || t.Used || !t.Expiration.After(now) {
		return nil, errs.ErrNotFound
	}
	t.Used = true
	c := *t
	return &c, nil
}

// GetLicense loads a license.
func (r *LicenseRepo) GetLicense(_ context.Context, id uuid.UUID) (*model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *l
	return &c, nil
}

// GetLicenseByToken finds a license by token.
func (r *LicenseRepo) GetLicenseByToken(_ context.Context, token string) (*model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.licenses {
		if l.Token == token {
			c := *l
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

// ListByBillingAccount returns the account's licenses, oldest first.
func (r *LicenseRepo) ListByBillingAccount(_ context.Context, accountID uuid.UUID) ([]model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.License
	for _, l := range s.licenses {
		if l.BillingAccountID == accountID {
			out = append(out, *l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// SetLicenseUser connects or disconnects the license user.
func (r *LicenseRepo) SetLicenseUser(_ context.Context, licenseID uuid.UUID, userID uuid.NullUUID) (*model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[licenseID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	if userID.Valid {
		if _, ok := s.users[userID.UUID]; !ok {
			return nil, errs.ErrNotFound
		}
	}
	l.UserID = userID
	c := *l
	return &c, nil
}

// RefreshToken rotates the token and disconnects the user.
func (r *LicenseRepo) RefreshToken(_ context.Context, licenseID uuid.UUID, token string) (*model.License, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.licenses[licenseID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	l.Token = token
	l.UserID = uuid.NullUUID{}
	c := *l
	return &c, nil
}

// LicenseTokensForUser lists licenses connected to userID.
func (r *LicenseRepo) LicenseTokensForUser(_ context.Context, userID uuid.UUID) ([]model.LicenseToken, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	var ls []*model.License
	for _, l := range s.licenses {
		if l.UserID.Valid && l.UserID.UUID == userID {
			ls = append(ls, l)
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].CreatedAt.Before(ls[j].CreatedAt) })

	var out []model.LicenseToken
	for _, l := range ls {
		a := s.accounts[l.BillingAccountID]
		if a == nil {
			continue
		}
		out = append(out, model.LicenseToken{
			Token:            l.Token,
			IsActive:         a.SubscriptionStatus == model.SubscriptionActive || a.SubscriptionStatus == model.SubscriptionTrialing,
			SubscriptionPlan: a.SubscriptionPlan,
		})
	}
	return out, nil
}
