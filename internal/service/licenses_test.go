package service

import (
	"context"
	"testing"
	"time"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"
)

type billingFixture struct {
	account  model.BillingAccount
	licenses []model.License
}

func (e *env) seedBilling(t *testing.T, email string, status model.SubscriptionStatus, tokens ...string) billingFixture {
	t.Helper()
	f := billingFixture{account: model.BillingAccount{
		ID:                 uuid.Must(uuid.NewV4()),
		Email:              email,
		SubscriptionPlan:   "team",
		SubscriptionStatus: status,
	}}
	for _, tok := range tokens {
		f.licenses = append(f.licenses, model.License{ID: uuid.Must(uuid.NewV4()), Token: tok})
	}
	e.store.SeedBillingAccount(f.account, f.licenses...)
	return f
}

func (e *env) login(t *testing.T, email string) string {
	t.Helper()
	ctx := context.Background()
	sent, err := e.licenses.SendAuthEmail(ctx, email)
	require.NoError(t, err)
	require.True(t, sent)
	bearer, _, err := e.licenses.Authenticate(ctx, e.mail.sent[email], "10.1.0.1")
	require.NoError(t, err)
	return bearer
}

func TestLicenses_EmailLogin(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	e.licenses.now = func() time.Time { return now }
	f := e.seedBilling(t, "billing@example.com", model.SubscriptionActive, "lic-1")

	sent, err := e.licenses.SendAuthEmail(ctx, "nobody@example.com")
	require.NoError(t, err)
	require.False(t, sent)
	require.Empty(t, e.mail.sent)

	sent, err = e.licenses.SendAuthEmail(ctx, "billing@example.com")
	require.NoError(t, err)
	require.True(t, sent)
	token := e.mail.sent["billing@example.com"]
	require.NotEmpty(t, token)

	bearer, exp, err := e.licenses.Authenticate(ctx, token, "10.1.0.1")
	require.NoError(t, err)
	require.Equal(t, now.Add(7*24*time.Hour), exp)

	acc, ls, err := e.licenses.BillingAccount(ctx, bearer)
	require.NoError(t, err)
	require.Equal(t, f.account.ID, acc.ID)
	require.Len(t, ls, 1)
	require.Equal(t, "lic-1", ls[0].Token)

	// one shot
	_, _, err = e.licenses.Authenticate(ctx, token, "10.1.0.1")
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)

	now = now.Add(8 * 24 * time.Hour)
	_, _, err = e.licenses.BillingAccount(ctx, bearer)
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
}

func TestLicenses_EmailTokenExpires(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 10, 8, 0, 0, 0, time.UTC)
	e.licenses.now = func() time.Time { return now }
	e.seedBilling(t, "billing@example.com", model.SubscriptionActive)

	_, err := e.licenses.SendAuthEmail(ctx, "billing@example.com")
	require.NoError(t, err)
	now = now.Add(16 * time.Minute)

	_, _, err = e.licenses.Authenticate(ctx, e.mail.sent["billing@example.com"], "10.1.0.2")
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
}

func TestLicenses_AuthenticateThrottled(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedBilling(t, "billing@example.com", model.SubscriptionActive)

	for i := 0; i < 2; i++ {
		_, _, err := e.licenses.Authenticate(ctx, "guess", "10.1.0.3")
		require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
	}
	_, _, err := e.licenses.Authenticate(ctx, "guess", "10.1.0.3")
	require.ErrorIs(t, err, errs.ErrRateLimited)

	_, err = e.licenses.SendAuthEmail(ctx, "billing@example.com")
	require.NoError(t, err)
	_, _, err = e.licenses.Authenticate(ctx, e.mail.sent["billing@example.com"], "10.1.0.3")
	require.ErrorIs(t, err, errs.ErrRateLimited)
}

func TestLicenses_BearerChecks(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.seedBilling(t, "billing@example.com", model.SubscriptionActive)

	for _, bearer := range []string{"", "not-a-jwt"} {
		_, _, err := e.licenses.BillingAccount(ctx, bearer)
		require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
	}

	other := NewLicenseService(e.store.Licenses(), e.store.Users(), e.mail, []byte("another-key"), nil)
	forged, _, err := other.issueBearer(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	_, _, err = e.licenses.BillingAccount(ctx, forged)
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)

	// well signed, unknown account
	orphan, _, err := e.licenses.issueBearer(uuid.Must(uuid.NewV4()))
	require.NoError(t, err)
	_, _, err = e.licenses.BillingAccount(ctx, orphan)
	require.ErrorIs(t, err, errs.ErrAuthenticationFailed)
}

func TestLicenses_AssignAndRefresh(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	f := e.seedBilling(t, "billing@example.com", model.SubscriptionActive, "lic-1")
	g := e.seedBilling(t, "other@example.com", model.SubscriptionActive, "lic-2")
	bearer := e.login(t, "billing@example.com")
	licID := f.licenses[0].ID

	l, err := e.licenses.AddUserToLicense(ctx, bearer, licID, a.User.ID)
	require.NoError(t, err)
	require.Equal(t, uuid.NullUUID{UUID: a.User.ID, Valid: true}, l.UserID)

	_, err = e.licenses.AddUserToLicense(ctx, bearer, licID, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = e.licenses.AddUserToLicense(ctx, bearer, g.licenses[0].ID, a.User.ID)
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
	_, err = e.licenses.RefreshLicenseToken(ctx, bearer, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)

	refreshed, err := e.licenses.RefreshLicenseToken(ctx, bearer, licID)
	require.NoError(t, err)
	require.NotEqual(t, "lic-1", refreshed.Token)
	require.False(t, refreshed.UserID.Valid)

	tokens, err := e.licenses.AllTokens(ctx, a)
	require.NoError(t, err)
	require.Empty(t, tokens)

	_, err = e.licenses.Connect(ctx, a, "lic-1")
	require.ErrorIs(t, err, errs.ErrAuthorizationFailed)
}

func TestLicenses_ConnectDisconnect(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	a := e.newUser(t, "alice")
	b := e.newUser(t, "bob")
	e.seedBilling(t, "active@example.com", model.SubscriptionTrialing, "lic-active")
	e.seedBilling(t, "lapsed@example.com", model.SubscriptionPastDue, "lic-lapsed")

	_, err := e.licenses.Connect(ctx, a, "lic-active")
	require.NoError(t, err)
	_, err = e.licenses.Connect(ctx, a, "lic-lapsed")
	require.NoError(t, err)

	tokens, err := e.licenses.AllTokens(ctx, a)
	require.NoError(t, err)
	require.ElementsMatch(t, []model.LicenseToken{
		{Token: "lic-active", IsActive: true, SubscriptionPlan: "team"},
		{Token: "lic-lapsed", IsActive: false, SubscriptionPlan: "team"},
	}, tokens)

	require.ErrorIs(t, e.licenses.Disconnect(ctx, b, "lic-active"), errs.ErrAuthorizationFailed)
	require.ErrorIs(t, e.licenses.Disconnect(ctx, a, "missing"), errs.ErrAuthorizationFailed)
	require.NoError(t, e.licenses.Disconnect(ctx, a, "lic-active"))

	tokens, err = e.licenses.AllTokens(ctx, a)
	require.NoError(t, err)
	require.Equal(t, []model.LicenseToken{{Token: "lic-lapsed", IsActive: false, SubscriptionPlan: "team"}}, tokens)
}
