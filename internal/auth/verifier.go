package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgcrypto "github.com/and161185/collabvault/internal/crypto"
	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// DefaultWindow is the accepted clock skew of a signed UTC message.
const DefaultWindow = 10 * time.Minute

// DeviceLookup resolves the device behind a signing key.
type DeviceLookup interface {
	GetBySigningKey(ctx context.Context, signingKey string) (*model.Device, error)
}

// UserLookup resolves the owner of a device.
type UserLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// Verifier checks device assertions. It keeps no session state.
type Verifier struct {
	devices DeviceLookup
	users   UserLookup
	window  time.Duration
	now     func() time.Time
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithWindow overrides the accepted clock skew.
func WithWindow(d time.Duration) Option {
	return func(v *Verifier) {
		if d > 0 {
			v.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

// NewVerifier constructs a Verifier.
func NewVerifier(devices DeviceLookup, users UserLookup, opts ...Option) *Verifier {
	v := &Verifier{devices: devices, users: users, window: DefaultWindow, now: time.Now}
	for _, o := range opts {
		o(v)
	}
	return v
}

// Check validates the freshness and the signature of a, without touching storage.
func (v *Verifier) Check(a Assertion) error {
	at, err := time.Parse(time.RFC3339, a.UTCMessage)
	if err != nil {
		return fmt.Errorf("%w: bad timestamp", errs.ErrAuthenticationFailed)
	}
	skew := v.now().Sub(at)
	if skew < 0 {
		skew = -skew
	}
	if skew > v.window {
		return fmt.Errorf("%w: stale timestamp", errs.ErrAuthenticationFailed)
	}
	if !pkgcrypto.VerifyEd25519(a.SigningKey, a.UTCMessage, a.Signature) {
		return fmt.Errorf("%w: bad signature", errs.ErrAuthenticationFailed)
	}
	return nil
}

// Verify checks a and resolves the calling device and its user.
func (v *Verifier) Verify(ctx context.Context, a Assertion) (*model.Session, error) {
	if err := v.Check(a); err != nil {
		return nil, err
	}
	d, err := v.devices.GetBySigningKey(ctx, a.SigningKey)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown device", errs.ErrAuthenticationFailed)
		}
		return nil, err
	}
	u, err := v.users.GetByID(ctx, d.UserID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown user", errs.ErrAuthenticationFailed)
		}
		return nil, err
	}
	return &model.Session{Device: *d, User: *u}, nil
}

// Authenticate verifies the assertion carried by the request context of ctx.
func (v *Verifier) Authenticate(ctx context.Context) (*model.Session, error) {
	a, ok := FromContext(ctx).Assertion()
	if !ok {
		return nil, fmt.Errorf("%w: missing assertion", errs.ErrAuthenticationFailed)
	}
	return v.Verify(ctx, a)
}
