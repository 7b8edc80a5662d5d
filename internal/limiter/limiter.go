// Package limiter throttles failed lookups of secret-gated resources.
package limiter

import (
	"context"
	"crypto/sha256"
	"time"
)

// Scopes of secret-gated lookups.
const (
	ScopeAddDeviceVerification = "add_device_verification"
	ScopeContactInvitation     = "contact_invitation"
	ScopeBillingEmail          = "billing_email"
)

// Limiter controls attempts per (scope, client) and temporary lockouts.
type Limiter interface {
	// Allow reports whether an attempt is currently allowed and optional retry-after.
	Allow(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error)
	// Success resets counters after a successful attempt.
	Success(ctx context.Context, scope string, ipHash []byte) error
	// Failure records a failed attempt; may place a temporary block.
	Failure(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error)
}

// HashIP returns a stable hash for an IP string to avoid storing raw addresses.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}
