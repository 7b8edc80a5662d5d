// Package auth verifies signed device assertions and carries per-request identity.
package auth

import (
	"fmt"
	"strings"

	"github.com/and161185/collabvault/internal/errs"
)

// Scheme is the authorization scheme of device assertions.
const Scheme = "signed-utc-msg"

// Assertion is the triple a device sends to prove possession of its signing key.
type Assertion struct {
	SigningKey string
	UTCMessage string
	Signature  string
}

// ParseAuthorization parses `signed-utc-msg <signingKey> <utcMessage> <signature>`.
func ParseAuthorization(header string) (Assertion, error) {
	parts := strings.Fields(header)
	if len(parts) != 4 || parts[0] != Scheme {
		return Assertion{}, fmt.Errorf("%w: malformed authorization header", errs.ErrAuthenticationFailed)
	}
	return Assertion{SigningKey: parts[1], UTCMessage: parts[2], Signature: parts[3]}, nil
}
