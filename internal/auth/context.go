package auth

import "context"

// RequestContext is the immutable per-request identity input, parsed once by the transport.
type RequestContext struct {
	assertion    *Assertion
	billingToken string
	peer         string
}

// NewRequestContext builds a RequestContext. a may be nil for anonymous requests.
func NewRequestContext(a *Assertion, billingToken, peer string) RequestContext {
	if a != nil {
		cp := *a
		a = &cp
	}
	return RequestContext{assertion: a, billingToken: billingToken, peer: peer}
}

// Assertion returns a copy of the device assertion, if any.
func (r RequestContext) Assertion() (Assertion, bool) {
	if r.assertion == nil {
		return Assertion{}, false
	}
	return *r.assertion, true
}

// BillingToken returns the billing bearer credential.
func (r RequestContext) BillingToken() string { return r.billingToken }

// Peer returns the client address used for rate limiting.
func (r RequestContext) Peer() string { return r.peer }

type ctxKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext fetches the request context; the zero value when absent.
func FromContext(ctx context.Context) RequestContext {
	rc, _ := ctx.Value(ctxKey{}).(RequestContext)
	return rc
}
