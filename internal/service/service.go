// Package service contains the application services behind the sync API.
// Every exported operation takes the caller's resolved *model.Session, except
// the few unauthenticated, secret-gated lookups which take the client address
// for rate limiting instead.
package service

import (
	"context"
	"fmt"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/limiter"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

func newID() (uuid.UUID, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, fmt.Errorf("new id: %w", err)
	}
	return id, nil
}

// newIntegrityID returns a fresh opaque integrity token.
func newIntegrityID() (string, error) {
	id, err := newID()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func requireSession(s *model.Session) error {
	if s == nil || s.Device.ID == uuid.Nil || s.User.ID == uuid.Nil {
		return errs.ErrAuthenticationFailed
	}
	return nil
}

// secretGuard throttles failed lookups of secret-gated resources per (scope, peer).
type secretGuard struct {
	lim limiter.Limiter
}

func (g secretGuard) allow(ctx context.Context, scope, peer string) error {
	if g.lim == nil {
		return nil
	}
	ok, _, err := g.lim.Allow(ctx, scope, limiter.HashIP(peer))
	if err != nil {
		return err
	}
	if !ok {
		return errs.ErrRateLimited
	}
	return nil
}

// failed records a miss and reports ErrRateLimited once the peer gets blocked.
func (g secretGuard) failed(ctx context.Context, scope, peer string) error {
	if g.lim == nil {
		return nil
	}
	if blocked, _, err := g.lim.Failure(ctx, scope, limiter.HashIP(peer)); err == nil && blocked {
		return errs.ErrRateLimited
	}
	return nil
}

func (g secretGuard) succeeded(ctx context.Context, scope, peer string) {
	if g.lim == nil {
		return
	}
	_ = g.lim.Success(ctx, scope, limiter.HashIP(peer))
}

func toMessages(contentID uuid.UUID, in []model.GroupSessionMessageInput) ([]model.GroupSessionMessage, []uuid.UUID, error) {
	msgs := make([]model.GroupSessionMessage, 0, len(in))
	ids := make([]uuid.UUID, 0, len(in))
	for i, m := range in {
		if m.TargetDeviceIDKey == "" {
			return nil, nil, errs.Validationf("groupSessionMessages[%d]: empty target", i)
		}
		id, err := newID()
		if err != nil {
			return nil, nil, err
		}
		msgs = append(msgs, model.GroupSessionMessage{
			ID:                id,
			ContentID:         contentID,
			TargetDeviceIDKey: m.TargetDeviceIDKey,
			Type:              m.Type,
			Body:              m.Body,
		})
		ids = append(ids, id)
	}
	return msgs, ids, nil
}
