// Package notify publishes best-effort change notifications to connected clients.
package notify

import (
	"context"
	"encoding/json"

	"github.com/gofrs/uuid/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Event types.
const (
	ContentUpdated      = "content_updated"
	CollaboratorAdded   = "collaborator_added"
	CollaboratorRemoved = "collaborator_removed"
	RepositoryDeleted   = "repository_deleted"
)

// Event tells a user that a repository changed.
type Event struct {
	Type         string    `json:"type"`
	RepositoryID uuid.UUID `json:"repositoryId"`
	IntegrityID  string    `json:"integrityId,omitempty"`
}

// Notifier delivers events to users. Failures never reach the caller.
type Notifier interface {
	Notify(ctx context.Context, userIDs []uuid.UUID, ev Event)
}

// Channel returns the pub/sub channel of a user.
func Channel(userID uuid.UUID) string { return "collabvault:user:" + userID.String() }

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Redis publishes events over Redis pub/sub.
type Redis struct {
	rdb publisher
	log *zap.Logger
}

// NewRedis constructs a Redis notifier; rdb is usually a *redis.Client.
func NewRedis(rdb publisher, log *zap.Logger) *Redis {
	return &Redis{rdb: rdb, log: log}
}

// Notify publishes ev on the channel of every user.
func (r *Redis) Notify(ctx context.Context, userIDs []uuid.UUID, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		r.log.Warn("notify marshal", zap.Error(err))
		return
	}
	for _, id := range userIDs {
		if err := r.rdb.Publish(ctx, Channel(id), data).Err(); err != nil {
			r.log.Warn("notify publish",
				zap.String("type", ev.Type),
				zap.String("user", id.String()),
				zap.Error(err),
			)
		}
	}
}

// Nop drops every event.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(context.Context, []uuid.UUID, Event) {}
