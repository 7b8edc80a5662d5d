package repository

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CollabRepository stores repositories, their content history and group-session messages.
type CollabRepository interface {
	// Create inserts the repository with its creator as collaborator, the first content and its messages.
	Create(ctx context.Context, r *model.Repository, c *model.Content, msgs []model.GroupSessionMessage) error
	// Get loads a repository with its collaborator set.
	Get(ctx context.Context, id uuid.UUID) (*model.Repository, error)
	// ListForCollaborator returns every repository userID collaborates on.
	ListForCollaborator(ctx context.Context, userID uuid.UUID) ([]model.Repository, error)
	// AppendContent inserts c, creates msgs, moves reuseIDs (messages of the same repository) onto c
	// and sets the repository integrity token, all in one transaction.
	AppendContent(ctx context.Context, c *model.Content, msgs []model.GroupSessionMessage, reuseIDs []uuid.UUID, integrityID string) error
	// LatestContentForDevices returns, per device, its most recent content in the repository
	// with only the messages targeted at targetIDKey.
	LatestContentForDevices(ctx context.Context, repoID uuid.UUID, deviceIDs []uuid.UUID, targetIDKey string) ([]model.ContentWithMessages, error)
	// AddCollaborator resolves the most recent content authored by deviceID under the
	// repository lock, connects userID (idempotent), attaches msgs to that content and,
	// when integrityID is not empty, rotates the token. It returns all message ids of the
	// content; ok is false and nothing is written when deviceID has no content.
	AddCollaborator(ctx context.Context, repoID, userID, deviceID uuid.UUID, msgs []model.GroupSessionMessage, integrityID string) (ids []uuid.UUID, ok bool, err error)
	// RemoveCollaborator deletes the repository's messages targeted at userID's devices,
	// records ev and disconnects userID. It fails with errs.ErrNotFound for an unknown user.
	RemoveCollaborator(ctx context.Context, repoID, userID uuid.UUID, ev *model.RepositoryEvent) error
	// Delete records ev and purges messages, content and the repository.
	Delete(ctx context.Context, repoID uuid.UUID, ev *model.RepositoryEvent) error
	// EventsForUser lists events whose affected collaborators include userID.
	EventsForUser(ctx context.Context, userID uuid.UUID) ([]model.RepositoryEvent, error)
	// MessageTargets returns the target id key of every message of the repository found among ids.
	MessageTargets(ctx context.Context, repoID uuid.UUID, ids []uuid.UUID) ([]string, error)
}
