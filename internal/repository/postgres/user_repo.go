package postgres

import (
	"context"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts the user, its first device and the device's one-time keys.
func (r *UserRepo) Create(ctx context.Context, u *model.User, d *model.Device, keys []model.OneTimeKeyInput) error {
	const q = `INSERT INTO users (id, signing_keys) VALUES ($1, $2) RETURNING created_at`
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, q, u.ID, u.SigningKeys).Scan(&u.CreatedAt); err != nil {
			return err
		}
		if err := insertDevice(ctx, tx, d); err != nil {
			return err
		}
		return insertKeys(ctx, tx, d.ID, keys)
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects a user by ID.
func (r *UserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT id, signing_keys, created_at FROM users WHERE id=$1`
	var u model.User
	if err := r.db.Pool.QueryRow(ctx, q, id).Scan(&u.ID, &u.SigningKeys, &u.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// Delete removes the user and everything it owns, leaving user and device tombstones.
// Repositories created by the user that still have other collaborators get a DELETE event for them.
func (r *UserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const lock = `SELECT id FROM users WHERE id=$1 FOR UPDATE`
	const others = `
SELECT rc.repository_id, rc.user_id
FROM repository_collaborators rc
JOIN repositories r ON r.id = rc.repository_id
WHERE r.creator_id=$1 AND rc.user_id<>$1
ORDER BY rc.repository_id`

	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		var locked uuid.UUID
		if err := tx.QueryRow(ctx, lock, id).Scan(&locked); err != nil {
			return notFound(err)
		}

		rows, err := tx.Query(ctx, others, id)
		if err != nil {
			return err
		}
		var order []uuid.UUID
		affected := map[uuid.UUID][]uuid.UUID{}
		for rows.Next() {
			var repoID, userID uuid.UUID
			if err := rows.Scan(&repoID, &userID); err != nil {
				rows.Close()
				return err
			}
			if _, ok := affected[repoID]; !ok {
				order = append(order, repoID)
			}
			affected[repoID] = append(affected[repoID], userID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		for _, repoID := range order {
			ev := &model.RepositoryEvent{
				ID:                    uuid.Must(uuid.NewV4()),
				RepositoryID:          repoID,
				Type:                  model.EventDelete,
				AffectedCollaborators: affected[repoID],
			}
			if err := insertEvent(ctx, tx, ev); err != nil {
				return err
			}
		}
		return execSteps(ctx, tx, deleteUserSteps(id))
	})
}

func deleteUserSteps(id uuid.UUID) []txStep {
	const (
		createdContent  = `SELECT c.id FROM content c JOIN repositories r ON r.id = c.repository_id WHERE r.creator_id=$1`
		authoredContent = `SELECT c.id FROM content c JOIN devices d ON d.id = c.device_id WHERE d.user_id=$1`
		ownDevices      = `SELECT id FROM devices WHERE user_id=$1`
	)
	return []txStep{
		{`DELETE FROM group_session_messages WHERE content_id IN (` + createdContent + `) OR content_id IN (` + authoredContent + `)`, []any{id}},
		{`DELETE FROM content WHERE repository_id IN (SELECT id FROM repositories WHERE creator_id=$1) OR device_id IN (` + ownDevices + `)`, []any{id}},
		{`DELETE FROM repository_collaborators WHERE repository_id IN (SELECT id FROM repositories WHERE creator_id=$1) OR user_id=$1`, []any{id}},
		{`DELETE FROM repositories WHERE creator_id=$1`, []any{id}},
		{`DELETE FROM private_info_group_session_messages WHERE private_info_content_id IN (SELECT p.id FROM private_info_content p JOIN devices d ON d.id = p.device_id WHERE d.user_id=$1)`, []any{id}},
		{`DELETE FROM private_info_content WHERE device_id IN (` + ownDevices + `)`, []any{id}},
		{`DELETE FROM one_time_keys WHERE device_id IN (` + ownDevices + `)`, []any{id}},
		{`UPDATE licenses SET user_id=NULL WHERE user_id=$1`, []any{id}},
		{`DELETE FROM contact_invitations WHERE user_id=$1 OR accepted_by_user_id=$1`, []any{id}},
		{`DELETE FROM contacts WHERE user_id=$1 OR contact_user_id=$1`, []any{id}},
		{`INSERT INTO device_tombstones (id, id_key, signing_key, user_id) SELECT id, id_key, signing_key, user_id FROM devices WHERE user_id=$1`, []any{id}},
		{`DELETE FROM devices WHERE user_id=$1`, []any{id}},
		{`DELETE FROM users WHERE id=$1`, []any{id}},
		{`INSERT INTO user_tombstones (id) VALUES ($1)`, []any{id}},
	}
}
