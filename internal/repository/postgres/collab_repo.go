package postgres

import (
	"context"
	"errors"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// CollabRepo implements CollabRepository using PostgreSQL.
type CollabRepo struct{ db *DB }

// NewCollabRepo constructs a repository store.
func NewCollabRepo(db *DB) *CollabRepo { return &CollabRepo{db: db} }

const repoSelect = `
SELECT r.id, r.creator_id, r.last_content_update_integrity_id, r.created_at,
  COALESCE(array_agg(rc.user_id::text ORDER BY rc.user_id) FILTER (WHERE rc.user_id IS NOT NULL), '{}')
FROM repositories r
LEFT JOIN repository_collaborators rc ON rc.repository_id = r.id`

const contentColumns = `c.id, c.repository_id, c.device_id, c.encrypted_content, c.schema_version, c.schema_version_signature, c.created_at`

func scanRepository(row pgx.Row) (*model.Repository, error) {
	var (
		r      model.Repository
		collab []string
	)
	if err := row.Scan(&r.ID, &r.CreatorID, &r.LastContentUpdateIntegrityID, &r.CreatedAt, &collab); err != nil {
		return nil, err
	}
	ids, err := parseUUIDs(collab)
	if err != nil {
		return nil, err
	}
	r.Collaborators = ids
	return &r, nil
}

func scanContent(row pgx.Row) (*model.Content, error) {
	var c model.Content
	if err := row.Scan(&c.ID, &c.RepositoryID, &c.DeviceID, &c.EncryptedContent,
		&c.SchemaVersion, &c.SchemaVersionSignature, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

func lockRepository(ctx context.Context, tx pgx.Tx, id uuid.UUID) error {
	var locked uuid.UUID
	if err := tx.QueryRow(ctx, `SELECT id FROM repositories WHERE id=$1 FOR UPDATE`, id).Scan(&locked); err != nil {
		return notFound(err)
	}
	return nil
}

func insertContent(ctx context.Context, tx pgx.Tx, c *model.Content) error {
	const q = `
INSERT INTO content (id, repository_id, device_id, encrypted_content, schema_version, schema_version_signature)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING created_at`
	return tx.QueryRow(ctx, q, c.ID, c.RepositoryID, c.DeviceID, c.EncryptedContent,
		c.SchemaVersion, c.SchemaVersionSignature).Scan(&c.CreatedAt)
}

func insertMessages(ctx context.Context, tx pgx.Tx, contentID uuid.UUID, msgs []model.GroupSessionMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	const q = `
INSERT INTO group_session_messages (id, content_id, target_device_id_key, type, body)
SELECT m.id::uuid, $1, m.target, m.type, m.body
FROM unnest($2::text[], $3::text[], $4::int[], $5::text[]) AS m(id, target, type, body)`
	ids := make([]string, len(msgs))
	targets := make([]string, len(msgs))
	types := make([]int32, len(msgs))
	bodies := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID.String()
		targets[i] = m.TargetDeviceIDKey
		types[i] = int32(m.Type)
		bodies[i] = m.Body
	}
	_, err := tx.Exec(ctx, q, contentID, ids, targets, types, bodies)
	return err
}

func insertEvent(ctx context.Context, tx pgx.Tx, ev *model.RepositoryEvent) error {
	const q = `INSERT INTO repository_events (id, repository_id, type) VALUES ($1, $2, $3) RETURNING created_at`
	const qc = `
INSERT INTO repository_event_collaborators (event_id, user_id)
SELECT $1, u::uuid FROM unnest($2::text[]) AS u`
	if err := tx.QueryRow(ctx, q, ev.ID, ev.RepositoryID, string(ev.Type)).Scan(&ev.CreatedAt); err != nil {
		return err
	}
	if len(ev.AffectedCollaborators) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, qc, ev.ID, uuidStrings(ev.AffectedCollaborators))
	return err
}

func setIntegrityID(ctx context.Context, tx pgx.Tx, repoID uuid.UUID, integrityID string) error {
	_, err := tx.Exec(ctx, `UPDATE repositories SET last_content_update_integrity_id=$2 WHERE id=$1`, repoID, integrityID)
	return err
}

// Create inserts the repository, its creator as first collaborator and the first content.
func (r *CollabRepo) Create(ctx context.Context, repo *model.Repository, c *model.Content, msgs []model.GroupSessionMessage) error {
	const q = `
INSERT INTO repositories (id, creator_id, last_content_update_integrity_id)
VALUES ($1, $2, $3)
RETURNING created_at`
	const qc = `INSERT INTO repository_collaborators (repository_id, user_id) VALUES ($1, $2)`
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, q, repo.ID, repo.CreatorID, repo.LastContentUpdateIntegrityID).Scan(&repo.CreatedAt); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, qc, repo.ID, repo.CreatorID); err != nil {
			return err
		}
		repo.Collaborators = []uuid.UUID{repo.CreatorID}
		if err := insertContent(ctx, tx, c); err != nil {
			return err
		}
		return insertMessages(ctx, tx, c.ID, msgs)
	})
}

// Get loads a repository with its collaborators.
func (r *CollabRepo) Get(ctx context.Context, id uuid.UUID) (*model.Repository, error) {
	repo, err := scanRepository(r.db.Pool.QueryRow(ctx, repoSelect+` WHERE r.id=$1 GROUP BY r.id`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return repo, nil
}

// ListForCollaborator returns the repositories userID collaborates on, oldest first.
func (r *CollabRepo) ListForCollaborator(ctx context.Context, userID uuid.UUID) ([]model.Repository, error) {
	const where = `
WHERE r.id IN (SELECT repository_id FROM repository_collaborators WHERE user_id=$1)
GROUP BY r.id
ORDER BY r.created_at, r.id`
	rows, err := r.db.Pool.Query(ctx, repoSelect+where, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *repo)
	}
	return out, rows.Err()
}

// AppendContent adds a content version. The repository row stays locked until commit,
// so the stored integrity token always belongs to the last committed content.
func (r *CollabRepo) AppendContent(ctx context.Context, c *model.Content, msgs []model.GroupSessionMessage, reuseIDs []uuid.UUID, integrityID string) error {
	const move = `
UPDATE group_session_messages SET content_id=$1
WHERE id = ANY($2::uuid[])
  AND content_id IN (SELECT id FROM content WHERE repository_id=$3)`
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockRepository(ctx, tx, c.RepositoryID); err != nil {
			return err
		}
		if err := insertContent(ctx, tx, c); err != nil {
			return err
		}
		if err := insertMessages(ctx, tx, c.ID, msgs); err != nil {
			return err
		}
		if len(reuseIDs) > 0 {
			if _, err := tx.Exec(ctx, move, c.ID, uuidStrings(reuseIDs), c.RepositoryID); err != nil {
				return err
			}
		}
		return setIntegrityID(ctx, tx, c.RepositoryID, integrityID)
	})
}

// LatestContentForDevices picks the newest content of each device and the messages targeted at targetIDKey.
func (r *CollabRepo) LatestContentForDevices(ctx context.Context, repoID uuid.UUID, deviceIDs []uuid.UUID, targetIDKey string) ([]model.ContentWithMessages, error) {
	const q = `
SELECT DISTINCT ON (c.device_id) ` + contentColumns + `
FROM content c
WHERE c.repository_id=$1 AND c.device_id = ANY($2::uuid[])
ORDER BY c.device_id, c.created_at DESC`
	const qm = `
SELECT id, content_id, target_device_id_key, type, body
FROM group_session_messages
WHERE content_id = ANY($1::uuid[]) AND target_device_id_key=$2
ORDER BY id`
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, q, repoID, uuidStrings(deviceIDs))
	if err != nil {
		return nil, err
	}
	var (
		out        []model.ContentWithMessages
		contentIDs []uuid.UUID
	)
	for rows.Next() {
		c, err := scanContent(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, model.ContentWithMessages{Content: *c})
		contentIDs = append(contentIDs, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	msgs, err := r.queryMessages(ctx, qm, uuidStrings(contentIDs), targetIDKey)
	if err != nil {
		return nil, err
	}
	idx := make(map[uuid.UUID]int, len(out))
	for i, cw := range out {
		idx[cw.Content.ID] = i
	}
	for _, m := range msgs {
		i := idx[m.ContentID]
		out[i].Messages = append(out[i].Messages, m)
	}
	return out, nil
}

func (r *CollabRepo) queryMessages(ctx context.Context, q string, args ...any) ([]model.GroupSessionMessage, error) {
	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GroupSessionMessage
	for rows.Next() {
		var (
			m  model.GroupSessionMessage
			ty int32
		)
		if err := rows.Scan(&m.ID, &m.ContentID, &m.TargetDeviceIDKey, &ty, &m.Body); err != nil {
			return nil, err
		}
		m.Type = int(ty)
		out = append(out, m)
	}
	return out, rows.Err()
}

// AddCollaborator connects userID and attaches msgs to the newest content of deviceID.
// The content is resolved under the repository lock so a concurrent append cannot supersede it.
func (r *CollabRepo) AddCollaborator(ctx context.Context, repoID, userID, deviceID uuid.UUID, msgs []model.GroupSessionMessage, integrityID string) ([]uuid.UUID, bool, error) {
	const latest = `
SELECT id FROM content
WHERE repository_id=$1 AND device_id=$2
ORDER BY created_at DESC
LIMIT 1`
	const connect = `
INSERT INTO repository_collaborators (repository_id, user_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`
	const ids = `SELECT id FROM group_session_messages WHERE content_id=$1 ORDER BY id`

	var (
		out   []uuid.UUID
		found bool
	)
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockRepository(ctx, tx, repoID); err != nil {
			return err
		}
		var contentID uuid.UUID
		err := tx.QueryRow(ctx, latest, repoID, deviceID).Scan(&contentID)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		if _, err := tx.Exec(ctx, connect, repoID, userID); err != nil {
			return err
		}
		if err := insertMessages(ctx, tx, contentID, msgs); err != nil {
			return err
		}
		if integrityID != "" {
			if err := setIntegrityID(ctx, tx, repoID, integrityID); err != nil {
				return err
			}
		}
		rows, err := tx.Query(ctx, ids, contentID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				return err
			}
			out = append(out, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, false, err
	}
	return out, found, nil
}

// RemoveCollaborator drops the key material addressed to the user's devices and disconnects the user.
// An unknown user is reported as errs.ErrNotFound.
func (r *CollabRepo) RemoveCollaborator(ctx context.Context, repoID, userID uuid.UUID, ev *model.RepositoryEvent) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockRepository(ctx, tx, repoID); err != nil {
			return err
		}
		var found uuid.UUID
		if err := tx.QueryRow(ctx, `SELECT id FROM users WHERE id=$1`, userID).Scan(&found); err != nil {
			return notFound(err)
		}
		if _, err := tx.Exec(ctx, `
DELETE FROM group_session_messages
WHERE target_device_id_key IN (SELECT id_key FROM devices WHERE user_id=$2)
  AND content_id IN (SELECT id FROM content WHERE repository_id=$1)`, repoID, userID); err != nil {
			return err
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `DELETE FROM repository_collaborators WHERE repository_id=$1 AND user_id=$2`, repoID, userID)
		return err
	})
}

// Delete records ev and purges the repository.
func (r *CollabRepo) Delete(ctx context.Context, repoID uuid.UUID, ev *model.RepositoryEvent) error {
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := lockRepository(ctx, tx, repoID); err != nil {
			return err
		}
		if err := insertEvent(ctx, tx, ev); err != nil {
			return err
		}
		return execSteps(ctx, tx, []txStep{
			{`DELETE FROM group_session_messages WHERE content_id IN (SELECT id FROM content WHERE repository_id=$1)`, []any{repoID}},
			{`DELETE FROM content WHERE repository_id=$1`, []any{repoID}},
			{`DELETE FROM repository_collaborators WHERE repository_id=$1`, []any{repoID}},
			{`DELETE FROM repositories WHERE id=$1`, []any{repoID}},
		})
	})
}

// EventsForUser lists events affecting userID, oldest first.
func (r *CollabRepo) EventsForUser(ctx context.Context, userID uuid.UUID) ([]model.RepositoryEvent, error) {
	const q = `
SELECT e.id, e.repository_id, e.type, e.created_at,
  ARRAY(SELECT x.user_id::text FROM repository_event_collaborators x WHERE x.event_id = e.id ORDER BY x.user_id)
FROM repository_events e
JOIN repository_event_collaborators ec ON ec.event_id = e.id
WHERE ec.user_id=$1
ORDER BY e.created_at, e.id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.RepositoryEvent
	for rows.Next() {
		var (
			ev       model.RepositoryEvent
			typ      string
			affected []string
		)
		if err := rows.Scan(&ev.ID, &ev.RepositoryID, &typ, &ev.CreatedAt, &affected); err != nil {
			return nil, err
		}
		ev.Type = model.EventType(typ)
		if ev.AffectedCollaborators, err = parseUUIDs(affected); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// MessageTargets resolves the target id keys of the repository's messages among ids.
func (r *CollabRepo) MessageTargets(ctx context.Context, repoID uuid.UUID, ids []uuid.UUID) ([]string, error) {
	const q = `
SELECT m.target_device_id_key
FROM group_session_messages m
JOIN content c ON c.id = m.content_id
WHERE m.id = ANY($1::uuid[]) AND c.repository_id=$2`
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.Pool.Query(ctx, q, uuidStrings(ids), repoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
