package postgres

import (
	"context"

	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// PrivateInfoRepo implements PrivateInfoRepository using PostgreSQL.
type PrivateInfoRepo struct{ db *DB }

// NewPrivateInfoRepo constructs a private info repository.
func NewPrivateInfoRepo(db *DB) *PrivateInfoRepo { return &PrivateInfoRepo{db: db} }

// Create inserts the entry and its messages.
func (r *PrivateInfoRepo) Create(ctx context.Context, c *model.PrivateInfoContent, msgs []model.PrivateInfoGroupSessionMessage) error {
	const q = `
INSERT INTO private_info_content (id, device_id, encrypted_content)
VALUES ($1, $2, $3)
RETURNING created_at`
	const qm = `
INSERT INTO private_info_group_session_messages (id, private_info_content_id, target_device_id_key, type, body)
VALUES ($1, $2, $3, $4, $5)`
	return withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, q, c.ID, c.DeviceID, c.EncryptedContent).Scan(&c.CreatedAt); err != nil {
			return err
		}
		for _, m := range msgs {
			if _, err := tx.Exec(ctx, qm, m.ID, c.ID, m.TargetDeviceIDKey, int32(m.Type), m.Body); err != nil {
				return err
			}
		}
		return nil
	})
}

// LatestForDevices returns the newest entry of each device with the messages targeted at targetIDKey.
func (r *PrivateInfoRepo) LatestForDevices(ctx context.Context, deviceIDs []uuid.UUID, targetIDKey string) ([]model.PrivateInfoWithMessages, error) {
	const q = `
SELECT DISTINCT ON (device_id) id, device_id, encrypted_content, created_at
FROM private_info_content
WHERE device_id = ANY($1::uuid[])
ORDER BY device_id, created_at DESC`
	const qm = `
SELECT id, private_info_content_id, target_device_id_key, type, body
FROM private_info_group_session_messages
WHERE private_info_content_id = ANY($1::uuid[]) AND target_device_id_key=$2
ORDER BY id`
	if len(deviceIDs) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, q, uuidStrings(deviceIDs))
	if err != nil {
		return nil, err
	}
	var (
		out []model.PrivateInfoWithMessages
		ids []uuid.UUID
	)
	idx := map[uuid.UUID]int{}
	for rows.Next() {
		var c model.PrivateInfoContent
		if err := rows.Scan(&c.ID, &c.DeviceID, &c.EncryptedContent, &c.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		idx[c.ID] = len(out)
		out = append(out, model.PrivateInfoWithMessages{Content: c})
		ids = append(ids, c.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}

	mrows, err := r.db.Pool.Query(ctx, qm, uuidStrings(ids), targetIDKey)
	if err != nil {
		return nil, err
	}
	defer mrows.Close()
	for mrows.Next() {
		var (
			m  model.PrivateInfoGroupSessionMessage
			ty int32
		)
		if err := mrows.Scan(&m.ID, &m.PrivateInfoContentID, &m.TargetDeviceIDKey, &ty, &m.Body); err != nil {
			return nil, err
		}
		m.Type = int(ty)
		i := idx[m.PrivateInfoContentID]
		out[i].Messages = append(out[i].Messages, m)
	}
	return out, mrows.Err()
}
