package postgres

import (
	"context"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// DeviceRepo implements DeviceRepository using PostgreSQL.
type DeviceRepo struct{ db *DB }

// NewDeviceRepo constructs a device repository.
func NewDeviceRepo(db *DB) *DeviceRepo { return &DeviceRepo{db: db} }

const deviceColumns = `id, user_id, id_key, signing_key, signatures, fallback_key, fallback_key_signature, created_at`

func scanDevice(row pgx.Row) (*model.Device, error) {
	var d model.Device
	if err := row.Scan(&d.ID, &d.UserID, &d.IDKey, &d.SigningKey, &d.Signatures,
		&d.FallbackKey, &d.FallbackKeySignature, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}

func queryDevices(ctx context.Context, q querier, sql string, args ...any) ([]model.Device, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func insertDevice(ctx context.Context, tx pgx.Tx, d *model.Device) error {
	const q = `
INSERT INTO devices (id, user_id, id_key, signing_key, signatures, fallback_key, fallback_key_signature)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at`
	return tx.QueryRow(ctx, q, d.ID, d.UserID, d.IDKey, d.SigningKey, d.Signatures,
		d.FallbackKey, d.FallbackKeySignature).Scan(&d.CreatedAt)
}

// Create inserts the device and its verification artifact in one transaction.
func (r *DeviceRepo) Create(ctx context.Context, d *model.Device, v *model.AddDeviceVerification, keys []model.OneTimeKeyInput) error {
	const q = `
INSERT INTO add_device_verifications (id, device_id_key, verification_message, server_secret)
VALUES ($1, $2, $3, $4)
RETURNING created_at`
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		if err := insertDevice(ctx, tx, d); err != nil {
			return err
		}
		if err := tx.QueryRow(ctx, q, v.ID, v.DeviceIDKey, v.VerificationMessage, v.ServerSecret).Scan(&v.CreatedAt); err != nil {
			return err
		}
		return insertKeys(ctx, tx, d.ID, keys)
	})
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetBySigningKey selects a device by its signing key.
func (r *DeviceRepo) GetBySigningKey(ctx context.Context, signingKey string) (*model.Device, error) {
	d, err := scanDevice(r.db.Pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE signing_key=$1`, signingKey))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// GetByIDKey selects a device by its identity key.
func (r *DeviceRepo) GetByIDKey(ctx context.Context, idKey string) (*model.Device, error) {
	d, err := scanDevice(r.db.Pool.QueryRow(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id_key=$1`, idKey))
	if err != nil {
		return nil, notFound(err)
	}
	return d, nil
}

// ListByUser returns the user's devices, oldest first.
func (r *DeviceRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]model.Device, error) {
	return queryDevices(ctx, r.db.Pool, `SELECT `+deviceColumns+` FROM devices WHERE user_id=$1 ORDER BY created_at`, userID)
}

// ListByUsers returns devices of all given users.
func (r *DeviceRepo) ListByUsers(ctx context.Context, userIDs []uuid.UUID) ([]model.Device, error) {
	return queryDevices(ctx, r.db.Pool,
		`SELECT `+deviceColumns+` FROM devices WHERE user_id = ANY($1::uuid[]) ORDER BY user_id, created_at`,
		uuidStrings(userIDs))
}

// Delete removes a device of userID with its keys and authored content.
// The user's device rows stay locked until commit so two concurrent deletes
// can't remove the last two devices.
func (r *DeviceRepo) Delete(ctx context.Context, userID, deviceID uuid.UUID) (*model.DeviceTombstone, error) {
	const lock = `SELECT id FROM devices WHERE user_id=$1 FOR UPDATE`
	const tomb = `
INSERT INTO device_tombstones (id, id_key, signing_key, user_id)
SELECT id, id_key, signing_key, user_id FROM devices WHERE id=$1
RETURNING id, id_key, signing_key, user_id, created_at`

	var t model.DeviceTombstone
	err := withTx(ctx, r.db, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, lock, userID)
		if err != nil {
			return err
		}
		found, count := false, 0
		for rows.Next() {
			var id uuid.UUID
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			count++
			if id == deviceID {
				found = true
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if !found {
			return errs.ErrNotFound
		}
		if count <= 1 {
			return errs.ErrCannotRemoveLastDevice
		}

		if err := tx.QueryRow(ctx, tomb, deviceID).Scan(&t.ID, &t.IDKey, &t.SigningKey, &t.UserID, &t.CreatedAt); err != nil {
			return err
		}
		return execSteps(ctx, tx, deleteDeviceSteps(deviceID))
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func deleteDeviceSteps(id uuid.UUID) []txStep {
	return []txStep{
		{`DELETE FROM group_session_messages WHERE content_id IN (SELECT id FROM content WHERE device_id=$1)`, []any{id}},
		{`DELETE FROM private_info_group_session_messages WHERE private_info_content_id IN (SELECT id FROM private_info_content WHERE device_id=$1)`, []any{id}},
		{`DELETE FROM one_time_keys WHERE device_id=$1`, []any{id}},
		{`DELETE FROM private_info_content WHERE device_id=$1`, []any{id}},
		{`DELETE FROM content WHERE device_id=$1`, []any{id}},
		{`DELETE FROM devices WHERE id=$1`, []any{id}},
	}
}

// UpdateFallbackKey replaces the fallback key of a device.
func (r *DeviceRepo) UpdateFallbackKey(ctx context.Context, deviceID uuid.UUID, key, signature string) error {
	const q = `UPDATE devices SET fallback_key=$2, fallback_key_signature=$3 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, deviceID, key, signature)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// LatestVerification returns the most recent verification for (idKey, serverSecret).
func (r *DeviceRepo) LatestVerification(ctx context.Context, idKey, serverSecret string) (*model.AddDeviceVerification, error) {
	const q = `
SELECT id, device_id_key, verification_message, server_secret, created_at
FROM add_device_verifications
WHERE device_id_key=$1 AND server_secret=$2
ORDER BY created_at DESC
LIMIT 1`
	var v model.AddDeviceVerification
	if err := r.db.Pool.QueryRow(ctx, q, idKey, serverSecret).
		Scan(&v.ID, &v.DeviceIDKey, &v.VerificationMessage, &v.ServerSecret, &v.CreatedAt); err != nil {
		return nil, notFound(err)
	}
	return &v, nil
}

// Tombstones lists device tombstones of a user.
func (r *DeviceRepo) Tombstones(ctx context.Context, userID uuid.UUID) ([]model.DeviceTombstone, error) {
	const q = `
SELECT id, id_key, signing_key, user_id, created_at
FROM device_tombstones WHERE user_id=$1 ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeviceTombstone
	for rows.Next() {
		var t model.DeviceTombstone
		if err := rows.Scan(&t.ID, &t.IDKey, &t.SigningKey, &t.UserID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
