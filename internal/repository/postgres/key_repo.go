package postgres

import (
	"context"
	"errors"

	"github.com/and161185/collabvault/internal/errs"
	"github.com/and161185/collabvault/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// KeyRepo implements OneTimeKeyRepository using PostgreSQL.
type KeyRepo struct{ db *DB }

// NewKeyRepo constructs a one-time key repository.
func NewKeyRepo(db *DB) *KeyRepo { return &KeyRepo{db: db} }

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func insertKeys(ctx context.Context, ex execer, deviceID uuid.UUID, keys []model.OneTimeKeyInput) error {
	if len(keys) == 0 {
		return nil
	}
	const q = `
INSERT INTO one_time_keys (key, signature, device_id)
SELECT k, s, $3 FROM unnest($1::text[], $2::text[]) AS t(k, s)`
	ks := make([]string, len(keys))
	sigs := make([]string, len(keys))
	for i, k := range keys {
		ks[i], sigs[i] = k.Key, k.Signature
	}
	_, err := ex.Exec(ctx, q, ks, sigs, deviceID)
	return err
}

// Insert adds keys to the device pool in a single statement.
func (r *KeyRepo) Insert(ctx context.Context, deviceID uuid.UUID, keys []model.OneTimeKeyInput) error {
	err := insertKeys(ctx, r.db.Pool, deviceID, keys)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// ClaimOne claims one unclaimed key of the target device. Concurrent claimants skip
// each other's locked rows, so no key is handed out twice and nobody blocks.
func (r *KeyRepo) ClaimOne(ctx context.Context, targetDeviceID, claimerID uuid.UUID) (*model.OneTimeKey, bool, error) {
	const q = `
UPDATE one_time_keys SET claimed_by_device_id=$2
WHERE key = (
  SELECT key FROM one_time_keys
  WHERE device_id=$1 AND claimed_by_device_id IS NULL
  LIMIT 1
  FOR UPDATE SKIP LOCKED
)
RETURNING key, signature, device_id, claimed_by_device_id`
	var k model.OneTimeKey
	err := r.db.Pool.QueryRow(ctx, q, targetDeviceID, claimerID).
		Scan(&k.Key, &k.Signature, &k.DeviceID, &k.ClaimedByDeviceID)
	switch {
	case err == nil:
		return &k, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, err
	}
}

// Remove deletes key if it is owned by deviceID.
func (r *KeyRepo) Remove(ctx context.Context, deviceID uuid.UUID, key string) (bool, error) {
	const q = `DELETE FROM one_time_keys WHERE key=$1 AND device_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, key, deviceID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// CountUnclaimed counts the unclaimed keys of a device.
func (r *KeyRepo) CountUnclaimed(ctx context.Context, deviceID uuid.UUID) (int, error) {
	const q = `SELECT count(*) FROM one_time_keys WHERE device_id=$1 AND claimed_by_device_id IS NULL`
	var n int
	if err := r.db.Pool.QueryRow(ctx, q, deviceID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ListByDevice returns every key owned by the device.
func (r *KeyRepo) ListByDevice(ctx context.Context, deviceID uuid.UUID) ([]model.OneTimeKey, error) {
	const q = `
SELECT key, signature, device_id, claimed_by_device_id
FROM one_time_keys WHERE device_id=$1 ORDER BY key`
	rows, err := r.db.Pool.Query(ctx, q, deviceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OneTimeKey
	for rows.Next() {
		var k model.OneTimeKey
		if err := rows.Scan(&k.Key, &k.Signature, &k.DeviceID, &k.ClaimedByDeviceID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
