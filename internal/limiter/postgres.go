package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG keeps failure counters in secret_attempts so every server instance shares the lockouts.
type PG struct {
	db       pgxQuerier
	window   time.Duration
	maxFails int
	blockFor time.Duration
	now      func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return NewPGWithQuerier(pool, window, maxFails, blockFor)
}

// NewPGWithQuerier is NewPG over any querier (a pool, a tx or a test double).
func NewPGWithQuerier(q pgxQuerier, window time.Duration, maxFails int, blockFor time.Duration) *PG {
	return &PG{db: q, window: window, maxFails: maxFails, blockFor: blockFor, now: time.Now}
}

// Allow reports whether (scope, client) is outside a lockout, with the time left otherwise.
func (l *PG) Allow(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	const q = `SELECT blocked_until FROM secret_attempts WHERE scope=$1 AND ip_hash=$2`
	var blockedUntil time.Time
	err := l.db.QueryRow(ctx, q, scope, ipHash).Scan(&blockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if d := blockedUntil.Sub(l.now()); d > 0 {
		return false, d, nil
	}
	return true, 0, nil
}

// Success forgets the counters of a client that is not locked out.
func (l *PG) Success(ctx context.Context, scope string, ipHash []byte) error {
	const q = `DELETE FROM secret_attempts WHERE scope=$1 AND ip_hash=$2 AND blocked_until < $3`
	_, err := l.db.Exec(ctx, q, scope, ipHash, l.now())
	return err
}

// Failure counts a failed lookup; the failure reaching maxFails starts a lockout.
// Counts older than the window start over.
func (l *PG) Failure(ctx context.Context, scope string, ipHash []byte) (bool, time.Duration, error) {
	const q = `
INSERT INTO secret_attempts (scope, ip_hash, fail_count, blocked_until, updated_at)
VALUES ($1, $2, 1, 'epoch', $3::timestamptz)
ON CONFLICT (scope, ip_hash) DO UPDATE
SET
  fail_count = CASE WHEN $3::timestamptz - secret_attempts.updated_at > $4::interval THEN 1 ELSE secret_attempts.fail_count + 1 END,
  updated_at = $3
RETURNING fail_count`
	now := l.now()
	var fails int
	if err := l.db.QueryRow(ctx, q, scope, ipHash, now, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}

	const block = `UPDATE secret_attempts SET blocked_until=$3, fail_count=0 WHERE scope=$1 AND ip_hash=$2`
	if _, err := l.db.Exec(ctx, block, scope, ipHash, now.Add(l.blockFor)); err != nil {
		return false, 0, err
	}
	return true, l.blockFor, nil
}

// Purge deletes counters that are neither blocking nor inside the window.
func (l *PG) Purge(ctx context.Context) (int64, error) {
	const q = `DELETE FROM secret_attempts WHERE blocked_until < $1 AND updated_at < $2`
	now := l.now()
	tag, err := l.db.Exec(ctx, q, now, now.Add(-l.window))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
