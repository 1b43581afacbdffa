package lock

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// postgresLocker uses the refresh_locks table (see store.Schema).
type postgresLocker struct {
	pool *pgxpool.Pool
}

func newPostgresLocker(pool *pgxpool.Pool) *postgresLocker {
	return &postgresLocker{pool: pool}
}

// Acquire inserts the lock row, or takes over a row whose lease has expired.
func (l *postgresLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	const q = `INSERT INTO refresh_locks (lock_key, token, expires_at)
	           VALUES ($1, $2, now() + $3 * interval '1 millisecond')
	           ON CONFLICT (lock_key) DO UPDATE SET
	             token = EXCLUDED.token,
	             expires_at = EXCLUDED.expires_at
	           WHERE refresh_locks.expires_at < now()`

	token := newToken()
	tag, err := l.pool.Exec(ctx, q, key, token, ttl.Milliseconds())
	if err != nil {
		return nil, false, err
	}
	if tag.RowsAffected() == 0 {
		return nil, false, nil
	}
	return &postgresLease{pool: l.pool, key: key, token: token}, true, nil
}

type postgresLease struct {
	pool  *pgxpool.Pool
	key   string
	token string
}

func (p *postgresLease) Release(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM refresh_locks WHERE lock_key=$1 AND token=$2`, p.key, p.token)
	return err
}
