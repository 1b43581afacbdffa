// Package lock provides the advisory lock that keeps two refreshes of the same
// category and window from running at once.
//
// Primary backend: Redis SET NX PX (env REDIS_URL).
// Fallback: Postgres refresh_locks table (env DATABASE_URL).
// If neither is available, an in-memory locker is used (development only).
package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Lease is a held lock. Release only removes the lock if it is still owned by
// this lease; an expired lease taken over by someone else is left alone.
type Lease interface {
	Release(ctx context.Context) error
}

type Locker interface {
	// Acquire returns ok=false, without error, when key is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error)
}

// NewLocker creates the best available locker: Redis > Postgres > in-memory.
// When isProd is true the in-memory fallback is refused.
func NewLocker(redisURL string, pool *pgxpool.Pool, isProd bool) (Locker, error) {
	if redisURL != "" {
		return newRedisLocker(redisURL), nil
	}
	if pool != nil {
		return newPostgresLocker(pool), nil
	}
	if isProd {
		return nil, errors.New("production requires REDIS_URL or DATABASE_URL for the refresh lock; in-memory locker is not allowed")
	}
	return newMemoryLocker(), nil
}

func newToken() string { return uuid.NewString() }
