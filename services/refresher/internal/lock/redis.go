package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "refresher:lock:"

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

type redisLocker struct {
	client *redis.Client
}

func newRedisLocker(dsn string) *redisLocker {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		opts = &redis.Options{Addr: dsn}
	}
	return &redisLocker{client: redis.NewClient(opts)}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	token := newToken()
	ok, err := l.client.SetNX(ctx, redisKeyPrefix+key, token, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: l.client, key: redisKeyPrefix + key, token: token}, true, nil
}

type redisLease struct {
	client *redis.Client
	key    string
	token  string
}

func (r *redisLease) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, r.client, []string{r.key}, r.token).Err()
}
