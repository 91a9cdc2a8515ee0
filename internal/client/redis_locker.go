package client

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/logging"
)

// Locker grants short-lived exclusive access to a named resource.
type Locker interface {
	// Acquire returns ok=false when someone else holds the lock.
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	redis redis.Cmdable
	log   logrus.FieldLogger
}

func NewRedisLocker(redisClient redis.Cmdable, log logrus.FieldLogger) *RedisLocker {
	return &RedisLocker{redis: redisClient, log: logging.WithComponent(log, "locker")}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), bool, error) {
	key := fmt.Sprintf("lock:%s", name)
	token := uuid.New().String()

	ok, err := l.redis.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() { l.release(key, token) }
	return release, true, nil
}

// release runs detached so a cancelled request still frees the lock. A
// failure leaves the key to expire with its TTL.
func (l *RedisLocker) release(key, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseScript.Run(ctx, l.redis, []string{key}, token).Err(); err != nil {
		l.log.WithError(err).WithField("key", key).Warn("failed to release lock")
	}
}
