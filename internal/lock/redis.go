package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// releaseScript deletes the lock only while it still carries our token.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// RedisConfig tunes a Redis locker.
type RedisConfig struct {
	Prefix string
	// TTL bounds how long a crashed holder blocks others.
	TTL time.Duration
	// RetryInterval is the wait between acquisition attempts.
	RetryInterval time.Duration
}

// Redis is a Locker shared by every process that talks to the same Redis.
type Redis struct {
	rdb      goredis.Cmdable
	cfg      RedisConfig
	newToken func() string
}

// NewRedis creates a Redis locker.
func NewRedis(rdb goredis.Cmdable, cfg RedisConfig) *Redis {
	if cfg.Prefix == "" {
		cfg.Prefix = "brand:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 2 * time.Minute
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 100 * time.Millisecond
	}
	return &Redis{rdb: rdb, cfg: cfg, newToken: uuid.NewString}
}

// Lock implements Locker.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.cfg.Prefix + key
	token := r.newToken()

	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.cfg.TTL).Result()
		if err != nil {
			return nil, eris.Wrapf(err, "lock: acquire %s", key)
		}
		if ok {
			break
		}
		timer := time.NewTimer(r.cfg.RetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, eris.Wrapf(ErrNotAcquired, "lock %s: %v", key, ctx.Err())
		case <-timer.C:
		}
	}

	return func() {
		// Release must run even when the caller's ctx is already cancelled.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.rdb.Eval(rctx, releaseScript, []string{k}, token).Err(); err != nil {
			zap.L().Warn("lock: release failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}
