package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tendant/content-extensions/internal/logger"
)

const (
	DefaultTTL       = 5 * time.Minute
	DefaultRetry     = 100 * time.Millisecond
	defaultKeyPrefix = "content-extensions:course-lock:"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = goredis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisClient is the subset of go-redis used by Redis.
type RedisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
	goredis.Scripter
}

// Redis is a Locker shared by every process using the same Redis.
type Redis struct {
	client    RedisClient
	ttl       time.Duration
	retry     time.Duration
	keyPrefix string
	log       *logger.Logger
}

// RedisOption configures a Redis locker.
type RedisOption func(*Redis)

// WithRetryInterval sets how long Lock waits between attempts.
func WithRetryInterval(d time.Duration) RedisOption {
	return func(r *Redis) {
		if d > 0 {
			r.retry = d
		}
	}
}

// WithKeyPrefix namespaces the lock keys.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.keyPrefix = prefix
	}
}

// WithLogger sets the logger used to report failed releases.
func WithLogger(l *logger.Logger) RedisOption {
	return func(r *Redis) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRedis creates a Redis locker. Locks expire after ttl so a crashed holder cannot block
// a course forever.
func NewRedis(client RedisClient, ttl time.Duration, opts ...RedisOption) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	r := &Redis{
		client:    client,
		ttl:       ttl,
		retry:     DefaultRetry,
		keyPrefix: defaultKeyPrefix,
		log:       logger.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Lock polls SET NX until the course key is acquired or ctx is done.
func (r *Redis) Lock(ctx context.Context, courseID string) (func(), error) {
	key := r.keyPrefix + courseID
	token := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire course lock %s: %w", courseID, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(r.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	released := false
	return func() {
		if released {
			return
		}
		released = true
		// The caller's ctx may already be cancelled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(releaseCtx, r.client, []string{key}, token).Err(); err != nil {
			r.log.Error("failed to release course lock", "course", courseID, "error", err)
		}
	}, nil
}
