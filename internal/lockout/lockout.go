// Package lockout counts failed logins per account and blocks further attempts
// once a threshold is reached.
package lockout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/calmspace/apiserver/internal/logging"
	"github.com/redis/go-redis/v9"
)

// Limiter tracks failed login attempts by key (the normalized email).
type Limiter interface {
	// Locked reports whether key has reached the attempt threshold.
	Locked(ctx context.Context, key string) bool
	// Fail records one failed attempt for key.
	Fail(ctx context.Context, key string)
	// Reset forgets all failed attempts for key.
	Reset(ctx context.Context, key string)
}

// Noop never locks anyone out.
type Noop struct{}

func (Noop) Locked(context.Context, string) bool { return false }
func (Noop) Fail(context.Context, string)        {}
func (Noop) Reset(context.Context, string)       {}

// RedisLimiter stores counters in Redis under login:attempts:<key>. Redis
// errors are logged and treated as "not locked".
type RedisLimiter struct {
	rdb         redis.Cmdable
	maxAttempts int
	window      time.Duration
}

func NewRedisLimiter(rdb redis.Cmdable, maxAttempts int, window time.Duration) *RedisLimiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 30 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, maxAttempts: maxAttempts, window: window}
}

func attemptsKey(key string) string {
	return "login:attempts:" + strings.TrimSpace(key)
}

func (l *RedisLimiter) Locked(ctx context.Context, key string) bool {
	attempts, err := l.rdb.Get(ctx, attemptsKey(key)).Int()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logging.Ctx(ctx).Warn().Err(err).Msg("login attempt lookup failed")
		}
		return false
	}
	return attempts >= l.maxAttempts
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) {
	k := attemptsKey(key)
	_, err := l.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, k)
		pipe.Expire(ctx, k, l.window)
		return nil
	})
	if err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("recording failed login failed")
	}
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) {
	if err := l.rdb.Del(ctx, attemptsKey(key)).Err(); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("clearing login attempts failed")
	}
}

// NewRedisClient connects to addr and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
