package httpx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window counter shared by every replica. Each key
// gets INCR on every request and an expiry of one window on the first.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	cfg    RateLimitConfig
}

// NewRedisLimiter returns a limiter storing counters under prefix+key.
func NewRedisLimiter(client redis.UniversalClient, prefix string, cfg RateLimitConfig) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: prefix, cfg: cfg}
}

// RedisLimiterFactory namespaces counters as "rl:<name>:<key>".
func RedisLimiterFactory(client redis.UniversalClient) LimiterFactory {
	return func(name string, cfg RateLimitConfig) Limiter {
		return NewRedisLimiter(client, "rl:"+name+":", cfg)
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := l.prefix + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("ratelimit expire: %w", err)
		}
	}

	if count <= int64(l.cfg.RequestsPerWindow) {
		return Decision{Allowed: true}, nil
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit pttl: %w", err)
	}
	if ttl < 0 {
		// Key lost its expiry; re-arm it so the window cannot stick forever.
		_ = l.client.Expire(ctx, k, l.cfg.Window).Err()
		ttl = l.cfg.Window
	}
	return Decision{Allowed: false, RetryAfter: ttl}, nil
}
