package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/AnshRaj112/bugtracker-backend/pkg/clientip"
	"github.com/AnshRaj112/bugtracker-backend/pkg/respond"
)

const (
	// RateLimitWindow is the fixed window the shared counter covers.
	RateLimitWindow = 120 * time.Second
	// RateLimitMaxRequests is the number of requests allowed per window per IP.
	RateLimitMaxRequests = 100
	// RateLimitKeyPrefix is the Redis key prefix for window counters.
	RateLimitKeyPrefix = "ratelimit:"
)

// RedisRateLimiter is a fixed-window counter shared by every instance that
// talks to the same Redis.
type RedisRateLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.Client, max int, window time.Duration) *RedisRateLimiter {
	if max <= 0 {
		max = RateLimitMaxRequests
	}
	if window <= 0 {
		window = RateLimitWindow
	}
	return &RedisRateLimiter{client: client, max: max, window: window}
}

// hit counts one request for ip and returns the new count and the window's remaining TTL.
func (l *RedisRateLimiter) hit(ctx context.Context, ip string) (int64, time.Duration, error) {
	key := RateLimitKeyPrefix + ip
	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, l.window)
	ttl := pipe.TTL(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, 0, err
	}
	return incr.Val(), ttl.Val(), nil
}

// Middleware fails open when Redis is unreachable.
func (l *RedisRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count, ttl, err := l.hit(r.Context(), clientip.RealClientIP(r))
		if err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("rate limiter unavailable")
			next.ServeHTTP(w, r)
			return
		}
		if ttl < 0 {
			ttl = l.window
		}

		remaining := int64(l.max) - count
		if remaining < 0 {
			remaining = 0
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(ttl).Unix(), 10))

		if count > int64(l.max) {
			w.Header().Set("Retry-After", strconv.Itoa(int(ttl.Seconds())))
			respond.Fail(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next.ServeHTTP(w, r)
	})
}
