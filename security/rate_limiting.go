package security

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per caller in fixed one minute windows kept in Redis.
type RateLimiter struct {
	redis  *redis.Client
	limit  int64
	window time.Duration
	logger *slog.Logger
}

func NewRateLimiter(redisClient *redis.Client, perMinute int, logger *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RateLimiter{redis: redisClient, limit: int64(perMinute), window: time.Minute, logger: logger}
}

func identifier(e *core.RequestEvent) string {
	if e.Auth != nil {
		return "user:" + e.Auth.Id
	}
	return "ip:" + e.RealIP()
}

// Allow counts one request for id and reports whether it is within the limit.
func (r *RateLimiter) Allow(ctx context.Context, id string) (bool, error) {
	key := fmt.Sprintf("ratelimit:%s", id)

	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("rate limit counter: %w", err)
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return false, fmt.Errorf("rate limit window: %w", err)
		}
	}
	return count <= r.limit, nil
}

// Middleware rejects crawlers and callers over the limit. Requests pass when Redis is
// unavailable.
func (r *RateLimiter) Middleware(e *core.RequestEvent) error {
	if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
		return apis.NewForbiddenError("Access denied", nil)
	}
	if r.redis == nil {
		return e.Next()
	}

	id := identifier(e)
	ok, err := r.Allow(e.Request.Context(), id)
	if err != nil {
		r.logger.Warn("rate limiter unavailable", "caller", id, "error", err)
		return e.Next()
	}
	if !ok {
		return apis.NewTooManyRequestsError("Too many requests", nil)
	}
	return e.Next()
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	ua = strings.ToLower(ua)
	for _, pattern := range suspicious {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
