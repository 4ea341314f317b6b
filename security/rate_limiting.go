package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter throttles the two abuse-prone surfaces: anonymous request
// submission and scanner validation. Counters live in redis with a one
// minute window per client.
type RateLimiter struct {
	redis *redis.Client
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{redis: redisClient}
}

// PublicLimit guards unauthenticated endpoints, keyed by client IP.
func (r *RateLimiter) PublicLimit(perMinute int) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if r.isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return apis.NewForbiddenError("Access denied", nil)
		}

		key := fmt.Sprintf("ratelimit:public:%s", e.RealIP())
		if err := r.allow(e.Request.Context(), key, perMinute); err != nil {
			return err
		}
		return e.Next()
	}
}

// ScanLimit guards the validation endpoint, keyed by the authenticated
// scanner so one device cannot starve the others behind a shared NAT.
func (r *RateLimiter) ScanLimit(perMinute int) func(*core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		identity := e.RealIP()
		if e.Auth != nil {
			identity = fmt.Sprintf("user:%s", e.Auth.Id)
		}

		key := fmt.Sprintf("ratelimit:scan:%s", identity)
		if err := r.allow(e.Request.Context(), key, perMinute); err != nil {
			return err
		}
		return e.Next()
	}
}

func (r *RateLimiter) allow(ctx context.Context, key string, perMinute int) error {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		// Fail open: losing redis must not take the API down with it.
		return nil
	}
	if count == 1 {
		r.redis.Expire(ctx, key, time.Minute)
	}
	if count > int64(perMinute) {
		return apis.NewTooManyRequestsError("Too many requests. Please try again later.", nil)
	}
	return nil
}

func (r *RateLimiter) isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
