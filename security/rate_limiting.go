package security

import (
	"fmt"
	"net/http"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

type RateLimiter struct {
	redis        *redis.Client
	maxPerMinute int64
}

func NewRateLimiter(redisClient *redis.Client) *RateLimiter {
	return &RateLimiter{
		redis:        redisClient,
		maxPerMinute: 30,
	}
}

// PaymentRateLimit caps payment-endpoint requests per client IP. Callbacks
// from the gateway share the limit; legitimate traffic is one or two
// requests per payment attempt.
func (r *RateLimiter) PaymentRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		ip := e.RealIP()
		key := fmt.Sprintf("ratelimit:payment:%s", ip)

		count, err := r.redis.Incr(e.Request.Context(), key).Result()
		if err == nil {
			if count == 1 {
				r.redis.Expire(e.Request.Context(), key, time.Minute)
			}
			if count > r.maxPerMinute {
				return e.JSON(http.StatusTooManyRequests, map[string]string{
					"error": "Too many requests",
				})
			}
		}

		return e.Next()
	}
}
