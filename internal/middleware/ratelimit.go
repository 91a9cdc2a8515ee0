package middleware

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/episodeline/pipeline/internal/logging"
	"github.com/episodeline/pipeline/pkg/response"
)

type RateLimiter struct {
	redis redis.Cmdable
	log   logrus.FieldLogger
}

func NewRateLimiter(redisClient redis.Cmdable, log logrus.FieldLogger) *RateLimiter {
	return &RateLimiter{
		redis: redisClient,
		log:   logging.WithComponent(log, "ratelimit"),
	}
}

// Limit counts requests per client IP in fixed windows. When Redis is
// unavailable the request is let through.
func (rl *RateLimiter) Limit(keyPrefix string, maxRequests int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if rl.redis == nil || maxRequests <= 0 {
			return c.Next()
		}

		key := fmt.Sprintf("ratelimit:%s:%s", keyPrefix, c.IP())
		ctx := c.Context()

		count, err := rl.redis.Incr(ctx, key).Result()
		if err != nil {
			rl.log.WithError(err).Warn("rate limit check failed, allowing request")
			return c.Next()
		}

		if count == 1 {
			rl.redis.Expire(ctx, key, window)
		}

		if count > int64(maxRequests) {
			ttl, _ := rl.redis.TTL(ctx, key).Result()
			c.Set("Retry-After", fmt.Sprintf("%d", int(ttl.Seconds())))
			return response.RateLimited(c)
		}

		c.Set("X-RateLimit-Limit", fmt.Sprintf("%d", maxRequests))
		c.Set("X-RateLimit-Remaining", fmt.Sprintf("%d", maxRequests-int(count)))

		return c.Next()
	}
}

// JobsLimit limits job creation per minute
func (rl *RateLimiter) JobsLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("jobs", maxPerMin, time.Minute)
}

// GenerateLimit limits segmentation and cue generation per minute
func (rl *RateLimiter) GenerateLimit(maxPerMin int) fiber.Handler {
	return rl.Limit("generate", maxPerMin, time.Minute)
}

// UploadLimit limits footage uploads per hour
func (rl *RateLimiter) UploadLimit(maxPerHour int) fiber.Handler {
	return rl.Limit("upload", maxPerHour, time.Hour)
}
