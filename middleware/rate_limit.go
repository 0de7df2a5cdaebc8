package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Counter counts hits for a key inside a fixed window.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

type RedisCounter struct {
	client *redis.Client
}

func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr bumps the key and starts its expiry on the first hit, in one round trip.
func (r *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func rateKey(c *fiber.Ctx) string {
	actor := c.IP()
	if id, ok := CurrentIdentity(c); ok {
		actor = id.UserID.String()
	}
	return fmt.Sprintf("rl:%s:%s:%s", actor, c.Method(), c.Path())
}

func tooMany(c *fiber.Ctx) error {
	return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
		"status":  "error",
		"code":    fiber.StatusTooManyRequests,
		"message": "rate limit exceeded",
	})
}

// RateLimit allows limit calls per actor and route per window. With a nil counter it falls
// back to fiber's in-process limiter. Counter errors let the request through.
func RateLimit(counter Counter, limit int, window time.Duration, log logrus.FieldLogger) fiber.Handler {
	if limit <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	if counter == nil {
		return limiter.New(limiter.Config{
			Max:          limit,
			Expiration:   window,
			KeyGenerator: rateKey,
			LimitReached: tooMany,
		})
	}
	return func(c *fiber.Ctx) error {
		n, err := counter.Incr(c.UserContext(), rateKey(c), window)
		if err != nil {
			log.WithError(err).Warn("rate limiter unavailable, allowing request")
			return c.Next()
		}
		if n > int64(limit) {
			c.Set(fiber.HeaderRetryAfter, fmt.Sprintf("%d", int(window.Seconds())))
			return tooMany(c)
		}
		return c.Next()
	}
}
