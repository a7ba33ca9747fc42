package middleware

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var errNoRedis = errors.New("rate limit store unavailable")

// checkTimeout bounds one window update, so an unreachable Redis delays a
// request by at most this much before it is let through.
const checkTimeout = 250 * time.Millisecond

// RateLimiter counts requests per route in fixed Redis windows. Without
// Redis, or when Redis fails, every request is let through.
type RateLimiter struct {
	rdb *redis.Client
	// disabled in the test and stress environments.
	disabled bool
	// OnLimit renders the rejection. It defaults to a JSON 429.
	OnLimit fiber.Handler
}

func NewRateLimiter(rdb *redis.Client, env string) *RateLimiter {
	return &RateLimiter{rdb: rdb, disabled: env == "test" || env == "stress"}
}

// hit counts one request for key and returns the window's count and the
// time until it resets.
func (l *RateLimiter) hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	if l.rdb == nil {
		return 0, 0, errNoRedis
	}
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := l.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, key)
		ttl = p.PTTL(ctx, key)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	// First hit of a window, or a key that lost its expiry.
	left := ttl.Val()
	if left < 0 {
		left = window
		if err := l.rdb.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
	}
	return incr.Val(), left, nil
}

// Limit allows limit requests per window for resource. Signed-in
// requests are counted per account, anonymous ones per client IP.
func (l *RateLimiter) Limit(resource string, limit int, window time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if l == nil || l.disabled {
			return c.Next()
		}

		key := "rl:" + resource + ":ip:" + c.IP()
		if uid, ok := c.Locals("userID").(uint); ok && uid != 0 {
			key = "rl:" + resource + ":user:" + strconv.FormatUint(uint64(uid), 10)
		}

		count, left, err := l.hit(c.UserContext(), key, window)
		if err != nil {
			if !errors.Is(err, errNoRedis) {
				Logger.WarnContext(c.UserContext(), "Rate limit check failed; allowing request",
					slog.String("resource", resource), slog.String("error", err.Error()))
			}
			return c.Next()
		}
		if count <= int64(limit) {
			return c.Next()
		}

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int((left+time.Second-1)/time.Second)))
		if l.OnLimit != nil {
			return l.OnLimit(c)
		}
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
	}
}
