// Package cache holds the shared Redis client and cache-aside helpers.
// Every helper is a no-op without Redis.
package cache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"recipebox/internal/middleware"
	"recipebox/internal/observability"

	"github.com/redis/go-redis/v9"
)

const pingTimeout = 5 * time.Second

var client *redis.Client

// errorCounter counts failed Redis commands by name. Misses are not
// failures.
type errorCounter struct{}

func (errorCounter) count(name string, err error) {
	if err != nil && !errors.Is(err, redis.Nil) {
		observability.RedisErrors.WithLabelValues(name).Inc()
	}
}

func (errorCounter) DialHook(next redis.DialHook) redis.DialHook { return next }

func (e errorCounter) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		e.count(cmd.Name(), err)
		return err
	}
}

func (e errorCounter) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		err := next(ctx, cmds)
		e.count("pipeline", err)
		return err
	}
}

// Connect installs the shared client for addr, which is either host:port
// or a redis:// URL. It returns nil, and the application runs without
// Redis, when addr is empty, malformed or unreachable.
func Connect(ctx context.Context, addr string) *redis.Client {
	SetClient(nil)
	addr = strings.TrimSpace(addr)
	if addr == "" {
		middleware.Logger.Info("REDIS_URL not set; running without Redis")
		return nil
	}

	opts := &redis.Options{Addr: addr}
	if strings.Contains(addr, "://") {
		parsed, err := redis.ParseURL(addr)
		if err != nil {
			middleware.Logger.Warn("Invalid REDIS_URL; running without Redis", slog.String("error", err.Error()))
			return nil
		}
		opts = parsed
	}

	c := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := c.Ping(pingCtx).Err(); err != nil {
		middleware.Logger.Warn("Redis unreachable; running without Redis", slog.String("error", err.Error()))
		_ = c.Close()
		return nil
	}

	SetClient(c)
	middleware.Logger.Info("Redis connected", slog.String("addr", opts.Addr))
	return c
}

// Client returns the shared client, or nil.
func Client() *redis.Client { return client }

// SetClient replaces the shared client. Tests use it with miniredis.
func SetClient(c *redis.Client) {
	if c != nil {
		c.AddHook(errorCounter{})
	}
	client = c
}
