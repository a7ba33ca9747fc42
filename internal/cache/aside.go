package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"recipebox/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	DashboardStatsKey = "stats:dashboard"
	DashboardStatsTTL = time.Minute
)

// Aside returns the value cached under key, or calls load and caches its
// result for ttl. Load errors are never cached. Without Redis, or when a
// Redis call fails, every call loads.
func Aside[T any](ctx context.Context, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	if v, ok := lookup[T](ctx, key); ok {
		return v, nil
	}
	v, err := load(ctx)
	if err != nil {
		return v, err
	}
	if c := client; c != nil {
		if raw, err := json.Marshal(v); err == nil {
			if err := c.Set(ctx, key, raw, ttl).Err(); err != nil {
				middleware.Logger.DebugContext(ctx, "Cache write failed", slog.String("key", key), slog.String("error", err.Error()))
			}
		}
	}
	return v, nil
}

func lookup[T any](ctx context.Context, key string) (T, bool) {
	var v T
	c := client
	if c == nil {
		return v, false
	}
	raw, err := c.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			middleware.Logger.DebugContext(ctx, "Cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return v, false
	}
	if json.Unmarshal(raw, &v) != nil {
		return v, false
	}
	return v, true
}

// Invalidate drops keys so the next Aside call reloads them.
func Invalidate(ctx context.Context, keys ...string) {
	if c := client; c != nil && len(keys) > 0 {
		c.Del(ctx, keys...)
	}
}
