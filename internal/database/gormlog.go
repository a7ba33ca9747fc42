package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recipebox/internal/middleware"
	"recipebox/internal/observability"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const slowQuery = 200 * time.Millisecond

// queryLogger routes GORM output to the application logger and feeds the
// query metrics.
type queryLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

func newQueryLogger() *queryLogger {
	return &queryLogger{level: logger.Warn, slow: slowQuery}
}

func (l *queryLogger) out() *slog.Logger {
	if l.log != nil {
		return l.log
	}
	return middleware.Logger
}

func (l *queryLogger) LogMode(level logger.LogLevel) logger.Interface {
	c := *l
	c.level = level
	return &c
}

func (l *queryLogger) printf(ctx context.Context, at logger.LogLevel, lvl slog.Level, msg string, data []interface{}) {
	if l.level >= at {
		l.out().Log(ctx, lvl, fmt.Sprintf(msg, data...))
	}
}

func (l *queryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, logger.Info, slog.LevelInfo, msg, data)
}

func (l *queryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, logger.Warn, slog.LevelWarn, msg, data)
}

func (l *queryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.printf(ctx, logger.Error, slog.LevelError, msg, data)
}

// Trace records every statement. Failures other than "record not found" are
// logged at Error, statements slower than the threshold at Warn, the rest
// only at Info.
func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	observability.DBQueryDuration.Observe(elapsed.Seconds())
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	if failed {
		observability.DBQueryErrors.Inc()
	}

	var lvl slog.Level
	var msg string
	switch {
	case failed && l.level >= logger.Error:
		lvl, msg = slog.LevelError, "query failed"
	case l.slow > 0 && elapsed > l.slow && l.level >= logger.Warn:
		lvl, msg = slog.LevelWarn, "slow query"
	case l.level >= logger.Info:
		lvl, msg = slog.LevelInfo, "query"
	default:
		return
	}

	sql, rows := fc()
	attrs := []slog.Attr{
		slog.String("sql", sql),
		slog.Int64("rows", rows),
		slog.Duration("elapsed", elapsed),
	}
	if failed {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	l.out().LogAttrs(ctx, lvl, msg, attrs...)
}
