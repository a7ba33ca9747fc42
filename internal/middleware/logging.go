package middleware

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Logger is the application-wide structured logger.
var Logger *slog.Logger

func init() {
	Logger = NewLogger(os.Stdout, os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
}

// requestFields are attached to every record logged with a request context.
type requestFields struct {
	requestID string
	traceID   string
	userID    uint
}

type requestFieldsKey struct{}

func fieldsFrom(ctx context.Context) *requestFields {
	f, _ := ctx.Value(requestFieldsKey{}).(*requestFields)
	return f
}

// WithUserID tags records logged under ctx with the signed-in account.
// Within a request it updates the fields ContextMiddleware installed, so
// records written later by the access log see it too.
func WithUserID(ctx context.Context, userID uint) context.Context {
	if f := fieldsFrom(ctx); f != nil {
		f.userID = userID
		return ctx
	}
	return context.WithValue(ctx, requestFieldsKey{}, &requestFields{userID: userID})
}

type requestHandler struct {
	slog.Handler
}

func (h requestHandler) Handle(ctx context.Context, r slog.Record) error {
	if f := fieldsFrom(ctx); f != nil {
		if f.requestID != "" {
			r.AddAttrs(slog.String("request_id", f.requestID))
		}
		if f.traceID != "" {
			r.AddAttrs(slog.String("trace_id", f.traceID))
		}
		if f.userID != 0 {
			r.AddAttrs(slog.Uint64("user_id", uint64(f.userID)))
		}
	}
	return h.Handler.Handle(ctx, r)
}

func (h requestHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestHandler{h.Handler.WithAttrs(attrs)}
}

func (h requestHandler) WithGroup(name string) slog.Handler {
	return requestHandler{h.Handler.WithGroup(name)}
}

// NewLogger writes JSON in production and logfmt-style text elsewhere.
func NewLogger(w io.Writer, env, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler = slog.NewTextHandler(w, opts)
	if env := strings.ToLower(env); env == "production" || env == "prod" {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(requestHandler{h})
}

// ContextMiddleware copies the request and trace IDs from Fiber locals into
// the user context so service code logs them with *Context calls.
func ContextMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		f := &requestFields{}
		f.requestID, _ = c.Locals("requestid").(string)
		f.traceID, _ = c.Locals("traceID").(string)
		f.userID, _ = c.Locals("userID").(uint)
		c.SetUserContext(context.WithValue(c.UserContext(), requestFieldsKey{}, f))
		return c.Next()
	}
}

// StructuredLogger writes one access record per request: errors and 5xx
// at error level, 4xx at warn, everything else at info.
func StructuredLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if fe, ok := err.(*fiber.Error); ok {
			status = fe.Code
		}
		attrs := []slog.Attr{
			slog.Int("status", status),
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("ip", c.IP()),
			slog.Duration("latency", time.Since(start)),
		}

		level, msg := slog.LevelInfo, "request"
		switch {
		case err != nil:
			level, msg = slog.LevelError, "request failed"
			attrs = append(attrs, slog.String("error", err.Error()))
		case status >= fiber.StatusInternalServerError:
			level = slog.LevelError
		case status >= fiber.StatusBadRequest:
			level = slog.LevelWarn
		}
		Logger.LogAttrs(c.UserContext(), level, msg, attrs...)
		return err
	}
}
