package server

import (
	"log/slog"

	"recipebox/internal/featureflags"
	"recipebox/internal/middleware"
	"recipebox/internal/session"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// WebsocketHandler streams moderation events to a logged-in browser.
// Administrators also receive queue changes. Authentication is handled by
// route middleware and the identity is read from connection locals.
func (s *Server) WebsocketHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		id, ok := conn.Locals(localIdentity).(*session.Identity)
		if !ok || id == nil {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(id.UserID, id.IsAdmin, conn)
		if err != nil {
			middleware.Logger.Warn("Failed to register notification socket",
				slog.Uint64("user_id", uint64(id.UserID)), slog.String("error", err.Error()))
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"`+err.Error()+`"}`))
			_ = conn.Close()
			return
		}

		client.Serve()
	})

	return func(c *fiber.Ctx) error {
		id := identity(c)
		if s.hub == nil || id == nil || !s.featureFlags.Enabled(featureflags.LiveNotifications, id.UserID) {
			return fiber.ErrNotFound
		}
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return upgrade(c)
	}
}
