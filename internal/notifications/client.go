package notifications

import (
	"log/slog"
	"sync"
	"time"

	"recipebox/internal/middleware"
	"recipebox/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10

	// Browsers only send pongs and close frames on this socket.
	maxInboundFrame = 1024
	sendBuffer      = 32
)

// Client is one browser tab subscribed to a member's events.
type Client struct {
	UserID uint
	// Send queues serialized events for the socket. Close closes it.
	Send chan []byte

	conn   *websocket.Conn
	hub    *Hub
	closed sync.Once
}

// Serve runs the socket until the browser leaves or the hub shuts down,
// then unregisters the client. Outbound events and keepalive pings are
// written from a second goroutine.
func (c *Client) Serve() {
	go c.writeLoop()
	defer func() {
		c.hub.Unregister(c)
		c.Close()
	}()

	c.conn.SetReadLimit(maxInboundFrame)
	extend := func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) }
	_ = extend("")
	c.conn.SetPongHandler(extend)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				middleware.Logger.Debug("Notification socket dropped",
					slog.Uint64("user_id", uint64(c.UserID)), slog.String("error", err.Error()))
			}
			return
		}
	}
}

func (c *Client) writeLoop() {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
		_ = c.conn.Close()
	}()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}
	for {
		select {
		case msg, open := <-c.Send:
			if !open {
				_ = write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close stops the write loop. It is safe to call more than once.
func (c *Client) Close() {
	c.closed.Do(func() { close(c.Send) })
}

// TrySend queues msg without blocking. A slow tab loses events rather than
// holding up the publisher.
func (c *Client) TrySend(msg []byte) {
	defer func() {
		// Send was closed by a concurrent Close.
		if recover() != nil {
			observability.WebSocketBackpressureDrops.WithLabelValues("closed").Inc()
		}
	}()

	select {
	case c.Send <- msg:
	default:
		observability.WebSocketBackpressureDrops.WithLabelValues("full").Inc()
		middleware.Logger.Warn("Notification dropped, socket buffer full", slog.Uint64("user_id", uint64(c.UserID)))
	}
}
