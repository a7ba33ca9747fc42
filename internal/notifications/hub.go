package notifications

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"recipebox/internal/middleware"
	"recipebox/internal/observability"

	"github.com/gofiber/websocket/v2"
)

const (
	maxConnsPerUser = 8
	maxTotalConns   = 5000
)

var (
	ErrServerFull = errors.New("server connection limit reached")
	ErrUserFull   = errors.New("user connection limit reached")
)

type clientSet map[*Client]struct{}

func (s clientSet) send(data []byte) {
	for c := range s {
		c.TrySend(data)
	}
}

// Hub tracks the open sockets of every user. Admin sockets are also kept in
// a second set so moderation events skip the per-user lookup.
type Hub struct {
	mu     sync.RWMutex
	users  map[uint]clientSet
	admins clientSet
	total  int
	closed bool
}

func NewHub() *Hub {
	return &Hub{users: map[uint]clientSet{}, admins: clientSet{}}
}

// Register adds a socket for userID. It fails once the user or the whole
// server is at its connection limit, and after Shutdown.
func (h *Hub) Register(userID uint, isAdmin bool, conn *websocket.Conn) (*Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.total >= maxTotalConns {
		return nil, ErrServerFull
	}
	if len(h.users[userID]) >= maxConnsPerUser {
		return nil, ErrUserFull
	}

	c := &Client{UserID: userID, Send: make(chan []byte, sendBuffer), conn: conn, hub: h}
	if h.users[userID] == nil {
		h.users[userID] = clientSet{}
	}
	h.users[userID][c] = struct{}{}
	if isAdmin {
		h.admins[c] = struct{}{}
	}
	h.total++
	observability.WebSocketConnections.Inc()
	return c, nil
}

// Unregister forgets c. Calling it again is a no-op.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.users[c.UserID]
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.users, c.UserID)
	}
	delete(h.admins, c)
	h.total--
	observability.WebSocketConnections.Dec()
}

// Broadcast queues message on every socket of userID.
func (h *Hub) Broadcast(userID uint, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.users[userID].send([]byte(message))
}

// BroadcastAdmins queues message on every administrator socket.
func (h *Hub) BroadcastAdmins(message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.admins.send([]byte(message))
}

func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total
}

// StartWiring subscribes n to Redis and routes each published event to the
// matching sockets until ctx is done.
func (h *Hub) StartWiring(ctx context.Context, n *Notifier) error {
	return n.StartPatternSubscriber(ctx, h.route)
}

func (h *Hub) route(channel, payload string) {
	if channel == adminChannel {
		h.BroadcastAdmins(payload)
		return
	}
	id, err := channelUser(channel)
	if err != nil {
		middleware.Logger.Warn("Dropping notification", slog.String("channel", channel), slog.String("error", err.Error()))
		return
	}
	h.Broadcast(id, payload)
}

func channelUser(channel string) (uint, error) {
	raw, ok := strings.CutPrefix(channel, userChannelPrefix)
	if !ok {
		return 0, errors.New("not a user channel")
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}

// Shutdown sends a going-away close frame to every socket and refuses new
// registrations.
func (h *Hub) Shutdown(_ context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	bye := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
	for _, set := range h.users {
		for c := range set {
			if c.conn == nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.CloseMessage, bye); err != nil {
				middleware.Logger.Debug("Close frame not sent",
					slog.Uint64("user_id", uint64(c.UserID)), slog.String("error", err.Error()))
			}
			_ = c.conn.Close()
		}
	}
	observability.WebSocketConnections.Sub(float64(h.total))
	h.users, h.admins, h.total = map[uint]clientSet{}, clientSet{}, 0
	return nil
}
