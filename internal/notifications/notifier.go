// Package notifications provides real-time notification delivery and management.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"time"

	"recipebox/internal/middleware"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "notifications:user:"
	adminChannel      = "notifications:admins"
	inboxKeyPrefix    = "inbox:user:"

	defaultInboxSize = 50
	defaultInboxTTL  = 30 * 24 * time.Hour
)

// Publisher is the subset of Notifier services depend on.
type Publisher interface {
	PublishUser(ctx context.Context, userID uint, event Event) error
	PublishAdmins(ctx context.Context, event Event) error
}

// Notifier provides helpers to publish notifications into Redis channels
type Notifier struct {
	rdb       *redis.Client
	inboxSize int64
	inboxTTL  time.Duration
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
// A nil client turns every method into a no-op.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb, inboxSize: defaultInboxSize, inboxTTL: defaultInboxTTL}
}

// PublishUser records event in the user's inbox and publishes it on the
// user's channel.
func (n *Notifier) PublishUser(ctx context.Context, userID uint, event Event) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := event.encode()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	key := InboxKey(userID)
	_, err = n.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, payload)
		pipe.LTrim(ctx, key, 0, n.inboxSize-1)
		pipe.Expire(ctx, key, n.inboxTTL)
		pipe.Publish(ctx, UserChannel(userID), payload)
		return nil
	})
	return err
}

// PublishAdmins sends event to every connected administrator.
func (n *Notifier) PublishAdmins(ctx context.Context, event Event) error {
	if n.rdb == nil {
		return nil
	}
	payload, err := event.encode()
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return n.rdb.Publish(ctx, adminChannel, payload).Err()
}

// Inbox returns the newest limit events for a user.
func (n *Notifier) Inbox(ctx context.Context, userID uint, limit int) ([]Event, error) {
	if n.rdb == nil {
		return nil, nil
	}
	if limit <= 0 || int64(limit) > n.inboxSize {
		limit = int(n.inboxSize)
	}

	raw, err := n.rdb.LRange(ctx, InboxKey(userID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var e Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			continue
		}
		events = append(events, e)
	}
	return events, nil
}

// StartPatternSubscriber subscribes to user and admin channels and calls
// onMessage for each incoming message. onMessage receives channel and payload.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", adminChannel)
	// Wait for the subscription to be confirmed so early publishes are not lost.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							middleware.Logger.Error("panic in notification subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(userID uint) string {
	return userChannelPrefix + strconv.FormatUint(uint64(userID), 10)
}

// AdminChannel is the channel every administrator socket listens on.
func AdminChannel() string {
	return adminChannel
}

// InboxKey derives the Redis list holding a user's recent events.
func InboxKey(userID uint) string {
	return inboxKeyPrefix + strconv.FormatUint(uint64(userID), 10)
}
