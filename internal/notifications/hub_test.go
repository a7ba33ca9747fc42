package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"recipebox/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func TestHub_RegisterLimitsAndUnregister(t *testing.T) {
	hub := NewHub()

	clients := make([]*Client, 0, maxConnsPerUser)
	for range maxConnsPerUser {
		c, err := hub.Register(10, false, nil)
		require.NoError(t, err)
		clients = append(clients, c)
	}
	_, err := hub.Register(10, false, nil)
	assert.ErrorIs(t, err, ErrUserFull)
	assert.Equal(t, maxConnsPerUser, hub.ConnectionCount())

	hub.Unregister(clients[0])
	hub.Unregister(clients[0])
	assert.Equal(t, maxConnsPerUser-1, hub.ConnectionCount())

	_, err = hub.Register(10, false, nil)
	assert.NoError(t, err)
}

func TestHub_RoutesUserAndAdminMessages(t *testing.T) {
	hub := NewHub()
	member, err := hub.Register(1, false, nil)
	require.NoError(t, err)
	admin, err := hub.Register(2, true, nil)
	require.NoError(t, err)

	hub.route(UserChannel(1), "for-member")
	hub.route(AdminChannel(), "for-admins")
	hub.route("notifications:user:abc", "ignored")
	hub.route("other:channel", "ignored")

	assert.Equal(t, "for-member", string(<-member.Send))
	assert.Equal(t, "for-admins", string(<-admin.Send))
	assert.Empty(t, member.Send)
	assert.Empty(t, admin.Send)
}

func TestChannelUser(t *testing.T) {
	id, err := channelUser(UserChannel(42))
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	_, err = channelUser("notifications:user:abc")
	assert.Error(t, err)
	_, err = channelUser(AdminChannel())
	assert.Error(t, err)
}

func TestHub_TrySendDropsWhenFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(3, false, nil)
	require.NoError(t, err)

	for range sendBuffer + 5 {
		c.TrySend([]byte("x"))
	}
	assert.Len(t, c.Send, sendBuffer)

	c.Close()
	assert.NotPanics(t, func() { c.TrySend([]byte("after close")) })
}

func TestHub_StartWiringDeliversPublishedEvents(t *testing.T) {
	_, rdb := testutil.NewTestRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := hub.Register(21, false, nil)
	require.NoError(t, err)
	require.NoError(t, hub.StartWiring(ctx, n))

	require.NoError(t, n.PublishUser(ctx, 21, NewEvent(EventRecipeApproved, "Your recipe was approved").WithRecipe(5)))

	var payload []byte
	assert.Eventually(t, func() bool {
		select {
		case payload = <-c.Send:
			return true
		default:
			return false
		}
	}, testEventuallyTimeout, testPollInterval)

	var event Event
	require.NoError(t, json.Unmarshal(payload, &event))
	assert.Equal(t, EventRecipeApproved, event.Type)
	assert.Equal(t, uint(5), event.RecipeID)
}

func TestHub_ShutdownRefusesNewClients(t *testing.T) {
	hub := NewHub()
	_, err := hub.Register(1, false, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	assert.Zero(t, hub.ConnectionCount())

	_, err = hub.Register(1, false, nil)
	assert.ErrorIs(t, err, ErrServerFull)
}
