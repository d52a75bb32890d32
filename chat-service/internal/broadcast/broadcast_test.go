package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-io-chat/chat-service/internal/config"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/domain"
	"github.com/weiawesome/wes-io-chat/chat-service/internal/hub"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

func startHub(t *testing.T) *hub.Hub {
	t.Helper()
	h := hub.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	t.Cleanup(cancel)
	return h
}

func connect(h *hub.Hub, id, userID string) *hub.Client {
	session := domain.NewSession(id, domain.Identity{UserID: userID, Username: userID})
	c := hub.NewClient(id, h, nil, session, config.WebSocketConfig{SendBuffer: 16})
	h.Register(c)
	return c
}

func recv(t *testing.T, c *hub.Client) string {
	t.Helper()
	select {
	case data := <-c.Send:
		return string(data)
	case <-time.After(time.Second):
		t.Fatalf("client %s received nothing", c.ID)
		return ""
	}
}

func assertNothing(t *testing.T, c *hub.Client) {
	t.Helper()
	select {
	case data := <-c.Send:
		t.Fatalf("client %s unexpectedly received %s", c.ID, data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestLocal_JoinThenRoom(t *testing.T) {
	h := startHub(t)
	alice := connect(h, "a1", "alice")
	bob := connect(h, "b1", "bob")
	ctx := context.Background()

	d := NewLocal(h)
	require.NoError(t, d.JoinUser(ctx, "conv", "alice"))
	require.NoError(t, d.JoinUser(ctx, "conv", "bob"))
	require.NoError(t, d.ToRoom(ctx, "conv", []byte("hello"), ""))
	require.NoError(t, d.ToRoom(ctx, "conv", []byte("typing"), "alice"))

	assert.Equal(t, "hello", recv(t, alice))
	assertNothing(t, alice)
	assert.Equal(t, "hello", recv(t, bob))
	assert.Equal(t, "typing", recv(t, bob))
}

func TestLocal_ToUserAndAll(t *testing.T) {
	h := startHub(t)
	alice := connect(h, "a1", "alice")
	bob := connect(h, "b1", "bob")
	ctx := context.Background()

	d := NewLocal(h)
	require.NoError(t, d.ToUser(ctx, "alice", []byte("receipt")))
	require.NoError(t, d.ToAll(ctx, []byte("online")))

	assert.Equal(t, "receipt", recv(t, alice))
	assert.Equal(t, "online", recv(t, alice))
	assert.Equal(t, "online", recv(t, bob))
}

// Two hubs sharing one bus behave like two instances behind a relay.
func TestRedisRelay_SpansInstances(t *testing.T) {
	bus := pubsub.NewMemoryPubSub()
	t.Cleanup(func() { _ = bus.Close() })
	channel := pubsub.ChatFanoutChannel("test")

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h1, h2 := startHub(t), startHub(t)
	for _, h := range []*hub.Hub{h1, h2} {
		sub := NewSubscriber(bus, channel, h)
		go sub.Run(ctx)
		select {
		case <-sub.Ready():
		case <-time.After(time.Second):
			t.Fatal("subscriber never became ready")
		}
	}

	alice := connect(h1, "a1", "alice")
	bob := connect(h2, "b1", "bob")

	relay := NewRedisRelay(bus, channel, "instance-1")
	require.NoError(t, relay.JoinUser(ctx, "conv", "alice"))
	require.NoError(t, relay.JoinUser(ctx, "conv", "bob"))
	for _, msg := range []string{"m1", "m2", "m3"} {
		require.NoError(t, relay.ToRoom(ctx, "conv", []byte(msg), ""))
	}
	require.NoError(t, relay.ToRoom(ctx, "conv", []byte("typing"), "alice"))

	for _, want := range []string{"m1", "m2", "m3"} {
		assert.Equal(t, want, recv(t, alice))
	}
	assertNothing(t, alice)
	for _, want := range []string{"m1", "m2", "m3", "typing"} {
		assert.Equal(t, want, recv(t, bob))
	}

	require.NoError(t, relay.ToUser(ctx, "bob", []byte("receipt")))
	assert.Equal(t, "receipt", recv(t, bob))
	assertNothing(t, alice)
}

func TestSubscriber_IgnoresMalformedJoin(t *testing.T) {
	h := startHub(t)
	connect(h, "a1", "alice")
	sub := NewSubscriber(pubsub.NewMemoryPubSub(), "unused", h)

	event, err := pubsub.NewEvent(pubsub.EventJoinUser, "conv", []byte("not json"))
	require.NoError(t, err)
	sub.Apply(event)
	assert.Equal(t, 0, h.RoomSize("conv"))

	event, err = pubsub.NewEvent(pubsub.EventJoinUser, "conv", joinPayload{UserID: "alice"})
	require.NoError(t, err)
	sub.Apply(event)
	assert.Equal(t, 1, h.RoomSize("conv"))
}

func TestSubscriber_StopsOnCancel(t *testing.T) {
	bus := pubsub.NewMemoryPubSub()
	sub := NewSubscriber(bus, "chan", startHub(t))
	ctx, cancel := context.WithCancel(context.Background())
	go sub.Run(ctx)
	<-sub.Ready()
	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscriber did not stop")
	}
}
