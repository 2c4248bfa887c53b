package watch

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

type fakeHandler struct {
	connected chan NodeInfo
	messages  chan Message
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{
		connected: make(chan NodeInfo, 8),
		messages:  make(chan Message, 8),
	}
}

func (f *fakeHandler) NodeConnected(_ context.Context, node NodeInfo) {
	f.connected <- node
}

func (f *fakeHandler) HandleMessage(_ context.Context, _ NodeInfo, msg Message) {
	f.messages <- msg
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting")
		var zero T
		return zero
	}
}

func verifyNone(t *testing.T) {
	goleak.VerifyNone(t,
		goleak.IgnoreCurrent(),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
	)
}

func TestHubRoundTrip(t *testing.T) {
	defer verifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t))
	handler := newFakeHandler()
	hub.SetHandler(handler)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	observer, err := Dial(ctx, srv.URL, RoleObserver, "monitor")
	require.NoError(t, err)
	defer observer.Close()
	require.Eventually(t, func() bool { return hub.ObserverCount() == 1 }, 5*time.Second, 10*time.Millisecond)

	w, err := Dial(ctx, srv.URL, RoleWatch, "galaxy-watch")
	require.NoError(t, err)

	node := receive(t, handler.connected)
	assert.Equal(t, "galaxy-watch", node.Name)
	assert.Equal(t, RoleWatch, node.Role)
	assert.NotEmpty(t, node.ID)

	nodes := hub.ConnectedNodes()
	require.Len(t, nodes, 1, "observers are not nodes")
	assert.Equal(t, node.ID, nodes[0].ID)

	// inbound
	require.NoError(t, w.Send(ctx, "/request_weather", nil))
	assert.Equal(t, Message{Path: "/request_weather"}, receive(t, handler.messages))

	env, err := observer.ReceiveEnvelope(ctx)
	require.NoError(t, err)
	assert.Equal(t, Inbound, env.Direction)
	assert.Equal(t, node.ID, env.NodeID)
	assert.Equal(t, "/request_weather", env.Path)

	// outbound
	n, err := SendJSON(ctx, hub, "/response_weather", map[string]string{"sky": "맑음"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := w.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, Message{Path: "/response_weather", Data: `{"sky":"맑음"}`}, got)

	env, err = observer.ReceiveEnvelope(ctx)
	require.NoError(t, err)
	assert.Equal(t, Outbound, env.Direction)
	assert.Equal(t, 1, env.Delivered)

	require.NoError(t, w.Close())
	require.Eventually(t, func() bool { return len(hub.ConnectedNodes()) == 0 }, 5*time.Second, 10*time.Millisecond)

	n, err = hub.Send(ctx, "/tide_alert", []byte(`{}`))
	require.ErrorIs(t, err, ErrNoWatch)
	assert.Zero(t, n)
}

func TestHubSendsToEveryWatch(t *testing.T) {
	defer verifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t))
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	var clients []*Client
	for _, name := range []string{"left", "right"} {
		c, err := Dial(ctx, srv.URL, RoleWatch, name)
		require.NoError(t, err)
		defer c.Close()
		clients = append(clients, c)
	}
	require.Eventually(t, func() bool { return len(hub.ConnectedNodes()) == 2 }, 5*time.Second, 10*time.Millisecond)

	n, err := hub.Send(ctx, "/request_heart_rate", []byte("request"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, c := range clients {
		msg, err := c.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, Message{Path: "/request_heart_rate", Data: "request"}, msg)
	}
}

func TestHubCloseDisconnectsPeers(t *testing.T) {
	defer verifyNone(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := NewHub(zaptest.NewLogger(t))
	srv := httptest.NewServer(hub)
	defer srv.Close()

	c, err := Dial(ctx, srv.URL, RoleWatch, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(hub.ConnectedNodes()) == 1 }, 5*time.Second, 10*time.Millisecond)

	go hub.Close()

	_, err = c.Receive(ctx)
	assert.Error(t, err)
	require.Eventually(t, func() bool { return len(hub.ConnectedNodes()) == 0 }, 5*time.Second, 10*time.Millisecond)
	c.Close()
}
