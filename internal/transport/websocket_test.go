package transport_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wessimpson/lobsim/internal/sim"
	"github.com/wessimpson/lobsim/internal/transport"
)

func TestWebSocketHub_BroadcastsSnapshotToConnectedClient(t *testing.T) {
	hub := transport.NewWebSocketHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	pub := transport.NewChannelPublisher(4)
	sub := pub.Subscribe()
	go hub.Run(sub)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let registration land before publishing

	pub.Publish(sim.Snapshot{TS: 42})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"ts":42`)
}

func TestWebSocketHub_ClientDisconnectIsNotFatal(t *testing.T) {
	hub := transport.NewWebSocketHub()
	srv := httptest.NewServer(hub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	conn.Close()

	pub := transport.NewChannelPublisher(4)
	sub := pub.Subscribe()
	go hub.Run(sub)

	time.Sleep(20 * time.Millisecond)
	assert.NotPanics(t, func() { pub.Publish(sim.Snapshot{TS: 1}) })
}
