package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterOnStoppedHubClosesClient(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	clients := make(chan *Client, 1)
	registered := make(chan bool, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		registered <- hub.Register(client)
		clients <- client
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.False(t, <-registered)
	client := <-clients
	select {
	case <-client.Done():
	case <-time.After(time.Second):
		t.Fatal("client of a stopped hub was never closed")
	}
	assert.ErrorIs(t, client.SendJSON(NewEvent("tick", nil)), ErrClosed)

	// ProcessEvents returns instead of waiting forever.
	processed := make(chan struct{})
	go func() {
		client.ProcessEvents(context.Background())
		close(processed)
	}()
	select {
	case <-processed:
	case <-time.After(time.Second):
		t.Fatal("event worker kept running")
	}
}

func TestServeHTTPOnStoppedHubDropsConnection(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	hub.Run(ctx)

	srv := httptest.NewServer(hub)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = conn.ReadMessage()
	require.Error(t, err)
	var netErr net.Error
	if errors.As(err, &netErr) {
		assert.False(t, netErr.Timeout(), "connection left open")
	}
}
