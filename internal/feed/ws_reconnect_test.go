package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"arbengine/internal/reconnect"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	return srv, wsURL
}

func TestSocketConnectDeliversMessages(t *testing.T) {
	_, wsURL := echoServer(t)
	socket := NewSocket(wsURL, nil, DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	received := make(chan reconnect.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- socket.Connect(ctx, []string{"prices.kalshi"}, func(msg reconnect.Message) {
			select {
			case received <- msg:
			default:
			}
		})
	}()

	select {
	case msg := <-received:
		assert.Equal(t, wsURL, msg.Channel)
		assert.Contains(t, string(msg.Payload), "prices.kalshi")
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echoed subscribe message")
	}

	cancel()
	<-done
}

func TestSocketConnectFailsOnBadURL(t *testing.T) {
	socket := NewSocket("ws://127.0.0.1:1/no-such-port", nil, Config{DialTimeout: 200 * time.Millisecond})
	err := socket.Connect(context.Background(), nil, func(reconnect.Message) {})
	assert.Error(t, err)
}
