// Package feed implements the socket-level half of a venue price feed: a
// raw WebSocket connection that internal/reconnect's Manager can drive.
// The wire protocol of any particular venue (subscribe message shape,
// message framing) is pluggable and out of scope here; this package only
// owns dialing, resubscribing, ping/pong keepalive, and handing raw frames
// upstream.
package feed

import (
	"context"
	"fmt"
	"time"

	"arbengine/internal/reconnect"

	"github.com/gorilla/websocket"
)

// SubscribeEncoder turns a channel name into the wire message a venue
// expects for subscribing to it (JSON-marshalable). Venue-specific; callers
// supply one per venue protocol.
type SubscribeEncoder func(channel string) interface{}

// Socket is a reconnect.Dialer backed by a real WebSocket connection.
type Socket struct {
	url            string
	encodeSubscribe SubscribeEncoder
	dialTimeout    time.Duration
	pingInterval   time.Duration
	pongTimeout    time.Duration
}

// Config tunes Socket's dial and keepalive behavior.
type Config struct {
	DialTimeout  time.Duration
	PingInterval time.Duration
	PongTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		DialTimeout:  10 * time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  10 * time.Second,
	}
}

// NewSocket builds a Socket dialing url. encodeSubscribe may be nil, in
// which case channel names are sent as the connect-time subscribe payload
// verbatim (wrapped as {"channel": name}).
func NewSocket(url string, encodeSubscribe SubscribeEncoder, cfg Config) *Socket {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = 10 * time.Second
	}
	if encodeSubscribe == nil {
		encodeSubscribe = func(channel string) interface{} {
			return map[string]string{"channel": channel}
		}
	}
	return &Socket{url: url, encodeSubscribe: encodeSubscribe, dialTimeout: cfg.DialTimeout, pingInterval: cfg.PingInterval, pongTimeout: cfg.PongTimeout}
}

// Connect implements reconnect.Dialer: dial, subscribe to every channel,
// then read frames until the connection drops or ctx is cancelled.
func (s *Socket) Connect(ctx context.Context, channels []string, onMessage func(reconnect.Message)) error {
	dialCtx, cancel := context.WithTimeout(ctx, s.dialTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: s.dialTimeout}
	conn, _, err := dialer.DialContext(dialCtx, s.url, nil)
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", s.url, err)
	}
	defer conn.Close()

	for _, ch := range channels {
		if err := conn.WriteJSON(s.encodeSubscribe(ch)); err != nil {
			return fmt.Errorf("feed: subscribe %s: %w", ch, err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go s.pingLoop(conn, done)

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("feed: read %s: %w", s.url, err)
		}
		onMessage(reconnect.Message{Channel: s.url, Payload: msg})
	}
}

func (s *Socket) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.pongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
