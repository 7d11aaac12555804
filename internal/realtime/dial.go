package realtime

import (
	"context"
	"fmt"
	"net"
	"time"

	"golang.org/x/net/websocket"
)

const dialTimeout = 10 * time.Second

// wsConn adapts a websocket connection to the Conn interface with JSON
// framing.
type wsConn struct {
	ws *websocket.Conn
}

func (c *wsConn) Send(env Envelope) error {
	return websocket.JSON.Send(c.ws, env)
}

func (c *wsConn) Receive() (Envelope, error) {
	var env Envelope
	err := websocket.JSON.Receive(c.ws, &env)
	return env, err
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

// Dial is the production Dialer: a websocket handshake carrying the bearer
// credential.
func Dial(ctx context.Context, url, credential string) (Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := websocket.NewConfig(url, "http://localhost/")
	if err != nil {
		return nil, fmt.Errorf("building websocket config: %w", err)
	}
	cfg.Header.Set("Authorization", "Bearer "+credential)
	cfg.Dialer = &net.Dialer{Timeout: dialTimeout}

	ws, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("dialing realtime channel: %w", err)
	}
	return &wsConn{ws: ws}, nil
}
