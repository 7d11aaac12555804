// Package realtime maintains the live channel to the sync service: a
// websocket that mirrors agent state and carries blocklist pushes back.
// The channel is an optional mirror; session durability never depends on
// it being up.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"sync"
	"time"
)

// Connection states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
)

// Inbound and outbound envelope types.
const (
	TypeSyncRequest  = "sync_request"
	TypeHeartbeat    = "heartbeat"
	TypeHeartbeatAck = "heartbeat_ack"
	TypeBlock        = "block"
	TypeUnblock      = "unblock"
	TypeBlocklist    = "blocklist"
	TypeLive         = "live" // our own echo, ignored
)

// Envelope is the wire frame in both directions.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Conn is one live websocket connection.
type Conn interface {
	Send(env Envelope) error
	Receive() (Envelope, error)
	Close() error
}

// Dialer opens a connection with the given bearer credential.
type Dialer func(ctx context.Context, url, credential string) (Conn, error)

// Handler reacts to inbound pushes from the service.
type Handler interface {
	Block(domain string)
	Unblock(domain string)
	ReplaceBlocklist(domains []string)
}

// Config holds the channel's reconnect policy. Zero fields take defaults.
type Config struct {
	URL               string
	BackoffBase       time.Duration // default 2s
	MaxAttempts       int           // reconnects before waiting for an explicit reset (default 8)
	HeartbeatInterval time.Duration // default 25s
}

func (c Config) withDefaults() Config {
	if c.BackoffBase <= 0 {
		c.BackoffBase = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 8
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	return c
}

// Status is a by-value view of the channel for the status surfaces.
type Status struct {
	State            string `json:"state"`
	ReconnectAttempt int    `json:"reconnect_attempt"`
}

// Channel owns the connect/read/reconnect loop.
type Channel struct {
	cfg        Config
	dial       Dialer
	handler    Handler
	credential func() string
	logger     *slog.Logger

	mu      sync.Mutex
	state   string
	attempt int

	resetCh chan struct{}
}

// New creates a Channel. credential returns the current bearer token, empty
// while logged out; the channel stays down without one.
func New(cfg Config, dial Dialer, handler Handler, credential func() string) *Channel {
	return &Channel{
		cfg:        cfg.withDefaults(),
		dial:       dial,
		handler:    handler,
		credential: credential,
		logger:     slog.Default(),
		state:      StateDisconnected,
		resetCh:    make(chan struct{}, 1),
	}
}

// Status returns the current connection state.
func (c *Channel) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, ReconnectAttempt: c.attempt}
}

// Reset wakes the channel for an immediate reconnect with a fresh attempt
// counter. Called after a new login supersedes any backoff in progress.
func (c *Channel) Reset() {
	c.mu.Lock()
	c.attempt = 0
	c.mu.Unlock()
	select {
	case c.resetCh <- struct{}{}:
	default:
	}
}

// Run connects and reconnects until ctx is cancelled.
func (c *Channel) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		cred := c.credential()
		if cred == "" {
			// No credential, nothing to connect with. Wait for a login.
			c.setState(StateDisconnected)
			select {
			case <-ctx.Done():
				return
			case <-c.resetCh:
			}
			continue
		}

		c.setState(StateConnecting)
		conn, err := c.dial(ctx, c.cfg.URL, cred)
		if err != nil {
			c.logger.Debug("realtime dial failed", "error", err)
			if !c.waitBackoff(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.state = StateConnected
		c.attempt = 0
		c.mu.Unlock()

		c.serve(ctx, conn)
		c.setState(StateDisconnected)

		if !c.waitBackoff(ctx) {
			return
		}
	}
}

// serve runs one connection until it breaks: sync request first, then
// heartbeats on a ticker and inbound dispatch until a read fails. A missing
// heartbeat ack is not a failure; only the connection closing is.
func (c *Channel) serve(ctx context.Context, conn Conn) {
	defer conn.Close()

	if err := conn.Send(Envelope{Type: TypeSyncRequest}); err != nil {
		c.logger.Debug("sync request failed", "error", err)
		return
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-serveCtx.Done():
				return
			case <-ticker.C:
				if err := conn.Send(Envelope{Type: TypeHeartbeat}); err != nil {
					return
				}
			}
		}
	}()

	for {
		env, err := conn.Receive()
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Info("realtime connection lost", "error", err)
			}
			return
		}
		c.dispatch(env)
	}
}

func (c *Channel) dispatch(env Envelope) {
	switch env.Type {
	case TypeBlock:
		var d struct {
			Domain string `json:"domain"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Domain == "" {
			c.logger.Warn("malformed block push", "error", err)
			return
		}
		c.handler.Block(d.Domain)

	case TypeUnblock:
		var d struct {
			Domain string `json:"domain"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil || d.Domain == "" {
			c.logger.Warn("malformed unblock push", "error", err)
			return
		}
		c.handler.Unblock(d.Domain)

	case TypeBlocklist:
		var d struct {
			Domains []string `json:"domains"`
		}
		if err := json.Unmarshal(env.Data, &d); err != nil {
			c.logger.Warn("malformed blocklist push", "error", err)
			return
		}
		c.handler.ReplaceBlocklist(d.Domains)

	case TypeHeartbeatAck, TypeLive:
		// Acks are informational; our own live echoes are dropped.

	default:
		c.logger.Debug("ignoring unknown realtime message", "type", env.Type)
	}
}

// waitBackoff sleeps base * 2^attempt before the next reconnect. Past the
// attempt cap it parks until an explicit Reset. Returns false when ctx
// ended the wait.
func (c *Channel) waitBackoff(ctx context.Context) bool {
	c.mu.Lock()
	c.attempt++
	attempt := c.attempt
	c.mu.Unlock()

	if attempt > c.cfg.MaxAttempts {
		c.logger.Warn("realtime reconnect attempts exhausted, waiting for re-login")
		select {
		case <-ctx.Done():
			return false
		case <-c.resetCh:
			return true
		}
	}

	delay := time.Duration(float64(c.cfg.BackoffBase) * math.Pow(2, float64(attempt-1)))
	select {
	case <-ctx.Done():
		return false
	case <-c.resetCh:
		return true
	case <-time.After(delay):
		return true
	}
}

func (c *Channel) setState(state string) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}
