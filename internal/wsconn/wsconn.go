// Package wsconn provides a WebSocket client with automatic reconnection,
// used by the price-feed adapter.
package wsconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
)

// State represents the connection state.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// MessageHandler receives every inbound message. It runs on the read
// goroutine; long work must be dispatched elsewhere.
type MessageHandler func(ctx context.Context, msg []byte)

// StateHandler observes state transitions. err is non-nil on failures.
type StateHandler func(state State, err error)

// Config holds WebSocket client configuration.
type Config struct {
	URL  string
	Name string

	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxReconnects  int // 0 = infinite

	PingInterval   time.Duration // 0 disables pings
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// DefaultConfig returns sensible defaults for a named upstream.
func DefaultConfig(url, name string) Config {
	return Config{
		URL:            url,
		Name:           name,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		MaxReconnects:  0,
		PingInterval:   30 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxMessageSize: 1 << 20,
	}
}

// Client is a reconnecting WebSocket client. Sends are safe for concurrent
// use; there is a single internal reader.
type Client struct {
	config Config

	mu      sync.RWMutex
	conn    *websocket.Conn
	state   State
	writeMu sync.Mutex

	onMessage MessageHandler
	onState   StateHandler
	handlerMu sync.RWMutex

	closed   atomic.Bool
	closeCtx context.Context
	cancel   context.CancelFunc
}

// New creates a client. It does not connect.
func New(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, errors.New("wsconn: url is required")
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		config:   config,
		state:    StateDisconnected,
		closeCtx: ctx,
		cancel:   cancel,
	}, nil
}

// OnMessage registers the inbound message handler. Must be called before
// Connect.
func (c *Client) OnMessage(h MessageHandler) {
	c.handlerMu.Lock()
	c.onMessage = h
	c.handlerMu.Unlock()
}

// OnStateChange registers a state transition observer.
func (c *Client) OnStateChange(h StateHandler) {
	c.handlerMu.Lock()
	c.onState = h
	c.handlerMu.Unlock()
}

// Connect dials once. The read loop starts on success and reconnects on
// later failures.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.New("wsconn: client is closed")
	}
	c.setState(StateConnecting, nil)

	conn, err := c.dial(ctx)
	if err != nil {
		c.setState(StateDisconnected, err)
		return fmt.Errorf("wsconn %s: dial: %w", c.config.Name, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnected, nil)

	go c.readLoop()
	if c.config.PingInterval > 0 {
		go c.pingLoop()
	}
	return nil
}

// ConnectWithRetry dials with exponential backoff until it succeeds, the
// context ends, or MaxReconnects is exhausted.
func (c *Client) ConnectWithRetry(ctx context.Context) error {
	backoff := c.config.InitialBackoff
	attempts := 0
	for {
		err := c.Connect(ctx)
		if err == nil {
			return nil
		}
		attempts++
		if c.config.MaxReconnects > 0 && attempts >= c.config.MaxReconnects {
			return fmt.Errorf("wsconn %s: gave up after %d attempts: %w",
				c.config.Name, attempts, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closeCtx.Done():
			return errors.New("wsconn: client is closed")
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.config.MaxBackoff)
	}
}

// Send writes a raw text message.
func (c *Client) Send(ctx context.Context, msg []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return errors.New("wsconn: not connected")
	}

	if c.config.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.WriteTimeout)
		defer cancel()
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.Write(ctx, websocket.MessageText, msg)
}

// SendJSON marshals v and sends it as one text message.
func (c *Client) SendJSON(ctx context.Context, v any) error {
	msg, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wsconn: marshal: %w", err)
	}
	return c.Send(ctx, msg)
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// IsConnected reports whether the connection is live.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// Close shuts the client down. Idempotent.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.cancel()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
	c.setState(StateClosed, nil)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, c.config.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.config.MaxMessageSize > 0 {
		conn.SetReadLimit(c.config.MaxMessageSize)
	}
	return conn, nil
}

func (c *Client) readLoop() {
	for {
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn == nil || c.closed.Load() {
			return
		}

		readCtx := c.closeCtx
		var cancel context.CancelFunc
		if c.config.ReadTimeout > 0 {
			readCtx, cancel = context.WithTimeout(c.closeCtx, c.config.ReadTimeout)
		}
		_, msg, err := conn.Read(readCtx)
		if cancel != nil {
			cancel()
		}

		if err != nil {
			if c.closed.Load() {
				return
			}
			c.reconnect(err)
			return
		}

		c.handlerMu.RLock()
		handler := c.onMessage
		c.handlerMu.RUnlock()
		if handler != nil {
			handler(c.closeCtx, msg)
		}
	}
}

// reconnect re-dials with backoff after a read failure and restarts the
// read loop on success.
func (c *Client) reconnect(cause error) {
	c.setState(StateReconnecting, cause)

	backoff := c.config.InitialBackoff
	attempts := 0
	for {
		if c.closed.Load() {
			return
		}
		select {
		case <-c.closeCtx.Done():
			return
		case <-time.After(backoff):
		}

		conn, err := c.dial(c.closeCtx)
		if err == nil {
			c.mu.Lock()
			c.conn = conn
			c.mu.Unlock()
			c.setState(StateConnected, nil)
			go c.readLoop()
			return
		}

		attempts++
		if c.config.MaxReconnects > 0 && attempts >= c.config.MaxReconnects {
			c.setState(StateDisconnected, err)
			return
		}
		backoff = min(backoff*2, c.config.MaxBackoff)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.closeCtx.Done():
			return
		case <-ticker.C:
			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()
			if conn == nil {
				return
			}
			ctx, cancel := context.WithTimeout(c.closeCtx, 10*time.Second)
			if err := conn.Ping(ctx); err != nil && !c.closed.Load() {
				cancel()
				c.reconnect(err)
				return
			}
			cancel()
		}
	}
}

func (c *Client) setState(state State, err error) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()

	c.handlerMu.RLock()
	h := c.onState
	c.handlerMu.RUnlock()
	if h != nil {
		h(state, err)
	}
}
