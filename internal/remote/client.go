// Package remote keeps a receive-only sync connection to a state server open
// for as long as its context lives, applying every set message it receives.
package remote

import (
	"context"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/zealtime/internal/clock"
	"github.com/livefir/zealtime/internal/metrics"
)

// DefaultDelay is the fixed pause between a close and the next attempt.
const DefaultDelay = time.Second

// State is the connection state of a Client.
type State int32

const (
	Connecting State = iota
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Applier receives decoded variables. Engine implements it.
type Applier interface {
	ApplyVariables(vars map[string]any)
}

// Conn is an established transport.
type Conn interface {
	// ReadMessage blocks until the next message or an error.
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer establishes transports.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// WebSocketDialer dials with gorilla/websocket.
type WebSocketDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

// Dial implements Dialer.
func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}

// Config holds client settings.
type Config struct {
	Delay   time.Duration
	Clock   clock.Clock
	Dialer  Dialer
	Logger  *log.Logger
	Metrics *metrics.Collector
}

// Option is a functional option for configuring a Client
type Option func(*Config)

// WithDelay sets the pause between attempts.
func WithDelay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// WithClock sets the clock the reconnect timer runs on.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics records attempts and messages in m.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// Client is one remote connection. It has no disconnect operation; it stops
// when the context passed to New is done.
type Client struct {
	url      string
	applier  Applier
	config   Config
	state    atomic.Int32
	attempts atomic.Int64
	done     chan struct{}
}

// New starts connecting to url immediately and returns the running client.
func New(ctx context.Context, url string, applier Applier, opts ...Option) *Client {
	config := Config{
		Delay:  DefaultDelay,
		Clock:  clock.Real(),
		Dialer: WebSocketDialer{},
		Logger: log.Default(),
	}
	for _, opt := range opts {
		opt(&config)
	}

	c := &Client{
		url:     url,
		applier: applier,
		config:  config,
		done:    make(chan struct{}),
	}
	c.state.Store(int32(Connecting))
	go c.run(ctx)
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Attempts returns how many connection attempts have started.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// Done is closed once the client has stopped for good.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) setState(s State) {
	c.state.Store(int32(s))
}

// run dials, reads until the transport closes, waits the fixed delay and
// dials again. There is no backoff and no retry limit.
func (c *Client) run(ctx context.Context) {
	defer close(c.done)

	for {
		if ctx.Err() != nil {
			c.setState(Closed)
			return
		}

		c.setState(Connecting)
		c.attempts.Add(1)
		if c.config.Metrics != nil {
			c.config.Metrics.IncrementConnectAttempt()
		}

		conn, err := c.config.Dialer.Dial(ctx, c.url)
		if err != nil {
			c.config.Logger.Printf("remote: connect %s failed: %v", c.url, err)
			if c.config.Metrics != nil {
				c.config.Metrics.IncrementConnectFailure()
			}
		} else {
			c.setState(Open)
			c.serve(ctx, conn)
		}

		c.setState(Closed)
		select {
		case <-ctx.Done():
			return
		case <-c.config.Clock.After(c.config.Delay):
		}
	}
}

// serve reads until the transport fails or ctx ends.
func (c *Client) serve(ctx context.Context, conn Conn) {
	defer conn.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.config.Logger.Printf("remote: connection to %s closed: %v", c.url, err)
			}
			return
		}
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	switch m := Decode(data).(type) {
	case SetVariables:
		c.applier.ApplyVariables(m.Variables)
		if c.config.Metrics != nil {
			c.config.Metrics.IncrementMessageApplied()
		}
	case Unknown:
		if m.Err != nil {
			c.config.Logger.Printf("remote: ignoring message: %v", m.Err)
		}
		if c.config.Metrics != nil {
			c.config.Metrics.IncrementMessageIgnored()
		}
	}
}
