package zealtime

import (
	"log"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/livefir/zealtime/internal/clock"
	"github.com/livefir/zealtime/internal/metrics"
	"github.com/livefir/zealtime/internal/remote"
)

// Config holds engine configuration options
type Config struct {
	Logger         *log.Logger
	IDGenerator    func() string      // Instance ids; lower-case ULIDs by default
	Metrics        *metrics.Collector // Shared with remote clients started by Connect
	OnRender       func()             // Called after every render pass, with the engine locked
	ReconnectDelay time.Duration      // Pause between remote connection attempts
	Clock          clock.Clock        // Timer source for the reconnect delay
	Dialer         remote.Dialer      // Transport for Connect; websocket when nil
}

// Option is a functional option for configuring an Engine
type Option func(*Config)

// DefaultConfig returns the configuration New starts from.
func DefaultConfig() Config {
	return Config{
		Logger:         log.Default(),
		IDGenerator:    NewID,
		Metrics:        metrics.NewCollector(),
		ReconnectDelay: remote.DefaultDelay,
		Clock:          clock.Real(),
	}
}

// NewID returns a fresh instance id: a 48-bit millisecond timestamp followed
// by 80 random bits, Crockford base32, lower case.
func NewID() string {
	return strings.ToLower(ulid.Make().String())
}

// WithLogger sets the logger used by the engine and its remote clients
func WithLogger(logger *log.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithIDGenerator replaces the instance id generator
func WithIDGenerator(gen func() string) Option {
	return func(c *Config) {
		c.IDGenerator = gen
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithOnRender registers a callback run after each render pass. It must not
// call back into the engine.
func WithOnRender(fn func()) Option {
	return func(c *Config) {
		c.OnRender = fn
	}
}

// WithReconnectDelay sets the fixed delay between remote reconnect attempts
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ReconnectDelay = d
	}
}

// WithClock sets the clock remote clients wait on
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithDialer sets the transport remote clients dial with
func WithDialer(d remote.Dialer) Option {
	return func(c *Config) {
		c.Dialer = d
	}
}
