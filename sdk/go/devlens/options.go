package devlens

import (
	"net"
	"time"
)

type clientConfig struct {
	clientName    string
	clientVersion string
	dialTimeout   time.Duration
	callTimeout   time.Duration
	conn          net.Conn
	eventBuffer   int
}

// Option configures a Client.
type Option func(*clientConfig)

// WithClientName sets the name reported in the handshake.
func WithClientName(name, version string) Option {
	return func(c *clientConfig) {
		c.clientName = name
		c.clientVersion = version
	}
}

// WithDialTimeout bounds the TCP dial.
func WithDialTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.dialTimeout = d }
}

// WithCallTimeout sets the default deadline for correlated commands.
func WithCallTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.callTimeout = d }
}

// WithConn uses an existing connection instead of dialing. The addr
// argument to Dial is ignored.
func WithConn(conn net.Conn) Option {
	return func(c *clientConfig) { c.conn = conn }
}

// WithEventBuffer sets the capacity of the Events channel. When the
// buffer is full, new events are dropped rather than blocking the
// read loop.
func WithEventBuffer(n int) Option {
	return func(c *clientConfig) { c.eventBuffer = n }
}
