// File: forwarder/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package forwarder

import (
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/protocol"
	"github.com/gamedolphin/gafferchallenge/transport"
)

// Config holds forwarder parameters.
type Config struct {
	Addr        string // public UDP address
	BackendAddr string // backend TCP address
	MaxDatagram int
	// MaxBacklog bounds requests waiting for the TCP writer; beyond it datagrams are dropped.
	MaxBacklog int
	// QueueDepth is the capacity of the channels between the event loop and its I/O goroutines.
	QueueDepth int
	BufferSize int
	// ReplyEncoding is how the hash is sent back to the UDP origin.
	ReplyEncoding hasher.Encoding
	Socket        transport.SocketOptions
}

// DefaultConfig listens on :8080 and forwards to 127.0.0.1:9000.
func DefaultConfig() Config {
	return Config{
		Addr:          ":8080",
		BackendAddr:   "127.0.0.1:9000",
		MaxDatagram:   2048,
		MaxBacklog:    65536,
		QueueDepth:    1024,
		BufferSize:    protocol.DefaultBufferSize,
		ReplyEncoding: hasher.Decimal,
		Socket:        transport.DefaultSocketOptions(),
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MaxDatagram <= 0 {
		c.MaxDatagram = def.MaxDatagram
	}
	if c.MaxBacklog <= 0 {
		c.MaxBacklog = def.MaxBacklog
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = def.QueueDepth
	}
	if c.BufferSize <= 0 {
		c.BufferSize = def.BufferSize
	}
}

// Option customizes a Forwarder.
type Option func(*Forwarder)

// WithLogger sets the logger.
func WithLogger(l *mlog.Logger) Option {
	return func(f *Forwarder) { f.log = l }
}

// WithCounters counts one received per inbound datagram and one sent per reply.
func WithCounters(c *control.ThroughputCounters) Option {
	return func(f *Forwarder) { f.counters = c }
}

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *control.Metrics) Option {
	return func(f *Forwarder) { f.metrics = m }
}
