// File: responder/options.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package responder

import (
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/transport"
)

// Config holds the parameters of one responder listener.
type Config struct {
	Addr        string
	BatchSize   int // datagrams per recvmmsg/sendmmsg
	MaxDatagram int
	Encoding    hasher.Encoding
	Socket      transport.SocketOptions
}

// DefaultConfig returns a responder on :8080 with 12 MiB socket buffers.
func DefaultConfig() Config {
	return Config{
		Addr:        ":8080",
		BatchSize:   32,
		MaxDatagram: 2048,
		Encoding:    hasher.LittleEndian,
		Socket:      transport.DefaultSocketOptions(),
	}
}

// Option customizes a Responder.
type Option func(*Responder)

// WithLogger sets the logger.
func WithLogger(l *mlog.Logger) Option {
	return func(r *Responder) { r.log = l }
}

// WithCounters attaches throughput counters: one received per datagram, one sent per reply.
func WithCounters(c *control.ThroughputCounters) Option {
	return func(r *Responder) { r.counters = c }
}

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *control.Metrics) Option {
	return func(r *Responder) { r.metrics = m }
}
