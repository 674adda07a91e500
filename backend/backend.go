// File: backend/backend.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Backend hash service. Each accepted TCP connection is served by its own
// goroutine which decodes request frames, hashes the body and writes a response
// frame carrying the same origin. Responses on a connection keep request order.

package backend

import (
	"context"
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/protocol"
	"github.com/gamedolphin/gafferchallenge/shutdown"
	"github.com/gamedolphin/gafferchallenge/transport"
)

const component = "backend"

// acceptBackoff paces retries after a failed Accept, e.g. on EMFILE.
const acceptBackoff = 10 * time.Millisecond

// Config holds backend parameters.
type Config struct {
	Addr       string
	BufferSize int // bufio size per connection and direction
	Socket     transport.SocketOptions
}

// DefaultConfig listens on :9000.
func DefaultConfig() Config {
	return Config{
		Addr:       ":9000",
		BufferSize: protocol.DefaultBufferSize,
		Socket:     transport.SocketOptions{ReusePort: true},
	}
}

// Option customizes a Backend.
type Option func(*Backend)

// WithLogger sets the logger.
func WithLogger(l *mlog.Logger) Option {
	return func(b *Backend) { b.log = l }
}

// WithCounters counts one received per request and one sent per response.
func WithCounters(c *control.ThroughputCounters) Option {
	return func(b *Backend) { b.counters = c }
}

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *control.Metrics) Option {
	return func(b *Backend) { b.metrics = m }
}

// Backend is the TCP hash service.
type Backend struct {
	cfg      Config
	token    *shutdown.Token
	ln       *net.TCPListener
	counters *control.ThroughputCounters
	metrics  *control.Metrics
	log      *mlog.Logger

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

var (
	_ api.Runner           = (*Backend)(nil)
	_ api.GracefulShutdown = (*Backend)(nil)
)

// New opens the listener or returns *api.BindError.
func New(token *shutdown.Token, cfg Config, opts ...Option) (*Backend, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = protocol.DefaultBufferSize
	}
	b := &Backend{cfg: cfg, token: token, conns: make(map[net.Conn]struct{})}
	for _, opt := range opts {
		opt(b)
	}
	if b.log == nil {
		b.log = mlog.New(component)
	}
	if b.counters == nil {
		b.counters = control.NewThroughputCounters()
	}

	ln, err := transport.ListenTCP(context.Background(), component, cfg.Addr, cfg.Socket)
	if err != nil {
		return nil, err
	}
	b.ln = ln
	b.log.Infof("listening on : %s", ln.Addr())
	return b, nil
}

// Addr is the bound listener address.
func (b *Backend) Addr() net.Addr {
	return b.ln.Addr()
}

// Run accepts connections until cancellation, then waits for every connection
// goroutine to exit.
func (b *Backend) Run() error {
	stop := transport.InterruptOnCancel(b.token.Context(), b.ln)
	defer stop()

	for !b.token.Cancelled() {
		conn, err := b.ln.AcceptTCP()
		if err != nil {
			if b.token.Cancelled() || api.IsClosed(err) {
				break
			}
			b.log.Warnf("accept: %v", err)
			b.metrics.TransientError(component)
			b.token.WaitTimeout(acceptBackoff)
			continue
		}
		_ = conn.SetNoDelay(true)
		b.log.Infof("incoming connection from : %s", conn.RemoteAddr())
		b.track(conn, true)
		b.wg.Add(1)
		go b.serve(conn)
	}

	b.log.Info("shutting down backend!")
	b.closeConns()
	b.wg.Wait()
	return nil
}

func (b *Backend) track(c net.Conn, add bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if add {
		b.conns[c] = struct{}{}
	} else {
		delete(b.conns, c)
	}
}

func (b *Backend) closeConns() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.conns {
		_ = c.Close()
	}
}

// serve handles one connection strictly in arrival order.
func (b *Backend) serve(conn net.Conn) {
	defer b.wg.Done()
	defer b.track(conn, false)
	defer conn.Close()
	stop := transport.InterruptOnCancel(b.token.Context(), conn)
	defer stop()

	log := b.log.With("peer", conn.RemoteAddr().String())
	dec := protocol.NewDecoder(conn, b.cfg.BufferSize).WithIdle(b.token.Context(), protocol.DefaultBodyIdle)
	enc := protocol.NewEncoder(conn, b.cfg.BufferSize)

	for {
		req, err := dec.ReadRequest()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				log.Warnf("dropping frame: %v", err)
				b.metrics.Dropped(component, "malformed")
				continue
			}
			b.connDone(log, err)
			return
		}
		b.counters.Received.Inc()

		h := hasher.Sum64(req.Body)
		log.Debugf("received %d bytes from %s, responding with %d", len(req.Body), req.Origin, h)
		if err := enc.WriteResponse(protocol.Response{Origin: req.Origin, Hash: h}); err != nil {
			b.connDone(log, err)
			return
		}
		// flush once the pipelined requests already read are answered
		if dec.Buffered() == 0 {
			if err := enc.Flush(); err != nil {
				b.connDone(log, err)
				return
			}
		}
		b.counters.Sent.Inc()
	}
}

func (b *Backend) connDone(log *mlog.Logger, err error) {
	switch {
	case errors.Is(err, io.EOF), b.token.Cancelled(), api.IsClosed(err):
		log.Debugf("connection closed")
	default:
		log.Warnf("connection error: %v", err)
		b.metrics.TransientError(component)
	}
}

// Shutdown closes the listener and every open connection.
func (b *Backend) Shutdown() error {
	err := b.ln.Close()
	b.closeConns()
	if api.IsClosed(err) {
		return nil
	}
	return err
}
