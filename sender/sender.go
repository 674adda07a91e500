// File: sender/sender.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sender emits datagrams at a fixed frequency, cycling through a payload pool,
// and drains replies on the same socket. Replies are counted, not matched to
// requests: a late reply to tick n may be counted in the window of tick n+1.

package sender

import (
	"context"
	"math"
	"net"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/pool"
	"github.com/gamedolphin/gafferchallenge/shutdown"
	"github.com/gamedolphin/gafferchallenge/transport"
)

const component = "sender"

// Config holds sender parameters.
type Config struct {
	Target string
	// Frequency is datagrams per second; +Inf sends as fast as the socket allows.
	Frequency float64
	MaxReply  int
	Socket    transport.SocketOptions
}

// DefaultConfig targets 127.0.0.1:8080 at 1000 datagrams per second.
func DefaultConfig() Config {
	return Config{
		Target:    "127.0.0.1:8080",
		Frequency: 1000,
		MaxReply:  8 * 1024,
		Socket:    transport.SocketOptions{RecvBuffer: transport.DefaultBufferSize, SendBuffer: transport.DefaultBufferSize},
	}
}

// Option customizes a Sender.
type Option func(*Sender)

// WithLogger sets the logger.
func WithLogger(l *mlog.Logger) Option {
	return func(s *Sender) { s.log = l }
}

// WithCounters counts one sent per transmitted datagram and one received per reply.
func WithCounters(c *control.ThroughputCounters) Option {
	return func(s *Sender) { s.counters = c }
}

// WithMetrics attaches prometheus instruments.
func WithMetrics(m *control.Metrics) Option {
	return func(s *Sender) { s.metrics = m }
}

// Sender is one traffic generator with its own connected socket.
type Sender struct {
	cfg      Config
	token    *shutdown.Token
	conn     *net.UDPConn
	cursor   *pool.Cursor
	limiter  *rate.Limiter
	counters *control.ThroughputCounters
	metrics  *control.Metrics
	log      *mlog.Logger
}

var (
	_ api.Runner           = (*Sender)(nil)
	_ api.GracefulShutdown = (*Sender)(nil)
)

// New connects a UDP socket to cfg.Target. Connect failure is an *api.BindError.
func New(token *shutdown.Token, cfg Config, payloads *pool.PayloadPool, opts ...Option) (*Sender, error) {
	if payloads == nil || payloads.Len() == 0 {
		return nil, errors.Wrap(api.ErrInvalidConfig, "sender: empty payload pool")
	}
	if !(cfg.Frequency > 0) {
		return nil, errors.Wrapf(api.ErrInvalidConfig, "sender: frequency must be positive, got %v", cfg.Frequency)
	}
	if cfg.MaxReply <= 0 {
		cfg.MaxReply = DefaultConfig().MaxReply
	}

	limit := rate.Limit(cfg.Frequency)
	if math.IsInf(cfg.Frequency, 1) {
		limit = rate.Inf
	}
	s := &Sender{
		cfg:     cfg,
		token:   token,
		cursor:  payloads.Cursor(),
		limiter: rate.NewLimiter(limit, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = mlog.New(component)
	}
	if s.counters == nil {
		s.counters = control.NewThroughputCounters()
	}

	conn, err := transport.DialUDP(token.Context(), component, cfg.Target, cfg.Socket)
	if err != nil {
		return nil, err
	}
	s.conn = conn
	return s, nil
}

// LocalAddr is the bound local address replies arrive on.
func (s *Sender) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Run sends until cancellation, then waits for the receive loop.
func (s *Sender) Run() error {
	ctx := s.token.Context()
	stop := transport.InterruptOnCancel(ctx, s.conn)
	defer stop()

	s.log.Infof("sending to %s from %s at %v/s", s.cfg.Target, s.conn.LocalAddr(), s.cfg.Frequency)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.receive()
	}()

	s.send(ctx)
	wg.Wait()
	return nil
}

// send advances the cursor on every tick whether or not the write succeeds.
func (s *Sender) send(ctx context.Context) {
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		p := s.cursor.Next()
		if _, err := s.conn.Write(p); err != nil {
			if s.token.Cancelled() || api.IsClosed(err) {
				return
			}
			s.log.Debugf("failed to send %v", err)
			s.metrics.TransientError(component)
			continue
		}
		s.counters.Sent.Inc()
	}
}

func (s *Sender) receive() {
	buf := make([]byte, s.cfg.MaxReply)
	for {
		n, err := s.conn.Read(buf)
		if err != nil {
			if s.token.Cancelled() || api.IsClosed(err) {
				return
			}
			if api.IsTransient(err) {
				s.log.Debugf("failed to receive %v", err)
				s.metrics.TransientError(component)
				continue
			}
			s.log.Warnf("receive loop stopped: %v", err)
			return
		}
		s.counters.Received.Inc()
		s.log.Debugf("received %d byte reply", n)
	}
}

// Shutdown closes the socket.
func (s *Sender) Shutdown() error {
	return s.conn.Close()
}
