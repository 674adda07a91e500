// File: responder/responder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Responder answers every datagram with the FNV-1a hash of its payload.
// It keeps no per-peer state; replies go to the source address of each datagram.

package responder

import (
	"context"
	"net"
	"time"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/hasher"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/shutdown"
	"github.com/gamedolphin/gafferchallenge/transport"
)

const component = "responder"

// recvBackoff paces retries after a receive error that is not transient.
const recvBackoff = 50 * time.Millisecond

// Responder is one bound UDP listener.
type Responder struct {
	cfg      Config
	token    *shutdown.Token
	conn     *net.UDPConn
	batch    *transport.BatchConn
	counters *control.ThroughputCounters
	metrics  *control.Metrics
	log      *mlog.Logger
}

var (
	_ api.Runner           = (*Responder)(nil)
	_ api.GracefulShutdown = (*Responder)(nil)
)

// New binds the listener. A bind failure is returned as *api.BindError and the
// responder does not start.
func New(token *shutdown.Token, cfg Config, opts ...Option) (*Responder, error) {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.MaxDatagram <= 0 {
		cfg.MaxDatagram = def.MaxDatagram
	}
	r := &Responder{cfg: cfg, token: token}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = mlog.New(component)
	}
	if r.counters == nil {
		r.counters = control.NewThroughputCounters()
	}

	conn, err := transport.ListenUDP(context.Background(), component, cfg.Addr, cfg.Socket)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	r.batch = transport.NewBatchConn(conn)
	r.log.Infof("listening on %s", conn.LocalAddr())
	return r, nil
}

// Addr is the bound local address.
func (r *Responder) Addr() net.Addr {
	return r.conn.LocalAddr()
}

// Counters returns the counters this responder updates.
func (r *Responder) Counters() *control.ThroughputCounters {
	return r.counters
}

// Run serves until the token is cancelled or the socket is closed.
func (r *Responder) Run() error {
	stop := transport.InterruptOnCancel(r.token.Context(), r.conn)
	defer stop()

	n := r.cfg.BatchSize
	in := transport.NewMessages(n, r.cfg.MaxDatagram)
	out := make([]transport.Message, n)
	for i := range out {
		out[i].Buffers = [][]byte{make([]byte, 0, hasher.Size+20)}
	}

	for !r.token.Cancelled() {
		got, err := r.batch.ReadBatch(in)
		if err != nil {
			if r.recvFailed(err) {
				break
			}
			continue
		}
		r.counters.Received.Add(uint64(got))

		for i := 0; i < got; i++ {
			h := hasher.Sum64(in[i].Buffers[0][:in[i].N])
			out[i].Buffers[0] = r.cfg.Encoding.Append(out[i].Buffers[0][:0], h)
			out[i].Addr = in[i].Addr
		}
		r.reply(out[:got])
	}
	r.log.Infof("shutting down %s", r.conn.LocalAddr())
	return nil
}

// recvFailed accounts for a failed receive and reports whether Run should stop.
// Persistent errors are retried after recvBackoff.
func (r *Responder) recvFailed(err error) bool {
	if r.token.Cancelled() || api.IsClosed(err) {
		return true
	}
	r.metrics.TransientError(component)
	if api.IsTransient(err) {
		r.log.Debugf("receive: %v", err)
		return false
	}
	r.log.Warnf("receive: %v", err)
	return r.token.WaitTimeout(recvBackoff)
}

// reply sends the batch, skipping any datagram the kernel refuses.
func (r *Responder) reply(ms []transport.Message) {
	for len(ms) > 0 {
		sent, err := r.batch.WriteBatch(ms)
		r.counters.Sent.Add(uint64(sent))
		if err == nil {
			return
		}
		if api.IsClosed(err) || r.token.Cancelled() || sent >= len(ms) {
			return
		}
		r.log.Debugf("reply to %v: %v", ms[sent].Addr, err)
		r.metrics.TransientError(component)
		ms = ms[sent+1:]
	}
}

// Shutdown closes the socket, unblocking Run.
func (r *Responder) Shutdown() error {
	return r.conn.Close()
}
