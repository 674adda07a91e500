// File: forwarder/forwarder.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Forwarder bridges a public UDP socket to one persistent TCP connection to the
// backend. Inbound datagrams become request frames tagged with their origin;
// response frames are routed back by that origin alone, never by position.
//
// A single event loop owns all routing state. Three goroutines do the blocking
// I/O: the UDP reader, the TCP reader and the TCP writer.

package forwarder

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
	"github.com/pkg/errors"

	"github.com/gamedolphin/gafferchallenge/api"
	"github.com/gamedolphin/gafferchallenge/control"
	"github.com/gamedolphin/gafferchallenge/internal/mlog"
	"github.com/gamedolphin/gafferchallenge/pool"
	"github.com/gamedolphin/gafferchallenge/protocol"
	"github.com/gamedolphin/gafferchallenge/shutdown"
	"github.com/gamedolphin/gafferchallenge/transport"
)

const component = "forwarder"

// ForwardedRequest lives for one forward-and-reply round trip.
type ForwardedRequest struct {
	Origin  netip.AddrPort
	Payload []byte
	buf     *pool.Buffer
}

// Forwarder is one UDP listener with its backend connection.
type Forwarder struct {
	cfg      Config
	token    *shutdown.Token
	udp      *net.UDPConn
	tcp      *net.TCPConn
	bufs     *pool.BufferPool
	counters *control.ThroughputCounters
	metrics  *control.Metrics
	log      *mlog.Logger

	inflight atomic.Int64
}

var (
	_ api.Runner           = (*Forwarder)(nil)
	_ api.GracefulShutdown = (*Forwarder)(nil)
)

// New binds the UDP socket and connects to the backend. Either failure is an
// *api.BindError and nothing is left open.
func New(token *shutdown.Token, cfg Config, opts ...Option) (*Forwarder, error) {
	cfg.applyDefaults()
	f := &Forwarder{cfg: cfg, token: token}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = mlog.New(component)
	}
	if f.counters == nil {
		f.counters = control.NewThroughputCounters()
	}
	f.bufs = pool.NewBufferPool(cfg.MaxDatagram)

	ctx := token.Context()
	udp, err := transport.ListenUDP(ctx, component, cfg.Addr, cfg.Socket)
	if err != nil {
		return nil, err
	}
	tcp, err := transport.DialTCP(ctx, component, cfg.BackendAddr, cfg.Socket)
	if err != nil {
		_ = udp.Close()
		return nil, err
	}
	f.udp, f.tcp = udp, tcp
	f.log.Infof("Server listening on : %s, backend %s", udp.LocalAddr(), tcp.RemoteAddr())
	return f, nil
}

// Addr is the public UDP address.
func (f *Forwarder) Addr() net.Addr {
	return f.udp.LocalAddr()
}

// Inflight is the number of requests written to the backend and not yet relayed.
func (f *Forwarder) Inflight() int64 {
	return f.inflight.Load()
}

// Run drives the event loop. It returns nil on cancellation and an error wrapping
// api.ErrBackendClosed when the backend connection is lost.
func (f *Forwarder) Run() error {
	ctx, cancel := context.WithCancel(f.token.Context())
	stopUDP := transport.InterruptOnCancel(ctx, f.udp)
	stopTCP := transport.InterruptOnCancel(ctx, f.tcp)

	inbound := make(chan ForwardedRequest, f.cfg.QueueDepth)
	writeCh := make(chan ForwardedRequest, f.cfg.QueueDepth)
	responses := make(chan protocol.Response, f.cfg.QueueDepth)
	udpErr := make(chan error, 1)
	tcpErr := make(chan error, 2)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); f.readUDP(ctx, inbound, udpErr) }()
	go func() { defer wg.Done(); f.readTCP(ctx, responses, tcpErr) }()
	go func() { defer wg.Done(); f.writeTCP(ctx, writeCh, tcpErr) }()

	defer func() {
		cancel()
		wg.Wait()
		stopUDP()
		stopTCP()
		f.inflight.Store(0)
		f.metrics.SetInflight(0)
	}()

	backlog := queue.New()
	reply := make([]byte, 0, 32)

	for {
		var (
			sendCh chan<- ForwardedRequest
			next   ForwardedRequest
		)
		if backlog.Length() > 0 {
			sendCh = writeCh
			next = backlog.Peek().(ForwardedRequest)
		}

		select {
		case <-f.token.Done():
			f.log.Info("shutting down forwarder!")
			return nil

		case req := <-inbound:
			f.counters.Received.Inc()
			if backlog.Length() >= f.cfg.MaxBacklog {
				f.log.Warnf("backlog full, dropping datagram from %s", req.Origin)
				f.metrics.Dropped(component, "backlog_full")
				f.bufs.Put(req.buf)
				continue
			}
			backlog.Add(req)

		case sendCh <- next:
			backlog.Remove()
			f.metrics.SetInflight(f.inflight.Add(1))

		case resp := <-responses:
			reply = f.relay(resp, reply)

		case err := <-tcpErr:
			if f.token.Cancelled() {
				return nil
			}
			f.log.Errorf("backend connection lost: %v", err)
			return errors.Wrapf(api.ErrBackendClosed, "%s: %v", f.cfg.BackendAddr, err)

		case err := <-udpErr:
			if f.token.Cancelled() || api.IsClosed(err) {
				return nil
			}
			return errors.Wrap(err, "forwarder: udp receive")
		}
	}
}

// relay sends the hash back to the origin named in the response frame.
func (f *Forwarder) relay(resp protocol.Response, buf []byte) []byte {
	if n := f.inflight.Add(-1); n < 0 {
		f.inflight.Store(0)
		f.metrics.SetInflight(0)
	} else {
		f.metrics.SetInflight(n)
	}

	to, err := netip.ParseAddrPort(resp.Origin)
	if err != nil {
		f.log.Warnf("dropping response with bad origin %q", resp.Origin)
		f.metrics.Dropped(component, "bad_origin")
		return buf
	}
	buf = f.cfg.ReplyEncoding.Append(buf[:0], resp.Hash)
	if _, err := f.udp.WriteToUDPAddrPort(buf, to); err != nil {
		f.log.Debugf("reply to %s: %v", to, err)
		f.metrics.TransientError(component)
		return buf
	}
	f.counters.Sent.Inc()
	return buf
}

func (f *Forwarder) readUDP(ctx context.Context, out chan<- ForwardedRequest, errc chan<- error) {
	for {
		b := f.bufs.Get()
		n, from, err := f.udp.ReadFromUDPAddrPort(b.B)
		if err != nil {
			f.bufs.Put(b)
			if ctx.Err() != nil || !api.IsTransient(err) {
				errc <- err
				return
			}
			f.log.Debugf("receive: %v", err)
			f.metrics.TransientError(component)
			continue
		}
		req := ForwardedRequest{
			Origin:  netip.AddrPortFrom(from.Addr().Unmap(), from.Port()),
			Payload: b.B[:n],
			buf:     b,
		}
		select {
		case out <- req:
		case <-ctx.Done():
			f.bufs.Put(b)
			return
		}
	}
}

func (f *Forwarder) readTCP(ctx context.Context, out chan<- protocol.Response, errc chan<- error) {
	dec := protocol.NewDecoder(f.tcp, f.cfg.BufferSize).WithIdle(ctx, protocol.DefaultBodyIdle)
	for {
		resp, err := dec.ReadResponse()
		if err != nil {
			if errors.Is(err, protocol.ErrMalformedFrame) {
				f.log.Warnf("dropping frame: %v", err)
				f.metrics.Dropped(component, "malformed")
				continue
			}
			errc <- err
			return
		}
		select {
		case out <- resp:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Forwarder) writeTCP(ctx context.Context, in <-chan ForwardedRequest, errc chan<- error) {
	enc := protocol.NewEncoder(f.tcp, f.cfg.BufferSize)
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-in:
			err := enc.WriteRequest(protocol.Request{Origin: req.Origin.String(), Body: req.Payload})
			f.bufs.Put(req.buf)
			if err == nil && len(in) == 0 {
				err = enc.Flush()
			}
			if err != nil {
				if errors.Is(err, protocol.ErrMalformedFrame) {
					f.metrics.Dropped(component, "oversize")
					continue
				}
				errc <- err
				return
			}
		}
	}
}

// Shutdown closes both sockets.
func (f *Forwarder) Shutdown() error {
	errU := f.udp.Close()
	errT := f.tcp.Close()
	if errU != nil && !api.IsClosed(errU) {
		return errU
	}
	if errT != nil && !api.IsClosed(errT) {
		return errT
	}
	return nil
}
