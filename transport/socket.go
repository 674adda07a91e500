// File: transport/socket.go
// Package transport
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket construction for every data-plane role. All sockets go through
// net.ListenConfig or net.Dialer with a Control hook so that SO_REUSEPORT and
// buffer sizes are applied before bind. Acquisition failures become *api.BindError.

package transport

import (
	"context"
	"net"
	"syscall"

	"github.com/gamedolphin/gafferchallenge/api"
)

// DefaultBufferSize is the socket buffer size requested for benchmark sockets.
const DefaultBufferSize = 12 << 20

// SocketOptions tunes a socket before it is bound.
type SocketOptions struct {
	// ReusePort lets several listeners share one UDP or TCP port.
	ReusePort bool
	// RecvBuffer and SendBuffer set SO_RCVBUF/SO_SNDBUF; 0 keeps the kernel default.
	RecvBuffer int
	SendBuffer int
}

// DefaultSocketOptions enables port sharing and large buffers.
func DefaultSocketOptions() SocketOptions {
	return SocketOptions{ReusePort: true, RecvBuffer: DefaultBufferSize, SendBuffer: DefaultBufferSize}
}

func (o SocketOptions) control(network, address string, c syscall.RawConn) error {
	var serr error
	err := c.Control(func(fd uintptr) {
		serr = applySockopts(fd, o)
	})
	if err != nil {
		return err
	}
	return serr
}

// ListenUDP binds a UDP socket on addr.
func ListenUDP(ctx context.Context, component, addr string, opts SocketOptions) (*net.UDPConn, error) {
	lc := net.ListenConfig{Control: opts.control}
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, api.NewBindError(component, "bind", addr, err)
	}
	return pc.(*net.UDPConn), nil
}

// DialUDP binds an ephemeral local UDP socket and connects it to addr, so that
// only datagrams from addr are delivered to it.
func DialUDP(ctx context.Context, component, addr string, opts SocketOptions) (*net.UDPConn, error) {
	d := net.Dialer{Control: SocketOptions{RecvBuffer: opts.RecvBuffer, SendBuffer: opts.SendBuffer}.control}
	c, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, api.NewBindError(component, "connect", addr, err)
	}
	return c.(*net.UDPConn), nil
}

// ListenTCP opens a TCP listener on addr.
func ListenTCP(ctx context.Context, component, addr string, opts SocketOptions) (*net.TCPListener, error) {
	lc := net.ListenConfig{Control: opts.control}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, api.NewBindError(component, "listen", addr, err)
	}
	return ln.(*net.TCPListener), nil
}

// DialTCP connects to addr with Nagle disabled.
func DialTCP(ctx context.Context, component, addr string, opts SocketOptions) (*net.TCPConn, error) {
	d := net.Dialer{Control: SocketOptions{RecvBuffer: opts.RecvBuffer, SendBuffer: opts.SendBuffer}.control}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, api.NewBindError(component, "connect", addr, err)
	}
	tc := c.(*net.TCPConn)
	_ = tc.SetNoDelay(true)
	return tc, nil
}
