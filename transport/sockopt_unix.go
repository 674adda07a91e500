// File: transport/sockopt_unix.go
//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly
// +build linux darwin freebsd netbsd openbsd dragonfly

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Socket options via x/sys/unix.

package transport

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func applySockopts(fd uintptr, o SocketOptions) error {
	s := int(fd)
	if o.ReusePort {
		if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return errors.Wrap(err, "SO_REUSEADDR")
		}
		if err := unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return errors.Wrap(err, "SO_REUSEPORT")
		}
	}
	// buffer sizes are a hint; the kernel clamps them to rmem_max/wmem_max
	if o.RecvBuffer > 0 {
		_ = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_RCVBUF, o.RecvBuffer)
	}
	if o.SendBuffer > 0 {
		_ = unix.SetsockoptInt(s, unix.SOL_SOCKET, unix.SO_SNDBUF, o.SendBuffer)
	}
	return nil
}

// ReadBufferSize reports the effective SO_RCVBUF of a socket.
func ReadBufferSize(fd uintptr) (int, error) {
	return unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
}
