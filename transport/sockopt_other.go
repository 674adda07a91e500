// File: transport/sockopt_other.go
//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)
// +build !linux,!darwin,!freebsd,!netbsd,!openbsd,!dragonfly

//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import "github.com/pkg/errors"

// ErrReusePortUnsupported is returned when port sharing is requested on a
// platform without SO_REUSEPORT.
var ErrReusePortUnsupported = errors.New("transport: SO_REUSEPORT not supported on this platform")

// Buffer sizes are left to the platform default here.
func applySockopts(_ uintptr, o SocketOptions) error {
	if o.ReusePort {
		return ErrReusePortUnsupported
	}
	return nil
}

// ReadBufferSize is not available on this platform.
func ReadBufferSize(uintptr) (int, error) {
	return 0, errors.New("transport: SO_RCVBUF query not supported")
}
