// Package api
// Author: momentics <momentics@gmail.com>
//
// Error taxonomy shared by every data-plane component.
//
// Resource acquisition failures (bind, listen, connect) are reported as *BindError and
// terminate only the component that hit them. Per-datagram and per-frame failures are
// transient: callers log them and keep looping. Cancellation is never an error.

package api

import (
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Common errors used across the harness.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrClosed        = errors.New("component is closed")
	ErrBackendClosed = errors.New("backend connection closed")
)

// BindError reports a failed socket acquisition: bind, listen or connect.
type BindError struct {
	Component string // owning component, e.g. "responder"
	Op        string // "bind", "listen" or "connect"
	Addr      string
	Err       error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", e.Component, e.Op, e.Addr, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *BindError) Unwrap() error { return e.Err }

// NewBindError wraps err with a stack trace and acquisition context.
func NewBindError(component, op, addr string, err error) error {
	return errors.WithStack(&BindError{Component: component, Op: op, Addr: addr, Err: err})
}

// IsBindError reports whether err (or anything it wraps) is a *BindError.
func IsBindError(err error) bool {
	var be *BindError
	return stderrors.As(err, &be)
}

// IsClosed reports whether err stems from using a closed socket.
func IsClosed(err error) bool {
	return stderrors.Is(err, net.ErrClosed) || stderrors.Is(err, ErrClosed)
}

// IsTimeout reports whether err is an expired I/O deadline.
func IsTimeout(err error) bool {
	if stderrors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

// IsTransient reports whether a single send/receive failure can be skipped.
// ICMP-driven errors on connected UDP sockets and buffer exhaustion qualify;
// a closed socket does not.
func IsTransient(err error) bool {
	if err == nil || IsClosed(err) {
		return false
	}
	switch {
	case stderrors.Is(err, syscall.ECONNREFUSED),
		stderrors.Is(err, syscall.EHOSTUNREACH),
		stderrors.Is(err, syscall.ENETUNREACH),
		stderrors.Is(err, syscall.ENOBUFS),
		stderrors.Is(err, syscall.EAGAIN),
		stderrors.Is(err, syscall.EMSGSIZE):
		return true
	}
	return IsTimeout(err)
}
