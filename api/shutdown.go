// File: api/shutdown.go
// Package api defines unified graceful shutdown contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// GracefulShutdown is implemented by every component that owns sockets.
type GracefulShutdown interface {
	// Shutdown releases the component's sockets. Pending I/O returns promptly.
	// Calling it more than once is safe.
	Shutdown() error
}

// Runner is a long-lived data-plane loop. Run blocks until the loop ends;
// a cancelled run returns nil.
type Runner interface {
	Run() error
}
