// File: transport/interrupt.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package transport

import (
	"context"
	"time"
)

// Deadliner is implemented by net.Conn, net.PacketConn and *net.TCPListener.
type Deadliner interface {
	SetDeadline(t time.Time) error
}

var past = time.Unix(1, 0)

// InterruptOnCancel moves c's deadline into the past once ctx is done, failing any
// blocked read, write or accept with a timeout. The returned stop detaches the hook.
func InterruptOnCancel(ctx context.Context, c Deadliner) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = c.SetDeadline(past)
	})
}
