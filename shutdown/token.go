// File: shutdown/token.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Token is the run-wide cancellation signal. It is created once, shared by pointer
// with every task, and transitions from live to cancelled at most once.

package shutdown

import (
	"context"
	"sync/atomic"
	"time"
)

// PollInterval bounds how long any loop may go without observing cancellation.
const PollInterval = 500 * time.Millisecond

// Token is a monotonic cancellation flag with both polling and awaiting access.
type Token struct {
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// New returns a live token.
func New() *Token {
	return FromContext(context.Background())
}

// FromContext returns a token that is also cancelled when parent is done.
func FromContext(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)
	t := &Token{ctx: ctx, cancel: cancel}
	context.AfterFunc(ctx, func() { t.cancelled.Store(true) })
	return t
}

// Cancel transitions the token. It reports true only for the call that performed
// the transition; later calls are no-ops.
func (t *Token) Cancel() bool {
	if t.ctx.Err() != nil || !t.cancelled.CompareAndSwap(false, true) {
		return false
	}
	t.cancel()
	return true
}

// Cancelled is the non-blocking poll.
func (t *Token) Cancelled() bool {
	if t.cancelled.Load() {
		return true
	}
	return t.ctx.Err() != nil
}

// Done is closed once the token is cancelled.
func (t *Token) Done() <-chan struct{} {
	return t.ctx.Done()
}

// Wait blocks until the token is cancelled.
func (t *Token) Wait() {
	<-t.ctx.Done()
}

// WaitTimeout blocks until cancellation or d elapses, reporting whether the
// token was cancelled.
func (t *Token) WaitTimeout(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-t.ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}

// Context exposes the token to context-aware APIs such as rate limiters.
func (t *Token) Context() context.Context {
	return t.ctx
}
