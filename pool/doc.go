// Package pool
// Author: momentics <momentics@gmail.com>
//
// Memory layer for the benchmark data plane.
// PayloadPool is the immutable send rotation borrowed by senders tick by tick;
// BufferPool recycles the forwarder's per-datagram receive buffers.
package pool
