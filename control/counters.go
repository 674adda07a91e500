// File: control/counters.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package control

import "sync/atomic"

// Counter is a 64-bit accumulator with many concurrent writers and one drainer.
// Between two drains its value equals the number of increments in that window.
type Counter struct {
	v atomic.Uint64
}

// Inc adds one.
func (c *Counter) Inc() { c.v.Add(1) }

// Add adds n.
func (c *Counter) Add(n uint64) { c.v.Add(n) }

// Load reads without resetting.
func (c *Counter) Load() uint64 { return c.v.Load() }

// Drain returns the current value and resets it to zero atomically.
func (c *Counter) Drain() uint64 { return c.v.Swap(0) }

// ThroughputCounters is the pair shared by every component of a run.
type ThroughputCounters struct {
	Sent     Counter
	Received Counter
}

// NewThroughputCounters returns zeroed counters.
func NewThroughputCounters() *ThroughputCounters {
	return &ThroughputCounters{}
}
