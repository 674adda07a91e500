// Package api
// Author: momentics@gmail.com
//
// Worker assignment contract: how long-running tasks are mapped onto OS threads and CPUs.

package api

import "fmt"

// Placement describes where a task was scheduled.
type Placement struct {
	Worker int // worker slot the task was assigned to
	CPU    int // pinned CPU, or -1 when the task floats on the Go scheduler
}

// String renders the placement for log lines.
func (p Placement) String() string {
	if p.CPU < 0 {
		return fmt.Sprintf("worker=%d cpu=any", p.Worker)
	}
	return fmt.Sprintf("worker=%d cpu=%d", p.Worker, p.CPU)
}

// Affinity pins the calling goroutine's OS thread to a CPU.
type Affinity interface {
	// Pin locks the current goroutine to its thread and binds it to cpuID.
	Pin(cpuID int) error
	// Unpin removes the binding and unlocks the thread.
	Unpin() error
}
