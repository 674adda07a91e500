//go:build linux
// +build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux-specific implementation for setting thread CPU affinity.

package affinity

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// maxCPU is CPU_SETSIZE, the capacity of unix.CPUSet.
const maxCPU = 1024

// startupSet is the mask the process started with; ClearAffinity restores it.
var startupSet unix.CPUSet

func init() {
	if err := unix.SchedGetaffinity(0, &startupSet); err != nil {
		for i := 0; i < maxCPU; i++ {
			startupSet.Set(i)
		}
	}
}

// setAffinityPlatform binds the calling thread (pid 0) to cpuID.
func setAffinityPlatform(cpuID int) error {
	if cpuID < 0 || cpuID >= maxCPU {
		return errors.Errorf("affinity: cpu %d out of range [0,%d)", cpuID, maxCPU)
	}
	var set unix.CPUSet
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return errors.Wrapf(err, "affinity: sched_setaffinity cpu %d", cpuID)
	}
	return nil
}

func clearAffinityPlatform() error {
	set := startupSet
	return errors.Wrap(unix.SchedSetaffinity(0, &set), "affinity: sched_setaffinity reset")
}

// CurrentCPUs lists the CPUs the calling thread may run on.
func CurrentCPUs() ([]int, error) {
	var set unix.CPUSet
	if err := unix.SchedGetaffinity(0, &set); err != nil {
		return nil, errors.Wrap(err, "affinity: sched_getaffinity")
	}
	var cpus []int
	for i := 0; i < maxCPU; i++ {
		if set.IsSet(i) {
			cpus = append(cpus, i)
		}
	}
	return cpus, nil
}
