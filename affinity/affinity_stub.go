//go:build !linux
// +build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Stub implementation for unsupported platforms.
// Returns error to indicate unavailability.

package affinity

import "github.com/pkg/errors"

// ErrUnsupported is returned by every pinning call off Linux.
var ErrUnsupported = errors.New("affinity: not supported on this platform")

func setAffinityPlatform(cpuID int) error {
	return ErrUnsupported
}

func clearAffinityPlatform() error {
	return nil
}

// CurrentCPUs is unavailable on this platform.
func CurrentCPUs() ([]int, error) {
	return nil, ErrUnsupported
}
