// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import (
	"runtime"

	"github.com/gamedolphin/gafferchallenge/api"
)

// SetAffinity pins the current OS thread to a given logical CPU.
// The caller must hold runtime.LockOSThread for the pin to stay meaningful.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// ClearAffinity lets the current OS thread run on every online CPU again.
func ClearAffinity() error {
	return clearAffinityPlatform()
}

// Pinner implements api.Affinity for the calling goroutine.
type Pinner struct{}

var _ api.Affinity = Pinner{}

// Pin locks the goroutine to its thread and binds the thread to cpuID.
// On failure the thread is unlocked again.
func (Pinner) Pin(cpuID int) error {
	runtime.LockOSThread()
	if err := SetAffinity(cpuID); err != nil {
		runtime.UnlockOSThread()
		return err
	}
	return nil
}

// Unpin clears the CPU mask and unlocks the thread.
func (Pinner) Unpin() error {
	err := ClearAffinity()
	runtime.UnlockOSThread()
	return err
}
