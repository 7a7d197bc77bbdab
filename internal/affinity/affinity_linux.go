//go:build linux

// Package affinity pins the calling goroutine's OS thread to a single
// CPU core, so a receive core's busy-poll loop doesn't migrate.
package affinity

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the current goroutine to its OS thread and restricts that
// thread to core. Must be called from the goroutine that will run the
// busy-poll loop.
func Pin(core int) error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(core)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: pin to core %d: %w", core, err)
	}
	return nil
}
