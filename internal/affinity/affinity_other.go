//go:build !linux

package affinity

import "runtime"

// Pin locks the current goroutine to its OS thread. CPU pinning itself
// is Linux-only (SchedSetaffinity); elsewhere the busy-poll loop still
// runs, just without a core pin.
func Pin(core int) error {
	runtime.LockOSThread()
	return nil
}
