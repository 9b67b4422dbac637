//go:build !windows

package lock

import (
	"errors"
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// pidAlive returns true if a process with given pid exists (or EPERM).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	return err == nil || errors.Is(err, syscall.EPERM)
}

// processCwd reports the working directory of pid and whether it is running.
// cwd may be empty for a live process whose state cannot be inspected.
func processCwd(pid int) (string, bool, error) {
	if !pidAlive(pid) {
		return "", false, nil
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		// Raced with process exit between the kill(0) probe and here.
		return "", false, nil
	}
	cwd, err := p.Cwd()
	if err != nil {
		return "", true, nil
	}
	return cwd, true, nil
}
